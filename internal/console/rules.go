package console

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// NormalizePredicate makes a path predicate a suffix wildcard: "/api/foo"
// and "/api/foo/" both become "/api/foo/**".
func NormalizePredicate(p string) string {
	if strings.HasSuffix(p, "/**") {
		return p
	}
	if strings.HasSuffix(p, "/") {
		return p + "**"
	}
	return p + "/**"
}

// NormalizeURI prepends http:// when the URI has no http or https scheme.
func NormalizeURI(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "http://" + u
}

var ipv4Pattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// ValidIPv4 reports whether s is a dotted quad with every octet in [0,255].
func ValidIPv4(s string) bool {
	m := ipv4Pattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	for _, octet := range m[1:] {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// PercentDelta is the change from previous to current in whole percent,
// rounded half up. With no previous traffic it is 100 when current > 0,
// else 0.
func PercentDelta(current, previous int64) int {
	if previous > 0 {
		return int(math.Floor(100*float64(current-previous)/float64(previous) + 0.5))
	}
	if current > 0 {
		return 100
	}
	return 0
}

// ClampMaxRequests enforces the minimum request count of a rate limit.
func ClampMaxRequests(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ClampTimeWindowMs enforces the minimum window of a rate limit.
func ClampTimeWindowMs(ms int) int {
	if ms < 1000 {
		return 1000
	}
	return ms
}

// containsFold is the case-insensitive substring match used by view search.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
