package models

// Default rate limit applied when a route enables rate limiting without a
// stored value.
const (
	DefaultMaxRequests  = 10
	DefaultTimeWindowMs = 60000

	MinMaxRequests  = 1
	MinTimeWindowMs = 1000
)

// Route maps an inbound path predicate to a destination URI with optional
// security capabilities enforced by the gateway.
type Route struct {
	ID            int64       `json:"id,omitempty"`
	RouteID       string      `json:"routeId,omitempty"`
	Predicates    string      `json:"predicates"`
	URI           string      `json:"uri"`
	WithIPFilter  bool        `json:"withIpFilter"`
	WithToken     bool        `json:"withToken"`
	WithRateLimit bool        `json:"withRateLimit"`
	RateLimit     *RateLimit  `json:"rateLimit,omitempty"`
	AllowedIPs    []AllowedIP `json:"allowedIps,omitempty"`
}

// RateLimit caps requests per time window for a route.
type RateLimit struct {
	ID           int64 `json:"id,omitempty"`
	MaxRequests  int   `json:"maxRequests"`
	TimeWindowMs int   `json:"timeWindowMs"`
}

// AllowedIP is an allow-list entry embedded in a route listing.
type AllowedIP struct {
	ID int64  `json:"id,omitempty"`
	IP string `json:"ip"`
}

// DefaultRateLimit returns {10 requests, 60000 ms}.
func DefaultRateLimit() RateLimit {
	return RateLimit{MaxRequests: DefaultMaxRequests, TimeWindowMs: DefaultTimeWindowMs}
}

// Clone returns a deep copy of the route.
func (r Route) Clone() Route {
	out := r
	if r.RateLimit != nil {
		rl := *r.RateLimit
		out.RateLimit = &rl
	}
	if r.AllowedIPs != nil {
		out.AllowedIPs = append([]AllowedIP(nil), r.AllowedIPs...)
	}
	return out
}

// EffectiveRateLimit returns the stored rate limit or the default.
func (r Route) EffectiveRateLimit() RateLimit {
	if r.RateLimit != nil {
		return *r.RateLimit
	}
	return DefaultRateLimit()
}
