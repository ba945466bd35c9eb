package dashboard

import (
	"github.com/gin-gonic/gin"

	cards "gwconsole/internal/cards"
)

const routeCoverageTemplate = "cards/route_coverage.html"

type routeCoverageCard struct{}

func (routeCoverageCard) ID() string {
	return "route-coverage"
}

func (routeCoverageCard) Template() string {
	return routeCoverageTemplate
}

func (routeCoverageCard) Screens() []cards.Screen {
	return []cards.Screen{cards.ScreenDashboard, cards.ScreenRateLimits}
}

func (routeCoverageCard) Slot() cards.Slot {
	return cards.SlotFooter
}

func (routeCoverageCard) FetchData(req *cards.Request) (gin.H, error) {
	if req == nil {
		return gin.H{}, nil
	}
	rc := req.Routes
	return gin.H{
		"total":         rc.Total,
		"withIpFilter":  rc.WithIPFilter,
		"withToken":     rc.WithToken,
		"withRateLimit": rc.WithRateLimit,
		"unprotected":   unprotected(rc),
	}, nil
}

// unprotected is a lower bound: routes are counted per flag, not per route.
func unprotected(rc cards.RouteCounts) int {
	most := rc.WithIPFilter
	if rc.WithToken > most {
		most = rc.WithToken
	}
	if rc.WithRateLimit > most {
		most = rc.WithRateLimit
	}
	if n := rc.Total - most; n > 0 {
		return n
	}
	return 0
}
