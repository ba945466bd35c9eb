package dashboard

import (
	"github.com/gin-gonic/gin"

	cards "gwconsole/internal/cards"
)

const requestTotalsTemplate = "cards/request_totals.html"

type requestTotalsCard struct{}

func (requestTotalsCard) ID() string {
	return "request-totals"
}

func (requestTotalsCard) Template() string {
	return requestTotalsTemplate
}

func (requestTotalsCard) Screens() []cards.Screen {
	return []cards.Screen{cards.ScreenDashboard}
}

func (requestTotalsCard) Slot() cards.Slot {
	return cards.SlotPrimary
}

func (requestTotalsCard) Capabilities() cards.CardCapabilities {
	return cards.CardCapabilities{RequireTotals: true}
}

func (requestTotalsCard) FetchData(req *cards.Request) (gin.H, error) {
	totals := req.Metrics.Totals
	accepted := totals.RequestCount - totals.RejectedCount
	if accepted < 0 {
		accepted = 0
	}
	return gin.H{
		"requestCount":  totals.RequestCount,
		"rejectedCount": totals.RejectedCount,
		"acceptedCount": accepted,
		"rejectedRatio": ratioLabel(totals.RejectedCount, totals.RequestCount),
	}, nil
}
