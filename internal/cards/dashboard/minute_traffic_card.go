package dashboard

import (
	"fmt"

	"github.com/gin-gonic/gin"

	cards "gwconsole/internal/cards"
)

const minuteTrafficTemplate = "cards/minute_traffic.html"

type minuteTrafficCard struct{}

func (minuteTrafficCard) ID() string {
	return "minute-traffic"
}

func (minuteTrafficCard) Template() string {
	return minuteTrafficTemplate
}

func (minuteTrafficCard) Screens() []cards.Screen {
	return []cards.Screen{cards.ScreenDashboard}
}

func (minuteTrafficCard) Slot() cards.Slot {
	return cards.SlotGrid
}

func (minuteTrafficCard) Capabilities() cards.CardCapabilities {
	return cards.CardCapabilities{RequireMinute: true}
}

func (minuteTrafficCard) FetchData(req *cards.Request) (gin.H, error) {
	m := req.Metrics.Minute
	return gin.H{
		"requestsCurrentMinute":  m.RequestsCurrentMinute,
		"requestsPreviousMinute": m.RequestsPreviousMinute,
		"rejectedCurrentMinute":  m.RejectedCurrentMinute,
		"rejectedPreviousMinute": m.RejectedPreviousMinute,
		"requestsDelta":          req.Metrics.RequestsDelta,
		"requestsDeltaLabel":     deltaLabel(req.Metrics.RequestsDelta),
		"requestsTrend":          trend(req.Metrics.RequestsDelta),
		"rejectedDelta":          req.Metrics.RejectedDelta,
		"rejectedDeltaLabel":     deltaLabel(req.Metrics.RejectedDelta),
		"rejectedTrend":          trend(req.Metrics.RejectedDelta),
	}, nil
}

func deltaLabel(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d%%", delta)
	}
	return fmt.Sprintf("%d%%", delta)
}

func trend(delta int) string {
	switch {
	case delta > 0:
		return "up"
	case delta < 0:
		return "down"
	default:
		return "flat"
	}
}

func ratioLabel(part, whole int64) string {
	if whole <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(whole))
}
