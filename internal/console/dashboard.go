package console

import (
	"context"
	"time"

	cards "gwconsole/internal/cards"
	_ "gwconsole/internal/cards/dashboard"
	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// DashboardView holds the traffic counters and derives the displayed
// percentages on every read.
type DashboardView struct {
	totals *Resource[models.RequestCounter]
	minute *Resource[models.MinuteMetrics]
	routes *RouteView
	logger *utils.Logger
}

// NewDashboardView creates the view. routes supplies the route summary
// card and may be nil.
func NewDashboardView(api MetricsAPI, routes *RouteView, opts ViewOptions) *DashboardView {
	return &DashboardView{
		totals: NewResource("metrics-requests", api.Requests, opts.Logger, opts.Observer),
		minute: NewResource("metrics-minutely", api.Minutely, opts.Logger, opts.Observer),
		routes: routes,
		logger: opts.Logger,
	}
}

// Totals exposes the lifetime counter resource.
func (v *DashboardView) Totals() *Resource[models.RequestCounter] { return v.totals }

// Minute exposes the minute counter resource.
func (v *DashboardView) Minute() *Resource[models.MinuteMetrics] { return v.minute }

// RefreshTotals polls the lifetime counters.
func (v *DashboardView) RefreshTotals(ctx context.Context) error { return v.totals.Refresh(ctx) }

// RefreshMinute polls the minute counters.
func (v *DashboardView) RefreshMinute(ctx context.Context) error { return v.minute.Refresh(ctx) }

// Load refreshes both counters. The first error is returned.
func (v *DashboardView) Load(ctx context.Context) error {
	errTotals := v.totals.Refresh(ctx)
	errMinute := v.minute.Refresh(ctx)
	if errTotals != nil {
		return errTotals
	}
	return errMinute
}

// Snapshot combines the last applied counters with the percent change of
// the current minute against the previous one.
func (v *DashboardView) Snapshot() models.MetricsSnapshot {
	totals := v.totals.State()
	minute := v.minute.State()
	snap := models.MetricsSnapshot{
		Totals:        totals.Data,
		Minute:        minute.Data,
		RequestsDelta: PercentDelta(minute.Data.RequestsCurrentMinute, minute.Data.RequestsPreviousMinute),
		RejectedDelta: PercentDelta(minute.Data.RejectedCurrentMinute, minute.Data.RejectedPreviousMinute),
		TotalsOK:      !totals.UpdatedAt.IsZero(),
		MinuteOK:      !minute.UpdatedAt.IsZero(),
		SampledAt:     latest(totals.UpdatedAt, minute.UpdatedAt),
	}
	return snap
}

// Cards assembles the dashboard cards for an operator with role.
func (v *DashboardView) Cards(role string) []cards.Renderable {
	req := &cards.Request{Role: role, Metrics: v.Snapshot()}
	if v.routes != nil {
		s := v.routes.Summary()
		req.Routes = cards.RouteCounts{
			Total:         s.Total,
			WithIPFilter:  s.WithIPFilter,
			WithToken:     s.WithToken,
			WithRateLimit: s.WithRateLimit,
		}
	}
	return cards.BuildRenderables(cards.ScreenDashboard, req)
}

// Reset drops both counters.
func (v *DashboardView) Reset() {
	v.totals.Reset()
	v.minute.Reset()
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
