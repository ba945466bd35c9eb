package console

import (
	"context"
	"fmt"
	"strconv"

	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// RateLimitView is the rate limit table over the shared route list.
type RateLimitView struct {
	api      RouteAPI
	res      *Resource[[]models.Route]
	logger   *utils.Logger
	pageSize int
}

// NewRateLimitView creates the view over api.
func NewRateLimitView(api RouteAPI, opts ViewOptions) *RateLimitView {
	return &RateLimitView{
		api:      api,
		res:      NewResource("rate-limits", api.List, opts.Logger, opts.Observer),
		logger:   opts.Logger,
		pageSize: opts.pageSize(),
	}
}

// Resource exposes the underlying list resource.
func (v *RateLimitView) Resource() *Resource[[]models.Route] { return v.res }

// Load refreshes the route list.
func (v *RateLimitView) Load(ctx context.Context) error { return v.res.Refresh(ctx) }

// State returns the list state.
func (v *RateLimitView) State() State[[]models.Route] { return v.res.State() }

// Rows filters on predicates, routeId and uri, then paginates.
func (v *RateLimitView) Rows(search string, page int) Page[models.Route] {
	filtered := Filter(v.res.Data(), search, func(r models.Route) string {
		return r.Predicates + " " + r.RouteID + " " + r.URI
	})
	return Paginate(filtered, page, v.pageSize)
}

// ToggleRateLimit flips the rate limit flag of a route.
func (v *RateLimitView) ToggleRateLimit(ctx context.Context, id int64) (Notice, error) {
	route, ok := findRoute(v.res.Data(), id)
	if !ok {
		return failure("Route not found"), ErrNotFound
	}
	_, notice, err := toggleCapability(ctx, v.api, route, CapabilityRateLimit)
	if err != nil {
		v.logger.Writef("toggle rate limit on route %d failed: %v", id, err)
		return failure("Failed to update rate limit settings"), err
	}
	_ = v.res.Refresh(ctx)
	return notice, nil
}

// Edit opens the editor for one route, seeded from its stored value or the
// defaults.
func (v *RateLimitView) Edit(id int64) (*RateLimitEditor, error) {
	route, ok := findRoute(v.res.Data(), id)
	if !ok {
		return nil, ErrNotFound
	}
	e := &RateLimitEditor{view: v, route: route, value: models.DefaultRateLimit()}
	if route.RateLimit != nil {
		if route.RateLimit.MaxRequests > 0 {
			e.value.MaxRequests = route.RateLimit.MaxRequests
		}
		if route.RateLimit.TimeWindowMs > 0 {
			e.value.TimeWindowMs = route.RateLimit.TimeWindowMs
		}
	}
	return e, nil
}

// RateLimitEditor edits exactly one route's rate limit. Input is clamped as
// it is set.
type RateLimitEditor struct {
	view  *RateLimitView
	route models.Route
	value models.RateLimit
}

// Route returns the route being edited.
func (e *RateLimitEditor) Route() models.Route { return e.route.Clone() }

// Value returns the edited values.
func (e *RateLimitEditor) Value() models.RateLimit { return e.value }

// SetMaxRequests sets the request count, clamped to at least 1.
func (e *RateLimitEditor) SetMaxRequests(n int) { e.value.MaxRequests = ClampMaxRequests(n) }

// SetTimeWindowMs sets the window, clamped to at least 1000 ms.
func (e *RateLimitEditor) SetTimeWindowMs(ms int) { e.value.TimeWindowMs = ClampTimeWindowMs(ms) }

// SetMaxRequestsText parses dialog input; unparsable text clamps to 1.
func (e *RateLimitEditor) SetMaxRequestsText(s string) {
	n, _ := strconv.Atoi(s)
	e.SetMaxRequests(n)
}

// SetTimeWindowText parses dialog input; unparsable text clamps to 1000.
func (e *RateLimitEditor) SetTimeWindowText(s string) {
	n, _ := strconv.Atoi(s)
	e.SetTimeWindowMs(n)
}

// Describe renders the editor summary line.
func (e *RateLimitEditor) Describe() string {
	return fmt.Sprintf("This will allow %d requests per %s seconds", e.value.MaxRequests, formatSeconds(e.value.TimeWindowMs))
}

// Save sends the route with rate limiting enabled and the edited value,
// keeping any existing rate limit id, then reloads.
func (e *RateLimitEditor) Save(ctx context.Context) (Notice, error) {
	updated := e.route.Clone()
	updated.WithRateLimit = true
	rl := e.value
	if e.route.RateLimit != nil {
		rl.ID = e.route.RateLimit.ID
	}
	updated.RateLimit = &rl

	if _, err := e.view.api.Update(ctx, e.route.ID, updated); err != nil {
		e.view.logger.Writef("update rate limit of route %d failed: %v", e.route.ID, err)
		return failure("Failed to update rate limit"), err
	}
	_ = e.view.res.Refresh(ctx)
	return success("Rate limit updated successfully"), nil
}

// formatSeconds prints ms as seconds without a trailing ".0".
func formatSeconds(ms int) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}
