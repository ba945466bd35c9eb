package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gwconsole/internal/gateway"
	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// Capability is one of the three per-route security flags.
type Capability string

const (
	CapabilityIPFilter  Capability = "ip-filter"
	CapabilityToken     Capability = "token"
	CapabilityRateLimit Capability = "rate-limit"
)

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(s); c {
	case CapabilityIPFilter, CapabilityToken, CapabilityRateLimit:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// View names used by notice actions.
const (
	ViewRoutes       = "routes"
	ViewIPManagement = "ip-management"
	ViewRateLimits   = "rate-limits"
)

// ViewOptions are shared by every view constructor.
type ViewOptions struct {
	Logger   *utils.Logger
	Observer PollObserver
	PageSize int
}

func (o ViewOptions) pageSize() int {
	if o.PageSize <= 0 {
		return DefaultPageSize
	}
	return o.PageSize
}

// RouteRow is a route as shown in the table, with the transient highlight
// set by navigation.
type RouteRow struct {
	models.Route
	Highlighted bool `json:"highlighted,omitempty"`
}

// RouteSummary counts routes per capability.
type RouteSummary struct {
	Total         int `json:"total"`
	WithIPFilter  int `json:"withIpFilter"`
	WithToken     int `json:"withToken"`
	WithRateLimit int `json:"withRateLimit"`
}

// RouteForm is the add/edit dialog.
type RouteForm struct {
	ID            int64             `json:"id,omitempty"`
	RouteID       string            `json:"routeId,omitempty"`
	Predicates    string            `json:"predicates"`
	URI           string            `json:"uri"`
	WithIPFilter  bool              `json:"withIpFilter"`
	WithToken     bool              `json:"withToken"`
	WithRateLimit bool              `json:"withRateLimit"`
	RateLimit     *models.RateLimit `json:"rateLimit,omitempty"`
}

// Validate checks the required fields.
func (f RouteForm) Validate() FieldErrors {
	fe := FieldErrors{}
	if strings.TrimSpace(f.Predicates) == "" {
		fe["predicates"] = "Path is required"
	}
	if strings.TrimSpace(f.URI) == "" {
		fe["uri"] = "URI is required"
	}
	return fe
}

// RouteView is the route management view.
type RouteView struct {
	api      RouteAPI
	res      *Resource[[]models.Route]
	logger   *utils.Logger
	pageSize int

	mu          sync.RWMutex
	highlighted int64
	onIPFilter  func(routeID int64)
}

// NewRouteView creates the view over api.
func NewRouteView(api RouteAPI, opts ViewOptions) *RouteView {
	return &RouteView{
		api:      api,
		res:      NewResource("routes", api.List, opts.Logger, opts.Observer),
		logger:   opts.Logger,
		pageSize: opts.pageSize(),
	}
}

// OnIPFilterEnabled registers fn to run after a route's IP filter is
// switched on.
func (v *RouteView) OnIPFilterEnabled(fn func(routeID int64)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onIPFilter = fn
}

// Resource exposes the underlying list resource.
func (v *RouteView) Resource() *Resource[[]models.Route] { return v.res }

// Load refreshes the route list.
func (v *RouteView) Load(ctx context.Context) error { return v.res.Refresh(ctx) }

// State returns the list state.
func (v *RouteView) State() State[[]models.Route] { return v.res.State() }

// Find returns a copy of the route with the given id from the current list.
func (v *RouteView) Find(id int64) (models.Route, bool) {
	return findRoute(v.res.Data(), id)
}

// Highlight marks a route for the next renders. Zero clears it.
func (v *RouteView) Highlight(id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlighted = id
}

// Rows filters on routeId, predicates and uri, then paginates.
func (v *RouteView) Rows(search string, page int) Page[RouteRow] {
	v.mu.RLock()
	highlighted := v.highlighted
	v.mu.RUnlock()

	routes := v.res.Data()
	rows := make([]RouteRow, 0, len(routes))
	for _, r := range routes {
		rows = append(rows, RouteRow{Route: r.Clone(), Highlighted: highlighted != 0 && r.ID == highlighted})
	}
	filtered := Filter(rows, search, func(r RouteRow) string {
		return r.RouteID + " " + r.Predicates + " " + r.URI
	})
	return Paginate(filtered, page, v.pageSize)
}

// Summary counts the current routes per capability.
func (v *RouteView) Summary() RouteSummary {
	routes := v.res.Data()
	s := RouteSummary{Total: len(routes)}
	for _, r := range routes {
		if r.WithIPFilter {
			s.WithIPFilter++
		}
		if r.WithToken {
			s.WithToken++
		}
		if r.WithRateLimit {
			s.WithRateLimit++
		}
	}
	return s
}

// NewForm returns an empty add form.
func (v *RouteView) NewForm() RouteForm {
	rl := models.DefaultRateLimit()
	return RouteForm{RateLimit: &rl}
}

// EditForm returns the edit form for a route, seeded with the default rate
// limit when the route has none.
func (v *RouteView) EditForm(id int64) (RouteForm, error) {
	r, ok := v.Find(id)
	if !ok {
		return RouteForm{}, ErrNotFound
	}
	rl := r.EffectiveRateLimit()
	return RouteForm{
		ID:            r.ID,
		RouteID:       r.RouteID,
		Predicates:    r.Predicates,
		URI:           r.URI,
		WithIPFilter:  r.WithIPFilter,
		WithToken:     r.WithToken,
		WithRateLimit: r.WithRateLimit,
		RateLimit:     &rl,
	}, nil
}

// Save validates and normalizes the form, creates or updates the route,
// then reloads the list.
func (v *RouteView) Save(ctx context.Context, form RouteForm) (Notice, error) {
	if fe := form.Validate(); len(fe) > 0 {
		return failure("Path and URI are required fields"), fe
	}

	route := models.Route{}
	if form.ID != 0 {
		if cur, ok := v.Find(form.ID); ok {
			route = cur
		}
	}
	route.ID = form.ID
	route.RouteID = strings.TrimSpace(form.RouteID)
	route.Predicates = NormalizePredicate(strings.TrimSpace(form.Predicates))
	route.URI = NormalizeURI(strings.TrimSpace(form.URI))
	route.WithIPFilter = form.WithIPFilter
	route.WithToken = form.WithToken
	route.WithRateLimit = form.WithRateLimit
	if form.RateLimit != nil {
		rl := *form.RateLimit
		if route.RateLimit != nil && rl.ID == 0 {
			rl.ID = route.RateLimit.ID
		}
		route.RateLimit = &rl
	}
	if route.WithRateLimit && route.RateLimit == nil {
		rl := models.DefaultRateLimit()
		route.RateLimit = &rl
	}

	var (
		err    error
		notice Notice
	)
	if form.ID != 0 {
		_, err = v.api.Update(ctx, form.ID, route)
		notice = success("Route updated successfully")
	} else {
		_, err = v.api.Create(ctx, route)
		notice = success("New route created successfully")
	}
	if err != nil {
		v.logger.Writef("save route %q failed: %v", route.Predicates, err)
		return failure(upstreamMessage(err, "Failed to save route")), err
	}

	v.reload(ctx)
	return notice, nil
}

// Delete removes a route and reloads.
func (v *RouteView) Delete(ctx context.Context, id int64) (Notice, error) {
	if err := v.api.Delete(ctx, id); err != nil {
		v.logger.Writef("delete route %d failed: %v", id, err)
		return failure("Failed to delete route"), err
	}
	v.reload(ctx)
	return success("Route deleted successfully"), nil
}

// Toggle flips one capability of a route, sends one update, and reloads.
func (v *RouteView) Toggle(ctx context.Context, id int64, c Capability) (Notice, error) {
	route, ok := v.Find(id)
	if !ok {
		return failure("Route not found"), ErrNotFound
	}
	updated, notice, err := toggleCapability(ctx, v.api, route, c)
	if err != nil {
		v.logger.Writef("toggle %s on route %d failed: %v", c, id, err)
		return failure("Failed to update route settings"), err
	}
	if c == CapabilityIPFilter && updated.WithIPFilter {
		v.mu.RLock()
		fn := v.onIPFilter
		v.mu.RUnlock()
		if fn != nil {
			fn(id)
		}
	}
	v.reload(ctx)
	return notice, nil
}

// ToggleIPFilter flips the IP filter flag.
func (v *RouteView) ToggleIPFilter(ctx context.Context, id int64) (Notice, error) {
	return v.Toggle(ctx, id, CapabilityIPFilter)
}

// ToggleToken flips the token validation flag.
func (v *RouteView) ToggleToken(ctx context.Context, id int64) (Notice, error) {
	return v.Toggle(ctx, id, CapabilityToken)
}

// ToggleRateLimit flips the rate limit flag.
func (v *RouteView) ToggleRateLimit(ctx context.Context, id int64) (Notice, error) {
	return v.Toggle(ctx, id, CapabilityRateLimit)
}

func (v *RouteView) reload(ctx context.Context) {
	_ = v.res.Refresh(ctx)
}

// toggleCapability copies route, flips c, and sends the update. Enabling
// rate limiting without a stored value sends the default first.
func toggleCapability(ctx context.Context, api RouteAPI, route models.Route, c Capability) (models.Route, Notice, error) {
	updated := route.Clone()
	var notice Notice
	switch c {
	case CapabilityIPFilter:
		updated.WithIPFilter = !updated.WithIPFilter
		if updated.WithIPFilter {
			notice = Notice{
				Severity: SeverityInfo,
				Message:  "IP filtering enabled. Add IP addresses to the whitelist for this route to take effect.",
				Action:   &NoticeAction{Label: "Manage IPs", View: ViewIPManagement, RouteID: route.ID},
			}
		} else {
			name := route.RouteID
			if name == "" {
				name = fmt.Sprint(route.ID)
			}
			notice = success("IP filtering disabled for route %s", name)
		}
	case CapabilityToken:
		updated.WithToken = !updated.WithToken
		notice = success("Token validation %s", enabledWord(updated.WithToken))
	case CapabilityRateLimit:
		updated.WithRateLimit = !updated.WithRateLimit
		if updated.WithRateLimit && updated.RateLimit == nil {
			rl := models.DefaultRateLimit()
			updated.RateLimit = &rl
		}
		notice = success("Rate limiting %s", enabledWord(updated.WithRateLimit))
	default:
		return route, Notice{}, fmt.Errorf("unknown capability %q", c)
	}

	if _, err := api.Update(ctx, route.ID, updated); err != nil {
		return route, Notice{}, err
	}
	return updated, notice, nil
}

func findRoute(routes []models.Route, id int64) (models.Route, bool) {
	for _, r := range routes {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return models.Route{}, false
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// upstreamMessage prefers the server's message text over fallback.
func upstreamMessage(err error, fallback string) string {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
