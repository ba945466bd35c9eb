package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cards "gwconsole/internal/cards"
	"gwconsole/internal/gateway"
	"gwconsole/internal/models"
	"gwconsole/internal/session"
	"gwconsole/internal/utils"
)

// Default poll and highlight timings.
const (
	DefaultMetricsInterval = 5 * time.Second
	DefaultRoutesInterval  = 30 * time.Second
	DefaultHighlightWindow = 10 * time.Second
)

// EventKind names what changed in a workspace.
type EventKind string

const (
	EventRoutes     EventKind = "routes"
	EventIPs        EventKind = "ip-addresses"
	EventRateLimits EventKind = "rate-limits"
	EventMetrics    EventKind = "metrics"
	EventProfile    EventKind = "profile"
	EventUsers      EventKind = "users"
	EventHighlight  EventKind = "highlight"
	EventSession    EventKind = "session"
)

// Event is pushed to the operator's live connections.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Payload interface{} `json:"payload,omitempty"`
}

// SessionInfo is the payload of EventSession and of the session endpoint.
type SessionInfo struct {
	Username      string          `json:"username"`
	Authenticated bool            `json:"authenticated"`
	Profile       *models.Profile `json:"profile,omitempty"`
	LoggedInAt    time.Time       `json:"loggedInAt,omitempty"`
}

// WorkspaceOptions wires a workspace to the upstream hosts.
type WorkspaceOptions struct {
	APIBase      string
	MetricsBase  string
	Auth         LoginAPI
	HTTPClient   *http.Client
	HTTPObserver gateway.Observer
	Logger       *utils.Logger
	Observer     PollObserver
	PageSize     int
	PrimaryAdmin string

	MetricsInterval time.Duration
	RoutesInterval  time.Duration
	HighlightWindow time.Duration

	// OnUnauthorized runs in its own goroutine after an upstream 401 has
	// cleared the session.
	OnUnauthorized func(username string)
}

// Workspace is everything one operator has open: the session, the
// gateway services and every view controller.
type Workspace struct {
	username string
	opts     WorkspaceOptions
	logger   *utils.Logger
	session  *session.Session
	auth     LoginAPI

	routes     *RouteView
	ips        *IPView
	rateLimits *RateLimitView
	settings   *SettingsView
	dashboard  *DashboardView
	pollers    []*Poller

	ctx    context.Context
	cancel context.CancelFunc

	// lifecycle serializes attach counting with poller start and stop.
	lifecycle sync.Mutex

	mu          sync.Mutex
	attached    int
	disposed    bool
	highlight   *time.Timer
	listeners   map[int]func(Event)
	nextID      int
	unsubscribe []func()
}

// NewWorkspace builds the workspace of username over store. Call Init
// before use and Dispose when done.
func NewWorkspace(store *session.Store, username string, opts WorkspaceOptions) *Workspace {
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = DefaultMetricsInterval
	}
	if opts.RoutesInterval <= 0 {
		opts.RoutesInterval = DefaultRoutesInterval
	}
	if opts.HighlightWindow <= 0 {
		opts.HighlightWindow = DefaultHighlightWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		username:  username,
		opts:      opts,
		logger:    opts.Logger,
		session:   session.New(store, username),
		auth:      opts.Auth,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(Event)),
	}

	clientOpts := []gateway.Option{
		gateway.WithTokenSource(w.session),
		gateway.WithUnauthorizedHandler(w.handleUnauthorized),
		gateway.WithHTTPClient(opts.HTTPClient),
	}
	if opts.HTTPObserver != nil {
		clientOpts = append(clientOpts, gateway.WithObserver(opts.HTTPObserver))
	}
	api := gateway.NewClient(opts.APIBase, clientOpts...)
	metricsBase := opts.MetricsBase
	if metricsBase == "" {
		metricsBase = opts.APIBase
	}
	metricsClient := gateway.NewClient(metricsBase, clientOpts...)

	viewOpts := ViewOptions{Logger: opts.Logger, Observer: opts.Observer, PageSize: opts.PageSize}
	w.routes = NewRouteView(gateway.NewRouteService(api), viewOpts)
	w.ips = NewIPView(gateway.NewIPService(api), viewOpts)
	w.rateLimits = NewRateLimitView(gateway.NewRouteService(api), viewOpts)
	w.settings = NewSettingsView(gateway.NewUserService(api), w.session, opts.PrimaryAdmin, viewOpts)
	w.dashboard = NewDashboardView(gateway.NewMetricsService(metricsClient), w.routes, viewOpts)

	w.routes.OnIPFilterEnabled(w.highlightRoute)
	w.wireEvents()

	w.pollers = []*Poller{
		NewPoller("metrics-requests", opts.MetricsInterval, func(ctx context.Context) { _ = w.dashboard.RefreshTotals(ctx) }),
		NewPoller("metrics-minutely", opts.MetricsInterval, func(ctx context.Context) { _ = w.dashboard.RefreshMinute(ctx) }),
		NewPoller("routes", opts.RoutesInterval, func(ctx context.Context) { _ = w.routes.Load(ctx) }),
	}
	return w
}

func (w *Workspace) wireEvents() {
	w.unsubscribe = append(w.unsubscribe,
		forward(w, w.routes.Resource(), EventRoutes),
		forward(w, w.ips.Resource(), EventIPs),
		forward(w, w.rateLimits.Resource(), EventRateLimits),
		forward(w, w.settings.UsersResource(), EventUsers),
		w.dashboard.Totals().Subscribe(func(st State[models.RequestCounter]) { w.emitMetrics(st.Status) }),
		w.dashboard.Minute().Subscribe(func(st State[models.MinuteMetrics]) { w.emitMetrics(st.Status) }),
		w.session.Subscribe(func(st session.State) {
			w.emit(Event{Kind: EventProfile, Payload: st.Profile})
		}),
	)
}

func forward[T any](w *Workspace, r *Resource[T], kind EventKind) func() {
	return r.Subscribe(func(st State[T]) {
		if st.Status == StatusLoading {
			return
		}
		w.emit(Event{Kind: kind, Payload: st})
	})
}

func (w *Workspace) emitMetrics(status Status) {
	if status == StatusLoading {
		return
	}
	w.emit(Event{Kind: EventMetrics, Payload: w.dashboard.Snapshot()})
}

// Username returns the operator the workspace belongs to.
func (w *Workspace) Username() string { return w.username }

// Session returns the operator session.
func (w *Workspace) Session() *session.Session { return w.session }

// Routes returns the route management view.
func (w *Workspace) Routes() *RouteView { return w.routes }

// IPs returns the IP management view.
func (w *Workspace) IPs() *IPView { return w.ips }

// RateLimits returns the rate limit view.
func (w *Workspace) RateLimits() *RateLimitView { return w.rateLimits }

// Settings returns the settings view.
func (w *Workspace) Settings() *SettingsView { return w.settings }

// Dashboard returns the dashboard view.
func (w *Workspace) Dashboard() *DashboardView { return w.dashboard }

// Pollers returns the background refresh loops.
func (w *Workspace) Pollers() []*Poller { return w.pollers }

// Authenticated reports whether the operator holds a live session.
func (w *Workspace) Authenticated() bool { return w.session.Authenticated() }

// RequireAuth returns ErrNotAuthenticated unless logged in.
func (w *Workspace) RequireAuth() error {
	if !w.session.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Info describes the session.
func (w *Workspace) Info() SessionInfo {
	info := SessionInfo{
		Username:      w.username,
		Authenticated: w.session.Authenticated(),
		LoggedInAt:    w.session.LoggedInAt(),
	}
	if p, ok := w.session.Profile(); ok {
		info.Profile = &p
	}
	return info
}

// Init restores the persisted session. A stored token without a profile
// triggers a profile fetch; its failure is logged, not returned.
func (w *Workspace) Init(ctx context.Context) error {
	if err := w.session.Init(); err != nil {
		return err
	}
	w.loadMissingProfile(ctx)
	return nil
}

func (w *Workspace) loadMissingProfile(ctx context.Context) {
	if !w.session.NeedsProfile() || w.session.Token() == "" {
		return
	}
	if _, err := w.settings.LoadProfile(ctx); err != nil {
		w.logger.Writef("load profile for %s failed: %v", w.username, err)
	}
}

// Login authenticates against the gateway and persists the session.
func (w *Workspace) Login(ctx context.Context, username, password string) (Notice, error) {
	if !strings.EqualFold(strings.TrimSpace(username), w.username) {
		return failure("Invalid username or password"), fmt.Errorf("workspace belongs to %s", w.username)
	}
	if w.auth == nil {
		return failure("Login is not available"), errors.New("console: no login service")
	}
	res, err := w.auth.Login(ctx, w.username, password)
	if err != nil {
		w.logger.Writef("login for %s failed: %v", w.username, err)
		return failure("Invalid username or password"), err
	}
	if err := w.session.Login(res.Token, nil); err != nil {
		return failure("Failed to store session"), err
	}
	w.logger.Writef("operator %s logged in via %s", w.username, res.Via)
	w.loadMissingProfile(ctx)

	w.lifecycle.Lock()
	w.reconcilePollers()
	w.lifecycle.Unlock()
	w.emit(Event{Kind: EventSession, Payload: w.Info()})
	return success("Welcome back, %s", w.username), nil
}

// Logout stops polling, clears the session and drops every view's data.
func (w *Workspace) Logout() error {
	w.lifecycle.Lock()
	w.stopPollers()
	err := w.session.Logout()
	w.lifecycle.Unlock()
	w.resetViews()
	w.emit(Event{Kind: EventSession, Payload: w.Info()})
	return err
}

// Attach registers a mounted client. Polling runs while at least one
// client is attached and the operator is logged in.
func (w *Workspace) Attach() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.attached++
	w.mu.Unlock()
	w.reconcilePollers()
}

// Detach unregisters a client; the last one stops polling.
func (w *Workspace) Detach() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.mu.Lock()
	if w.attached == 0 {
		w.mu.Unlock()
		return
	}
	w.attached--
	w.mu.Unlock()
	w.reconcilePollers()
}

// Attached returns the number of mounted clients.
func (w *Workspace) Attached() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attached
}

// Subscribe registers fn for workspace events and returns a cancel func.
func (w *Workspace) Subscribe(fn func(Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// DashboardCards renders the dashboard cards for the operator's role.
func (w *Workspace) DashboardCards() []cards.Renderable {
	role := ""
	if p, ok := w.session.Profile(); ok {
		role = p.Role
	}
	return w.dashboard.Cards(role)
}

// Dispose stops everything the workspace started. The persisted session
// stays on disk.
func (w *Workspace) Dispose() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	w.attached = 0
	if w.highlight != nil {
		w.highlight.Stop()
		w.highlight = nil
	}
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.listeners = make(map[int]func(Event))
	w.mu.Unlock()

	w.stopPollers()
	w.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	w.session.Dispose()
}

// reconcilePollers runs the pollers exactly while a client is attached and
// the operator is logged in. Callers hold lifecycle.
func (w *Workspace) reconcilePollers() {
	w.mu.Lock()
	want := w.attached > 0 && !w.disposed
	w.mu.Unlock()
	if want && w.session.Authenticated() {
		w.startPollers()
		return
	}
	w.stopPollers()
}

func (w *Workspace) startPollers() {
	for _, p := range w.pollers {
		p.Start(w.ctx)
	}
}

func (w *Workspace) stopPollers() {
	for _, p := range w.pollers {
		p.Stop()
	}
}

func (w *Workspace) resetViews() {
	w.routes.Resource().Reset()
	w.ips.Resource().Reset()
	w.rateLimits.Resource().Reset()
	w.settings.ProfileResource().Reset()
	w.settings.UsersResource().Reset()
	w.dashboard.Reset()
}

// handleUnauthorized runs on the goroutine of the failed call, which may be
// a poller, so the teardown happens elsewhere.
func (w *Workspace) handleUnauthorized() {
	go func() {
		w.logger.Writef("session of %s rejected upstream, logging out", w.username)
		w.lifecycle.Lock()
		w.stopPollers()
		w.lifecycle.Unlock()
		w.resetViews()
		w.emit(Event{Kind: EventSession, Payload: w.Info()})
		if w.opts.OnUnauthorized != nil {
			w.opts.OnUnauthorized(w.username)
		}
	}()
}

// highlightRoute marks the route in the route and IP views for the
// highlight window.
func (w *Workspace) highlightRoute(routeID int64) {
	w.routes.Highlight(routeID)
	w.ips.Highlight(routeID)
	w.emit(Event{Kind: EventHighlight, Payload: map[string]int64{"routeId": routeID}})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	if w.highlight != nil {
		w.highlight.Stop()
	}
	w.highlight = time.AfterFunc(w.opts.HighlightWindow, func() {
		if w.ips.Highlighted() != routeID {
			return
		}
		w.routes.Highlight(0)
		w.ips.Highlight(0)
		w.emit(Event{Kind: EventHighlight, Payload: map[string]int64{"routeId": 0}})
	})
}

func (w *Workspace) emit(ev Event) {
	w.mu.Lock()
	fns := make([]func(Event), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
