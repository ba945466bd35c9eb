// Package manager owns the live operator workspaces of the console server
// and samples the console process for the status endpoint.
package manager

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"gwconsole/internal/config"
	"gwconsole/internal/console"
	"gwconsole/internal/gateway"
	"gwconsole/internal/metrics"
	"gwconsole/internal/models"
	"gwconsole/internal/session"
	"gwconsole/internal/utils"
)

// ErrClosed is returned by Open after Shutdown.
var ErrClosed = errors.New("manager: shut down")

// Options wires a Manager.
type Options struct {
	Config     config.Config
	Sessions   *session.Store
	Logger     *utils.Logger
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	// Auth overrides the gateway login service built from Config.
	Auth console.LoginAPI
}

// entry is a registry slot. ready closes once Init has finished; err holds
// its result.
type entry struct {
	ws    *console.Workspace
	ready chan struct{}
	err   error
}

// EventFunc receives every workspace event with its operator.
type EventFunc func(username string, ev console.Event)

// Manager keeps one workspace per operator.
type Manager struct {
	cfg        config.Config
	sessions   *session.Store
	logger     *utils.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	auth       console.LoginAPI

	mu         sync.Mutex
	workspaces map[string]*entry
	listeners  map[int]EventFunc
	nextID     int
	closed     bool

	telemetryMu   sync.Mutex
	telemetryStop chan struct{}
	telemetryWG   sync.WaitGroup
	telemetry     *models.ProcessMetrics
	lastHostTotal float64
	lastHostIdle  float64
	lastProcCPU   float64
	lastProcAt    time.Time
}

// New creates a manager. Call Restore to reopen persisted sessions.
func New(opts Options) *Manager {
	m := &Manager{
		cfg:        opts.Config,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		httpClient: opts.HTTPClient,
		auth:       opts.Auth,
		workspaces: make(map[string]*entry),
		listeners:  make(map[int]EventFunc),
	}
	if m.auth == nil {
		authOpts := []gateway.Option{gateway.WithHTTPClient(opts.HTTPClient)}
		if opts.Metrics != nil {
			authOpts = append(authOpts, gateway.WithObserver(opts.Metrics))
		}
		m.auth = gateway.NewAuthService(opts.Config.Gateway.BasicLoginURL, opts.Config.Gateway.FormLoginURL, authOpts...)
	}
	return m
}

// NormalizeUsername is the registry key of an operator.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (m *Manager) workspaceOptions() console.WorkspaceOptions {
	opts := console.WorkspaceOptions{
		APIBase:         m.cfg.Gateway.APIBase,
		MetricsBase:     m.cfg.Gateway.MetricsBase,
		Auth:            m.auth,
		HTTPClient:      m.httpClient,
		Logger:          m.logger,
		PageSize:        m.cfg.Console.PageSize,
		PrimaryAdmin:    m.cfg.Console.PrimaryAdmin,
		MetricsInterval: m.cfg.Polling.MetricsInterval,
		RoutesInterval:  m.cfg.Polling.RoutesInterval,
		OnUnauthorized:  m.handleUnauthorized,
	}
	if m.metrics != nil {
		opts.HTTPObserver = m.metrics
		opts.Observer = m.metrics
	}
	return opts
}

// Open returns the workspace of username, creating and initializing it on
// first use. Concurrent callers for the same operator wait for the first
// Init to finish.
func (m *Manager) Open(ctx context.Context, username string) (*console.Workspace, error) {
	key := NormalizeUsername(username)
	if key == "" {
		return nil, errors.New("username required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := m.workspaces[key]; ok {
		m.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.ws, nil
	}
	ws := console.NewWorkspace(m.sessions, key, m.workspaceOptions())
	ws.Subscribe(func(ev console.Event) { m.broadcast(key, ev) })
	e := &entry{ws: ws, ready: make(chan struct{})}
	m.workspaces[key] = e
	count := len(m.workspaces)
	m.mu.Unlock()
	m.setWorkspaceGauge(count)

	e.err = ws.Init(ctx)
	close(e.ready)
	if e.err != nil {
		m.remove(key, e)
		return nil, e.err
	}
	return ws, nil
}

// Get returns an open, initialized workspace.
func (m *Manager) Get(username string) (*console.Workspace, bool) {
	m.mu.Lock()
	e, ok := m.workspaces[NormalizeUsername(username)]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.ws, true
}

// Restore reopens every persisted session. Sessions older than the
// configured TTL are dropped instead.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.sessions == nil {
		return 0, nil
	}
	ttl := m.cfg.Console.SessionTTL
	restored := 0
	var errs []error
	for _, rec := range m.sessions.List() {
		if ttl > 0 && !rec.LoggedInAt.IsZero() && time.Since(rec.LoggedInAt) > ttl {
			m.logger.Writef("dropping expired session of %s", rec.Username)
			if err := m.sessions.Delete(rec.Username); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if _, err := m.Open(ctx, rec.Username); err != nil {
			errs = append(errs, err)
			continue
		}
		restored++
	}
	return restored, errors.Join(errs...)
}

// Logout ends the operator's session and drops the workspace.
func (m *Manager) Logout(username string) error {
	ws, ok := m.Get(username)
	if !ok {
		if m.sessions != nil {
			return m.sessions.Delete(NormalizeUsername(username))
		}
		return nil
	}
	err := ws.Logout()
	m.Evict(username)
	return err
}

// Evict disposes the workspace of username. The persisted session is left
// untouched.
func (m *Manager) Evict(username string) {
	key := NormalizeUsername(username)
	m.mu.Lock()
	e, ok := m.workspaces[key]
	m.mu.Unlock()
	if ok {
		m.remove(key, e)
	}
}

// remove drops e if it still holds the slot of key.
func (m *Manager) remove(key string, e *entry) {
	m.mu.Lock()
	if m.workspaces[key] != e {
		m.mu.Unlock()
		return
	}
	delete(m.workspaces, key)
	count := len(m.workspaces)
	m.mu.Unlock()
	e.ws.Dispose()
	m.setWorkspaceGauge(count)
}

// Usernames lists the open workspaces.
func (m *Manager) Usernames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workspaces))
	for name := range m.workspaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether Shutdown has run.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Count returns the number of open workspaces.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// Subscribe registers fn for every workspace event and returns a cancel
// func.
func (m *Manager) Subscribe(fn EventFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Shutdown disposes every workspace and stops telemetry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	all := m.workspaces
	m.workspaces = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.ws.Dispose()
	}
	m.setWorkspaceGauge(0)
	m.StopTelemetryMonitor()
}

func (m *Manager) handleUnauthorized(username string) {
	m.logger.Writef("evicting workspace of %s after upstream 401", username)
	m.Evict(username)
}

func (m *Manager) broadcast(username string, ev console.Event) {
	m.mu.Lock()
	fns := make([]EventFunc, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(username, ev)
	}
}

func (m *Manager) setWorkspaceGauge(n int) {
	if m.metrics != nil {
		m.metrics.SetWorkspaces(n)
	}
}
