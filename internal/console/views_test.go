package console

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gwconsole/internal/gateway"
	"gwconsole/internal/models"
)

type fakeRouteAPI struct {
	mu      sync.Mutex
	routes  []models.Route
	nextID  int64
	calls   map[string]int
	updates []models.Route
	failOn  string
}

func newFakeRouteAPI(routes ...models.Route) *fakeRouteAPI {
	f := &fakeRouteAPI{calls: map[string]int{}, nextID: 100}
	f.routes = append(f.routes, routes...)
	return f
}

func (f *fakeRouteAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRouteAPI) mutations() int {
	return f.count("create") + f.count("update") + f.count("delete")
}

func (f *fakeRouteAPI) hit(op string) error {
	f.calls[op]++
	if f.failOn == op {
		return &gateway.APIError{StatusCode: 500, Status: "500 Internal Server Error", Message: "boom"}
	}
	return nil
}

func (f *fakeRouteAPI) List(ctx context.Context) ([]models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	out := make([]models.Route, len(f.routes))
	for i, r := range f.routes {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeRouteAPI) Create(ctx context.Context, r models.Route) (models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("create"); err != nil {
		return models.Route{}, err
	}
	f.nextID++
	r.ID = f.nextID
	f.routes = append(f.routes, r)
	return r, nil
}

func (f *fakeRouteAPI) Update(ctx context.Context, id int64, r models.Route) (models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("update"); err != nil {
		return models.Route{}, err
	}
	f.updates = append(f.updates, r.Clone())
	for i := range f.routes {
		if f.routes[i].ID == id {
			f.routes[i] = r.Clone()
		}
	}
	return r, nil
}

func (f *fakeRouteAPI) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("delete"); err != nil {
		return err
	}
	for i := range f.routes {
		if f.routes[i].ID == id {
			f.routes = append(f.routes[:i], f.routes[i+1:]...)
			break
		}
	}
	return nil
}

func TestRouteSaveRejectsEmptyFormWithoutCalls(t *testing.T) {
	api := newFakeRouteAPI()
	v := NewRouteView(api, ViewOptions{})

	notice, err := v.Save(context.Background(), RouteForm{Predicates: "  ", URI: ""})
	fe, ok := AsFieldErrors(err)
	if !ok || fe["predicates"] == "" || fe["uri"] == "" {
		t.Fatalf("expected field errors, got %v", err)
	}
	if notice.Severity != SeverityError {
		t.Fatalf("expected error notice, got %+v", notice)
	}
	if api.mutations() != 0 || api.count("list") != 0 {
		t.Fatalf("expected no calls, got %v", api.calls)
	}
}

func TestRouteSaveNormalizesAndReloads(t *testing.T) {
	api := newFakeRouteAPI()
	v := NewRouteView(api, ViewOptions{})

	notice, err := v.Save(context.Background(), RouteForm{Predicates: "/api/foo", URI: "svc:8080"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if notice.Severity != SeveritySuccess || notice.Message != "New route created successfully" {
		t.Fatalf("unexpected notice %+v", notice)
	}
	routes := v.State().Data
	if len(routes) != 1 || routes[0].Predicates != "/api/foo/**" || routes[0].URI != "http://svc:8080" {
		t.Fatalf("unexpected routes %+v", routes)
	}
	if api.count("create") != 1 || api.count("list") != 1 {
		t.Fatalf("unexpected calls %v", api.calls)
	}
}

func TestRouteSaveReportsServerMessage(t *testing.T) {
	api := newFakeRouteAPI()
	api.failOn = "create"
	v := NewRouteView(api, ViewOptions{})

	notice, err := v.Save(context.Background(), RouteForm{Predicates: "/a", URI: "http://a"})
	if err == nil || notice.Message != "boom" {
		t.Fatalf("expected server message, got %+v %v", notice, err)
	}
}

func TestToggleRateLimitSendsDefaultValue(t *testing.T) {
	api := newFakeRouteAPI(models.Route{ID: 1, RouteID: "r1", Predicates: "/a/**", URI: "http://a"})
	v := NewRouteView(api, ViewOptions{})
	if err := v.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := v.ToggleRateLimit(context.Background(), 1); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(api.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(api.updates))
	}
	sent := api.updates[0]
	if !sent.WithRateLimit || sent.RateLimit == nil || sent.RateLimit.MaxRequests != 10 || sent.RateLimit.TimeWindowMs != 60000 {
		t.Fatalf("unexpected payload %+v", sent)
	}
}

func TestToggleIPFilterPointsAtIPManagement(t *testing.T) {
	api := newFakeRouteAPI(models.Route{ID: 7, RouteID: "r7", Predicates: "/a/**", URI: "http://a"})
	v := NewRouteView(api, ViewOptions{})
	_ = v.Load(context.Background())

	var enabled int64
	v.OnIPFilterEnabled(func(id int64) { enabled = id })

	notice, err := v.ToggleIPFilter(context.Background(), 7)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if notice.Severity != SeverityInfo || notice.Action == nil || notice.Action.View != ViewIPManagement || notice.Action.RouteID != 7 {
		t.Fatalf("unexpected notice %+v", notice)
	}
	if enabled != 7 {
		t.Fatalf("expected callback for route 7, got %d", enabled)
	}

	notice, err = v.ToggleIPFilter(context.Background(), 7)
	if err != nil || notice.Severity != SeveritySuccess || notice.Message != "IP filtering disabled for route r7" {
		t.Fatalf("unexpected disable notice %+v %v", notice, err)
	}
}

func TestToggleFailureKeepsList(t *testing.T) {
	api := newFakeRouteAPI(models.Route{ID: 1, Predicates: "/a/**", URI: "http://a"})
	v := NewRouteView(api, ViewOptions{})
	_ = v.Load(context.Background())
	api.failOn = "update"

	if _, err := v.ToggleToken(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
	if r, _ := v.Find(1); r.WithToken {
		t.Fatalf("expected local list unchanged")
	}
	if _, err := v.ToggleToken(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRouteRowsSearchAndHighlight(t *testing.T) {
	api := newFakeRouteAPI(
		models.Route{ID: 1, RouteID: "orders", Predicates: "/orders/**", URI: "http://orders"},
		models.Route{ID: 2, RouteID: "users", Predicates: "/users/**", URI: "http://users"},
	)
	v := NewRouteView(api, ViewOptions{PageSize: 1})
	_ = v.Load(context.Background())
	v.Highlight(2)

	page := v.Rows("USERS", 1)
	if page.Total != 1 || !page.Items[0].Highlighted {
		t.Fatalf("unexpected page %+v", page)
	}
	if all := v.Rows("", 2); all.TotalPages != 2 || all.Items[0].ID != 2 {
		t.Fatalf("unexpected second page %+v", all)
	}
	if s := v.Summary(); s.Total != 2 || s.WithIPFilter != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestRateLimitEditorClampsAndKeepsID(t *testing.T) {
	api := newFakeRouteAPI(models.Route{
		ID: 3, Predicates: "/a/**", URI: "http://a",
		RateLimit: &models.RateLimit{ID: 55, MaxRequests: 20, TimeWindowMs: 1500},
	})
	v := NewRateLimitView(api, ViewOptions{})
	_ = v.Load(context.Background())

	e, err := v.Edit(3)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := e.Describe(); got != "This will allow 20 requests per 1.5 seconds" {
		t.Fatalf("unexpected description %q", got)
	}
	e.SetMaxRequestsText("abc")
	e.SetTimeWindowText("10")
	if val := e.Value(); val.MaxRequests != 1 || val.TimeWindowMs != 1000 {
		t.Fatalf("expected clamped values, got %+v", val)
	}
	e.SetMaxRequests(30)
	e.SetTimeWindowMs(60000)
	if got := e.Describe(); got != "This will allow 30 requests per 60 seconds" {
		t.Fatalf("unexpected description %q", got)
	}

	if _, err := e.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	sent := api.updates[len(api.updates)-1]
	if !sent.WithRateLimit || sent.RateLimit.ID != 55 || sent.RateLimit.MaxRequests != 30 {
		t.Fatalf("unexpected payload %+v", sent.RateLimit)
	}
	if _, err := v.Edit(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRateLimitEditorSeedsDefaults(t *testing.T) {
	api := newFakeRouteAPI(models.Route{ID: 1, Predicates: "/a/**", URI: "http://a"})
	v := NewRateLimitView(api, ViewOptions{})
	_ = v.Load(context.Background())
	e, err := v.Edit(1)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if e.Describe() != "This will allow 10 requests per 60 seconds" {
		t.Fatalf("unexpected description %q", e.Describe())
	}
}

type fakeIPAPI struct {
	calls map[string]int
	ips   []models.IPAddress
}

func (f *fakeIPAPI) List(ctx context.Context) ([]models.IPAddress, error) {
	f.calls["list"]++
	return append([]models.IPAddress(nil), f.ips...), nil
}

func (f *fakeIPAPI) Routes(ctx context.Context) ([]models.RouteOption, error) {
	f.calls["routes"]++
	return []models.RouteOption{
		{ID: 1, RouteID: "r1", WithIPFilter: true},
		{ID: 2, RouteID: "r2"},
	}, nil
}

func (f *fakeIPAPI) Add(ctx context.Context, in models.IPAddressInput) (models.IPAddress, error) {
	f.calls["add"]++
	ip := models.IPAddress{ID: int64(len(f.ips) + 1), IP: in.IP, GatewayRouteID: in.GatewayRoute.ID}
	f.ips = append(f.ips, ip)
	return ip, nil
}

func (f *fakeIPAPI) Update(ctx context.Context, id int64, in models.IPAddressInput) (models.IPAddress, error) {
	f.calls["update"]++
	return models.IPAddress{ID: id, IP: in.IP, GatewayRouteID: in.GatewayRoute.ID}, nil
}

func (f *fakeIPAPI) Delete(ctx context.Context, id, routeID int64) error {
	f.calls["delete"]++
	return nil
}

func (f *fakeIPAPI) DeleteAllForRoute(ctx context.Context, routeID int64) error {
	f.calls["delete-all"]++
	f.ips = nil
	return nil
}

func TestIPAddRejectsInvalidWithoutCalls(t *testing.T) {
	api := &fakeIPAPI{calls: map[string]int{}}
	v := NewIPView(api, ViewOptions{})

	notice, err := v.Add(context.Background(), IPForm{IP: "256.1.1.1", RouteID: 1})
	if _, ok := AsFieldErrors(err); !ok || notice.Message != "Invalid IP address format (use x.x.x.x)" {
		t.Fatalf("unexpected result %+v %v", notice, err)
	}
	if _, err := v.Add(context.Background(), IPForm{IP: "10.0.0.1"}); err == nil {
		t.Fatalf("expected missing route to be rejected")
	}
	if len(api.calls) != 0 {
		t.Fatalf("expected no calls, got %v", api.calls)
	}
}

func TestIPBulkDeleteIsOneCall(t *testing.T) {
	api := &fakeIPAPI{calls: map[string]int{}}
	v := NewIPView(api, ViewOptions{})
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if _, err := v.Add(context.Background(), IPForm{IP: ip, RouteID: 1}); err != nil {
			t.Fatalf("add %s: %v", ip, err)
		}
	}

	if _, err := v.DeleteAllForRoute(context.Background(), 1); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if api.calls["delete-all"] != 1 || api.calls["delete"] != 0 {
		t.Fatalf("unexpected calls %v", api.calls)
	}
	if n := len(v.State().Data.IPs); n != 0 {
		t.Fatalf("expected empty list after reload, got %d", n)
	}
}

func TestIPGroupsIncludeHighlightedRoute(t *testing.T) {
	api := &fakeIPAPI{calls: map[string]int{}, ips: []models.IPAddress{{ID: 1, IP: "10.0.0.1", GatewayRouteID: 1}}}
	v := NewIPView(api, ViewOptions{})
	_ = v.Load(context.Background())

	if groups := v.Groups(0); len(groups) != 1 || groups[0].Route.ID != 1 || len(groups[0].IPs) != 1 {
		t.Fatalf("unexpected groups %+v", groups)
	}
	v.Highlight(2)
	groups := v.Groups(0)
	if len(groups) != 2 || !groups[1].Highlighted || len(groups[1].IPs) != 0 {
		t.Fatalf("expected highlighted route card, got %+v", groups)
	}
}

type fakeUserAPI struct {
	calls   map[string]int
	users   []models.User
	profile models.Profile
}

func (f *fakeUserAPI) Profile(ctx context.Context) (models.Profile, error) {
	f.calls["profile"]++
	return f.profile, nil
}

func (f *fakeUserAPI) UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	f.calls["update-profile"]++
	f.profile = p
	return p, nil
}

func (f *fakeUserAPI) UpdatePassword(ctx context.Context, pc models.PasswordChange) error {
	f.calls["password"]++
	return nil
}

func (f *fakeUserAPI) UpdateSecurity(ctx context.Context, s models.SecuritySettings) (models.Profile, error) {
	f.calls["security"]++
	s.Apply(&f.profile)
	return f.profile, nil
}

func (f *fakeUserAPI) ListUsers(ctx context.Context) ([]models.User, error) {
	f.calls["list"]++
	return append([]models.User(nil), f.users...), nil
}

func (f *fakeUserAPI) CreateUser(ctx context.Context, nu models.NewUser) (models.User, error) {
	f.calls["create"]++
	u := models.User{ID: int64(len(f.users) + 1), Username: nu.Username, Role: nu.Role, Status: models.StatusActive}
	f.users = append(f.users, u)
	return u, nil
}

func (f *fakeUserAPI) DeleteUser(ctx context.Context, id int64) error {
	f.calls["delete"]++
	return nil
}

func (f *fakeUserAPI) SetUserStatus(ctx context.Context, id int64, active bool) (models.User, error) {
	f.calls["status"]++
	for i := range f.users {
		if f.users[i].ID == id {
			if active {
				f.users[i].Status = models.StatusActive
			} else {
				f.users[i].Status = models.StatusDisabled
			}
			return f.users[i], nil
		}
	}
	return models.User{}, errors.New("missing")
}

type memHolder struct {
	p   models.Profile
	set bool
}

func (h *memHolder) Profile() (models.Profile, bool) { return h.p, h.set }

func (h *memHolder) SetProfile(p models.Profile) error {
	h.p, h.set = p, true
	return nil
}

func (h *memHolder) UpdateProfile(fn func(*models.Profile)) error {
	fn(&h.p)
	h.set = true
	return nil
}

func TestSettingsGuardsPrimaryAdmin(t *testing.T) {
	api := &fakeUserAPI{calls: map[string]int{}, users: []models.User{
		{ID: 1, Username: "admin", Role: models.RoleAdmin, Status: models.StatusActive},
		{ID: 2, Username: "bob", Role: models.RoleUser, Status: models.StatusActive},
	}}
	v := NewSettingsView(api, &memHolder{}, "admin", ViewOptions{})
	if err := v.LoadUsers(context.Background()); err != nil {
		t.Fatalf("load users: %v", err)
	}
	api.calls = map[string]int{}

	if _, err := v.DeleteUser(context.Background(), 1); !errors.Is(err, ErrPrimaryAdmin) || !IsGuardError(err) {
		t.Fatalf("expected primary admin guard, got %v", err)
	}
	if _, err := v.ToggleUserStatus(context.Background(), 1); !errors.Is(err, ErrPrimaryAdmin) {
		t.Fatalf("expected primary admin guard, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("guard made calls %v", api.calls)
	}

	notice, err := v.ToggleUserStatus(context.Background(), 2)
	if err != nil || notice.Message != "User disabled successfully" {
		t.Fatalf("unexpected toggle result %+v %v", notice, err)
	}
	if u := v.Users("disabled"); len(u) != 1 || u[0].Username != "bob" {
		t.Fatalf("expected bob disabled, got %+v", u)
	}
}

func TestSettingsValidatesLocally(t *testing.T) {
	api := &fakeUserAPI{calls: map[string]int{}}
	v := NewSettingsView(api, &memHolder{}, "admin", ViewOptions{})
	ctx := context.Background()

	if _, err := v.UpdatePassword(ctx, models.PasswordChange{CurrentPassword: "x", NewPassword: "short", ConfirmPassword: "short"}); err == nil {
		t.Fatalf("expected short password rejected")
	}
	if _, err := v.UpdatePassword(ctx, models.PasswordChange{CurrentPassword: "x", NewPassword: "longenough", ConfirmPassword: "different"}); err == nil {
		t.Fatalf("expected mismatch rejected")
	}
	if _, err := v.UpdateProfile(ctx, models.ProfilePatch{FirstName: "A", LastName: "B", Email: "nope"}); err == nil {
		t.Fatalf("expected invalid email rejected")
	}
	if _, err := v.CreateUser(ctx, models.NewUser{Username: "x"}); err == nil {
		t.Fatalf("expected incomplete user rejected")
	}
	if len(api.calls) != 0 {
		t.Fatalf("validation made calls %v", api.calls)
	}
}

func TestSettingsMergesProfileIntoSession(t *testing.T) {
	api := &fakeUserAPI{calls: map[string]int{}, profile: models.Profile{Username: "alice", FirstName: "Al", LastName: "Ice", Email: "a@x"}}
	holder := &memHolder{}
	v := NewSettingsView(api, holder, "admin", ViewOptions{})
	ctx := context.Background()

	if _, err := v.LoadProfile(ctx); err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if _, err := v.UpdateProfile(ctx, models.ProfilePatch{FirstName: " Alice ", LastName: "Ice", Email: "alice@x"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if _, err := v.UpdateSecurity(ctx, models.SecuritySettings{TwoFactorEnabled: true}); err != nil {
		t.Fatalf("update security: %v", err)
	}
	p := v.Profile()
	if p.FirstName != "Alice" || p.Email != "alice@x" || !p.TwoFactorEnabled || p.SessionTimeoutMinutes != models.DefaultSessionTimeoutMinutes {
		t.Fatalf("unexpected merged profile %+v", p)
	}
	if p.Username != "alice" {
		t.Fatalf("expected username kept, got %q", p.Username)
	}
}
