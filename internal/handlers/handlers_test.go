package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/adminserver"
	"gwconsole/internal/config"
	"gwconsole/internal/manager"
	"gwconsole/internal/metrics"
	"gwconsole/internal/middleware"
	"gwconsole/internal/session"
)

type consoleHarness struct {
	t      *testing.T
	router *gin.Engine
	mgr    *manager.Manager
}

func newConsole(t *testing.T) *consoleHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	admin, err := adminserver.New(adminserver.NewStore(), adminserver.Options{JWTSecret: "upstream", AdminPassword: "password123"})
	if err != nil {
		t.Fatalf("admin server: %v", err)
	}
	upstream := httptest.NewServer(admin.Router())
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Gateway.APIBase = upstream.URL + "/api"
	cfg.Gateway.MetricsBase = upstream.URL
	cfg.Gateway.BasicLoginURL = upstream.URL + "/api/auth/login"
	cfg.Gateway.FormLoginURL = upstream.URL + "/login"

	m := metrics.New()
	mgr := manager.New(manager.Options{
		Config:   cfg,
		Sessions: session.NewStoreAt(filepath.Join(t.TempDir(), "sessions.json")),
		Metrics:  m,
	})
	t.Cleanup(mgr.Shutdown)

	h := New(Deps{
		Manager: mgr,
		Auth:    middleware.NewAuthService("console", time.Hour),
		Metrics: m,
	})
	t.Cleanup(h.Close)

	r := gin.New()
	h.Register(r)
	return &consoleHarness{t: t, router: r, mgr: mgr}
}

func (ch *consoleHarness) request(method, path, token, body string) *httptest.ResponseRecorder {
	ch.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ch.router.ServeHTTP(w, req)
	return w
}

func (ch *consoleHarness) login(username, password string) string {
	ch.t.Helper()
	w := ch.request(http.MethodPost, "/api/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	if w.Code != http.StatusOK {
		ch.t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || out.Token == "" {
		ch.t.Fatalf("login: no token in %s", w.Body.String())
	}
	return out.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestLoginSetsCookieAndSession(t *testing.T) {
	ch := newConsole(t)
	w := ch.request(http.MethodPost, "/api/login", "", `{"username":"Admin","password":"password123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), middleware.CookieName+"=") {
		t.Fatalf("expected auth cookie, got %q", w.Header().Get("Set-Cookie"))
	}
	if w.Header().Get("X-Toast-Type") != "success" {
		t.Fatalf("expected success toast, got %q", w.Header().Get("X-Toast-Type"))
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(t, w, &out)

	w = ch.request(http.MethodGet, "/api/session", out.Token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}
	var info struct {
		Username      string `json:"username"`
		Authenticated bool   `json:"authenticated"`
		Profile       *struct {
			Username string `json:"username"`
		} `json:"profile"`
	}
	decode(t, w, &info)
	if info.Username != "admin" || !info.Authenticated || info.Profile == nil {
		t.Fatalf("unexpected session %+v", info)
	}
}

func TestBadCredentialsAreRejected(t *testing.T) {
	ch := newConsole(t)
	w := ch.request(http.MethodPost, "/api/login", "", `{"username":"admin","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("X-Toast-Type") != "error" {
		t.Fatalf("expected error toast, got %q", w.Header().Get("X-Toast-Type"))
	}
	if ch.mgr.Count() != 0 {
		t.Fatalf("expected failed login to leave no workspace, got %v", ch.mgr.Usernames())
	}

	w = ch.request(http.MethodPost, "/api/login", "", `{"username":"","password":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	ch := newConsole(t)
	w := ch.request(http.MethodGet, "/api/routes", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRouteLifecycle(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")

	w := ch.request(http.MethodPost, "/api/routes", token, `{"predicates":"/api/orders","uri":"orders.internal:8080"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create route: %d %s", w.Code, w.Body.String())
	}

	var list struct {
		Routes struct {
			Items []struct {
				ID           int64  `json:"id"`
				Predicates   string `json:"predicates"`
				URI          string `json:"uri"`
				WithIPFilter bool   `json:"withIpFilter"`
			} `json:"items"`
			Total int `json:"total"`
		} `json:"routes"`
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
	}
	w = ch.request(http.MethodGet, "/api/routes?search=orders", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list routes: %d %s", w.Code, w.Body.String())
	}
	decode(t, w, &list)
	if list.Routes.Total != 1 || list.Summary.Total != 1 {
		t.Fatalf("expected one route, got %+v", list)
	}
	route := list.Routes.Items[0]
	if route.Predicates != "/api/orders/**" || route.URI != "http://orders.internal:8080" {
		t.Fatalf("expected normalized route, got %+v", route)
	}
	id := strconv.FormatInt(route.ID, 10)

	w = ch.request(http.MethodPost, "/api/routes/"+id+"/toggle/ip-filter", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", w.Code, w.Body.String())
	}
	var toggled struct {
		Notice struct {
			Severity string `json:"severity"`
			Action   *struct {
				View    string `json:"view"`
				RouteID int64  `json:"routeId"`
			} `json:"action"`
		} `json:"notice"`
	}
	decode(t, w, &toggled)
	if toggled.Notice.Severity != "info" || toggled.Notice.Action == nil || toggled.Notice.Action.View != "ip-management" {
		t.Fatalf("expected IP management hint, got %+v", toggled.Notice)
	}

	w = ch.request(http.MethodPost, "/api/routes/"+id+"/toggle/bogus", token, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown capability, got %d", w.Code)
	}

	w = ch.request(http.MethodPost, "/api/ip-addresses", token, `{"ip":"10.1.2.3","routeId":`+id+`}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add ip: %d %s", w.Code, w.Body.String())
	}
	var groups struct {
		Groups []struct {
			Route struct {
				ID int64 `json:"id"`
			} `json:"route"`
			IPs []struct {
				IP string `json:"ip"`
			} `json:"ips"`
		} `json:"groups"`
	}
	w = ch.request(http.MethodGet, "/api/ip-addresses/groups", token, "")
	decode(t, w, &groups)
	if len(groups.Groups) != 1 || len(groups.Groups[0].IPs) != 1 || groups.Groups[0].IPs[0].IP != "10.1.2.3" {
		t.Fatalf("unexpected groups %+v", groups)
	}

	w = ch.request(http.MethodDelete, "/api/ip-addresses/route/"+id, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("bulk delete: %d %s", w.Code, w.Body.String())
	}

	w = ch.request(http.MethodDelete, "/api/routes/"+id, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete route: %d %s", w.Code, w.Body.String())
	}
}

func TestValidationErrorsMapToStatus(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")

	w := ch.request(http.MethodPost, "/api/routes", token, `{"predicates":"","uri":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for local validation, got %d", w.Code)
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &out)
	if out.Fields["predicates"] == "" || out.Fields["uri"] == "" {
		t.Fatalf("expected field errors, got %+v", out.Fields)
	}

	w = ch.request(http.MethodPost, "/api/ip-addresses", token, `{"ip":"300.1.1.1","routeId":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid ip, got %d", w.Code)
	}

	w = ch.request(http.MethodDelete, "/api/routes/abc", token, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}

	w = ch.request(http.MethodPut, "/api/routes/9999", token, `{"predicates":"/x","uri":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}
}

func TestRateLimitEditorClamps(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")
	if w := ch.request(http.MethodPost, "/api/routes", token, `{"predicates":"/rl","uri":"rl"}`); w.Code != http.StatusCreated {
		t.Fatalf("create route: %d %s", w.Code, w.Body.String())
	}

	var list struct {
		Routes struct {
			Items []struct {
				ID int64 `json:"id"`
			} `json:"items"`
		} `json:"routes"`
	}
	decode(t, ch.request(http.MethodGet, "/api/rate-limits", token, ""), &list)
	if len(list.Routes.Items) != 1 {
		t.Fatalf("expected one route, got %+v", list)
	}
	id := strconv.FormatInt(list.Routes.Items[0].ID, 10)

	w := ch.request(http.MethodPut, "/api/rate-limits/"+id, token, `{"maxRequests":0,"timeWindowMs":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update rate limit: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Data struct {
			RateLimit struct {
				MaxRequests  int `json:"maxRequests"`
				TimeWindowMs int `json:"timeWindowMs"`
			} `json:"rateLimit"`
			Description string `json:"description"`
		} `json:"data"`
	}
	decode(t, w, &out)
	if out.Data.RateLimit.MaxRequests != 1 || out.Data.RateLimit.TimeWindowMs != 1000 {
		t.Fatalf("expected clamped values, got %+v", out.Data.RateLimit)
	}
	if out.Data.Description != "This will allow 1 requests per 1 seconds" {
		t.Fatalf("unexpected description %q", out.Data.Description)
	}
}

func TestPrimaryAdminIsGuarded(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")

	var out struct {
		Users []struct {
			ID           int64  `json:"id"`
			Username     string `json:"username"`
			PrimaryAdmin bool   `json:"primaryAdmin"`
		} `json:"users"`
	}
	decode(t, ch.request(http.MethodGet, "/api/users", token, ""), &out)
	var adminID int64
	for _, u := range out.Users {
		if u.Username == "admin" && u.PrimaryAdmin {
			adminID = u.ID
		}
	}
	if adminID == 0 {
		t.Fatalf("expected primary admin in %+v", out.Users)
	}
	path := "/api/users/" + strconv.FormatInt(adminID, 10)
	if w := ch.request(http.MethodDelete, path, token, ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on delete, got %d", w.Code)
	}
	if w := ch.request(http.MethodPatch, path+"/status", token, ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on status change, got %d", w.Code)
	}
}

func TestPasswordConfirmationIsLocal(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")
	w := ch.request(http.MethodPut, "/api/settings/password", token, `{"currentPassword":"password123","newPassword":"longenough1","confirmPassword":"different1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &out)
	if out.Fields["confirmPassword"] == "" {
		t.Fatalf("expected confirmPassword error, got %+v", out.Fields)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")
	if w := ch.request(http.MethodPost, "/api/logout", token, ""); w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	if ch.mgr.Count() != 0 {
		t.Fatalf("expected workspace evicted, got %v", ch.mgr.Usernames())
	}
	if w := ch.request(http.MethodGet, "/api/session", token, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", w.Code)
	}
}

func TestNewerLoginSupersedesToken(t *testing.T) {
	ch := newConsole(t)
	first := ch.login("admin", "password123")
	second := ch.login("admin", "password123")
	if w := ch.request(http.MethodGet, "/api/session", first, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected first token to be rejected, got %d", w.Code)
	}
	if w := ch.request(http.MethodGet, "/api/session", second, ""); w.Code != http.StatusOK {
		t.Fatalf("expected second token to work, got %d", w.Code)
	}
}

func TestDashboardReturnsSnapshot(t *testing.T) {
	ch := newConsole(t)
	token := ch.login("admin", "password123")
	w := ch.request(http.MethodGet, "/api/dashboard", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Metrics struct {
			TotalsOK bool `json:"totalsOk"`
			MinuteOK bool `json:"minuteOk"`
		} `json:"metrics"`
		Cards map[string][]json.RawMessage `json:"cards"`
		Error string                       `json:"error"`
	}
	decode(t, w, &out)
	if !out.Metrics.TotalsOK || !out.Metrics.MinuteOK || out.Error != "" {
		t.Fatalf("expected loaded metrics, got %+v", out)
	}
	if len(out.Cards) == 0 {
		t.Fatalf("expected dashboard cards")
	}
}

func TestProbes(t *testing.T) {
	ch := newConsole(t)
	if w := ch.request(http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w := ch.request(http.MethodGet, "/version", "", ""); w.Code != http.StatusOK {
		t.Fatalf("version: %d", w.Code)
	}
	w := ch.request(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "gwconsole_active_workspaces") {
		t.Fatalf("metrics: %d", w.Code)
	}

	var ready struct {
		Ready bool `json:"ready"`
	}
	w = ch.request(http.MethodGet, "/readyz", "", "")
	decode(t, w, &ready)
	if w.Code != http.StatusOK || !ready.Ready {
		t.Fatalf("expected ready, got %d %+v", w.Code, ready)
	}
	ch.mgr.Shutdown()
	w = ch.request(http.MethodGet, "/readyz", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", w.Code)
	}
}
