package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/adminserver"
)

type ctlHarness struct {
	t          *testing.T
	configPath string
	store      *adminserver.Store
}

func newCtl(t *testing.T) *ctlHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := adminserver.NewStore()
	admin, err := adminserver.New(store, adminserver.Options{JWTSecret: "test", AdminPassword: "password123"})
	if err != nil {
		t.Fatalf("admin server: %v", err)
	}
	srv := httptest.NewServer(admin.Router())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"gateway:\n" +
		"  api_base: " + srv.URL + "/api\n" +
		"  metrics_base: " + srv.URL + "\n" +
		"  basic_login_url: " + srv.URL + "/api/auth/login\n" +
		"  form_login_url: " + srv.URL + "/login\n"
	path := filepath.Join(dir, "gwconsole.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &ctlHarness{t: t, configPath: path, store: store}
}

func (h *ctlHarness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	c := &cli{
		out:          &out,
		errOut:       &errOut,
		readPassword: func(string) (string, error) { return "password123", nil },
	}
	err := run(context.Background(), c, append([]string{"-config", h.configPath, "-v"}, args...))
	return out.String(), err
}

func (h *ctlHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("gwctl %v: %v", args, err)
	}
	return out
}

func TestUsageErrors(t *testing.T) {
	var out bytes.Buffer
	c := &cli{out: &out, errOut: &out}
	if err := run(context.Background(), c, nil); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), c, []string{"version"}); err != nil || out.Len() == 0 {
		t.Fatalf("version: %v %q", err, out.String())
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	h := newCtl(t)
	if _, err := h.run("routes", "list"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in error, got %v", err)
	}
}

func TestRouteAndIPWorkflow(t *testing.T) {
	h := newCtl(t)

	out := h.mustRun("login", "-username", "admin")
	if !strings.Contains(out, "Welcome back") {
		t.Fatalf("unexpected login output %q", out)
	}

	h.mustRun("routes", "add", "-path", "/api/orders", "-uri", "orders.internal")
	out = h.mustRun("routes", "list")
	if !strings.Contains(out, "/api/orders/**") || !strings.Contains(out, "http://orders.internal") {
		t.Fatalf("expected normalized route in %q", out)
	}

	routes := h.store.Routes()
	if len(routes) != 1 {
		t.Fatalf("expected one route upstream, got %d", len(routes))
	}
	id := strconv.FormatInt(routes[0].ID, 10)

	out = h.mustRun("ratelimit", "set", id, "0", "10")
	if !strings.Contains(out, "This will allow 1 requests per 1 seconds") {
		t.Fatalf("expected clamped description in %q", out)
	}
	if rl := h.store.Routes()[0].RateLimit; rl == nil || rl.MaxRequests != 1 || rl.TimeWindowMs != 1000 {
		t.Fatalf("unexpected upstream rate limit %+v", rl)
	}

	if _, err := h.run("ips", "add", "10.0.0.300", id); err == nil {
		t.Fatalf("expected invalid IP to be rejected")
	}
	h.mustRun("ips", "add", "10.0.0.1", id)
	out = h.mustRun("ips", "list")
	if !strings.Contains(out, "10.0.0.1") {
		t.Fatalf("expected IP in %q", out)
	}
	h.mustRun("ips", "purge", id)
	if n := len(h.store.IPAddresses()); n != 0 {
		t.Fatalf("expected purge to remove every IP, got %d", n)
	}

	out = h.mustRun("metrics")
	if !strings.Contains(out, "requests") {
		t.Fatalf("unexpected metrics output %q", out)
	}

	out = h.mustRun("logout")
	if !strings.Contains(out, "logged out admin") {
		t.Fatalf("unexpected logout output %q", out)
	}
	if _, err := h.run("routes", "list"); err == nil {
		t.Fatalf("expected commands to fail after logout")
	}
}
