package cards

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/models"
)

type stubCard struct {
	id       string
	template string
	slot     Slot
	screens  []Screen
	data     gin.H
	err      error
}

func (c stubCard) ID() string        { return c.id }
func (c stubCard) Template() string  { return c.template }
func (c stubCard) Screens() []Screen { return c.screens }
func (c stubCard) Slot() Slot        { return c.slot }
func (c stubCard) FetchData(req *Request) (gin.H, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := gin.H{}
	for k, v := range c.data {
		out[k] = v
	}
	if req != nil && req.Payload != nil {
		for k, v := range req.Payload {
			out[k] = v
		}
	}
	return out, nil
}

func withIsolatedRegistry(t *testing.T, fn func()) {
	t.Helper()
	registryMu.Lock()
	original := make(map[Screen][]Card, len(registry))
	for k, v := range registry {
		original[k] = append([]Card(nil), v...)
	}
	registry = make(map[Screen][]Card)
	registryMu.Unlock()

	defer func() {
		registryMu.Lock()
		registry = original
		registryMu.Unlock()
	}()

	fn()
}

func TestBuildRenderablesFiltersByScreen(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{
			id:       "traffic",
			template: "cards/traffic.html",
			slot:     SlotPrimary,
			screens:  []Screen{ScreenDashboard},
			data:     gin.H{"static": "ok"},
		})
		Register(stubCard{
			id:       "limits",
			template: "cards/limits.html",
			slot:     SlotPrimary,
			screens:  []Screen{ScreenRateLimits},
			data:     gin.H{"static": "nope"},
		})

		req := &Request{Payload: gin.H{"payload": "value"}}
		renderables := BuildRenderables(ScreenDashboard, req)
		if len(renderables) != 1 {
			t.Fatalf("expected 1 renderable, got %d", len(renderables))
		}
		got := renderables[0]
		if got.ID != "traffic" {
			t.Fatalf("expected card ID traffic, got %s", got.ID)
		}
		if got.Template != "cards/traffic.html" {
			t.Fatalf("unexpected template %s", got.Template)
		}
		if got.Data["payload"] != "value" {
			t.Fatalf("expected payload data to pass through, got %v", got.Data["payload"])
		}
	})
}

func TestBuildRenderablesSkipsFailingCards(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{id: "broken", screens: []Screen{ScreenDashboard}, err: errors.New("upstream down")})
		Register(panicCard{id: "boom"})
		Register(stubCard{id: "ok", screens: []Screen{ScreenDashboard}, slot: SlotGrid})

		renderables := BuildRenderables(ScreenDashboard, &Request{})
		if len(renderables) != 1 || renderables[0].ID != "ok" {
			t.Fatalf("expected only the healthy card, got %+v", renderables)
		}
		grouped := GroupRenderablesBySlot(renderables)
		if len(grouped[string(SlotGrid)]) != 1 {
			t.Fatalf("expected grid slot to hold the card, got %+v", grouped)
		}
	})
}

func TestBuildRenderableByID(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(stubCard{
			id:       "alpha",
			template: "cards/a.html",
			slot:     SlotPrimary,
			screens:  []Screen{ScreenDashboard},
			data:     gin.H{"alpha": 1},
		})
		Register(stubCard{
			id:       "beta",
			template: "cards/b.html",
			slot:     SlotPrimary,
			screens:  []Screen{ScreenDashboard},
			data:     gin.H{"beta": 2},
		})

		req := &Request{Payload: gin.H{"shared": "yes"}}
		renderable, ok := BuildRenderableByID(ScreenDashboard, "beta", req)
		if !ok {
			t.Fatalf("expected card beta to be resolved")
		}
		if renderable.Data["beta"] != 2 {
			t.Fatalf("expected card data to include static field")
		}
		if renderable.Data["shared"] != "yes" {
			t.Fatalf("expected payload data to merge, got %v", renderable.Data["shared"])
		}

		if _, ok := BuildRenderableByID(ScreenDashboard, "missing", req); ok {
			t.Fatalf("expected missing card lookup to fail")
		}
	})
}

func TestSafeFetchHandlesPanics(t *testing.T) {
	card := panicCard{id: "boom"}
	if data, err := safeFetch(card, &Request{}); err == nil {
		t.Fatalf("expected panic to propagate as error")
	} else if data != nil {
		t.Fatalf("expected nil data when panic occurs, got %#v", data)
	}
}

type panicCard struct {
	id string
}

func (p panicCard) ID() string                            { return p.id }
func (p panicCard) Template() string                      { return "cards/panic.html" }
func (p panicCard) Screens() []Screen                     { return []Screen{ScreenDashboard} }
func (p panicCard) Slot() Slot                            { return SlotPrimary }
func (p panicCard) FetchData(req *Request) (gin.H, error) { panic("boom") }

type capabilityStubCard struct {
	stubCard
	caps CardCapabilities
}

func (c capabilityStubCard) Capabilities() CardCapabilities { return c.caps }

func TestCardCapabilitiesAllowedRoles(t *testing.T) {
	withIsolatedRegistry(t, func() {
		Register(capabilityStubCard{
			stubCard: stubCard{
				id:       "users-card",
				template: "cards/users.html",
				slot:     SlotPrimary,
				screens:  []Screen{ScreenDashboard},
				data:     gin.H{"ok": true},
			},
			caps: CardCapabilities{AllowedRoles: []string{"admin"}},
		})

		if renderables := BuildRenderables(ScreenDashboard, &Request{Role: "USER"}); len(renderables) != 0 {
			t.Fatalf("expected user role to be blocked, got %d renderables", len(renderables))
		}
		if renderables := BuildRenderables(ScreenDashboard, &Request{Payload: gin.H{"role": "ADMIN"}}); len(renderables) != 1 {
			t.Fatalf("expected admin to see card, got %d renderables", len(renderables))
		}
	})
}

func TestCardCapabilitiesRequireSamples(t *testing.T) {
	card := capabilityStubCard{
		stubCard: stubCard{id: "minute", screens: []Screen{ScreenDashboard}},
		caps:     CardCapabilities{RequireMinute: true},
	}
	req := &Request{}
	if cardEnabledForRequest(card, req) {
		t.Fatalf("expected card disabled before the minute counters were sampled")
	}
	req.Metrics = models.MetricsSnapshot{MinuteOK: true}
	if !cardEnabledForRequest(card, req) {
		t.Fatalf("expected card enabled once sampled")
	}
	if cardEnabledForRequest(card, nil) {
		t.Fatalf("expected nil request to be rejected")
	}
}
