// Package cards assembles the dashboard metric cards from a registry of
// card implementations.
package cards

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/models"
)

// Screen identifies a console view that hosts cards.
type Screen string

const (
	ScreenDashboard  Screen = "dashboard"
	ScreenRateLimits Screen = "rate_limits"
)

// Slot identifies a layout region on the page.
type Slot string

const (
	SlotPrimary Slot = "primary"
	SlotGrid    Slot = "grid"
	SlotFooter  Slot = "footer"
)

// RouteCounts is the per-capability route summary.
type RouteCounts struct {
	Total         int `json:"total"`
	WithIPFilter  int `json:"withIpFilter"`
	WithToken     int `json:"withToken"`
	WithRateLimit int `json:"withRateLimit"`
}

// Request provides the data a card renders from.
type Request struct {
	Role    string
	Metrics models.MetricsSnapshot
	Routes  RouteCounts
	Payload gin.H
}

// Card describes a dashboard component.
type Card interface {
	ID() string
	Template() string
	Screens() []Screen
	Slot() Slot
	FetchData(*Request) (gin.H, error)
}

// Renderable is the hydrated card sent to the client.
type Renderable struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	Data     gin.H  `json:"data"`
	Slot     Slot   `json:"slot"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Screen][]Card)
)

// Register attaches a card to every screen it supports. Cards render in
// registration order.
func Register(card Card) {
	if card == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, screen := range card.Screens() {
		if screen == "" {
			continue
		}
		registry[screen] = append(registry[screen], card)
	}
}

// BuildRenderables resolves cards for a screen and hydrates them.
func BuildRenderables(screen Screen, req *Request) []Renderable {
	registryMu.RLock()
	cards := append([]Card(nil), registry[screen]...)
	registryMu.RUnlock()

	if len(cards) == 0 {
		return nil
	}

	renderables := make([]Renderable, 0, len(cards))
	for _, card := range cards {
		if !cardEnabledForRequest(card, req) {
			continue
		}
		data, err := safeFetch(card, req)
		if err != nil {
			log.Printf("cards: unable to fetch data for %s: %v", safeID(card), err)
			continue
		}
		renderables = append(renderables, Renderable{
			ID:       card.ID(),
			Template: card.Template(),
			Data:     data,
			Slot:     card.Slot(),
		})
	}
	return renderables
}

// BuildRenderableByID resolves a single card by ID for the given screen.
func BuildRenderableByID(screen Screen, cardID string, req *Request) (Renderable, bool) {
	if strings.TrimSpace(cardID) == "" {
		return Renderable{}, false
	}
	registryMu.RLock()
	cardsForScreen := append([]Card(nil), registry[screen]...)
	registryMu.RUnlock()
	for _, card := range cardsForScreen {
		if card == nil || card.ID() != cardID {
			continue
		}
		if !cardEnabledForRequest(card, req) {
			return Renderable{}, false
		}
		data, err := safeFetch(card, req)
		if err != nil {
			log.Printf("cards: unable to fetch data for %s: %v", safeID(card), err)
			return Renderable{}, false
		}
		return Renderable{
			ID:       card.ID(),
			Template: card.Template(),
			Data:     data,
			Slot:     card.Slot(),
		}, true
	}
	return Renderable{}, false
}

// GroupRenderablesBySlot organizes renderables by slot.
func GroupRenderablesBySlot(renderables []Renderable) map[string][]Renderable {
	if len(renderables) == 0 {
		return nil
	}
	grouped := make(map[string][]Renderable)
	for _, r := range renderables {
		key := string(r.Slot)
		grouped[key] = append(grouped[key], r)
	}
	return grouped
}

func safeFetch(card Card, req *Request) (data gin.H, err error) {
	if card == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cards: panic in %s.FetchData: %v", safeID(card), r)
			data = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	data, err = card.FetchData(req)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return gin.H{}, nil
	}
	return data, nil
}

func safeID(card Card) string {
	if card == nil {
		return "<nil>"
	}
	if id := strings.TrimSpace(card.ID()); id != "" {
		return id
	}
	return "<unnamed-card>"
}
