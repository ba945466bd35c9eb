package cards

import "strings"

// CapabilityAwareCard can declare requirements before a card renders.
type CapabilityAwareCard interface {
	Capabilities() CardCapabilities
}

// CardCapabilities are guard rails evaluated before rendering.
type CardCapabilities struct {
	// RequireTotals hides the card until the lifetime counters were sampled.
	RequireTotals bool
	// RequireMinute hides the card until the minute counters were sampled.
	RequireMinute bool
	// AllowedRoles restricts rendering to the listed roles (case-insensitive).
	AllowedRoles []string
}

// Allows reports whether req satisfies the capabilities.
func (caps CardCapabilities) Allows(req *Request) bool {
	if caps.RequireTotals && (req == nil || !req.Metrics.TotalsOK) {
		return false
	}
	if caps.RequireMinute && (req == nil || !req.Metrics.MinuteOK) {
		return false
	}
	if len(caps.AllowedRoles) > 0 {
		role := normalizeRole(roleFromRequest(req))
		if role == "" {
			return false
		}
		for _, candidate := range caps.AllowedRoles {
			if normalizeRole(candidate) == role {
				return true
			}
		}
		return false
	}
	return true
}

func roleFromRequest(req *Request) string {
	if req == nil {
		return ""
	}
	if role := strings.TrimSpace(req.Role); role != "" {
		return role
	}
	if req.Payload != nil {
		if role, ok := req.Payload["role"].(string); ok {
			return strings.TrimSpace(role)
		}
	}
	return ""
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func cardEnabledForRequest(card Card, req *Request) bool {
	capabilityCard, ok := card.(CapabilityAwareCard)
	if !ok {
		return true
	}
	return capabilityCard.Capabilities().Allows(req)
}
