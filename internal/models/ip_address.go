package models

// IPAddress is an allow-list entry as listed by the gateway admin API,
// joined with a few fields of its owning route.
type IPAddress struct {
	ID             int64  `json:"id"`
	IP             string `json:"ip"`
	GatewayRouteID int64  `json:"gatewayRouteId"`
	Predicate      string `json:"predicate,omitempty"`
	RouteURI       string `json:"routeUri,omitempty"`
	RouteID        string `json:"routeId,omitempty"`
	WithIPFilter   bool   `json:"withIpFilter,omitempty"`
}

// RouteRef identifies the route an IP belongs to.
type RouteRef struct {
	ID int64 `json:"id"`
}

// IPAddressInput is the create/update payload for an allow-list entry.
type IPAddressInput struct {
	IP           string   `json:"ip"`
	GatewayRoute RouteRef `json:"gatewayRoute"`
}

// RouteOption is a route summary used to pick an owner for an IP.
type RouteOption struct {
	ID           int64  `json:"id"`
	Predicate    string `json:"predicate"`
	RouteID      string `json:"routeId,omitempty"`
	URI          string `json:"uri"`
	WithIPFilter bool   `json:"withIpFilter"`
	IPCount      int    `json:"ipCount"`
}
