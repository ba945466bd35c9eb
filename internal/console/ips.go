package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// IPForm is the add/edit dialog of an allow-list entry.
type IPForm struct {
	IP      string `json:"ip"`
	RouteID int64  `json:"routeId"`
}

// Validate checks the IP format and, when requireRoute, the owning route.
func (f IPForm) Validate(requireRoute bool) FieldErrors {
	fe := FieldErrors{}
	ip := strings.TrimSpace(f.IP)
	switch {
	case ip == "":
		fe["ip"] = "IP address is required"
	case !ValidIPv4(ip):
		fe["ip"] = "Invalid IP address format (use x.x.x.x)"
	}
	if requireRoute && f.RouteID == 0 {
		fe["routeId"] = "Route is required"
	}
	return fe
}

// IPGroup is one card of the grouped view: a route and its entries.
type IPGroup struct {
	Route       models.RouteOption `json:"route"`
	IPs         []models.IPAddress `json:"ips"`
	Highlighted bool               `json:"highlighted,omitempty"`
}

// IPData is what the IP view loads: entries first, then route options.
type IPData struct {
	IPs    []models.IPAddress   `json:"ips"`
	Routes []models.RouteOption `json:"routes"`
}

// IPView is the IP management view.
type IPView struct {
	api      IPAPI
	res      *Resource[IPData]
	logger   *utils.Logger
	pageSize int

	mu          sync.RWMutex
	highlighted int64
}

// NewIPView creates the view over api.
func NewIPView(api IPAPI, opts ViewOptions) *IPView {
	v := &IPView{api: api, logger: opts.Logger, pageSize: opts.pageSize()}
	v.res = NewResource("ip-addresses", v.fetch, opts.Logger, opts.Observer)
	return v
}

func (v *IPView) fetch(ctx context.Context) (IPData, error) {
	ips, err := v.api.List(ctx)
	if err != nil {
		return IPData{}, err
	}
	routes, err := v.api.Routes(ctx)
	if err != nil {
		return IPData{}, err
	}
	return IPData{IPs: ips, Routes: routes}, nil
}

// Resource exposes the underlying resource.
func (v *IPView) Resource() *Resource[IPData] { return v.res }

// Load refreshes entries and route options.
func (v *IPView) Load(ctx context.Context) error { return v.res.Refresh(ctx) }

// State returns the current state.
func (v *IPView) State() State[IPData] { return v.res.State() }

// Highlight marks the route the operator navigated from. Zero clears it.
func (v *IPView) Highlight(routeID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlighted = routeID
}

// Highlighted returns the highlighted route id.
func (v *IPView) Highlighted() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.highlighted
}

// Rows filters on id, gatewayRouteId, predicate and ip, then paginates.
func (v *IPView) Rows(search string, page int) Page[models.IPAddress] {
	filtered := Filter(v.res.Data().IPs, search, func(ip models.IPAddress) string {
		return fmt.Sprintf("%d %d %s %s", ip.ID, ip.GatewayRouteID, ip.Predicate, ip.IP)
	})
	return Paginate(filtered, page, v.pageSize)
}

// Groups returns the card view: routes with IP filtering enabled, or the
// highlighted route, each with its entries. A zero highlight falls back to
// the one set by Highlight.
func (v *IPView) Groups(highlight int64) []IPGroup {
	highlighted := highlight
	if highlighted == 0 {
		highlighted = v.Highlighted()
	}
	data := v.res.Data()
	groups := make([]IPGroup, 0, len(data.Routes))
	for _, r := range data.Routes {
		isHighlighted := highlighted != 0 && r.ID == highlighted
		if !r.WithIPFilter && !isHighlighted {
			continue
		}
		g := IPGroup{Route: r, IPs: []models.IPAddress{}, Highlighted: isHighlighted}
		for _, ip := range data.IPs {
			if ip.GatewayRouteID == r.ID {
				g.IPs = append(g.IPs, ip)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// Add creates an entry after local validation.
func (v *IPView) Add(ctx context.Context, form IPForm) (Notice, error) {
	if fe := form.Validate(true); len(fe) > 0 {
		return failure(firstMessage(fe, "ip", "routeId")), fe
	}
	in := models.IPAddressInput{IP: strings.TrimSpace(form.IP), GatewayRoute: models.RouteRef{ID: form.RouteID}}
	if _, err := v.api.Add(ctx, in); err != nil {
		v.logger.Writef("add ip %s to route %d failed: %v", in.IP, form.RouteID, err)
		return failure(upstreamMessage(err, "Failed to add IP address")), err
	}
	v.reload(ctx)
	return success("IP address added successfully"), nil
}

// Update replaces an entry after local validation. A zero RouteID keeps
// the entry's current route.
func (v *IPView) Update(ctx context.Context, id int64, form IPForm) (Notice, error) {
	if fe := form.Validate(false); len(fe) > 0 {
		return failure(firstMessage(fe, "ip")), fe
	}
	routeID := form.RouteID
	if routeID == 0 {
		for _, ip := range v.res.Data().IPs {
			if ip.ID == id {
				routeID = ip.GatewayRouteID
				break
			}
		}
	}
	in := models.IPAddressInput{IP: strings.TrimSpace(form.IP), GatewayRoute: models.RouteRef{ID: routeID}}
	if _, err := v.api.Update(ctx, id, in); err != nil {
		v.logger.Writef("update ip %d failed: %v", id, err)
		return failure(upstreamMessage(err, "Failed to update IP address")), err
	}
	v.reload(ctx)
	return success("IP address updated successfully"), nil
}

// Delete removes one entry of a route.
func (v *IPView) Delete(ctx context.Context, id, routeID int64) (Notice, error) {
	if err := v.api.Delete(ctx, id, routeID); err != nil {
		v.logger.Writef("delete ip %d of route %d failed: %v", id, routeID, err)
		return failure("Failed to delete IP address"), err
	}
	v.reload(ctx)
	return success("IP address deleted successfully"), nil
}

// DeleteAllForRoute issues the single bulk delete for a route. The server
// disables the route's IP filter; the view does not toggle it.
func (v *IPView) DeleteAllForRoute(ctx context.Context, routeID int64) (Notice, error) {
	if err := v.api.DeleteAllForRoute(ctx, routeID); err != nil {
		v.logger.Writef("delete all ips of route %d failed: %v", routeID, err)
		return failure("Failed to delete IP addresses"), err
	}
	v.reload(ctx)
	return success("All IP addresses for this route deleted successfully"), nil
}

func (v *IPView) reload(ctx context.Context) {
	_ = v.res.Refresh(ctx)
}

func firstMessage(fe FieldErrors, order ...string) string {
	for _, k := range order {
		if msg, ok := fe[k]; ok {
			return msg
		}
	}
	return fe.Error()
}
