package gateway

import (
	"context"
	"fmt"

	"gwconsole/internal/models"
)

// RouteService covers /routes.
type RouteService struct {
	c *Client
}

// NewRouteService binds the route endpoints to c.
func NewRouteService(c *Client) *RouteService { return &RouteService{c: c} }

// List returns every configured route.
func (s *RouteService) List(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	if err := s.c.getJSON(ctx, "/routes", &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// Create stores a new route.
func (s *RouteService) Create(ctx context.Context, r models.Route) (models.Route, error) {
	var out models.Route
	err := s.c.postJSON(ctx, "/routes", r, &out)
	return out, err
}

// Update replaces the route with the given id.
func (s *RouteService) Update(ctx context.Context, id int64, r models.Route) (models.Route, error) {
	var out models.Route
	err := s.c.putJSON(ctx, fmt.Sprintf("/routes/%d", id), r, &out)
	return out, err
}

// Delete removes a route.
func (s *RouteService) Delete(ctx context.Context, id int64) error {
	return s.c.delete(ctx, fmt.Sprintf("/routes/%d", id))
}

// IPService covers /ip-addresses.
type IPService struct {
	c *Client
}

// NewIPService binds the allow-list endpoints to c.
func NewIPService(c *Client) *IPService { return &IPService{c: c} }

// List returns every allow-list entry.
func (s *IPService) List(ctx context.Context) ([]models.IPAddress, error) {
	var ips []models.IPAddress
	if err := s.c.getJSON(ctx, "/ip-addresses", &ips); err != nil {
		return nil, err
	}
	return ips, nil
}

// Routes returns the routes an entry may be attached to.
func (s *IPService) Routes(ctx context.Context) ([]models.RouteOption, error) {
	var routes []models.RouteOption
	if err := s.c.getJSON(ctx, "/ip-addresses/routes", &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// Add creates an allow-list entry.
func (s *IPService) Add(ctx context.Context, in models.IPAddressInput) (models.IPAddress, error) {
	var out models.IPAddress
	err := s.c.postJSON(ctx, "/ip-addresses", in, &out)
	return out, err
}

// Update replaces an allow-list entry.
func (s *IPService) Update(ctx context.Context, id int64, in models.IPAddressInput) (models.IPAddress, error) {
	var out models.IPAddress
	err := s.c.putJSON(ctx, fmt.Sprintf("/ip-addresses/%d", id), in, &out)
	return out, err
}

// Delete removes one entry owned by routeID.
func (s *IPService) Delete(ctx context.Context, id, routeID int64) error {
	return s.c.delete(ctx, fmt.Sprintf("/ip-addresses/%d/gateway/%d", id, routeID))
}

// DeleteAllForRoute removes every entry of a route. The server also turns
// off the route's IP filter.
func (s *IPService) DeleteAllForRoute(ctx context.Context, routeID int64) error {
	return s.c.delete(ctx, fmt.Sprintf("/ip-addresses/route/%d", routeID))
}

// UserService covers /user.
type UserService struct {
	c *Client
}

// NewUserService binds the user endpoints to c.
func NewUserService(c *Client) *UserService { return &UserService{c: c} }

func (s *UserService) Profile(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	err := s.c.getJSON(ctx, "/user/profile", &p)
	return p, err
}

func (s *UserService) UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	var out models.Profile
	err := s.c.putJSON(ctx, "/user/profile", p, &out)
	return out, err
}

func (s *UserService) UpdatePassword(ctx context.Context, pc models.PasswordChange) error {
	return s.c.putJSON(ctx, "/user/password", pc, nil)
}

func (s *UserService) UpdateSecurity(ctx context.Context, settings models.SecuritySettings) (models.Profile, error) {
	var out models.Profile
	err := s.c.putJSON(ctx, "/user/security", settings, &out)
	return out, err
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.c.getJSON(ctx, "/user/all", &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserService) CreateUser(ctx context.Context, nu models.NewUser) (models.User, error) {
	var out models.User
	err := s.c.postJSON(ctx, "/user", nu, &out)
	return out, err
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	return s.c.delete(ctx, fmt.Sprintf("/user/%d", id))
}

func (s *UserService) SetUserStatus(ctx context.Context, id int64, active bool) (models.User, error) {
	var out models.User
	err := s.c.patchJSON(ctx, fmt.Sprintf("/user/%d/status", id), models.StatusChange{Active: &active}, &out)
	return out, err
}

// MetricsService reads the traffic counters, which live on a different
// host than the admin API.
type MetricsService struct {
	c *Client
}

// NewMetricsService binds the counter endpoints to c. c's base URL is the
// counter host root.
func NewMetricsService(c *Client) *MetricsService { return &MetricsService{c: c} }

// Requests returns the lifetime counters.
func (s *MetricsService) Requests(ctx context.Context) (models.RequestCounter, error) {
	var out models.RequestCounter
	err := s.c.getJSON(ctx, "/api/metrics/requests", &out)
	return out, err
}

// Minutely returns the current and previous minute counters.
func (s *MetricsService) Minutely(ctx context.Context) (models.MinuteMetrics, error) {
	var out models.MinuteMetrics
	err := s.c.getJSON(ctx, "/api/metrics/minutely", &out)
	return out, err
}
