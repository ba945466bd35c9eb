package console

import (
	"context"

	"gwconsole/internal/gateway"
	"gwconsole/internal/models"
)

// RouteAPI is the route resource service.
type RouteAPI interface {
	List(ctx context.Context) ([]models.Route, error)
	Create(ctx context.Context, r models.Route) (models.Route, error)
	Update(ctx context.Context, id int64, r models.Route) (models.Route, error)
	Delete(ctx context.Context, id int64) error
}

// IPAPI is the allow-list resource service.
type IPAPI interface {
	List(ctx context.Context) ([]models.IPAddress, error)
	Routes(ctx context.Context) ([]models.RouteOption, error)
	Add(ctx context.Context, in models.IPAddressInput) (models.IPAddress, error)
	Update(ctx context.Context, id int64, in models.IPAddressInput) (models.IPAddress, error)
	Delete(ctx context.Context, id, routeID int64) error
	DeleteAllForRoute(ctx context.Context, routeID int64) error
}

// UserAPI is the profile and account service.
type UserAPI interface {
	Profile(ctx context.Context) (models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error)
	UpdatePassword(ctx context.Context, pc models.PasswordChange) error
	UpdateSecurity(ctx context.Context, s models.SecuritySettings) (models.Profile, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, nu models.NewUser) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetUserStatus(ctx context.Context, id int64, active bool) (models.User, error)
}

// MetricsAPI reads the traffic counters.
type MetricsAPI interface {
	Requests(ctx context.Context) (models.RequestCounter, error)
	Minutely(ctx context.Context) (models.MinuteMetrics, error)
}

// LoginAPI performs operator login.
type LoginAPI interface {
	Login(ctx context.Context, username, password string) (gateway.LoginResult, error)
}

var (
	_ RouteAPI   = (*gateway.RouteService)(nil)
	_ IPAPI      = (*gateway.IPService)(nil)
	_ UserAPI    = (*gateway.UserService)(nil)
	_ MetricsAPI = (*gateway.MetricsService)(nil)
	_ LoginAPI   = (*gateway.AuthService)(nil)
)
