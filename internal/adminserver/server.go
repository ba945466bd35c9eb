package adminserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/middleware"
	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

// DefaultAdminPassword is used when Options.AdminPassword is empty.
const DefaultAdminPassword = "admin1234"

// Options configures the development admin API.
type Options struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string
	SeedRoutes    bool
	Logger        *utils.Logger
}

// Server serves the admin REST contract from a Store.
type Server struct {
	store  *Store
	auth   *middleware.AuthService
	logger *utils.Logger
	now    func() time.Time
}

// New creates the server and seeds the primary admin account.
func New(store *Store, opts Options) (*Server, error) {
	s := &Server{
		store:  store,
		auth:   middleware.NewAuthService(opts.JWTSecret, opts.TokenTTL),
		logger: opts.Logger,
		now:    time.Now,
	}
	password := opts.AdminPassword
	if password == "" {
		password = DefaultAdminPassword
	}
	if _, _, ok := store.UserByName(PrimaryAdmin); !ok {
		hash, err := s.auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		if _, err := store.AddUser(models.User{
			Username:  PrimaryAdmin,
			FirstName: "Gateway",
			LastName:  "Admin",
			Email:     "admin@gateway.local",
			Role:      models.RoleAdmin,
		}, hash); err != nil {
			return nil, err
		}
	}
	if opts.SeedRoutes && len(store.Routes()) == 0 {
		seedRoutes(store)
	}
	return s, nil
}

func seedRoutes(store *Store) {
	rl := models.DefaultRateLimit()
	_, _ = store.CreateRoute(models.Route{RouteID: "users-service", Predicates: "/api/users/**", URI: "http://localhost:9001"})
	_, _ = store.CreateRoute(models.Route{RouteID: "orders-service", Predicates: "/api/orders/**", URI: "http://localhost:9002", WithToken: true})
	limited, _ := store.CreateRoute(models.Route{RouteID: "reports-service", Predicates: "/api/reports/**", URI: "http://localhost:9003", WithRateLimit: true, RateLimit: &rl})
	_, _ = store.AddIP("127.0.0.1", limited.ID)
}

// Store returns the backing store.
func (s *Server) Store() *Store { return s.store }

// Auth returns the token service.
func (s *Server) Auth() *middleware.AuthService { return s.auth }

// Router builds the gin engine with the full admin contract under /api,
// the form login at /login and the traffic counters.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.countTraffic())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/login", s.handleFormLogin)

	api := r.Group("/api")
	api.GET("/auth/login", s.handleBasicLogin)
	api.GET("/metrics/requests", s.handleRequestMetrics)
	api.GET("/metrics/minutely", s.handleMinuteMetrics)

	protected := api.Group("")
	protected.Use(s.auth.RequireAPIAuth(), s.requireActiveUser())
	{
		protected.GET("/routes", s.handleListRoutes)
		protected.POST("/routes", s.handleCreateRoute)
		protected.PUT("/routes/:id", s.handleUpdateRoute)
		protected.DELETE("/routes/:id", s.handleDeleteRoute)

		protected.GET("/ip-addresses", s.handleListIPs)
		protected.GET("/ip-addresses/routes", s.handleRouteOptions)
		protected.POST("/ip-addresses", s.handleAddIP)
		protected.PUT("/ip-addresses/:id", s.handleUpdateIP)
		protected.DELETE("/ip-addresses/:id/gateway/:routeId", s.handleDeleteIP)
		protected.DELETE("/ip-addresses/route/:routeId", s.handleDeleteRouteIPs)

		protected.GET("/user/profile", s.handleProfile)
		protected.PUT("/user/profile", s.handleUpdateProfile)
		protected.PUT("/user/password", s.handleUpdatePassword)
		protected.PUT("/user/security", s.handleUpdateSecurity)

		admin := protected.Group("/user")
		admin.Use(s.requireAdmin())
		admin.GET("/all", s.handleListUsers)
		admin.POST("", s.handleCreateUser)
		admin.DELETE("/:id", s.handleDeleteUser)
		admin.PATCH("/:id/status", s.handleSetUserStatus)
	}
	return r
}

// countTraffic feeds the request counters from every routed call except
// the counter endpoints themselves.
func (s *Server) countTraffic() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, "/api/metrics/") || c.Request.URL.Path == "/healthz" {
			return
		}
		s.store.CountRequest(s.now(), c.Writer.Status() >= http.StatusBadRequest)
	}
}

func (s *Server) requireActiveUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _, ok := s.store.UserByName(c.GetString(middleware.ContextUsername))
		if !ok || u.Status != models.StatusActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Account is not active"})
			return
		}
		c.Set("user", u)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if u.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin role required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) models.User {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(models.User); ok {
			return u
		}
	}
	return models.User{}
}

func (s *Server) logf(format string, args ...interface{}) {
	s.logger.Writef(format, args...)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func writeValidation(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": fields})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// Login

func (s *Server) authenticate(c *gin.Context, username, password string) {
	u, hash, ok := s.store.UserByName(username)
	if !ok || !s.auth.CheckPassword(password, hash) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Bad credentials"})
		return
	}
	if u.Status != models.StatusActive {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "User account is disabled"})
		return
	}
	token, _, err := s.auth.GenerateToken(u.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	s.store.RecordLogin(u.Username, s.now())
	s.logf("admin api: %s logged in", u.Username)
	c.JSON(http.StatusOK, gin.H{"token": token, "username": u.Username, "role": u.Role})
}

func (s *Server) handleBasicLogin(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="gateway"`)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Basic credentials required"})
		return
	}
	s.authenticate(c, username, password)
}

func (s *Server) handleFormLogin(c *gin.Context) {
	s.authenticate(c, c.PostForm("username"), c.PostForm("password"))
}

// Metrics

func (s *Server) handleRequestMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Traffic())
}

func (s *Server) handleMinuteMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.MinuteTraffic(s.now()))
}

// Routes

func (s *Server) handleListRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Routes())
}

func (s *Server) bindRoute(c *gin.Context) (models.Route, bool) {
	var r models.Route
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed route"})
		return r, false
	}
	if fields := validateRoute(r); len(fields) > 0 {
		writeValidation(c, fields)
		return r, false
	}
	return r, true
}

func (s *Server) handleCreateRoute(c *gin.Context) {
	r, ok := s.bindRoute(c)
	if !ok {
		return
	}
	created, err := s.store.CreateRoute(r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateRoute(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	r, ok := s.bindRoute(c)
	if !ok {
		return
	}
	updated, err := s.store.UpdateRoute(id, r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteRoute(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteRoute(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Allow-list

type ipPayload struct {
	IP           string `json:"ip" validate:"required,ipv4"`
	GatewayRoute struct {
		ID int64 `json:"id"`
	} `json:"gatewayRoute"`
}

func (s *Server) bindIP(c *gin.Context) (ipPayload, bool) {
	var p ipPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed IP address"})
		return p, false
	}
	p.IP = strings.TrimSpace(p.IP)
	if err := middleware.Validate(&p); err != nil {
		writeValidation(c, map[string]string{"ip": "Invalid IP address format"})
		return p, false
	}
	return p, true
}

func (s *Server) handleListIPs(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.IPAddresses())
}

func (s *Server) handleRouteOptions(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.RouteOptions())
}

func (s *Server) handleAddIP(c *gin.Context) {
	p, ok := s.bindIP(c)
	if !ok {
		return
	}
	if p.GatewayRoute.ID == 0 {
		writeValidation(c, map[string]string{"gatewayRoute": "must not be null"})
		return
	}
	created, err := s.store.AddIP(p.IP, p.GatewayRoute.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleUpdateIP(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, ok := s.bindIP(c)
	if !ok {
		return
	}
	updated, err := s.store.UpdateIP(id, p.IP, p.GatewayRoute.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteIP(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	routeID, ok := paramID(c, "routeId")
	if !ok {
		return
	}
	if err := s.store.DeleteIP(id, routeID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteRouteIPs(c *gin.Context) {
	routeID, ok := paramID(c, "routeId")
	if !ok {
		return
	}
	removed, err := s.store.DeleteIPsForRoute(routeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "IP addresses deleted", "deleted": removed})
}

// Profile

func (s *Server) handleProfile(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

type profilePayload struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	JobTitle   string `json:"jobTitle"`
	Department string `json:"department"`
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var p profilePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed profile"})
		return
	}
	if err := middleware.Validate(&p); err != nil {
		writeValidation(c, middleware.ValidationFields(err))
		return
	}
	updated, err := s.store.UpdateUser(currentUser(c).Username, func(u *models.User, _ *string) error {
		models.ProfilePatch{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Email:      p.Email,
			JobTitle:   p.JobTitle,
			Department: p.Department,
		}.Apply(u)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleUpdatePassword(c *gin.Context) {
	var p models.PasswordChange
	if err := c.ShouldBindJSON(&p); err != nil {
		c.String(http.StatusBadRequest, "Malformed password change")
		return
	}
	if len(p.NewPassword) < models.MinPasswordLength {
		c.String(http.StatusBadRequest, "New password must be at least 8 characters")
		return
	}
	newHash, err := s.auth.HashPassword(p.NewPassword)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to hash password")
		return
	}
	_, err = s.store.UpdateUser(currentUser(c).Username, func(_ *models.User, hash *string) error {
		if !s.auth.CheckPassword(p.CurrentPassword, *hash) {
			return errorf(ErrInvalid, "Current password is incorrect")
		}
		*hash = newHash
		return nil
	})
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, models.Message{Message: "Password updated successfully"})
}

func (s *Server) handleUpdateSecurity(c *gin.Context) {
	var p models.SecuritySettings
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed security settings"})
		return
	}
	if p.SessionTimeoutMinutes <= 0 {
		p.SessionTimeoutMinutes = models.DefaultSessionTimeoutMinutes
	}
	updated, err := s.store.UpdateUser(currentUser(c).Username, func(u *models.User, _ *string) error {
		p.Apply(u)
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// User administration

func (s *Server) handleListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Users())
}

type newUserPayload struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Role      string `json:"role" validate:"omitempty,oneof=ADMIN USER"`
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var p newUserPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed user"})
		return
	}
	if err := middleware.Validate(&p); err != nil {
		writeValidation(c, middleware.ValidationFields(err))
		return
	}
	hash, err := s.auth.HashPassword(p.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to hash password"})
		return
	}
	created, err := s.store.AddUser(models.User{
		Username:  strings.TrimSpace(p.Username),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Role:      p.Role,
	}, hash)
	if err != nil {
		writeError(c, err)
		return
	}
	s.logf("admin api: %s created user %s", currentUser(c).Username, created.Username)
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteUser(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetUserStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var p models.StatusChange
	if err := c.ShouldBindJSON(&p); err != nil || p.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Field 'active' is required"})
		return
	}
	updated, err := s.store.SetUserStatus(id, *p.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
