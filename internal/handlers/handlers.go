// Package handlers is the console's JSON API over the operator workspaces.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/console"
	"gwconsole/internal/gateway"
	"gwconsole/internal/manager"
	"gwconsole/internal/metrics"
	"gwconsole/internal/middleware"
	"gwconsole/internal/utils"
)

const ctxWorkspace = "workspace"

// Deps are the services the handlers need.
type Deps struct {
	Manager *manager.Manager
	Auth    *middleware.AuthService
	Hub     *middleware.Hub
	Metrics *metrics.Metrics
	Logger  *utils.Logger
}

// Handlers serves the console API.
type Handlers struct {
	manager *manager.Manager
	auth    *middleware.AuthService
	hub     *middleware.Hub
	metrics *metrics.Metrics
	logger  *utils.Logger

	unsubscribe func()
}

// New creates the handlers and starts forwarding workspace events to each
// operator's websocket connections.
func New(d Deps) *Handlers {
	h := &Handlers{
		manager: d.Manager,
		auth:    d.Auth,
		hub:     d.Hub,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
	if h.hub == nil {
		h.hub = middleware.NewHub(d.Logger)
	}
	h.unsubscribe = h.manager.Subscribe(func(username string, ev console.Event) {
		h.hub.SendJSON(username, ev)
	})
	return h
}

// Close stops event forwarding.
func (h *Handlers) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
}

// Register mounts every console endpoint on r.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/version", h.Version)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	api.POST("/login", h.APILogin)

	authed := api.Group("")
	authed.Use(h.auth.RequireAPIAuth())
	authed.POST("/logout", h.APILogout)

	protected := authed.Group("")
	protected.Use(h.requireWorkspace())
	{
		protected.GET("/session", h.APISession)

		protected.GET("/routes", h.APIRoutes)
		protected.POST("/routes", h.APIRouteCreate)
		protected.PUT("/routes/:id", h.APIRouteUpdate)
		protected.DELETE("/routes/:id", h.APIRouteDelete)
		protected.POST("/routes/:id/toggle/:capability", h.APIRouteToggle)

		protected.GET("/ip-addresses", h.APIIPs)
		protected.GET("/ip-addresses/groups", h.APIIPGroups)
		protected.POST("/ip-addresses", h.APIIPCreate)
		protected.PUT("/ip-addresses/:id", h.APIIPUpdate)
		protected.DELETE("/ip-addresses/:id", h.APIIPDelete)
		protected.DELETE("/ip-addresses/route/:routeId", h.APIIPDeleteForRoute)

		protected.GET("/rate-limits", h.APIRateLimits)
		protected.PUT("/rate-limits/:id", middleware.ValidateJSON(func() interface{} { return &RateLimitRequest{} }), h.APIRateLimitUpdate)
		protected.POST("/rate-limits/:id/toggle", h.APIRateLimitToggle)

		protected.GET("/dashboard", h.APIDashboard)

		protected.GET("/settings/profile", h.APIProfile)
		protected.PUT("/settings/profile", h.APIProfileUpdate)
		protected.PUT("/settings/password", h.APIPasswordUpdate)
		protected.PUT("/settings/security", h.APISecurityUpdate)

		protected.GET("/users", h.APIUsers)
		protected.POST("/users", h.APIUserCreate)
		protected.DELETE("/users/:id", h.APIUserDelete)
		protected.PATCH("/users/:id/status", h.APIUserStatus)
	}

	r.GET("/ws", h.auth.RequireAPIAuth(), h.requireWorkspace(), h.WebSocket)
}

// requireWorkspace resolves the operator's workspace and rejects requests
// whose upstream session is gone or whose console token was superseded.
func (h *Handlers) requireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString(middleware.ContextUsername)
		ws, err := h.manager.Open(c.Request.Context(), username)
		if err != nil {
			h.logger.Writef("open workspace for %s failed: %v", username, err)
			h.abortSession(c, "Session unavailable")
			return
		}
		if !ws.Authenticated() {
			h.abortSession(c, "Session expired, please log in again")
			return
		}
		if bound := ws.Session().ConsoleTokenID(); bound != "" && bound != c.GetString(middleware.ContextTokenID) {
			h.abortSession(c, "Session was replaced by a newer login")
			return
		}
		c.Set(ctxWorkspace, ws)
		c.Next()
	}
}

func workspace(c *gin.Context) *console.Workspace {
	ws, _ := c.MustGet(ctxWorkspace).(*console.Workspace)
	return ws
}

func (h *Handlers) abortSession(c *gin.Context, msg string) {
	h.auth.ClearAuthCookie(c)
	ToastError(c, "Session", msg)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "redirect": "/login"})
}

// respond writes a mutation result: the notice as toast headers and JSON.
func respond(c *gin.Context, status int, notice console.Notice, data interface{}) {
	ToastNotice(c, notice)
	body := gin.H{"notice": notice}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError maps a view or upstream failure onto a status code.
func (h *Handlers) respondError(c *gin.Context, notice console.Notice, err error) {
	h.logger.Writef("%s %s for %s failed: %v", c.Request.Method, c.FullPath(), c.GetString(middleware.ContextUsername), err)
	if notice.Message == "" {
		notice = console.Notice{Severity: console.SeverityError, Message: "Request failed"}
	}
	ToastNotice(c, notice)

	if fields, ok := console.AsFieldErrors(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": notice.Message, "fields": fields, "notice": notice})
		return
	}
	switch {
	case errors.Is(err, console.ErrPrimaryAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": notice.Message, "notice": notice})
		return
	case errors.Is(err, console.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notice.Message, "notice": notice})
		return
	case errors.Is(err, console.ErrNotAuthenticated):
		h.auth.ClearAuthCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": notice.Message, "redirect": "/login"})
		return
	}

	switch gateway.Classify(err) {
	case gateway.KindUnauthorized:
		h.auth.ClearAuthCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again", "redirect": "/login", "notice": notice})
	case gateway.KindValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": notice.Message, "fields": gateway.ValidationErrors(err), "notice": notice})
	case gateway.KindTransport:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Gateway admin API unreachable", "notice": notice})
	default:
		msg := notice.Message
		if upstream := gateway.Message(err); upstream != "" {
			msg = upstream
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msg, "notice": notice})
	}
}
