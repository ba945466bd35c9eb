package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/manager"
	"gwconsole/internal/middleware"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// APILogin signs the operator in upstream and issues the console cookie.
func (h *Handlers) APILogin(c *gin.Context) {
	var req LoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	username := manager.NormalizeUsername(middleware.SanitizeString(req.Username))
	ctx := c.Request.Context()

	ws, err := h.manager.Open(ctx, username)
	if err != nil {
		h.logger.Writef("API login for %s from %s: workspace unavailable: %v", username, c.ClientIP(), err)
		ToastError(c, "Login failed", "Console is unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Console is unavailable"})
		return
	}

	notice, err := ws.Login(ctx, username, req.Password)
	if err != nil {
		h.logger.Writef("API login failed for '%s' from %s: %v", username, c.ClientIP(), err)
		if !ws.Authenticated() {
			h.manager.Evict(username)
		}
		ToastNotice(c, notice)
		c.JSON(http.StatusUnauthorized, gin.H{"error": notice.Message, "notice": notice})
		return
	}

	token, jti, err := h.auth.GenerateToken(username)
	if err != nil {
		h.logger.Writef("API login for %s: token generation failed: %v", username, err)
		ToastError(c, "Login failed", "Could not create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create session"})
		return
	}
	if previous := ws.Session().ConsoleTokenID(); previous != "" && previous != jti {
		h.auth.Revoke(previous)
	}
	if err := ws.Session().BindConsoleToken(jti); err != nil {
		h.logger.Writef("API login for %s: bind console token failed: %v", username, err)
	}

	h.logger.Writef("API login successful for '%s' from %s", username, c.ClientIP())
	h.auth.SetAuthCookie(c, token)
	ToastNotice(c, notice)
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"notice":  notice,
		"session": ws.Info(),
	})
}

// APILogout revokes the console token, ends the upstream session and
// closes the operator's live connections.
func (h *Handlers) APILogout(c *gin.Context) {
	username := c.GetString(middleware.ContextUsername)
	if jti := c.GetString(middleware.ContextTokenID); jti != "" {
		h.auth.Revoke(jti)
	}
	if err := h.manager.Logout(username); err != nil {
		h.logger.Writef("logout for %s: %v", username, err)
	}
	h.hub.Disconnect(username)
	h.auth.ClearAuthCookie(c)
	ToastSuccess(c, "Logged out", "You have been logged out")
	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "redirect": "/login"})
}

// APISession describes the operator's session.
func (h *Handlers) APISession(c *gin.Context) {
	c.JSON(http.StatusOK, workspace(c).Info())
}
