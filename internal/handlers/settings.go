package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/console"
	"gwconsole/internal/middleware"
	"gwconsole/internal/models"
)

// PasswordRequest carries the confirmation the gateway never sees.
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// APIProfile returns the cached profile, fetching it when missing.
func (h *Handlers) APIProfile(c *gin.Context) {
	view := workspace(c).Settings()
	profile := view.Profile()
	if profile.Username == "" {
		var err error
		profile, err = view.LoadProfile(c.Request.Context())
		if err != nil {
			h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load profile"}, err)
			return
		}
	}
	c.JSON(http.StatusOK, profile)
}

// APIProfileUpdate saves the personal information tab.
func (h *Handlers) APIProfileUpdate(c *gin.Context) {
	var patch models.ProfilePatch
	if !middleware.BindJSON(c, &patch) {
		return
	}
	view := workspace(c).Settings()
	notice, err := view.UpdateProfile(c.Request.Context(), patch)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, view.Profile())
}

// APIPasswordUpdate changes the operator's password.
func (h *Handlers) APIPasswordUpdate(c *gin.Context) {
	var req PasswordRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	notice, err := workspace(c).Settings().UpdatePassword(c.Request.Context(), models.PasswordChange{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APISecurityUpdate saves the security tab.
func (h *Handlers) APISecurityUpdate(c *gin.Context) {
	var req models.SecuritySettings
	if !middleware.BindJSON(c, &req) {
		return
	}
	view := workspace(c).Settings()
	notice, err := view.UpdateSecurity(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, view.Profile())
}

type userRow struct {
	models.User
	PrimaryAdmin bool `json:"primaryAdmin,omitempty"`
}

// APIUsers lists accounts, filtered by the search query.
func (h *Handlers) APIUsers(c *gin.Context) {
	view := workspace(c).Settings()
	if err := view.LoadUsers(c.Request.Context()); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load users"}, err)
		return
	}
	search, _ := listQuery(c)
	users := view.Users(search)
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{User: u, PrimaryAdmin: view.IsPrimaryAdmin(u)})
	}
	c.JSON(http.StatusOK, gin.H{"users": rows})
}

// APIUserCreate adds an account.
func (h *Handlers) APIUserCreate(c *gin.Context) {
	var nu models.NewUser
	if !middleware.BindJSON(c, &nu) {
		return
	}
	nu.Username = middleware.SanitizeString(nu.Username)
	notice, err := workspace(c).Settings().CreateUser(c.Request.Context(), nu)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusCreated, notice, nil)
}

// APIUserDelete removes an account other than the primary admin.
func (h *Handlers) APIUserDelete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view := workspace(c).Settings()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.UsersResource().State().Status, view.LoadUsers); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load users"}, err)
		return
	}
	notice, err := view.DeleteUser(ctx, id)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APIUserStatus flips an account between Active and Disabled.
func (h *Handlers) APIUserStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view := workspace(c).Settings()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.UsersResource().State().Status, view.LoadUsers); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load users"}, err)
		return
	}
	notice, err := view.ToggleUserStatus(ctx, id)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}
