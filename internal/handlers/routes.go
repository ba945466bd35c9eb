package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/console"
	"gwconsole/internal/middleware"
)

// RateLimitRequest is the body of the rate limit editor.
type RateLimitRequest struct {
	MaxRequests  int `json:"maxRequests" validate:"min=0"`
	TimeWindowMs int `json:"timeWindowMs" validate:"min=0"`
}

// ensureLoaded fetches a view's list unless it already holds a successful
// load, so id lookups see current data.
func ensureLoaded(ctx context.Context, status console.Status, load func(context.Context) error) error {
	if status == console.StatusSuccess {
		return nil
	}
	return load(ctx)
}

// APIRoutes returns one page of routes with the capability summary.
func (h *Handlers) APIRoutes(c *gin.Context) {
	ws := workspace(c)
	view := ws.Routes()
	if err := view.Load(c.Request.Context()); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load routes"}, err)
		return
	}
	search, page := listQuery(c)
	c.JSON(http.StatusOK, gin.H{
		"routes":  view.Rows(search, page),
		"summary": view.Summary(),
		"status":  view.State().Status,
	})
}

// APIRouteCreate adds a route.
func (h *Handlers) APIRouteCreate(c *gin.Context) {
	var form console.RouteForm
	if !middleware.BindJSON(c, &form) {
		return
	}
	form.ID = 0
	notice, err := workspace(c).Routes().Save(c.Request.Context(), form)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusCreated, notice, nil)
}

// APIRouteUpdate replaces a route. Fields missing from the body keep their
// current values.
func (h *Handlers) APIRouteUpdate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view := workspace(c).Routes()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.State().Status, view.Load); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load routes"}, err)
		return
	}
	form, err := view.EditForm(id)
	if err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Route not found"}, err)
		return
	}
	if !middleware.BindJSON(c, &form) {
		return
	}
	form.ID = id
	notice, err := view.Save(ctx, form)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APIRouteDelete removes a route.
func (h *Handlers) APIRouteDelete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notice, err := workspace(c).Routes().Delete(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APIRouteToggle flips one capability. Enabling the IP filter answers
// with an info notice pointing at IP management.
func (h *Handlers) APIRouteToggle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	capability, err := console.ParseCapability(c.Param("capability"))
	if err != nil {
		ToastError(c, "Invalid Request", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view := workspace(c).Routes()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.State().Status, view.Load); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load routes"}, err)
		return
	}
	notice, err := view.Toggle(ctx, id, capability)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	route, _ := view.Find(id)
	respond(c, http.StatusOK, notice, route)
}

// APIRateLimits returns one page of routes for the rate limit view.
func (h *Handlers) APIRateLimits(c *gin.Context) {
	view := workspace(c).RateLimits()
	if err := view.Load(c.Request.Context()); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load rate limits"}, err)
		return
	}
	search, page := listQuery(c)
	c.JSON(http.StatusOK, gin.H{
		"routes": view.Rows(search, page),
		"status": view.State().Status,
	})
}

// APIRateLimitUpdate saves the editor values of one route. Values below
// the minimums are clamped, not rejected.
func (h *Handlers) APIRateLimitUpdate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, _ := c.MustGet("validated_data").(*RateLimitRequest)
	view := workspace(c).RateLimits()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.State().Status, view.Load); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load rate limits"}, err)
		return
	}
	editor, err := view.Edit(id)
	if err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Route not found"}, err)
		return
	}
	editor.SetMaxRequests(req.MaxRequests)
	editor.SetTimeWindowMs(req.TimeWindowMs)
	description := editor.Describe()
	notice, err := editor.Save(ctx)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, gin.H{
		"rateLimit":   editor.Value(),
		"description": description,
	})
}

// APIRateLimitToggle flips a route's rate limit flag.
func (h *Handlers) APIRateLimitToggle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view := workspace(c).RateLimits()
	ctx := c.Request.Context()
	if err := ensureLoaded(ctx, view.State().Status, view.Load); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load rate limits"}, err)
		return
	}
	notice, err := view.ToggleRateLimit(ctx, id)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}
