package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/console"
	"gwconsole/internal/middleware"
)

// APIIPs returns one page of allow-list entries plus the route options of
// the add dialog.
func (h *Handlers) APIIPs(c *gin.Context) {
	view := workspace(c).IPs()
	if err := view.Load(c.Request.Context()); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load IP addresses"}, err)
		return
	}
	search, page := listQuery(c)
	c.JSON(http.StatusOK, gin.H{
		"ips":    view.Rows(search, page),
		"routes": view.State().Data.Routes,
		"status": view.State().Status,
	})
}

// APIIPGroups returns the grouped card view. The highlight query selects a
// route to show even when its filter is off.
func (h *Handlers) APIIPGroups(c *gin.Context) {
	view := workspace(c).IPs()
	if err := view.Load(c.Request.Context()); err != nil {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load IP addresses"}, err)
		return
	}
	var highlight int64
	if raw := c.Query("highlight"); raw != "" {
		highlight, _ = strconv.ParseInt(raw, 10, 64)
	}
	c.JSON(http.StatusOK, gin.H{
		"groups":      view.Groups(highlight),
		"highlighted": view.Highlighted(),
	})
}

// APIIPCreate adds an entry to a route.
func (h *Handlers) APIIPCreate(c *gin.Context) {
	var form console.IPForm
	if !middleware.BindJSON(c, &form) {
		return
	}
	form.IP = middleware.SanitizeString(form.IP)
	notice, err := workspace(c).IPs().Add(c.Request.Context(), form)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusCreated, notice, nil)
}

// APIIPUpdate replaces an entry.
func (h *Handlers) APIIPUpdate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var form console.IPForm
	if !middleware.BindJSON(c, &form) {
		return
	}
	form.IP = middleware.SanitizeString(form.IP)
	view := workspace(c).IPs()
	ctx := c.Request.Context()
	if form.RouteID == 0 {
		if err := ensureLoaded(ctx, view.State().Status, view.Load); err != nil {
			h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Failed to load IP addresses"}, err)
			return
		}
	}
	notice, err := view.Update(ctx, id, form)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APIIPDelete removes one entry. The owning route is required by the
// gateway and comes from the routeId query.
func (h *Handlers) APIIPDelete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	routeID, err := ParseID(c.Query("routeId"))
	if err != nil {
		ToastError(c, "Invalid request", "routeId "+err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": gin.H{"routeId": err.Error()}})
		return
	}
	notice, err := workspace(c).IPs().Delete(c.Request.Context(), id, routeID)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}

// APIIPDeleteForRoute removes every entry of a route in one call.
func (h *Handlers) APIIPDeleteForRoute(c *gin.Context) {
	routeID, ok := pathID(c, "routeId")
	if !ok {
		return
	}
	notice, err := workspace(c).IPs().DeleteAllForRoute(c.Request.Context(), routeID)
	if err != nil {
		h.respondError(c, notice, err)
		return
	}
	respond(c, http.StatusOK, notice, nil)
}
