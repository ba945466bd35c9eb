package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	cards "gwconsole/internal/cards"
	"gwconsole/internal/console"
	"gwconsole/internal/gateway"
)

// APIDashboard returns the traffic snapshot and the dashboard cards. Counter
// failures are reported in the body; the cards fall back to their
// placeholders.
func (h *Handlers) APIDashboard(c *gin.Context) {
	ws := workspace(c)
	ctx := c.Request.Context()
	view := ws.Dashboard()

	var loadErr error
	snap := view.Snapshot()
	if !snap.TotalsOK || !snap.MinuteOK || c.Query("refresh") != "" {
		loadErr = view.Load(ctx)
	}
	if loadErr == nil {
		routes := ws.Routes()
		loadErr = ensureLoaded(ctx, routes.State().Status, routes.Load)
	}
	if gateway.Classify(loadErr) == gateway.KindUnauthorized {
		h.respondError(c, console.Notice{Severity: console.SeverityError, Message: "Session expired"}, loadErr)
		return
	}

	body := gin.H{
		"metrics": view.Snapshot(),
		"cards":   cards.GroupRenderablesBySlot(ws.DashboardCards()),
		"summary": ws.Routes().Summary(),
	}
	if loadErr != nil {
		h.logger.Writef("dashboard load for %s: %v", ws.Username(), loadErr)
		body["error"] = "Some dashboard data could not be loaded"
	}
	c.JSON(http.StatusOK, body)
}
