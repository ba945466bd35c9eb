package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/version"
)

// Healthz is the liveness probe.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Readyz reports whether the console accepts sessions, with process
// telemetry.
func (h *Handlers) Readyz(c *gin.Context) {
	ready := !h.manager.Closed()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"ready":            ready,
		"workspaces":       h.manager.Count(),
		"websocketClients": h.hub.GetClientCount(),
		"telemetry":        h.manager.ProcessTelemetry(),
	})
}

// Version reports the build.
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Current())
}
