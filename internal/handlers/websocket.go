package handlers

import (
	"github.com/gin-gonic/gin"

	"gwconsole/internal/console"
)

// WebSocket streams the operator's workspace events. Each connection
// counts as a mounted client, so polling runs while one is open.
func (h *Handlers) WebSocket(c *gin.Context) {
	ws := workspace(c)
	username := ws.Username()

	onOpen := func() {
		ws.Attach()
		h.updateClientGauge()
		h.hub.SendJSON(username, console.Event{Kind: console.EventSession, Payload: ws.Info()})
	}
	onClose := func() {
		ws.Detach()
	}
	h.hub.Serve(c.Writer, c.Request, username, onOpen, onClose)
	h.updateClientGauge()
}

func (h *Handlers) updateClientGauge() {
	if h.metrics != nil {
		h.metrics.SetWebSocketClients(h.hub.GetClientCount())
	}
}
