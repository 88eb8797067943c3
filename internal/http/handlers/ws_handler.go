// README: Websocket handler streaming tracking and driver positions for one delivery.
package handlers

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"tawsil/internal/http/live"
)

type LiveHandler struct {
	hub     *live.Hub
	origins []string
}

// NewLiveHandler accepts upgrades from the given origin patterns; an empty
// list only allows same-origin clients.
func NewLiveHandler(hub *live.Hub, origins []string) *LiveHandler {
	return &LiveHandler{hub: hub, origins: origins}
}

func (h *LiveHandler) Stream(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 10)

	h.hub.Serve(c.Request.Context(), id, conn)
}
