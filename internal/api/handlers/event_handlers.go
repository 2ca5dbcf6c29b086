package handlers

import (
	"io"

	"lookout/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// StreamEvents serves pipeline events over SSE until the client disconnects.
func (h *APIHandler) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	client := make(sse.Client, 10)

	h.sseHub.Register(client)
	defer h.sseHub.Unregister(client)

	c.Stream(func(w io.Writer) bool {
		msg, ok := <-client
		if !ok {
			return false
		}
		c.SSEvent("message", string(msg))
		return true
	})
}
