package api

import (
	"io"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// keepaliveInterval is how often an idle event stream emits a comment
// frame so proxies do not close the connection.
const keepaliveInterval = 30 * time.Second

// StreamEvents handles GET /api/events: a server-sent-events stream of
// change notifications. Each connected surface gets its own buffered
// subscription; a surface too slow to drain it misses events and is
// expected to recover with a full pull.
func (h *Handler) StreamEvents(c *gin.Context) {
	events, cancel := h.notifier.Subscribe(64)
	defer cancel()

	c.Writer.Header().Set("Content-Type", sse.ContentType)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			sse.Encode(w, sse.Event{Event: "sync", Data: ev})
			return true
		case <-keepalive.C:
			sse.Encode(w, sse.Event{Event: "keepalive", Data: "ping"})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
