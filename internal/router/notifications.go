package router

import (
	"io"

	"menu_digital/internal/notify"

	"github.com/gin-gonic/gin"
)

// notificationsStream 后台管理端 SSE 通知流。
func notificationsStream(hub *notify.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case n, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(n.Type, n)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
