package handlers

import (
	"net/http"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"encore/websocket"
)

var cacheKeyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// EventsHandler handles WebSocket subscriptions to pipeline stage progress.
type EventsHandler struct {
	hub websocket.Hub
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub websocket.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Subscribe streams stage events for one cache key.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	key := c.Param("key")
	if !cacheKeyPattern.MatchString(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cache key"})
		return
	}
	h.upgrade(c, key)
}

// SubscribeAll streams stage events for every in-flight resolution.
func (h *EventsHandler) SubscribeAll(c *gin.Context) {
	h.upgrade(c, websocket.AllKeys)
}

func (h *EventsHandler) upgrade(c *gin.Context, key string) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "key", key, "err", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, key)
	h.hub.RegisterClient(client)
	client.StartPumps()
}
