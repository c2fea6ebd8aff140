package websocket

import (
	"net/http"
	"time"

	constants "SOSBeacon/pkg/constant"

	"github.com/gin-gonic/gin"
)

const (
	RouteWebSocket       = "/ws"
	RouteWebSocketStats  = "/ws/stats"
	RouteWebSocketHealth = "/ws/health"
)

// Handler exposes the hub over gin. Every accepted connection joins rooms.
type Handler struct {
	hub   *Hub
	rooms []string
}

func NewHandler(hub *Hub, rooms ...string) *Handler {
	return &Handler{hub: hub, rooms: rooms}
}

// RegisterRoutes mounts the upgrade, stats and health endpoints behind mw.
func RegisterRoutes(r gin.IRouter, h *Handler, mw ...gin.HandlerFunc) {
	g := r.Group("", mw...)
	g.GET(RouteWebSocket, h.Upgrade)
	g.GET(RouteWebSocketStats, h.Stats)
	g.GET(RouteWebSocketHealth, h.Health)
}

// Upgrade needs the identity set by the auth middleware.
func (h *Handler) Upgrade(c *gin.Context) {
	userID := c.GetString(constants.UserField)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized, no token"})
		return
	}
	Serve(h.hub, c.Writer, c.Request, userID, h.rooms...)
}

func (h *Handler) Stats(c *gin.Context) {
	rooms := make(gin.H, len(h.rooms))
	for _, room := range h.rooms {
		rooms[room] = h.hub.RoomSize(room)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"connections":        h.hub.Count(),
		"max_connections":    h.hub.cfg.MaxConnections,
		"dropped_events":     h.hub.Dropped(),
		"rooms":              rooms,
		"heartbeat_interval": h.hub.cfg.HeartbeatInterval.String(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.hub.ctx.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "details": err.Error()})
		return
	}
	status := "healthy"
	if h.hub.Count() >= h.hub.cfg.MaxConnections*9/10 {
		status = "warning"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "connections": h.hub.Count(), "timestamp": time.Now().Unix()})
}
