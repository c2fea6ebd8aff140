package handlers

import (
	"net/http"
	"time"

	"SOSBeacon/internal/models"
	"SOSBeacon/pkg/middleware"
	"SOSBeacon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// HealthCheck pings the database; the beacon client probes it for connectivity.
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "healthy", "timestamp": time.Now().Unix()})
}

func (h *Handlers) handleStats(c *gin.Context) {
	counts, err := models.CountAlerts(h.db)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats := gin.H{"alerts": counts}
	if h.deps.Hub != nil {
		stats["relayConnections"] = h.deps.Hub.Count()
		stats["relayDropped"] = h.deps.Hub.Dropped()
	}
	if h.search != nil {
		if n, err := h.search.Count(); err == nil {
			stats["indexed"] = n
		}
	}
	response.Success(c, http.StatusOK, stats)
}

func (h *Handlers) handleOperationLogs(c *gin.Context) {
	logs, err := middleware.ListOperationLogs(h.db, cast.ToInt(c.Query("limit")))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "Server Error")
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": len(logs), "logs": logs})
}
