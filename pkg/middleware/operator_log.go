package middleware

import (
	"net/http"
	"time"

	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OperationLog is one audited API write.
type OperationLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"size:36;index" json:"userId"`
	Action        string    `gorm:"size:16;not null" json:"action"`
	Target        string    `gorm:"size:255;not null" json:"target"`
	Status        int       `json:"status"`
	IPAddress     string    `gorm:"size:64" json:"ipAddress"`
	UserAgent     string    `gorm:"size:255" json:"userAgent"`
	RequestMethod string    `gorm:"size:16" json:"requestMethod"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// OperationLogMiddleware records mutating requests after they complete.
// Reads are skipped. A failed insert is logged and never changes the response.
func OperationLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		entry := OperationLog{
			UserID:        c.GetString(constants.UserField),
			Action:        c.Request.Method,
			Target:        c.Request.URL.Path,
			Status:        c.Writer.Status(),
			IPAddress:     c.ClientIP(),
			UserAgent:     truncate(c.GetHeader("User-Agent"), 255),
			RequestMethod: c.Request.Method,
		}
		if err := CreateOperationLog(db, &entry); err != nil {
			logger.Warn("failed to record operation log", zap.Error(err), zap.String("target", entry.Target))
		}
	}
}

// CreateOperationLog stores one entry.
func CreateOperationLog(db *gorm.DB, entry *OperationLog) error {
	return db.Create(entry).Error
}

// ListOperationLogs returns the newest entries first.
func ListOperationLogs(db *gorm.DB, limit int) ([]OperationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []OperationLog
	err := db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
