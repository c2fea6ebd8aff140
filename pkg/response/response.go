package response

import (
	"net/http"

	"SOSBeacon/pkg/errors"
	"SOSBeacon/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Success writes {"success": true, "data": data}.
func Success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// JSON writes {"success": true} merged with fields.
func JSON(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail aborts with {"success": false, "message": msg}.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// Error maps err to its HTTP status and aborts. Internal errors are logged
// and answered with a generic message.
func Error(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	body := gin.H{"success": false}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
			zap.String("stack", errors.GetStack(err)))
		body["message"] = "Server Error"
	} else {
		body["message"] = errors.GetMessage(err)
		if code := errors.GetCode(err); code != 0 {
			body["code"] = code
		}
	}
	c.AbortWithStatusJSON(status, body)
}
