package handlers

import (
	"net/http"

	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/errors"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates a regular user. Admins come from the bootstrap
// account, never from self-registration.
func (h *Handlers) handleRegister(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.Validation("Invalid request body"))
		return
	}
	user, err := models.CreateUser(h.db, req.Email, req.Password, constants.RoleUser)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.issueToken(c, http.StatusCreated, user)
}

func (h *Handlers) handleLogin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.Validation("Please provide an email and password"))
		return
	}
	user, err := models.Authenticate(h.db, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrUnauthorized) {
			logger.Info("login rejected", zap.String("ip", c.ClientIP()))
		}
		response.Error(c, err)
		return
	}
	h.issueToken(c, http.StatusOK, user)
}

func (h *Handlers) handleMe(c *gin.Context) {
	user, err := models.GetUserByID(h.db, c.GetString(constants.UserField))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *Handlers) issueToken(c *gin.Context, status int, user *models.User) {
	token, err := h.jwt.Issue(user.ID, user.Role)
	if err != nil {
		response.Error(c, errors.Internal(err, "failed to sign token"))
		return
	}
	response.JSON(c, status, gin.H{"token": token})
}
