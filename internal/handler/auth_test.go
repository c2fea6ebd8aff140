package handlers

import (
	"net/http"
	"testing"

	constants "SOSBeacon/pkg/constant"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenEnvelope struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

func TestRegisterForcesUserRole(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "new@example.com", "password": "secret1", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode[tokenEnvelope](t, w)
	claims, err := s.jwt.Parse(env.Token)
	require.NoError(t, err)
	assert.Equal(t, constants.RoleUser, claims.Role)

	w = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "new@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User with this email already exists", decode[tokenEnvelope](t, w).Message)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[tokenEnvelope](t, w).Token

	w = s.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decode[tokenEnvelope](t, w).Message)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndOperationLog(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/system/health", "", nil).Code)

	s.do(http.MethodPost, "/api/v1/alerts", "", helpPayload)
	w := s.do(http.MethodGet, "/api/v1/system/oplogs", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"target":"/api/v1/alerts"`)
}

func TestStatsRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/v1/alerts", "", helpPayload)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/system/stats", "", nil).Code)

	w := s.do(http.MethodGet, "/api/v1/system/stats", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"pending":1`)
	assert.Contains(t, w.Body.String(), `"resolved":0`)
}
