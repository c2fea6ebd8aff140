package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	constants "SOSBeacon/pkg/constant"
	"SOSBeacon/pkg/errors"
	"SOSBeacon/pkg/logger"
	"SOSBeacon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims carried by an access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 access tokens.
type JWT struct {
	secret []byte
	expire time.Duration
	issuer string
	now    func() time.Time
}

func NewJWT(secret string, expire time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if expire <= 0 {
		expire = 30 * 24 * time.Hour
	}
	return &JWT{secret: []byte(secret), expire: expire, issuer: "sosbeacon", now: time.Now}, nil
}

// Issue signs a token for the user.
func (j *JWT) Issue(userID, role string) (string, error) {
	now := j.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expire)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Parse verifies signature, issuer and expiry.
func (j *JWT) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, errors.WithCode(errors.CodeUnauthorized, "Not authorized, token failed")
	}
	if claims.Subject == "" {
		return nil, errors.WithCode(errors.CodeUnauthorized, "Not authorized, token failed")
	}
	return &claims, nil
}

// BearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for websocket upgrades.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

// OptionalAuth attaches the caller identity when a valid token is present.
// Anonymous requests pass, and so do requests carrying an expired or invalid
// token: they are served as anonymous so a stale device token never blocks a
// public route.
func OptionalAuth(j *JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		claims, err := j.Parse(token)
		if err != nil {
			logger.Warn("optional token ignored",
				zap.String("path", c.FullPath()),
				zap.String("ip", c.ClientIP()),
				zap.Error(err))
			c.Next()
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// RequireAuth rejects requests without a valid token.
func RequireAuth(j *JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			response.Fail(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		claims, err := j.Parse(token)
		if err != nil {
			response.Error(c, err)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(constants.RoleField) != constants.RoleAdmin {
			response.Fail(c, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, claims *Claims) {
	c.Set(constants.UserField, claims.Subject)
	c.Set(constants.RoleField, claims.Role)
}

// CurrentUserID returns the authenticated user id, or nil for anonymous callers.
func CurrentUserID(c *gin.Context) *string {
	id := c.GetString(constants.UserField)
	if id == "" {
		return nil
	}
	return &id
}
