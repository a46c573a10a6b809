// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. Tokens are HS256 JWTs
// minted by the account service; the middleware verifies the signature and
// expiry, then stashes the subject and role in the Gin context for handlers
// and downstream middleware (rate limiting keys on the same identity).
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys for the authenticated identity. The plain "userID" key is
// shared with the rate limiter and request logger.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUserRole = "userRole"
)

// UserID returns the authenticated account id, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// UserRole returns the authenticated account role ("user" when unset).
func UserRole(c *gin.Context) string {
	v, ok := c.Get(ctxKeyUserRole)
	if !ok {
		return "user"
	}
	s, _ := v.(string)
	if s == "" {
		return "user"
	}
	return s
}

// RequireAuth verifies the Authorization bearer token and stashes the
// identity. Requests without a valid token are rejected with 401.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" || !strings.HasPrefix(raw, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			unauthorized(c, "invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "invalid token claims")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			unauthorized(c, "invalid token subject")
			return
		}
		role, _ := claims["role"].(string)
		if role == "" {
			role = "user"
		}

		c.Set(ctxKeyUserID, sub)
		c.Set(ctxKeyUserRole, role)
		c.Next()
	}
}

// RequireAdmin rejects non-admin identities with 403. It must run after
// RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserRole(c) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "admin role required",
			})
			return
		}
		c.Next()
	}
}

// unauthorized rejects with the same envelope shape the handlers use, so the
// error contract stays uniform across middleware and endpoints.
func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
