package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zulandar/querydesk/internal/role"
)

const actorKey = "actor"

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Team string `json:"team,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor. A zero ttl issues a token
// without expiry.
func IssueToken(secret string, actor role.Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("api: jwt secret is required")
	}
	if actor.ID == "" {
		return "", fmt.Errorf("api: actor id is required")
	}
	now := time.Now()
	claims := Claims{
		Name: actor.Name,
		Role: string(actor.Role),
		Team: actor.Team,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  actor.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("api: sign token: %w", err)
	}
	return signed, nil
}

// authMiddleware validates the bearer token and stores the caller as a
// role.Actor on the context.
func authMiddleware(secret string) gin.HandlerFunc {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header is required")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization header format")
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}
		claims, ok := token.Claims.(*Claims)
		if !ok || claims.Subject == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token claims")
			return
		}
		r, ok := role.Parse(claims.Role)
		if !ok {
			abort(c, http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("unknown role %q", claims.Role))
			return
		}

		c.Set(actorKey, role.Actor{
			ID:   claims.Subject,
			Name: claims.Name,
			Role: r,
			Team: claims.Team,
		})
		c.Next()
	}
}

// actorFrom returns the caller set by authMiddleware.
func actorFrom(c *gin.Context) role.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(role.Actor); ok {
			return a
		}
	}
	return role.Actor{}
}
