package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	userIDKey = "userId"
	rolesKey  = "roles"
	tokenKey  = "token"
)

// JWTMiddleware validates bearer tokens and puts the caller on the gin context.
// Revoked tokens are tracked in redis when a client is configured.
type JWTMiddleware struct {
	tokens    *TokenManager
	redis     redis.UniversalClient
	keyPrefix string
}

func NewJWTMiddleware(tokens *TokenManager, redis redis.UniversalClient, keyPrefix string) *JWTMiddleware {
	return &JWTMiddleware{
		tokens:    tokens,
		redis:     redis,
		keyPrefix: keyPrefix,
	}
}

func (m *JWTMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		const bearerScheme = "Bearer "
		if !strings.HasPrefix(authHeader, bearerScheme) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}
		token := strings.TrimSpace(authHeader[len(bearerScheme):])

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		if m.redis != nil {
			revoked, err := m.redis.Exists(c.Request.Context(), m.revocationKey(claims.ID)).Result()
			if err == nil && revoked > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has been revoked"})
				return
			}
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(rolesKey, claims.Roles)
		c.Set(tokenKey, claims)

		c.Next()
	}
}

// Revoke blacklists the token for the rest of its lifetime.
func (m *JWTMiddleware) Revoke(ctx context.Context, claims *Claims) error {
	if m.redis == nil {
		return nil
	}
	ttl := m.tokens.Remaining(claims)
	if ttl <= 0 {
		return nil
	}
	return m.redis.Set(ctx, m.revocationKey(claims.ID), time.Now().UTC().Unix(), ttl).Err()
}

// Logout revokes the token of the current request.
func (m *JWTMiddleware) Logout(c *gin.Context) {
	claims, ok := GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	if err := m.Revoke(c.Request.Context(), claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (m *JWTMiddleware) revocationKey(tokenID string) string {
	if m.keyPrefix == "" {
		return "blacklist:" + tokenID
	}
	return m.keyPrefix + ":blacklist:" + tokenID
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok
}

// GetUserRoles extracts user roles from context
func GetUserRoles(c *gin.Context) ([]string, bool) {
	roles, exists := c.Get(rolesKey)
	if !exists {
		return nil, false
	}

	rolesList, ok := roles.([]string)
	return rolesList, ok
}

func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(tokenKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
