package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CasbinMiddleware authorizes authenticated callers against RBAC policies.
type CasbinMiddleware struct {
	enforcer PermissionChecker
}

func NewCasbinMiddleware(enforcer PermissionChecker) *CasbinMiddleware {
	return &CasbinMiddleware{
		enforcer: enforcer,
	}
}

// Authorize guards resource, deriving the action from the request method.
func (m *CasbinMiddleware) Authorize(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.check(c, resource, methodToAction(c.Request.Method))
	}
}

// RequirePermission guards resource with a fixed action.
func (m *CasbinMiddleware) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.check(c, resource, action)
	}
}

func (m *CasbinMiddleware) check(c *gin.Context, resource, action string) {
	userID, ok := GetUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	allowed, err := m.enforcer.CheckPermission(userID, resource, action)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to check permissions"})
		return
	}

	// token roles are checked too, so groups granted after sign in need a new token
	if !allowed {
		roles, _ := GetUserRoles(c)
		for _, role := range roles {
			if allowed, _ = m.enforcer.CheckPermission(role, resource, action); allowed {
				break
			}
		}
	}

	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "permission denied",
			"details": fmt.Sprintf("requires permission: %s:%s", resource, action),
		})
		return
	}

	c.Next()
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
