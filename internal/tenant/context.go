package tenant

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
)

// Identity is the caller attribution attached to every request. TenantID is
// mandatory for all scoped operations, UserID for user-scoped collections.
type Identity struct {
	TenantID string
	UserID   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, id.TenantID)
	return context.WithValue(ctx, userIDKey, id.UserID)
}

func FromContext(ctx context.Context) (Identity, bool) {
	tenantID, _ := ctx.Value(tenantIDKey).(string)
	userID, _ := ctx.Value(userIDKey).(string)
	if tenantID == "" {
		return Identity{}, false
	}
	return Identity{TenantID: tenantID, UserID: userID}, true
}

// Middleware resolves the caller identity from request headers and rejects
// requests with no tenant attribution.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
			return
		}
		id := Identity{
			TenantID: tenantID,
			UserID:   c.GetHeader("X-User-ID"),
		}
		c.Set(string(tenantIDKey), id.TenantID)
		c.Set(string(userIDKey), id.UserID)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}
