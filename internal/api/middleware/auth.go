package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JavaBool/votely/internal/auth"
)

// Context keys set by the auth middleware
const (
	ContextAdminID = "admin_id"
	ContextClaims  = "admin_claims"
)

// AuthRequired validates the bearer token and stores the admin claims in the
// request context.
func AuthRequired(tokens *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextAdminID, claims.AdminID)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// GetClaims returns the admin claims stored by AuthRequired.
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// PasswordChangeEnforced blocks every admin endpoint except password change
// while the force-change flag is set on the session.
func PasswordChangeEnforced() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if ok && claims.ForceChangePassword {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "password change required before continuing",
			})
			return
		}
		c.Next()
	}
}

// RequireManageElections gates election management endpoints.
func RequireManageElections() gin.HandlerFunc {
	return requirePermission(func(claims *auth.Claims) bool {
		return claims.IsSuperAdmin || claims.PermManageElections
	})
}

// RequireManageElectors gates elector roll endpoints.
func RequireManageElectors() gin.HandlerFunc {
	return requirePermission(func(claims *auth.Claims) bool {
		return claims.IsSuperAdmin || claims.PermManageElectors
	})
}

// RequireManageAdmins gates admin account endpoints.
func RequireManageAdmins() gin.HandlerFunc {
	return requirePermission(func(claims *auth.Claims) bool {
		return claims.IsSuperAdmin || claims.PermManageAdmins
	})
}

// RequireSuperAdmin gates system-level endpoints.
func RequireSuperAdmin() gin.HandlerFunc {
	return requirePermission(func(claims *auth.Claims) bool {
		return claims.IsSuperAdmin
	})
}

func requirePermission(allowed func(*auth.Claims) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok || !allowed(claims) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}
