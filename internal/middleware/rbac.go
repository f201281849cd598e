package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/studentcrm/studentcrm-api/internal/models"
	appErrors "github.com/studentcrm/studentcrm-api/pkg/errors"
	"github.com/studentcrm/studentcrm-api/pkg/response"
)

// RoleSelf is a pseudo-role admitting a caller to their own resource. Route
// ids are profile ids while tokens carry account ids, so the middleware cannot
// decide ownership itself; it marks the request ownership-gated and the
// handler verifies the loaded profile's account id against the claims.
const RoleSelf = "SELF"

// contextOwnershipOnlyKey marks a request admitted solely on the RoleSelf
// grant.
const contextOwnershipOnlyKey = "ownershipOnly"

// OwnershipOnly reports whether the request was let through on RoleSelf alone
// and the handler must enforce ownership of the target resource.
func OwnershipOnly(c *gin.Context) bool {
	value, exists := c.Get(contextOwnershipOnlyKey)
	if !exists {
		return false
	}
	flagged, ok := value.(bool)
	return ok && flagged
}

// RBAC allows the request through when the caller holds any of the named
// roles.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextAccountKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowSelf := false
		allowedRoles := make(map[string]struct{})
		for _, a := range allowed {
			if a == RoleSelf {
				allowSelf = true
				continue
			}
			allowedRoles[a] = struct{}{}
		}

		for _, role := range claims.Roles {
			if _, ok := allowedRoles[role]; ok {
				c.Next()
				return
			}
		}

		if allowSelf && c.Param("id") != "" {
			c.Set(contextOwnershipOnlyKey, true)
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
