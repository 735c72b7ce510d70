package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles recognised by the billing and pharmacy APIs.
const (
	RoleAdmin      = "admin"
	RoleBilling    = "billing"
	RoleCashier    = "cashier"
	RolePharmacist = "pharmacist"
	RoleCoder      = "coder"
	RoleViewer     = "viewer"
)

// RequireRole allows the request through only when the authenticated user
// holds at least one of the given roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles)+1)
	allowed[RoleAdmin] = true
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, r := range userRoles {
				if allowed[r] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// HasRole reports whether the user holds the given role. Admin is treated
// as holding every role.
func HasRole(userRoles []string, role string) bool {
	for _, r := range userRoles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}
