package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin     = "admin"
	RoleBilling   = "billing"
	RoleClinician = "clinician"
	RoleSales     = "sales"
)

var knownRoles = map[string]bool{
	RoleAdmin:     true,
	RoleBilling:   true,
	RoleClinician: true,
	RoleSales:     true,
}

// ValidRole reports whether r is one of the staff roles.
func ValidRole(r string) bool {
	return knownRoles[r]
}

// RequireRole allows the request when the user holds any of roles. Admins
// always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func HasRole(userRoles []string, roles ...string) bool {
	for _, has := range userRoles {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}
