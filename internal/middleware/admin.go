package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/utils"
)

// AdminRole is the JWT role claim that grants admin access.
const AdminRole = "ADMIN"

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth admits a request that either presents the admin key in
// X-Admin-Key (checked against keyHash, a bcrypt hash) or a Bearer token
// with role ADMIN signed with jwtSecret.  A request that sends the header
// is judged by the header alone.
func AdminAuth(keyHash, jwtSecret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        bearer := JWTAuth(jwtSecret)(RequireRole(AdminRole)(next))
        return func(c echo.Context) error {
            key := c.Request().Header.Get(AdminKeyHeader)
            if key == "" {
                return bearer(c)
            }
            if !utils.VerifySecret(keyHash, key) {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid admin key"})
            }
            c.Set(ContextSubject, "admin-key")
            c.Set(ContextRole, AdminRole)
            return next(c)
        }
    }
}
