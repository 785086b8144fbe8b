package middleware

import "github.com/labstack/echo/v4"

// Context keys set by the auth middleware.
const (
    ContextSubject = "admin_subject"
    ContextRole    = "role"
)

// clientID names the caller for rate limit keys.  Students are anonymous,
// so everyone except an authenticated administrator is "anon".
func clientID(c echo.Context) string {
    if s, ok := c.Get(ContextSubject).(string); ok && s != "" {
        return s
    }
    return "anon"
}
