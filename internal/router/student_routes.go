package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lingua-enrollment/internal/handler"
)

// RegisterStudent registers the anonymous student write endpoints.  Both
// take timeslot locks, so they sit behind the rate limiter.
func RegisterStudent(e *echo.Echo, h *handler.EnrollmentHandler, limiter echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limiter != nil {
		mw = append(mw, limiter)
	}
	e.POST("/holds", h.CreateHold, mw...)
	e.POST("/checkout", h.Checkout, mw...)
}
