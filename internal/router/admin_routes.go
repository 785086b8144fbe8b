package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lingua-enrollment/internal/handler"
)

// RegisterAdmin registers the administrator endpoints under /admin.  auth
// is middleware.AdminAuth and guards the whole group.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, auth echo.MiddlewareFunc) {
	g := e.Group("/admin", auth)

	g.POST("/session", h.Session)

	g.GET("/teachers", h.ListTeachers)
	g.POST("/teachers", h.CreateTeacher)
	g.DELETE("/teachers/:id", h.DeleteTeacher)

	g.GET("/slots", h.ListSlots)
	g.POST("/slots", h.CreateSlot)
	g.DELETE("/slots/:id", h.DeleteSlot)
	// Manual recovery: unwind a slot, or force it into a state.
	g.POST("/slots/:id/release", h.ReleaseSlot)
	g.PUT("/slots/:id/state", h.SetSlotState)

	g.GET("/reservations", h.ListReservations)
}
