package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lingua-enrollment/internal/handler"
	"github.com/iliyamo/lingua-enrollment/internal/monitoring"
)

// RegisterRoutes registers the operational endpoints: the health check and
// the Prometheus scrape target.  db may be nil, in which case the health
// check does not ping MySQL.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(monitoring.Handler()))
}

// RegisterPublic registers the read-only catalog.  cache is applied to the
// teacher listing only; /slots reflects live holds and is never cached.
func RegisterPublic(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	e.GET("/slots", h.ListSlots)
	if cache != nil {
		e.GET("/teachers", h.ListTeachers, cache)
		return
	}
	e.GET("/teachers", h.ListTeachers)
}

// RegisterWebhook registers the payment notification endpoint.  It takes
// no auth middleware; Midtrans notifications are verified by signature
// inside the reconciler.
func RegisterWebhook(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST("/payment-webhook", h.PaymentWebhook)
}
