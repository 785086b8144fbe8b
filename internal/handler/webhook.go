package handler

import (
    "context"
    "io"
    "log"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives payment processor notifications.
type WebhookHandler struct {
    rec *service.Reconciler
}

// NewWebhookHandler wraps a Reconciler.
func NewWebhookHandler(rec *service.Reconciler) *WebhookHandler {
    if rec == nil {
        panic("nil reconciler passed to NewWebhookHandler")
    }
    return &WebhookHandler{rec: rec}
}

// PaymentWebhook handles POST /payment-webhook.  It always answers 200 so
// the processor stops retrying; the outcome goes to logs, metrics and the
// audit table.
func (h *WebhookHandler) PaymentWebhook(c echo.Context) error {
    body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
    if err != nil {
        log.Printf("webhook: read body: %v", err)
    }
    // The processor may hang up before we are done; finish the work anyway.
    ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 30*time.Second)
    defer cancel()
    h.rec.HandleWebhook(ctx, body, c.QueryParams())
    return c.JSON(http.StatusOK, echo.Map{"received": true})
}
