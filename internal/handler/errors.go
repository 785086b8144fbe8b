package handler

import (
    "errors"
    "log"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/service"
)

// writeError maps service errors onto HTTP responses.  Storage failures
// are logged and reported without detail.
func writeError(c echo.Context, err error) error {
    var (
        unavailable *service.SlotUnavailableError
        invalid     *service.ValidationError
    )
    switch {
    case errors.As(err, &unavailable):
        return c.JSON(http.StatusConflict, echo.Map{"error": "slot unavailable", "unavailable": unavailable.SlotIDs})
    case errors.As(err, &invalid):
        body := echo.Map{"error": invalid.Error()}
        if invalid.Field != "" {
            body["field"] = invalid.Field
        }
        return c.JSON(http.StatusBadRequest, body)
    case errors.Is(err, service.ErrUpstreamProcessor):
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment processor unavailable, please retry"})
    case errors.Is(err, service.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    case errors.Is(err, service.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    }
    log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
