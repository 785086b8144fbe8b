package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/model"
    "github.com/iliyamo/lingua-enrollment/internal/service"
)

// CatalogHandler serves the public, read-only catalog.
type CatalogHandler struct {
    svc *service.CatalogService
}

// NewCatalogHandler wraps a CatalogService.
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
    if svc == nil {
        panic("nil catalog service passed to NewCatalogHandler")
    }
    return &CatalogHandler{svc: svc}
}

// ListSlots handles GET /slots.  Optional filters: ?state= and
// ?teacher_id=.
func (h *CatalogHandler) ListSlots(c echo.Context) error {
    var f service.CatalogFilter
    if raw := c.QueryParam("state"); raw != "" {
        st, err := model.ParseSlotState(raw)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "field": "state"})
        }
        f.State = st
    }
    if raw := c.QueryParam("teacher_id"); raw != "" {
        id, err := strconv.ParseUint(raw, 10, 64)
        if err != nil || id == 0 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid teacher_id", "field": "teacher_id"})
        }
        f.TeacherID = id
    }
    slots, err := h.svc.ListSlots(c.Request().Context(), f)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, slots)
}

// ListTeachers handles GET /teachers.
func (h *CatalogHandler) ListTeachers(c echo.Context) error {
    teachers, err := h.svc.ListTeachers(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, teachers)
}
