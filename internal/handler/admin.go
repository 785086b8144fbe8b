package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/middleware"
    "github.com/iliyamo/lingua-enrollment/internal/model"
    "github.com/iliyamo/lingua-enrollment/internal/service"
    "github.com/iliyamo/lingua-enrollment/internal/utils"
)

// AdminHandler serves /admin.  Every route sits behind
// middleware.AdminAuth.
type AdminHandler struct {
    svc       *service.AdminService
    jwtSecret string
    tokenTTL  int
}

// NewAdminHandler wires an AdminService.  jwtSecret and tokenTTLMin are
// used to mint session tokens.
func NewAdminHandler(svc *service.AdminService, jwtSecret string, tokenTTLMin int) *AdminHandler {
    if svc == nil {
        panic("nil admin service passed to NewAdminHandler")
    }
    return &AdminHandler{svc: svc, jwtSecret: jwtSecret, tokenTTL: tokenTTLMin}
}

// Session handles POST /admin/session: trade the admin key (or a still
// valid token) for a fresh JWT.
func (h *AdminHandler) Session(c echo.Context) error {
    sub, _ := c.Get(middleware.ContextSubject).(string)
    if sub == "" {
        sub = "admin"
    }
    tok, err := utils.NewAdminToken(h.jwtSecret, sub, middleware.AdminRole, h.tokenTTL)
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "sessions are not configured"})
    }
    return c.JSON(http.StatusCreated, tok)
}

type teacherBody struct {
    Name string `json:"name" validate:"required,max=120"`
}

// CreateTeacher handles POST /admin/teachers.
func (h *AdminHandler) CreateTeacher(c echo.Context) error {
    var body teacherBody
    if err := bindAndValidate(c, &body); err != nil {
        return writeError(c, err)
    }
    t, err := h.svc.CreateTeacher(c.Request().Context(), body.Name)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, t)
}

// ListTeachers handles GET /admin/teachers.
func (h *AdminHandler) ListTeachers(c echo.Context) error {
    ts, err := h.svc.ListTeachers(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    if ts == nil {
        ts = []model.Teacher{}
    }
    return c.JSON(http.StatusOK, ts)
}

// DeleteTeacher handles DELETE /admin/teachers/:id.
func (h *AdminHandler) DeleteTeacher(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid teacher id"})
    }
    if err := h.svc.DeleteTeacher(c.Request().Context(), id); err != nil {
        return writeError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

type slotBody struct {
    TeacherID uint64 `json:"teacher_id" validate:"required"`
    Weekday   string `json:"weekday" validate:"required"`
    Time      string `json:"time" validate:"required"`
}

// CreateSlot handles POST /admin/slots.
func (h *AdminHandler) CreateSlot(c echo.Context) error {
    var body slotBody
    if err := bindAndValidate(c, &body); err != nil {
        return writeError(c, err)
    }
    slot, err := h.svc.CreateSlot(c.Request().Context(), body.TeacherID, body.Weekday, body.Time)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, slot)
}

// ListSlots handles GET /admin/slots with the full reservation history of
// each slot.
func (h *AdminHandler) ListSlots(c echo.Context) error {
    var teacherID uint64
    if raw := c.QueryParam("teacher_id"); raw != "" {
        id, err := strconv.ParseUint(raw, 10, 64)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid teacher_id", "field": "teacher_id"})
        }
        teacherID = id
    }
    slots, err := h.svc.ListSlots(c.Request().Context(), teacherID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, slots)
}

// DeleteSlot handles DELETE /admin/slots/:id.
func (h *AdminHandler) DeleteSlot(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
    }
    if err := h.svc.DeleteSlot(c.Request().Context(), id); err != nil {
        return writeError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ReleaseSlot handles POST /admin/slots/:id/release.
func (h *AdminHandler) ReleaseSlot(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
    }
    n, err := h.svc.ReleaseSlot(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"slot_id": id, "cancelled": n})
}

type slotStateBody struct {
    State       string `json:"state" validate:"required,oneof=blocked pending available"`
    HoldMinutes int    `json:"hold_minutes" validate:"min=0,max=10080"`
}

// SetSlotState handles PUT /admin/slots/:id/state.
func (h *AdminHandler) SetSlotState(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
    }
    var body slotStateBody
    if err := bindAndValidate(c, &body); err != nil {
        return writeError(c, err)
    }
    if err := h.svc.SetSlotState(c.Request().Context(), id, model.SlotState(body.State), body.HoldMinutes); err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"slot_id": id, "state": body.State})
}

// ListReservations handles GET /admin/reservations?group_correlation_id=.
func (h *AdminHandler) ListReservations(c echo.Context) error {
    rows, err := h.svc.ReservationsByGroup(c.Request().Context(), c.QueryParam("group_correlation_id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, rows)
}

func pathID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil && id > 0
}
