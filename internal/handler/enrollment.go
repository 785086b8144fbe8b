package handler

import (
    "encoding/json"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/iliyamo/lingua-enrollment/internal/service"
)

// EnrollmentHandler serves the student-facing write endpoints.  Students
// are anonymous; the rate limiter in front of these routes is the only
// gate.
type EnrollmentHandler struct {
    holds    *service.HoldService
    checkout *service.CheckoutService
}

// NewEnrollmentHandler wires the hold and checkout services.
func NewEnrollmentHandler(holds *service.HoldService, checkout *service.CheckoutService) *EnrollmentHandler {
    if holds == nil || checkout == nil {
        panic("nil service passed to NewEnrollmentHandler")
    }
    return &EnrollmentHandler{holds: holds, checkout: checkout}
}

type holdBody struct {
    SlotIDs      []uint64        `json:"slot_ids" validate:"required,min=1,max=20"`
    StudentName  string          `json:"student_name" validate:"required,max=120"`
    StudentEmail string          `json:"student_email" validate:"required,email"`
    IntakeForm   json.RawMessage `json:"intake_form"`
}

// CreateHold handles POST /holds.  201 with the hold, 409 with the
// unavailable slot ids, or 400.
func (h *EnrollmentHandler) CreateHold(c echo.Context) error {
    var body holdBody
    if err := bindAndValidate(c, &body); err != nil {
        return writeError(c, err)
    }
    hold, err := h.holds.CreateHold(c.Request().Context(), service.HoldRequest{
        SlotIDs:      body.SlotIDs,
        StudentName:  body.StudentName,
        StudentEmail: body.StudentEmail,
        IntakeForm:   body.IntakeForm,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, hold)
}

type checkoutBody struct {
    Mode         string          `json:"mode" validate:"omitempty,oneof=individual group_class flat_fee"`
    SlotIDs      []uint64        `json:"slot_ids" validate:"max=20"`
    StudentName  string          `json:"student_name" validate:"required,max=120"`
    StudentEmail string          `json:"student_email" validate:"required,email"`
    Form         json.RawMessage `json:"form"`
    IntakeForm   json.RawMessage `json:"intake_form"` // older clients
    Title        string          `json:"title" validate:"max=200"`
    Price        decimal.Decimal `json:"price"`
    Currency     string          `json:"currency" validate:"omitempty,len=3"`
}

func (b checkoutBody) form() json.RawMessage {
    if len(b.Form) > 0 && string(b.Form) != "null" {
        return b.Form
    }
    return b.IntakeForm
}

// Checkout handles POST /checkout.  201 with the checkout url, 409 when
// a slot is taken, 400 on bad input and 502 when the processor fails.
func (h *EnrollmentHandler) Checkout(c echo.Context) error {
    var body checkoutBody
    if err := bindAndValidate(c, &body); err != nil {
        return writeError(c, err)
    }
    res, err := h.checkout.Checkout(c.Request().Context(), service.CheckoutRequest{
        Mode:         body.Mode,
        SlotIDs:      body.SlotIDs,
        StudentName:  body.StudentName,
        StudentEmail: body.StudentEmail,
        IntakeForm:   body.form(),
        Title:        body.Title,
        Price:        body.Price,
        Currency:     body.Currency,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}
