package model

import (
    "encoding/json"
    "fmt"
    "time"

    "github.com/shopspring/decimal"
)

// BookingMode tells the checkout whether it claims timeslots.
type BookingMode string

const (
    ModeIndividual BookingMode = "individual"  // one-to-one lessons backed by timeslots
    ModeGroupClass BookingMode = "group_class" // enrolment in a scheduled group course
    ModeFlatFee    BookingMode = "flat_fee"    // programmes sold at a fixed price, no slots
)

// ParseBookingMode rejects unknown modes instead of defaulting.
func ParseBookingMode(s string) (BookingMode, error) {
    switch m := BookingMode(s); m {
    case ModeIndividual, ModeGroupClass, ModeFlatFee:
        return m, nil
    }
    return "", fmt.Errorf("unknown booking mode %q", s)
}

// SlotBacked reports whether checkouts in this mode hold timeslots.
func (m BookingMode) SlotBacked() bool { return m == ModeIndividual }

// CheckoutStatus tracks the payment side of a checkout attempt.
type CheckoutStatus string

const (
    CheckoutOpen   CheckoutStatus = "open"
    CheckoutPaid   CheckoutStatus = "paid"
    CheckoutFailed CheckoutStatus = "failed"
)

// Checkout records one attempt to pay, keyed by the correlation id that is
// handed to the payment processor.  Non-slot bookings have no ledger rows,
// so this record is what a payment notification resolves to for them.
//
// Fields:
//  GroupCorrelationID – correlation token shared with the processor.
//  Mode               – booking mode chosen at checkout.
//  Amount             – total price charged.
//  ProcessorIntentID  – processor-side id of the payment intent.
//  LastPaymentID      – payment id of the notification that settled it.
//  NotifiedAt         – when the enrollment event reached the broker.
type Checkout struct {
    ID                 uint64          `json:"id"`
    GroupCorrelationID string          `json:"group_correlation_id"`
    Mode               BookingMode     `json:"mode"`
    Title              string          `json:"title"`
    Amount             decimal.Decimal `json:"amount"`
    Currency           string          `json:"currency"`
    StudentName        string          `json:"student_name"`
    StudentEmail       string          `json:"student_email"`
    IntakeForm         json.RawMessage `json:"intake_form,omitempty"`
    ProcessorIntentID  *string         `json:"processor_intent_id,omitempty"`
    CheckoutURL        *string         `json:"checkout_url,omitempty"`
    Status             CheckoutStatus  `json:"status"`
    LastPaymentID      *string         `json:"last_payment_id,omitempty"`
    PaidAt             *time.Time      `json:"paid_at,omitempty"`
    NotifiedAt         *time.Time      `json:"notified_at,omitempty"`
    CreatedAt          time.Time       `json:"created_at"`
    UpdatedAt          time.Time       `json:"updated_at"`
}
