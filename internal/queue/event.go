// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both are declared durable by publisher and consumer.
const (
    ReservationConfirmedQueue = "reservation.confirmed"
    EnrollmentConfirmedQueue  = "enrollment.confirmed"
)

// ReservationConfirmedEvent is published once per reconciliation that
// actually moved reservations to confirmed.  ReservationIDs lists exactly
// the rows transitioned by that call, so a redelivered webhook never
// produces a second event.
type ReservationConfirmedEvent struct {
    PaymentID          string   `json:"payment_id"`
    GroupCorrelationID string   `json:"group_correlation_id,omitempty"`
    ReservationIDs     []uint64 `json:"reservation_ids"`
    StudentName        string   `json:"student_name"`
    StudentEmail       string   `json:"student_email"`
    TeacherName        string   `json:"teacher_name"`
    SlotDescriptions   []string `json:"slot_descriptions"`
    ConfirmedAt        string   `json:"confirmed_at"`
}

// EnrollmentConfirmedEvent is published when a non-slot checkout (group
// class or flat-fee programme) is paid.  There are no ledger rows behind
// it; the checkout record is what moved to paid.
type EnrollmentConfirmedEvent struct {
    PaymentID          string `json:"payment_id"`
    GroupCorrelationID string `json:"group_correlation_id"`
    Mode               string `json:"mode"`
    Title              string `json:"title"`
    StudentName        string `json:"student_name"`
    StudentEmail       string `json:"student_email"`
    ConfirmedAt        string `json:"confirmed_at"`
}
