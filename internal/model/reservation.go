package model

import (
    "encoding/json"
    "fmt"
    "time"
)

// ReservationState is the lifecycle state of one ledger row.
type ReservationState string

const (
    StatePending   ReservationState = "pending"
    StateConfirmed ReservationState = "confirmed"
    StateCancelled ReservationState = "cancelled"
    StateBlocked   ReservationState = "blocked"
)

// ParseReservationState rejects anything outside the four known states.
func ParseReservationState(s string) (ReservationState, error) {
    switch st := ReservationState(s); st {
    case StatePending, StateConfirmed, StateCancelled, StateBlocked:
        return st, nil
    }
    return "", fmt.Errorf("unknown reservation state %q", s)
}

// CanTransition reports whether the ledger allows moving a row from s to
// next.  Cancelled rows are terminal; a new attempt inserts a new row.
// Leaving confirmed or blocked is only reachable through an admin release.
func (s ReservationState) CanTransition(next ReservationState) bool {
    switch s {
    case StatePending:
        return next == StateConfirmed || next == StateCancelled
    case StateConfirmed, StateBlocked:
        return next == StateCancelled
    case StateCancelled:
        return false
    }
    return false
}

// Reservation is a ledger row: one attempt to claim one timeslot for one
// prospective student.
//
// Fields:
//  ID                 – primary key identifier.
//  TimeslotID         – slot being claimed.
//  StudentName        – prospective student's name.
//  StudentEmail       – prospective student's email.
//  State              – lifecycle state.
//  HoldExpiresAt      – hold deadline, nil once confirmed or for blocked rows.
//  GroupCorrelationID – shared by every row created by one checkout attempt.
//  IntakeForm         – opaque JSON captured at hold time.
//  PaymentID          – payment that confirmed the row.
//  ConfirmedAt        – when the row moved to confirmed.
//  AnnouncedAt        – when the confirmation event reached the broker.
type Reservation struct {
    ID                 uint64           `json:"id"`                             // reservations.id
    TimeslotID         uint64           `json:"timeslot_id"`                    // reservations.timeslot_id
    StudentName        string           `json:"student_name"`                   // reservations.student_name
    StudentEmail       string           `json:"student_email"`                  // reservations.student_email
    State              ReservationState `json:"state"`                          // reservations.state
    HoldExpiresAt      *time.Time       `json:"hold_expires_at,omitempty"`      // reservations.hold_expires_at (nullable)
    GroupCorrelationID *string          `json:"group_correlation_id,omitempty"` // reservations.group_correlation_id (nullable)
    IntakeForm         json.RawMessage  `json:"intake_form,omitempty"`          // reservations.intake_form (nullable)
    PaymentID          *string          `json:"payment_id,omitempty"`           // reservations.payment_id (nullable)
    ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty"`         // reservations.confirmed_at (nullable)
    AnnouncedAt        *time.Time       `json:"announced_at,omitempty"`         // reservations.announced_at (nullable)
    CreatedAt          time.Time        `json:"created_at"`                     // reservations.created_at
    UpdatedAt          time.Time        `json:"updated_at"`                     // reservations.updated_at
}

// IsBlocking reports whether the row occupies its slot at instant now:
// confirmed, blocked, or pending with a hold that has not yet run out.
func (r Reservation) IsBlocking(now time.Time) bool {
    switch r.State {
    case StateConfirmed, StateBlocked:
        return true
    case StatePending:
        return r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
    }
    return false
}

// SlotState is the occupancy shown for a slot in the catalog.
type SlotState string

const (
    SlotAvailable SlotState = "available"
    SlotPending   SlotState = "pending"
    SlotBlocked   SlotState = "blocked"
    SlotOccupied  SlotState = "occupied"
)

// ParseSlotState rejects anything outside the four catalog states.
func ParseSlotState(s string) (SlotState, error) {
    switch st := SlotState(s); st {
    case SlotAvailable, SlotPending, SlotBlocked, SlotOccupied:
        return st, nil
    }
    return "", fmt.Errorf("unknown slot state %q", s)
}

// SlotOccupancy counts the rows of one slot that matter for display.
// LivePending only includes pending rows whose hold is still running.
type SlotOccupancy struct {
    Confirmed   int
    Blocked     int
    LivePending int
}

// State applies the fixed priority: a confirmed row wins over a blocked
// row, which wins over a live hold.
func (o SlotOccupancy) State() SlotState {
    switch {
    case o.Confirmed > 0:
        return SlotOccupied
    case o.Blocked > 0:
        return SlotBlocked
    case o.LivePending > 0:
        return SlotPending
    }
    return SlotAvailable
}

// DeriveSlotState computes the display state of a slot from its rows.
func DeriveSlotState(rows []Reservation, now time.Time) SlotState {
    var o SlotOccupancy
    for _, r := range rows {
        switch r.State {
        case StateConfirmed:
            o.Confirmed++
        case StateBlocked:
            o.Blocked++
        case StatePending:
            if r.IsBlocking(now) {
                o.LivePending++
            }
        }
    }
    return o.State()
}
