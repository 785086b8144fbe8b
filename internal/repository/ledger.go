package repository

import (
    "context"
    "time"

    "github.com/iliyamo/lingua-enrollment/internal/model"
)

// Ledger is the reservation ledger used by the hold manager, the sweeper
// and the reconciliation engine.  ReservationRepo is the MySQL
// implementation; tests substitute an in-memory one.
type Ledger interface {
    // WithTx runs fn inside one transaction.  The transaction commits when
    // fn returns nil and rolls back otherwise.
    WithTx(ctx context.Context, fn func(tx LedgerTx) error) error

    CancelExpiredHolds(ctx context.Context, now time.Time) (int64, error)
    CancelGroupPending(ctx context.Context, groupID string) (int64, error)
    IDsByGroup(ctx context.Context, groupID string) ([]uint64, error)
    ListByGroup(ctx context.Context, groupID string) ([]model.Reservation, error)
    ListBySlot(ctx context.Context, slotID uint64) ([]model.Reservation, error)
    ConfirmationDetails(ctx context.Context, ids []uint64) ([]ConfirmedReservation, error)

    // Unannounced and MarkAnnounced form the confirmation outbox: a row
    // confirmed by a payment stays unannounced until its event is
    // published, and the relay retries whatever is left.
    Unannounced(ctx context.Context, confirmedBefore time.Time, limit int) ([]model.Reservation, error)
    MarkAnnounced(ctx context.Context, ids []uint64, at time.Time) (int64, error)
}

// LedgerTx holds the operations that must run under the timeslot row locks.
// Every reader here is a locking read so that it sees rows committed after
// the transaction started.  Callers always lock timeslots before touching
// reservation rows.
type LedgerTx interface {
    // LockSlots locks the given timeslot rows in ascending id order and
    // returns the ids that exist.
    LockSlots(ctx context.Context, slotIDs []uint64) ([]uint64, error)
    // BlockingSlots returns the subset of slotIDs that currently have a
    // confirmed, blocked or unexpired pending row.
    BlockingSlots(ctx context.Context, slotIDs []uint64, now time.Time) ([]uint64, error)
    InsertReservation(ctx context.Context, r *model.Reservation) error

    // SlotIDsFor returns the timeslots referenced by the given reservations.
    SlotIDsFor(ctx context.Context, reservationIDs []uint64) ([]uint64, error)
    // ReservationsForUpdate locks and returns the given rows in any state.
    ReservationsForUpdate(ctx context.Context, reservationIDs []uint64) ([]model.Reservation, error)
    // SlotsBlockedByOthers returns the slots among slotIDs that have a
    // blocking row whose id is not in excludeIDs.
    SlotsBlockedByOthers(ctx context.Context, slotIDs, excludeIDs []uint64, now time.Time) ([]uint64, error)
    // ConfirmPending moves still-pending rows to confirmed, clears their
    // hold deadline and records the settling payment.  It returns the
    // number of rows transitioned.
    ConfirmPending(ctx context.Context, ids []uint64, paymentID string, at time.Time) (int64, error)

    CancelOnSlot(ctx context.Context, slotID uint64, states ...model.ReservationState) (int64, error)
    HasConfirmed(ctx context.Context, slotID uint64) (bool, error)
}

// ConfirmedReservation carries what the welcome notification needs about
// one confirmed row.
type ConfirmedReservation struct {
    ID           uint64
    TimeslotID   uint64
    StudentName  string
    StudentEmail string
    TeacherName  string
    Weekday      model.Weekday
    StartTime    string
}

// Description renders the slot of a confirmed reservation for humans.
func (c ConfirmedReservation) Description() string {
    return model.Describe(c.TeacherName, c.Weekday, c.StartTime)
}
