package repository

import (
    "context"
    "database/sql"
    "fmt"
    "sort"
    "time"

    "github.com/iliyamo/lingua-enrollment/internal/model"
)

// ReservationRepo is the MySQL reservation ledger.  Rows are never deleted
// here; every change is a state transition guarded by a precondition on
// the current state.  All timestamps are stored in UTC.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

var _ Ledger = (*ReservationRepo)(nil)

const reservationColumns = `id, timeslot_id, student_name, student_email, state, hold_expires_at, group_correlation_id, intake_form, payment_id, confirmed_at, announced_at, created_at, updated_at`

// blockingPredicate matches rows that occupy their slot.  It takes the
// current time as its single argument.
const blockingPredicate = `(state IN ('confirmed', 'blocked') OR (state = 'pending' AND hold_expires_at > ?))`

// WithTx begins a transaction, hands it to fn and commits when fn succeeds.
// Any error from fn, or a panic, rolls the transaction back.
func (r *ReservationRepo) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return fmt.Errorf("begin tx: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&reservationTx{tx: tx}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit: %w", err)
    }
    committed = true
    return nil
}

// CancelExpiredHolds cancels every pending row whose hold ran out before
// now.  Rows that were confirmed in the meantime no longer match the
// state precondition and are left alone.
func (r *ReservationRepo) CancelExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE reservations SET state = 'cancelled' WHERE state = 'pending' AND hold_expires_at IS NOT NULL AND hold_expires_at < ?`,
        now.UTC(),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// CancelGroupPending releases the still-pending rows of one checkout, used
// when the payment processor refused to create an intent for it.
func (r *ReservationRepo) CancelGroupPending(ctx context.Context, groupID string) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE reservations SET state = 'cancelled' WHERE group_correlation_id = ? AND state = 'pending'`,
        groupID,
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// IDsByGroup returns the ids of every row sharing a correlation id, in
// any state.
func (r *ReservationRepo) IDsByGroup(ctx context.Context, groupID string) ([]uint64, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id FROM reservations WHERE group_correlation_id = ? ORDER BY id`, groupID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanIDs(rows)
}

// ListByGroup returns full rows for a correlation id, oldest first.
func (r *ReservationRepo) ListByGroup(ctx context.Context, groupID string) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE group_correlation_id = ? ORDER BY id`, groupID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanReservations(rows)
}

// ListBySlot returns the whole history of one timeslot, oldest first.
func (r *ReservationRepo) ListBySlot(ctx context.Context, slotID uint64) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE timeslot_id = ? ORDER BY id`, slotID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanReservations(rows)
}

// Unannounced returns confirmed rows whose confirmation event never
// reached the broker, confirmed before the given instant, oldest first.
func (r *ReservationRepo) Unannounced(ctx context.Context, confirmedBefore time.Time, limit int) ([]model.Reservation, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations
        WHERE state = 'confirmed' AND announced_at IS NULL AND payment_id IS NOT NULL AND confirmed_at < ?
        ORDER BY id LIMIT ?`,
        confirmedBefore.UTC(), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanReservations(rows)
}

// MarkAnnounced stamps rows whose confirmation event was published.  Rows
// already stamped keep their first timestamp.
func (r *ReservationRepo) MarkAnnounced(ctx context.Context, ids []uint64, at time.Time) (int64, error) {
    ids = uniqueIDs(ids)
    if len(ids) == 0 {
        return 0, nil
    }
    res, err := r.db.ExecContext(ctx,
        `UPDATE reservations SET announced_at = ? WHERE id IN (`+placeholders(len(ids))+`) AND announced_at IS NULL`,
        idArgs(ids, at.UTC())...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// ConfirmationDetails joins reservations with their slot and teacher so a
// confirmation event can be built without further lookups.
func (r *ReservationRepo) ConfirmationDetails(ctx context.Context, ids []uint64) ([]ConfirmedReservation, error) {
    ids = uniqueIDs(ids)
    if len(ids) == 0 {
        return nil, nil
    }
    q := `SELECT r.id, r.timeslot_id, r.student_name, r.student_email, t.name, s.weekday, TIME_FORMAT(s.start_time, '%H:%i')
        FROM reservations r
        JOIN timeslots s ON s.id = r.timeslot_id
        JOIN teachers t ON t.id = s.teacher_id
        WHERE r.id IN (` + placeholders(len(ids)) + `)
        ORDER BY r.id`
    rows, err := r.db.QueryContext(ctx, q, idArgs(ids)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []ConfirmedReservation
    for rows.Next() {
        var c ConfirmedReservation
        var wd uint8
        if err := rows.Scan(&c.ID, &c.TimeslotID, &c.StudentName, &c.StudentEmail, &c.TeacherName, &wd, &c.StartTime); err != nil {
            return nil, err
        }
        c.Weekday = model.Weekday(wd)
        out = append(out, c)
    }
    return out, rows.Err()
}

// reservationTx implements LedgerTx on top of a *sql.Tx.
type reservationTx struct {
    tx *sql.Tx
}

func (t *reservationTx) LockSlots(ctx context.Context, slotIDs []uint64) ([]uint64, error) {
    ids := uniqueIDs(slotIDs)
    if len(ids) == 0 {
        return nil, nil
    }
    // A stable lock order keeps two multi-slot holds from deadlocking.
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    rows, err := t.tx.QueryContext(ctx,
        `SELECT id FROM timeslots WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id FOR UPDATE`,
        idArgs(ids)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanIDs(rows)
}

func (t *reservationTx) BlockingSlots(ctx context.Context, slotIDs []uint64, now time.Time) ([]uint64, error) {
    ids := uniqueIDs(slotIDs)
    if len(ids) == 0 {
        return nil, nil
    }
    rows, err := t.tx.QueryContext(ctx,
        `SELECT timeslot_id FROM reservations WHERE timeslot_id IN (`+placeholders(len(ids))+`) AND `+blockingPredicate+` FOR UPDATE`,
        append(idArgs(ids), now.UTC())...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    found, err := scanIDs(rows)
    if err != nil {
        return nil, err
    }
    return uniqueIDs(found), nil
}

func (t *reservationTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
    var form interface{}
    if len(r.IntakeForm) > 0 {
        form = string(r.IntakeForm)
    }
    var expires interface{}
    if r.HoldExpiresAt != nil {
        expires = r.HoldExpiresAt.UTC()
    }
    var group interface{}
    if r.GroupCorrelationID != nil {
        group = *r.GroupCorrelationID
    }
    res, err := t.tx.ExecContext(ctx,
        `INSERT INTO reservations (timeslot_id, student_name, student_email, state, hold_expires_at, group_correlation_id, intake_form) VALUES (?, ?, ?, ?, ?, ?, ?)`,
        r.TimeslotID, r.StudentName, r.StudentEmail, string(r.State), expires, group, form,
    )
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    r.ID = uint64(id)
    return nil
}

func (t *reservationTx) SlotIDsFor(ctx context.Context, reservationIDs []uint64) ([]uint64, error) {
    ids := uniqueIDs(reservationIDs)
    if len(ids) == 0 {
        return nil, nil
    }
    rows, err := t.tx.QueryContext(ctx,
        `SELECT DISTINCT timeslot_id FROM reservations WHERE id IN (`+placeholders(len(ids))+`)`,
        idArgs(ids)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanIDs(rows)
}

func (t *reservationTx) ReservationsForUpdate(ctx context.Context, reservationIDs []uint64) ([]model.Reservation, error) {
    ids := uniqueIDs(reservationIDs)
    if len(ids) == 0 {
        return nil, nil
    }
    rows, err := t.tx.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id FOR UPDATE`,
        idArgs(ids)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return scanReservations(rows)
}

func (t *reservationTx) SlotsBlockedByOthers(ctx context.Context, slotIDs, excludeIDs []uint64, now time.Time) ([]uint64, error) {
    slots := uniqueIDs(slotIDs)
    if len(slots) == 0 {
        return nil, nil
    }
    q := `SELECT timeslot_id FROM reservations WHERE timeslot_id IN (` + placeholders(len(slots)) + `)`
    args := idArgs(slots)
    if ex := uniqueIDs(excludeIDs); len(ex) > 0 {
        q += ` AND id NOT IN (` + placeholders(len(ex)) + `)`
        args = append(args, idArgs(ex)...)
    }
    q += ` AND ` + blockingPredicate + ` FOR UPDATE`
    args = append(args, now.UTC())
    rows, err := t.tx.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    found, err := scanIDs(rows)
    if err != nil {
        return nil, err
    }
    return uniqueIDs(found), nil
}

func (t *reservationTx) ConfirmPending(ctx context.Context, ids []uint64, paymentID string, at time.Time) (int64, error) {
    ids = uniqueIDs(ids)
    if len(ids) == 0 {
        return 0, nil
    }
    res, err := t.tx.ExecContext(ctx,
        `UPDATE reservations SET state = 'confirmed', hold_expires_at = NULL, payment_id = ?, confirmed_at = ? WHERE id IN (`+placeholders(len(ids))+`) AND state = 'pending'`,
        idArgs(ids, paymentID, at.UTC())...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (t *reservationTx) CancelOnSlot(ctx context.Context, slotID uint64, states ...model.ReservationState) (int64, error) {
    if len(states) == 0 {
        return 0, nil
    }
    args := []interface{}{slotID}
    for _, s := range states {
        args = append(args, string(s))
    }
    res, err := t.tx.ExecContext(ctx,
        `UPDATE reservations SET state = 'cancelled' WHERE timeslot_id = ? AND state IN (`+placeholders(len(states))+`)`,
        args...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (t *reservationTx) HasConfirmed(ctx context.Context, slotID uint64) (bool, error) {
    var n int
    err := t.tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM reservations WHERE timeslot_id = ? AND state = 'confirmed' FOR UPDATE`, slotID,
    ).Scan(&n)
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

type rowScanner interface {
    Next() bool
    Scan(dest ...interface{}) error
    Err() error
}

func scanIDs(rows rowScanner) ([]uint64, error) {
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

func scanReservations(rows rowScanner) ([]model.Reservation, error) {
    var out []model.Reservation
    for rows.Next() {
        var (
            r       model.Reservation
            state   string
            expires sql.NullTime
            group   sql.NullString
            form    []byte
            paid    sql.NullString
            conf    sql.NullTime
            ann     sql.NullTime
        )
        if err := rows.Scan(&r.ID, &r.TimeslotID, &r.StudentName, &r.StudentEmail, &state,
            &expires, &group, &form, &paid, &conf, &ann, &r.CreatedAt, &r.UpdatedAt); err != nil {
            return nil, err
        }
        st, err := model.ParseReservationState(state)
        if err != nil {
            return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
        }
        r.State = st
        if expires.Valid {
            t := expires.Time.UTC()
            r.HoldExpiresAt = &t
        }
        if group.Valid {
            g := group.String
            r.GroupCorrelationID = &g
        }
        if len(form) > 0 {
            r.IntakeForm = append([]byte(nil), form...)
        }
        if paid.Valid {
            p := paid.String
            r.PaymentID = &p
        }
        r.ConfirmedAt = utcPtr(conf)
        r.AnnouncedAt = utcPtr(ann)
        out = append(out, r)
    }
    return out, rows.Err()
}

func utcPtr(t sql.NullTime) *time.Time {
    if !t.Valid {
        return nil
    }
    u := t.Time.UTC()
    return &u
}
