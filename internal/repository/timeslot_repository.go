package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/lingua-enrollment/internal/model"
)

// TimeslotRepo provides CRUD operations for timeslots and the aggregate
// read behind the public slot catalog.
type TimeslotRepo struct {
    db *sql.DB
}

// NewTimeslotRepo returns a new TimeslotRepo bound to the given database.
func NewTimeslotRepo(db *sql.DB) *TimeslotRepo { return &TimeslotRepo{db: db} }

// SlotRow is one catalog line: a timeslot, its teacher and the counts of
// rows that decide its display state.
type SlotRow struct {
    SlotID      uint64
    TeacherID   uint64
    TeacherName string
    Weekday     model.Weekday
    StartTime   string
    Occupancy   model.SlotOccupancy
}

// SlotFilter narrows ListWithOccupancy.  Zero values mean no filter.
type SlotFilter struct {
    TeacherID uint64
}

// Create inserts a timeslot.  It returns ErrNotFound for an unknown
// teacher and ErrConflict if the teacher already has a slot at that time.
func (r *TimeslotRepo) Create(ctx context.Context, teacherID uint64, day model.Weekday, clock string) (*model.Timeslot, error) {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO timeslots (teacher_id, weekday, start_time) VALUES (?, ?, ?)`,
        teacherID, uint8(day), clock+":00")
    if err != nil {
        return nil, translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// GetByID returns ErrNotFound when no timeslot has the given id.
func (r *TimeslotRepo) GetByID(ctx context.Context, id uint64) (*model.Timeslot, error) {
    var (
        s  model.Timeslot
        wd uint8
    )
    err := r.db.QueryRowContext(ctx,
        `SELECT id, teacher_id, weekday, TIME_FORMAT(start_time, '%H:%i'), created_at, updated_at FROM timeslots WHERE id = ?`, id,
    ).Scan(&s.ID, &s.TeacherID, &wd, &s.StartTime, &s.CreatedAt, &s.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    s.Weekday = model.Weekday(wd)
    return &s, nil
}

// ListWithOccupancy reads every timeslot together with the counts that
// decide its state at instant now.  It is a single committed read of the
// ledger; nothing is cached.
func (r *TimeslotRepo) ListWithOccupancy(ctx context.Context, now time.Time, f SlotFilter) ([]SlotRow, error) {
    q := `SELECT s.id, s.teacher_id, t.name, s.weekday, TIME_FORMAT(s.start_time, '%H:%i'),
            COALESCE(SUM(r.state = 'confirmed'), 0),
            COALESCE(SUM(r.state = 'blocked'), 0),
            COALESCE(SUM(r.state = 'pending' AND r.hold_expires_at > ?), 0)
        FROM timeslots s
        JOIN teachers t ON t.id = s.teacher_id
        LEFT JOIN reservations r ON r.timeslot_id = s.id AND r.state IN ('confirmed', 'blocked', 'pending')`
    args := []interface{}{now.UTC()}
    if f.TeacherID != 0 {
        q += ` WHERE s.teacher_id = ?`
        args = append(args, f.TeacherID)
    }
    q += ` GROUP BY s.id, s.teacher_id, t.name, s.weekday, s.start_time ORDER BY s.weekday, s.start_time, s.id`

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []SlotRow
    for rows.Next() {
        var (
            row SlotRow
            wd  uint8
        )
        if err := rows.Scan(&row.SlotID, &row.TeacherID, &row.TeacherName, &wd, &row.StartTime,
            &row.Occupancy.Confirmed, &row.Occupancy.Blocked, &row.Occupancy.LivePending); err != nil {
            return nil, err
        }
        row.Weekday = model.Weekday(wd)
        out = append(out, row)
    }
    return out, rows.Err()
}

// Delete physically removes a timeslot and, through the foreign key, its
// reservation history.  It refuses with ErrConflict while a confirmed
// reservation exists for the slot.
func (r *TimeslotRepo) Delete(ctx context.Context, id uint64) error {
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

    var locked uint64
    err = tx.QueryRowContext(ctx, `SELECT id FROM timeslots WHERE id = ? FOR UPDATE`, id).Scan(&locked)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if err != nil {
        return err
    }
    var confirmed int
    if err := tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM reservations WHERE timeslot_id = ? AND state = 'confirmed' FOR UPDATE`, id,
    ).Scan(&confirmed); err != nil {
        return err
    }
    if confirmed > 0 {
        return ErrConflict
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM timeslots WHERE id = ?`, id); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit: %w", err)
    }
    committed = true
    return nil
}
