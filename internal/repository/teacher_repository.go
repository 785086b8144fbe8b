package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/iliyamo/lingua-enrollment/internal/model"
)

// TeacherRepo provides CRUD operations for teachers.
type TeacherRepo struct {
    db *sql.DB
}

// NewTeacherRepo returns a new TeacherRepo bound to the given database.
func NewTeacherRepo(db *sql.DB) *TeacherRepo { return &TeacherRepo{db: db} }

// Create inserts a teacher and returns the stored row.
func (r *TeacherRepo) Create(ctx context.Context, name string) (*model.Teacher, error) {
    res, err := r.db.ExecContext(ctx, `INSERT INTO teachers (name) VALUES (?)`, name)
    if err != nil {
        return nil, translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, uint64(id))
}

// GetByID returns ErrNotFound when no teacher has the given id.
func (r *TeacherRepo) GetByID(ctx context.Context, id uint64) (*model.Teacher, error) {
    var t model.Teacher
    err := r.db.QueryRowContext(ctx,
        `SELECT id, name, created_at, updated_at FROM teachers WHERE id = ?`, id,
    ).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &t, nil
}

// List returns all teachers ordered by name.
func (r *TeacherRepo) List(ctx context.Context) ([]model.Teacher, error) {
    rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM teachers ORDER BY name, id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Teacher
    for rows.Next() {
        var t model.Teacher
        if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

// Delete removes a teacher together with their timeslots and the history
// of those slots.  It refuses with ErrConflict while any of the teacher's
// slots carries a confirmed reservation.
func (r *TeacherRepo) Delete(ctx context.Context, id uint64) error {
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

    var exists uint64
    err = tx.QueryRowContext(ctx, `SELECT id FROM teachers WHERE id = ? FOR UPDATE`, id).Scan(&exists)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if err != nil {
        return err
    }
    // Lock the slots first so no confirmation can land while we check.
    slots, err := tx.QueryContext(ctx, `SELECT id FROM timeslots WHERE teacher_id = ? ORDER BY id FOR UPDATE`, id)
    if err != nil {
        return err
    }
    if _, err := scanIDs(slots); err != nil {
        slots.Close()
        return err
    }
    slots.Close()
    var confirmed int
    err = tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM reservations r JOIN timeslots s ON s.id = r.timeslot_id WHERE s.teacher_id = ? AND r.state = 'confirmed'`, id,
    ).Scan(&confirmed)
    if err != nil {
        return err
    }
    if confirmed > 0 {
        return ErrConflict
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM timeslots WHERE teacher_id = ?`, id); err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM teachers WHERE id = ?`, id); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit: %w", err)
    }
    committed = true
    return nil
}
