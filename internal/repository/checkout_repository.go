package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/shopspring/decimal"

    "github.com/iliyamo/lingua-enrollment/internal/model"
)

// CheckoutRepo persists checkout attempts keyed by their correlation id.
type CheckoutRepo struct {
    db *sql.DB
}

// NewCheckoutRepo returns a new CheckoutRepo bound to the given database.
func NewCheckoutRepo(db *sql.DB) *CheckoutRepo { return &CheckoutRepo{db: db} }

// Create inserts an open checkout and fills in its id.
func (r *CheckoutRepo) Create(ctx context.Context, c *model.Checkout) error {
    var form interface{}
    if len(c.IntakeForm) > 0 {
        form = string(c.IntakeForm)
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO checkouts (group_correlation_id, mode, title, amount, currency, student_name, student_email, intake_form, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
        c.GroupCorrelationID, string(c.Mode), c.Title, c.Amount.StringFixed(2), c.Currency,
        c.StudentName, c.StudentEmail, form,
    )
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    c.ID = uint64(id)
    c.Status = model.CheckoutOpen
    return nil
}

// AttachIntent stores the processor's intent id and hosted checkout URL.
func (r *CheckoutRepo) AttachIntent(ctx context.Context, groupID, intentID, checkoutURL string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE checkouts SET processor_intent_id = ?, checkout_url = ? WHERE group_correlation_id = ?`,
        intentID, checkoutURL, groupID)
    return err
}

// MarkFailed flags an open checkout whose intent could not be created.
func (r *CheckoutRepo) MarkFailed(ctx context.Context, groupID string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE checkouts SET status = 'failed' WHERE group_correlation_id = ? AND status = 'open'`, groupID)
    return err
}

// MarkPaid records the settling payment.  It reports true only for the
// call that actually moved the checkout to paid, so callers can key
// one-off side effects on it.
func (r *CheckoutRepo) MarkPaid(ctx context.Context, groupID, paymentID string, at time.Time) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE checkouts SET status = 'paid', last_payment_id = ?, paid_at = ? WHERE group_correlation_id = ? AND status <> 'paid'`,
        paymentID, at.UTC(), groupID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// MarkNotified stamps a paid checkout whose enrollment event was published.
func (r *CheckoutRepo) MarkNotified(ctx context.Context, groupID string, at time.Time) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE checkouts SET notified_at = ? WHERE group_correlation_id = ? AND notified_at IS NULL`,
        at.UTC(), groupID)
    return err
}

// UnnotifiedPaid returns paid non-slot checkouts whose enrollment event
// never reached the broker, paid before the given instant, oldest first.
// Slot-backed checkouts are announced through their reservations.
func (r *CheckoutRepo) UnnotifiedPaid(ctx context.Context, paidBefore time.Time, limit int) ([]model.Checkout, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+checkoutColumns+` FROM checkouts
        WHERE status = 'paid' AND notified_at IS NULL AND mode <> 'individual' AND paid_at < ?
        ORDER BY id LIMIT ?`,
        paidBefore.UTC(), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Checkout
    for rows.Next() {
        c, err := scanCheckout(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *c)
    }
    return out, rows.Err()
}

const checkoutColumns = `id, group_correlation_id, mode, title, amount, currency, student_name, student_email, intake_form,
            processor_intent_id, checkout_url, status, last_payment_id, paid_at, notified_at, created_at, updated_at`

// GetByGroup returns ErrNotFound when no checkout carries the id.
func (r *CheckoutRepo) GetByGroup(ctx context.Context, groupID string) (*model.Checkout, error) {
    row := r.db.QueryRowContext(ctx,
        `SELECT `+checkoutColumns+` FROM checkouts WHERE group_correlation_id = ?`, groupID)
    c, err := scanCheckout(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return c, err
}

func scanCheckout(row interface{ Scan(dest ...interface{}) error }) (*model.Checkout, error) {
    var (
        c                        model.Checkout
        mode, status, amount     string
        form                     []byte
        intent, url, lastPayment sql.NullString
        paidAt, notifiedAt       sql.NullTime
    )
    err := row.Scan(&c.ID, &c.GroupCorrelationID, &mode, &c.Title, &amount, &c.Currency, &c.StudentName, &c.StudentEmail, &form,
        &intent, &url, &status, &lastPayment, &paidAt, &notifiedAt, &c.CreatedAt, &c.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if c.Mode, err = model.ParseBookingMode(mode); err != nil {
        return nil, err
    }
    if c.Amount, err = decimal.NewFromString(amount); err != nil {
        return nil, err
    }
    c.Status = model.CheckoutStatus(status)
    if len(form) > 0 {
        c.IntakeForm = append([]byte(nil), form...)
    }
    if intent.Valid {
        c.ProcessorIntentID = &intent.String
    }
    if url.Valid {
        c.CheckoutURL = &url.String
    }
    if lastPayment.Valid {
        c.LastPaymentID = &lastPayment.String
    }
    c.PaidAt = utcPtr(paidAt)
    c.NotifiedAt = utcPtr(notifiedAt)
    return &c, nil
}
