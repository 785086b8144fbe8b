package repository

import (
    "bytes"
    "context"
    "database/sql"
    "encoding/json"
    "time"
)

// PaymentEvent is one received webhook call as stored in the audit log.
type PaymentEvent struct {
    Provider   string
    PaymentID  string
    EventType  string
    Status     string
    Payload    []byte
    ReceivedAt time.Time
}

// PaymentEventRepo appends webhook calls to payment_events and records how
// each one was handled.  Operators use it to reconcile payments by hand.
type PaymentEventRepo struct {
    db *sql.DB
}

// NewPaymentEventRepo returns a new PaymentEventRepo bound to the given database.
func NewPaymentEventRepo(db *sql.DB) *PaymentEventRepo { return &PaymentEventRepo{db: db} }

// Record stores a received event and returns its id.  Payloads that are
// not valid JSON are kept as a JSON string.
func (r *PaymentEventRepo) Record(ctx context.Context, ev PaymentEvent) (uint64, error) {
    payload := ev.Payload
    if len(payload) == 0 {
        payload = []byte("null")
    } else if !json.Valid(payload) {
        quoted, err := quoteJSON(string(payload))
        if err != nil {
            return 0, err
        }
        payload = quoted
    }
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO payment_events (provider, payment_id, event_type, status, payload, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
        ev.Provider, ev.PaymentID, ev.EventType, ev.Status, string(payload), ev.ReceivedAt.UTC())
    if err != nil {
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// Finish stamps the outcome of processing an event.  errText may be empty.
func (r *PaymentEventRepo) Finish(ctx context.Context, id uint64, outcome, errText string, at time.Time) error {
    var e interface{}
    if errText != "" {
        e = errText
    }
    _, err := r.db.ExecContext(ctx,
        `UPDATE payment_events SET outcome = ?, error_text = ?, processed_at = ? WHERE id = ?`,
        outcome, e, at.UTC(), id)
    return err
}

// quoteJSON encodes s as a JSON string, leaving &, < and > readable so the
// stored form payload matches what the processor sent.
func quoteJSON(s string) ([]byte, error) {
    var buf bytes.Buffer
    enc := json.NewEncoder(&buf)
    enc.SetEscapeHTML(false)
    if err := enc.Encode(s); err != nil {
        return nil, err
    }
    return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
