package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/monitoring"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// DefaultHoldDuration is how long a pending hold blocks its slot.
const DefaultHoldDuration = 10 * time.Minute

// MaxSlotsPerHold caps how many slots one checkout may claim.
const MaxSlotsPerHold = 20

var validate = validator.New()

// HoldRequest asks for a provisional claim on one or more slots.
type HoldRequest struct {
	SlotIDs      []uint64
	StudentName  string
	StudentEmail string
	IntakeForm   json.RawMessage
}

// HoldResult is a successful claim.  All reservations share the correlation id.
type HoldResult struct {
	GroupCorrelationID string    `json:"group_correlation_id"`
	ReservationIDs     []uint64  `json:"reservation_ids"`
	HoldExpiresAt      time.Time `json:"hold_expires_at"`
}

// HoldService creates time-boxed pending reservations.  It is the only
// writer of student holds and the place where the one-blocking-row-per-slot
// rule is established.
type HoldService struct {
	ledger repository.Ledger
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// HoldOption configures a HoldService.
type HoldOption func(*HoldService)

// WithHoldTTL overrides DefaultHoldDuration.
func WithHoldTTL(d time.Duration) HoldOption {
	return func(s *HoldService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithHoldClock replaces time.Now.
func WithHoldClock(now func() time.Time) HoldOption {
	return func(s *HoldService) { s.now = now }
}

// WithCorrelationIDs replaces the uuid generator.
func WithCorrelationIDs(gen func() string) HoldOption {
	return func(s *HoldService) { s.newID = gen }
}

// NewHoldService builds a HoldService on ledger.
func NewHoldService(ledger repository.Ledger, opts ...HoldOption) *HoldService {
	if ledger == nil {
		panic("nil ledger")
	}
	s := &HoldService{
		ledger: ledger,
		ttl:    DefaultHoldDuration,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL reports the configured hold duration.
func (s *HoldService) TTL() time.Duration { return s.ttl }

// CreateHold claims every requested slot or none of them.  Inside one
// transaction it locks the timeslot rows, rejects the whole group if any
// slot has a blocking reservation, and otherwise inserts one pending row
// per slot.  It never retries; on ErrSlotUnavailable the caller restarts.
func (s *HoldService) CreateHold(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	slotIDs, form, err := req.normalise()
	if err != nil {
		monitoring.ObserveHold("invalid", 0)
		return nil, err
	}

	groupID := s.newID()
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	started := time.Now()

	var ids []uint64
	err = s.ledger.WithTx(ctx, func(tx repository.LedgerTx) error {
		ids = ids[:0]
		found, err := tx.LockSlots(ctx, slotIDs)
		if err != nil {
			return storageErr("lock slots", err)
		}
		if missing := missingIDs(slotIDs, found); len(missing) > 0 {
			return invalid("slot_ids", "unknown slot ids %v", missing)
		}
		blocking, err := tx.BlockingSlots(ctx, slotIDs, now)
		if err != nil {
			return storageErr("read blocking reservations", err)
		}
		if len(blocking) > 0 {
			return &SlotUnavailableError{SlotIDs: blocking}
		}
		for _, slotID := range slotIDs {
			g := groupID
			exp := expires
			r := &model.Reservation{
				TimeslotID:         slotID,
				StudentName:        req.StudentName,
				StudentEmail:       req.StudentEmail,
				State:              model.StatePending,
				HoldExpiresAt:      &exp,
				GroupCorrelationID: &g,
				IntakeForm:         form,
			}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return storageErr("insert reservation", err)
			}
			ids = append(ids, r.ID)
		}
		return nil
	})
	took := time.Since(started)
	switch {
	case err == nil:
		monitoring.ObserveHold("held", took)
	case errors.Is(err, ErrSlotUnavailable):
		monitoring.ObserveHold("unavailable", took)
		return nil, err
	case errors.Is(err, ErrValidation):
		monitoring.ObserveHold("invalid", took)
		return nil, err
	default:
		monitoring.ObserveHold("error", took)
		if !errors.Is(err, ErrStorage) {
			err = storageErr("hold transaction", err)
		}
		return nil, err
	}

	log.Printf("hold: group=%s slots=%v reservations=%v expires=%s", groupID, slotIDs, ids, expires.Format(time.RFC3339))
	return &HoldResult{GroupCorrelationID: groupID, ReservationIDs: ids, HoldExpiresAt: expires}, nil
}

// normalise validates the request and returns the de-duplicated slot ids
// and the intake form (nil when absent).
func (r HoldRequest) normalise() ([]uint64, json.RawMessage, error) {
	slotIDs := dedupeIDs(r.SlotIDs)
	if len(slotIDs) == 0 {
		return nil, nil, invalid("slot_ids", "at least one slot is required")
	}
	if len(slotIDs) > MaxSlotsPerHold {
		return nil, nil, invalid("slot_ids", "at most %d slots per hold", MaxSlotsPerHold)
	}
	if err := validateStudent(r.StudentName, r.StudentEmail); err != nil {
		return nil, nil, err
	}
	form, err := normaliseForm(r.IntakeForm)
	if err != nil {
		return nil, nil, err
	}
	return slotIDs, form, nil
}

func validateStudent(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("student_name", "is required")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return invalid("student_email", "must be a valid email address")
	}
	return nil
}

// normaliseForm keeps the intake form opaque but insists it is JSON.
func normaliseForm(form json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(form)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, invalid("intake_form", "must be valid JSON")
	}
	return append(json.RawMessage(nil), trimmed...), nil
}

func dedupeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(want, have []uint64) []uint64 {
	got := make(map[uint64]bool, len(have))
	for _, id := range have {
		got[id] = true
	}
	var missing []uint64
	for _, id := range want {
		if !got[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
