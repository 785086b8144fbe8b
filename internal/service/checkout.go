package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/monitoring"
	"github.com/iliyamo/lingua-enrollment/internal/payment"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// CheckoutRequest is what the student submits to start paying.
type CheckoutRequest struct {
	Mode         string
	SlotIDs      []uint64
	StudentName  string
	StudentEmail string
	IntakeForm   json.RawMessage
	Title        string
	Price        decimal.Decimal
	Currency     string // empty means the configured currency
}

// chargeCurrency is the only currency the processor settles in.  Its
// amounts carry no minor unit.
const chargeCurrency = "IDR"

// CheckoutResult tells the client where to pay.
type CheckoutResult struct {
	CheckoutURL        string            `json:"checkout_url"`
	GroupCorrelationID string            `json:"group_correlation_id"`
	ReservationIDs     []uint64          `json:"reservation_ids"`
	Mode               model.BookingMode `json:"mode"`
}

// CheckoutSettings are the processor-facing defaults of a CheckoutService.
type CheckoutSettings struct {
	Currency   string
	ReturnURLs payment.ReturnURLs
}

// CheckoutService opens a payment for a booking.  Slot-backed bookings
// are held first; the processor is only called once the hold committed,
// and never from inside a transaction.
type CheckoutService struct {
	holds     *HoldService
	ledger    repository.Ledger
	checkouts CheckoutStore
	processor payment.Processor
	settings  CheckoutSettings
	newID     func() string
	now       func() time.Time
}

// NewCheckoutService wires a CheckoutService.
func NewCheckoutService(holds *HoldService, ledger repository.Ledger, checkouts CheckoutStore, processor payment.Processor, settings CheckoutSettings) *CheckoutService {
	if settings.Currency == "" {
		settings.Currency = "IDR"
	}
	return &CheckoutService{
		holds:     holds,
		ledger:    ledger,
		checkouts: checkouts,
		processor: processor,
		settings:  settings,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

// ResolveMode picks the booking mode.  An empty mode means individual when
// slots were sent and group_class otherwise.
func ResolveMode(raw string, slotIDs []uint64) (model.BookingMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if len(slotIDs) > 0 {
			return model.ModeIndividual, nil
		}
		return model.ModeGroupClass, nil
	}
	mode, err := model.ParseBookingMode(strings.ToLower(raw))
	if err != nil {
		return "", invalid("mode", "must be one of individual, group_class, flat_fee")
	}
	if mode.SlotBacked() && len(slotIDs) == 0 {
		return "", invalid("slot_ids", "required for %s bookings", mode)
	}
	if !mode.SlotBacked() && len(slotIDs) > 0 {
		return "", invalid("slot_ids", "not allowed for %s bookings", mode)
	}
	return mode, nil
}

// Checkout holds slots if needed, records the attempt and creates the
// payment intent.  When the processor fails the fresh holds are released
// and ErrUpstreamProcessor is returned.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	mode, err := ResolveMode(req.Mode, req.SlotIDs)
	if err != nil {
		monitoring.ObserveCheckout("unknown", "invalid")
		return nil, err
	}
	currency, err := s.validate(req)
	if err != nil {
		monitoring.ObserveCheckout(string(mode), "invalid")
		return nil, err
	}
	form, _ := normaliseForm(req.IntakeForm)

	var (
		groupID string
		ids     []uint64
		expiry  time.Duration
	)
	if mode.SlotBacked() {
		hold, err := s.holds.CreateHold(ctx, HoldRequest{
			SlotIDs:      req.SlotIDs,
			StudentName:  req.StudentName,
			StudentEmail: req.StudentEmail,
			IntakeForm:   form,
		})
		if err != nil {
			result := "error"
			if errors.Is(err, ErrSlotUnavailable) {
				result = "unavailable"
			} else if errors.Is(err, ErrValidation) {
				result = "invalid"
			}
			monitoring.ObserveCheckout(string(mode), result)
			return nil, err
		}
		groupID, ids = hold.GroupCorrelationID, hold.ReservationIDs
		expiry = s.holds.TTL()
	} else {
		groupID = s.newID()
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle(mode, len(ids))
	}
	record := &model.Checkout{
		GroupCorrelationID: groupID,
		Mode:               mode,
		Title:              title,
		Amount:             req.Price,
		Currency:           currency,
		StudentName:        req.StudentName,
		StudentEmail:       req.StudentEmail,
		IntakeForm:         form,
		Status:             model.CheckoutOpen,
	}
	if err := s.checkouts.Create(ctx, record); err != nil {
		s.release(ctx, groupID, mode)
		monitoring.ObserveCheckout(string(mode), "error")
		return nil, storageErr("create checkout", err)
	}

	intent := payment.Intent{
		Items: []payment.Item{{
			ID:       groupID,
			Name:     title,
			Category: string(mode),
			Price:    record.Amount,
			Quantity: 1,
		}},
		Customer:   payment.Customer{Name: req.StudentName, Email: req.StudentEmail},
		Metadata:   payment.Metadata{GroupCorrelationID: groupID, ReservationIDs: ids, Mode: mode},
		ReturnURLs: s.settings.ReturnURLs,
		Currency:   currency,
		Expiry:     expiry,
	}
	created, err := s.processor.CreatePaymentIntent(ctx, intent)
	if err != nil {
		log.Printf("checkout: create payment intent group=%s: %v", groupID, err)
		s.release(ctx, groupID, mode)
		if ferr := s.checkouts.MarkFailed(ctx, groupID); ferr != nil {
			log.Printf("checkout: mark failed group=%s: %v", groupID, ferr)
		}
		monitoring.ObserveCheckout(string(mode), "upstream_error")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamProcessor, err)
	}
	if err := s.checkouts.AttachIntent(ctx, groupID, created.ID, created.CheckoutURL); err != nil {
		log.Printf("checkout: attach intent group=%s: %v", groupID, err)
	}

	monitoring.ObserveCheckout(string(mode), "created")
	log.Printf("checkout: group=%s mode=%s reservations=%v intent=%s", groupID, mode, ids, created.ID)
	if ids == nil {
		ids = []uint64{}
	}
	return &CheckoutResult{
		CheckoutURL:        created.CheckoutURL,
		GroupCorrelationID: groupID,
		ReservationIDs:     ids,
		Mode:               mode,
	}, nil
}

// validate checks the request before anything is held and returns the
// currency to charge.
func (s *CheckoutService) validate(req CheckoutRequest) (string, error) {
	if err := validateStudent(req.StudentName, req.StudentEmail); err != nil {
		return "", err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToUpper(s.settings.Currency)
	}
	if currency != chargeCurrency {
		return "", invalid("currency", "must be %s", chargeCurrency)
	}
	if req.Price.LessThan(decimal.NewFromInt(1)) {
		return "", invalid("price", "must be at least 1 %s", currency)
	}
	if !req.Price.Equal(req.Price.Truncate(0)) {
		return "", invalid("price", "%s amounts have no fractional part", currency)
	}
	if _, err := normaliseForm(req.IntakeForm); err != nil {
		return "", err
	}
	return currency, nil
}

// release cancels the still-pending holds of an abandoned checkout.
func (s *CheckoutService) release(ctx context.Context, groupID string, mode model.BookingMode) {
	if !mode.SlotBacked() {
		return
	}
	n, err := s.ledger.CancelGroupPending(ctx, groupID)
	if err != nil {
		log.Printf("checkout: release holds group=%s: %v", groupID, err)
		return
	}
	log.Printf("checkout: released %d holds group=%s", n, groupID)
}

func defaultTitle(mode model.BookingMode, slots int) string {
	switch mode {
	case model.ModeIndividual:
		if slots == 1 {
			return "Individual lesson"
		}
		return fmt.Sprintf("Individual lessons (%d weekly slots)", slots)
	case model.ModeGroupClass:
		return "Group class enrolment"
	default:
		return "Programme enrolment"
	}
}
