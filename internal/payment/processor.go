// Package payment talks to the external payment processor: creating
// payment intents at checkout, looking payments up by id, and decoding the
// asynchronous notifications the processor posts back.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/lingua-enrollment/internal/model"
)

// ErrUpstream wraps every failure reported by the processor.
var ErrUpstream = errors.New("payment processor error")

// ErrAmount reports an item price the processor cannot charge.  It is
// raised before any remote call.
var ErrAmount = errors.New("amount not chargeable")

// Status is the processor-neutral outcome of a payment.  Only
// StatusApproved is actionable; the others are waited out.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
)

// ParseStatus maps the status strings used by generic payment events.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "paid", "succeeded":
		return StatusApproved, nil
	case "pending", "in_process", "authorized", "in_mediation":
		return StatusPending, nil
	case "rejected", "failed", "failure":
		return StatusRejected, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "expired":
		return StatusExpired, nil
	case "refunded", "charged_back":
		return StatusRefunded, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// Metadata is the correlation data attached to a payment intent and
// echoed back by the processor.
type Metadata struct {
	GroupCorrelationID string
	ReservationIDs     []uint64
	Mode               model.BookingMode // empty when the processor did not echo it
}

// Empty reports whether nothing usable was echoed back.
func (m Metadata) Empty() bool {
	return m.GroupCorrelationID == "" && len(m.ReservationIDs) == 0
}

// Item is one line of a payment intent.
type Item struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int
}

// Customer identifies the payer.
type Customer struct {
	Name  string
	Email string
}

// ReturnURLs are where the processor sends the student after paying.
type ReturnURLs struct {
	Success string
	Failure string
	Pending string
}

// Intent is everything needed to open a hosted checkout.
type Intent struct {
	Items      []Item
	Customer   Customer
	Metadata   Metadata
	ReturnURLs ReturnURLs
	Currency   string
	Expiry     time.Duration
}

// Total sums price times quantity over all items.
func (in Intent) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range in.Items {
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(q))))
	}
	return total
}

// IntentResult is the processor's answer to CreatePaymentIntent.
type IntentResult struct {
	ID          string
	CheckoutURL string
}

// Details is a payment as reported by GetPayment.
type Details struct {
	ID       string
	Status   Status
	Metadata Metadata
	Amount   decimal.Decimal
	Currency string
}

// Processor is the external payment processor.  Both calls block on the
// network and must never run inside a ledger transaction.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, in Intent) (*IntentResult, error)
	GetPayment(ctx context.Context, paymentID string) (*Details, error)
}

// JoinIDs renders reservation ids as a comma separated list.
func JoinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}

// SplitIDs parses a comma separated id list, skipping blanks and junk.
func SplitIDs(s string) []uint64 {
	var ids []uint64
	for _, p := range strings.Split(s, ",") {
		if id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
