package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/lingua-enrollment/internal/model"
)

// MidtransProcessor implements Processor with Midtrans Snap for hosted
// checkouts and the Core API for status lookups.  The correlation id is
// used as the Midtrans order id, and the remaining metadata travels in
// the custom fields, which Midtrans echoes in its notifications.
type MidtransProcessor struct {
	snap snap.Client
	core coreapi.Client
}

// NewMidtransProcessor configures both clients for sandbox or production.
func NewMidtransProcessor(serverKey string, production bool) *MidtransProcessor {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	p := &MidtransProcessor{}
	p.snap.New(serverKey, env)
	p.core.New(serverKey, env)
	return p
}

// CreatePaymentIntent opens a Snap transaction.  Amounts are sent in whole
// currency units because Midtrans only accepts integer IDR amounts.
func (p *MidtransProcessor) CreatePaymentIntent(ctx context.Context, in Intent) (*IntentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Metadata.GroupCorrelationID == "" {
		return nil, fmt.Errorf("%w: missing correlation id", ErrUpstream)
	}
	items := make([]midtrans.ItemDetails, 0, len(in.Items))
	var gross int64
	for _, it := range in.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		if !it.Price.Equal(it.Price.Truncate(0)) || it.Price.LessThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("%w: item %s price %s is not a whole amount of at least 1", ErrAmount, it.ID, it.Price)
		}
		price := it.Price.IntPart()
		items = append(items, midtrans.ItemDetails{
			ID:       truncate(it.ID, 50),
			Name:     truncate(it.Name, 50),
			Category: it.Category,
			Price:    price,
			Qty:      int32(qty),
		})
		gross += price * int64(qty)
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  in.Metadata.GroupCorrelationID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: in.Customer.Name,
			Email: in.Customer.Email,
		},
		CreditCard:   &snap.CreditCardDetails{Secure: true},
		Items:        &items,
		CustomField1: in.Metadata.GroupCorrelationID,
		CustomField2: JoinIDs(in.Metadata.ReservationIDs),
		CustomField3: string(in.Metadata.Mode),
	}
	if in.ReturnURLs.Success != "" {
		req.Callbacks = &snap.Callbacks{Finish: in.ReturnURLs.Success}
	}
	if mins := int64(in.Expiry / time.Minute); mins > 0 {
		req.Expiry = &snap.ExpiryDetails{Unit: "minute", Duration: mins}
	}

	resp, merr := p.snap.CreateTransaction(req)
	if merr != nil {
		return nil, fmt.Errorf("%w: snap create transaction: %v", ErrUpstream, merr)
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, fmt.Errorf("%w: snap returned no redirect url", ErrUpstream)
	}
	return &IntentResult{ID: resp.Token, CheckoutURL: resp.RedirectURL}, nil
}

// GetPayment looks a transaction up by order id or transaction id.
func (p *MidtransProcessor) GetPayment(ctx context.Context, paymentID string) (*Details, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, merr := p.core.CheckTransaction(paymentID)
	if merr != nil {
		return nil, fmt.Errorf("%w: check transaction %s: %v", ErrUpstream, paymentID, merr)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty status for %s", ErrUpstream, paymentID)
	}
	st, err := MapMidtransStatus(resp.TransactionStatus, resp.FraudStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		amount = decimal.Zero
	}
	return &Details{
		ID:       paymentID,
		Status:   st,
		Metadata: Metadata{GroupCorrelationID: resp.OrderID},
		Amount:   amount,
		Currency: resp.Currency,
	}, nil
}

// MapMidtransStatus folds a Midtrans transaction_status and fraud_status
// pair into a Status.  A capture only counts once fraud review accepted it.
func MapMidtransStatus(transactionStatus, fraudStatus string) (Status, error) {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return StatusApproved, nil
		case "challenge":
			return StatusPending, nil
		default:
			return StatusRejected, nil
		}
	case "settlement":
		return StatusApproved, nil
	case "pending", "authorize":
		return StatusPending, nil
	case "deny", "failure":
		return StatusRejected, nil
	case "cancel":
		return StatusCancelled, nil
	case "expire":
		return StatusExpired, nil
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return StatusRefunded, nil
	}
	return "", fmt.Errorf("unknown midtrans transaction status %q", transactionStatus)
}

// MidtransSignature computes the notification signature:
// SHA512(order_id + status_code + gross_amount + server_key), hex encoded.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func metadataFromCustomFields(f1, f2, f3 string) *Metadata {
	m := Metadata{GroupCorrelationID: strings.TrimSpace(f1), ReservationIDs: SplitIDs(f2)}
	if mode, err := model.ParseBookingMode(strings.TrimSpace(f3)); err == nil {
		m.Mode = mode
	}
	if m.Empty() {
		return nil
	}
	return &m
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
