package payment

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/lingua-enrollment/internal/model"
)

// Notification is a decoded webhook body.  It is one of PaymentEvent,
// MidtransNotification or Unrecognized; callers switch on the concrete type.
type Notification interface {
	Provider() string
}

// PaymentEvent is the lightweight "something happened to payment X"
// shape: {type, action, data: {id}, status?, metadata?}.  Status and
// Metadata are often missing and must then be fetched with GetPayment.
type PaymentEvent struct {
	Type      string
	Action    string
	PaymentID string
	RawStatus string    // empty when the event carried no status
	Metadata  *Metadata // nil when the event carried no usable metadata
}

// Provider implements Notification.
func (PaymentEvent) Provider() string { return "generic" }

// IsPayment reports whether the event concerns a payment resource.
func (e PaymentEvent) IsPayment() bool {
	t := strings.ToLower(e.Type)
	return t == "payment" || strings.HasPrefix(t, "payment.")
}

// MidtransNotification is the HTTP notification Midtrans posts for every
// transaction status change.  The order id is the correlation id.
type MidtransNotification struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
	SignatureKey      string
	Metadata          *Metadata
}

// Provider implements Notification.
func (MidtransNotification) Provider() string { return "midtrans" }

// Status maps the Midtrans status pair onto Status.
func (n MidtransNotification) Status() (Status, error) {
	return MapMidtransStatus(n.TransactionStatus, n.FraudStatus)
}

// VerifySignature checks signature_key against the server key.
func (n MidtransNotification) VerifySignature(serverKey string) bool {
	if n.SignatureKey == "" {
		return false
	}
	return constantTimeEqual(n.SignatureKey, MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey))
}

// Unrecognized is any body neither known shape matched.
type Unrecognized struct {
	Reason string
}

// Provider implements Notification.
func (Unrecognized) Provider() string { return "unknown" }

// wireNotification is the union of the fields of every known shape.  Ids
// arrive as strings or numbers depending on the sender.
type wireNotification struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	Action   string          `json:"action"`
	ID       json.RawMessage `json:"id"`
	Status   string          `json:"status"`
	Metadata json.RawMessage `json:"metadata"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`

	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	CustomField1      string `json:"custom_field1"`
	CustomField2      string `json:"custom_field2"`
	CustomField3      string `json:"custom_field3"`
}

// ParseNotification decodes a webhook call.  The query string is consulted
// for the type and payment id when the body lacks them, since some
// processors only send those as parameters.  It never fails: anything it
// cannot place becomes Unrecognized.
func ParseNotification(body []byte, query url.Values) Notification {
	var w wireNotification
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &w); err != nil && len(query) == 0 {
			return Unrecognized{Reason: "body is not a JSON object"}
		}
	}

	if w.OrderID != "" && w.TransactionStatus != "" {
		return MidtransNotification{
			OrderID:           w.OrderID,
			TransactionID:     w.TransactionID,
			TransactionStatus: w.TransactionStatus,
			FraudStatus:       w.FraudStatus,
			StatusCode:        w.StatusCode,
			GrossAmount:       w.GrossAmount,
			SignatureKey:      w.SignatureKey,
			Metadata:          metadataFromCustomFields(w.CustomField1, w.CustomField2, w.CustomField3),
		}
	}

	ev := PaymentEvent{
		Type:      firstNonEmpty(w.Type, w.Topic, query.Get("type"), query.Get("topic")),
		Action:    w.Action,
		PaymentID: firstNonEmpty(rawID(w.Data.ID), rawID(w.ID), query.Get("data.id"), query.Get("id")),
		RawStatus: strings.TrimSpace(w.Status),
		Metadata:  parseMetadata(w.Metadata),
	}
	if ev.Type == "" && ev.PaymentID == "" {
		return Unrecognized{Reason: "no event type or payment id"}
	}
	return ev
}

// parseMetadata accepts snake_case or camelCase keys and reservation ids
// given as a JSON array of numbers or strings, or as a comma separated
// string.
func parseMetadata(raw json.RawMessage) *Metadata {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	md := Metadata{
		GroupCorrelationID: firstNonEmpty(rawID(m["group_correlation_id"]), rawID(m["groupCorrelationId"]), rawID(m["correlation_id"])),
	}
	for _, k := range []string{"reservation_ids", "reservationIds"} {
		if ids := rawIDList(m[k]); len(ids) > 0 {
			md.ReservationIDs = ids
			break
		}
	}
	for _, k := range []string{"mode", "modality", "booking_mode"} {
		if mode, err := model.ParseBookingMode(rawID(m[k])); err == nil {
			md.Mode = mode
			break
		}
	}
	if md.Empty() && md.Mode == "" {
		return nil
	}
	return &md
}

// rawID renders a JSON string or number as a string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawIDList(raw json.RawMessage) []uint64 {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		var ids []uint64
		for _, it := range items {
			if id, err := strconv.ParseUint(rawID(it), 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return SplitIDs(rawID(raw))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
