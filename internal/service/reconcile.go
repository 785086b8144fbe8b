package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/monitoring"
	"github.com/iliyamo/lingua-enrollment/internal/payment"
	"github.com/iliyamo/lingua-enrollment/internal/queue"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// Outcome classifies how a payment notification was handled.  It is the
// label used in logs, metrics and the payment_events audit table.
type Outcome string

const (
	OutcomeIgnored        Outcome = "ignored"         // not about a payment
	OutcomeNotActionable  Outcome = "not_actionable"  // payment not approved
	OutcomeRejected       Outcome = "rejected"        // bad signature
	OutcomeDuplicate      Outcome = "duplicate"       // already processed
	OutcomeConfirmed      Outcome = "confirmed"       // rows moved to confirmed
	OutcomeAlreadyApplied Outcome = "already_applied" // nothing left to confirm
	OutcomeConflict       Outcome = "conflict"        // slots taken by someone else
	OutcomeNonSlot        Outcome = "non_slot"        // non-slot checkout paid
	OutcomeMiss           Outcome = "miss"            // nothing matched
	OutcomeFailed         Outcome = "failed"          // storage or processor error
)

// ReconcileResult reports what one notification did to the ledger.
type ReconcileResult struct {
	Outcome            Outcome  `json:"outcome"`
	Provider           string   `json:"provider,omitempty"`
	PaymentID          string   `json:"payment_id,omitempty"`
	GroupCorrelationID string   `json:"group_correlation_id,omitempty"`
	Confirmed          []uint64 `json:"confirmed,omitempty"` // rows transitioned by this call
	Conflicts          []uint64 `json:"conflicts,omitempty"` // pending rows left alone because their slot was taken
}

// CheckoutStore persists checkout attempts.  *repository.CheckoutRepo
// implements it.
type CheckoutStore interface {
	Create(ctx context.Context, c *model.Checkout) error
	AttachIntent(ctx context.Context, groupID, intentID, checkoutURL string) error
	MarkFailed(ctx context.Context, groupID string) error
	MarkPaid(ctx context.Context, groupID, paymentID string, at time.Time) (bool, error)
	GetByGroup(ctx context.Context, groupID string) (*model.Checkout, error)
	MarkNotified(ctx context.Context, groupID string, at time.Time) error
	UnnotifiedPaid(ctx context.Context, paidBefore time.Time, limit int) ([]model.Checkout, error)
}

// EventLog is the webhook audit trail.
type EventLog interface {
	Record(ctx context.Context, ev repository.PaymentEvent) (uint64, error)
	Finish(ctx context.Context, id uint64, outcome, errText string, at time.Time) error
}

// ProcessedStore remembers payment ids that were fully handled.  It only
// short-cuts redeliveries; losing it never changes the ledger outcome.
type ProcessedStore interface {
	Seen(ctx context.Context, paymentID string) (bool, error)
	Mark(ctx context.Context, paymentID string) error
}

// Notifier announces confirmations to downstream consumers.
type Notifier interface {
	PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
	PublishEnrollmentConfirmed(ctx context.Context, ev queue.EnrollmentConfirmedEvent) error
}

// Reconciler turns payment notifications into ledger confirmations.  A
// notification may arrive late, twice or out of order; confirming only
// rows that are still pending under the slot locks makes every delivery
// after the first a no-op.
type Reconciler struct {
	ledger    repository.Ledger
	processor payment.Processor
	checkouts CheckoutStore
	events    EventLog
	processed ProcessedStore
	notifier  Notifier
	serverKey string
	now       func() time.Time

	publishAttempts int
	publishBackoff  time.Duration
	relayGrace      time.Duration
}

const (
	defaultPublishAttempts = 3
	defaultPublishBackoff  = 200 * time.Millisecond
	// Confirmations younger than this may still be mid-publish.
	defaultRelayGrace = 2 * time.Minute
	relayBatch        = 100
)

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithCheckoutStore lets the engine settle non-slot checkouts.
func WithCheckoutStore(s CheckoutStore) ReconcilerOption {
	return func(r *Reconciler) { r.checkouts = s }
}

// WithEventLog records every webhook call.
func WithEventLog(l EventLog) ReconcilerOption {
	return func(r *Reconciler) { r.events = l }
}

// WithProcessedStore enables the duplicate-delivery fast path.
func WithProcessedStore(s ProcessedStore) ReconcilerOption {
	return func(r *Reconciler) { r.processed = s }
}

// WithNotifier sets where confirmation events are published.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithSignatureKey turns on Midtrans signature verification.
func WithSignatureKey(key string) ReconcilerOption {
	return func(r *Reconciler) { r.serverKey = key }
}

// WithPublishRetry sets how many times a confirmation event is offered to
// the broker before it is left to the relay, and the initial backoff
// between attempts.  The backoff doubles after each failure.
func WithPublishRetry(attempts int, backoff time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.publishAttempts = attempts
		}
		if backoff >= 0 {
			r.publishBackoff = backoff
		}
	}
}

// WithRelayGrace sets how old an unannounced confirmation must be before
// RedeliverAnnouncements picks it up.
func WithRelayGrace(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d >= 0 {
			r.relayGrace = d
		}
	}
}

// WithReconcileClock replaces time.Now.
func WithReconcileClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler builds a Reconciler.  Collaborators left unset are
// replaced by no-ops.
func NewReconciler(ledger repository.Ledger, processor payment.Processor, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		ledger:    ledger,
		processor: processor,
		checkouts: noCheckouts{},
		events:    noEventLog{},
		processed: noProcessed{},
		notifier:  noNotifier{},
		now:       time.Now,

		publishAttempts: defaultPublishAttempts,
		publishBackoff:  defaultPublishBackoff,
		relayGrace:      defaultRelayGrace,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// HandleWebhook decodes a raw webhook call, handles it, and records the
// outcome.  It never fails: the processor must always get an
// acknowledgement, and problems surface through logs, metrics and the
// audit table instead.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, query url.Values) ReconcileResult {
	n := payment.ParseNotification(body, query)
	received := r.now().UTC()

	auditID, aerr := r.events.Record(ctx, auditEntry(n, body, received))
	if aerr != nil {
		log.Printf("reconcile: audit record failed: %v", aerr)
	}

	res, err := r.HandleNotification(ctx, n)
	monitoring.ObserveReconciliation(res.Provider, string(res.Outcome))

	errText := ""
	switch {
	case err != nil:
		errText = err.Error()
		log.Printf("reconcile: provider=%s payment=%s group=%s outcome=%s err=%v",
			res.Provider, res.PaymentID, res.GroupCorrelationID, res.Outcome, err)
	case res.Outcome == OutcomeConfirmed || res.Outcome == OutcomeConflict:
		log.Printf("reconcile: provider=%s payment=%s group=%s outcome=%s confirmed=%v conflicts=%v",
			res.Provider, res.PaymentID, res.GroupCorrelationID, res.Outcome, res.Confirmed, res.Conflicts)
	default:
		log.Printf("reconcile: provider=%s payment=%s outcome=%s", res.Provider, res.PaymentID, res.Outcome)
	}

	if aerr == nil {
		if ferr := r.events.Finish(ctx, auditID, string(res.Outcome), errText, r.now().UTC()); ferr != nil {
			log.Printf("reconcile: audit finish failed id=%d: %v", auditID, ferr)
		}
	}
	return res
}

// HandleNotification applies one decoded notification.  The error is set
// for OutcomeFailed and OutcomeMiss and only ever informs logging.
func (r *Reconciler) HandleNotification(ctx context.Context, n payment.Notification) (ReconcileResult, error) {
	res := ReconcileResult{Provider: n.Provider()}

	switch v := n.(type) {
	case payment.PaymentEvent:
		res.PaymentID = v.PaymentID
		if !v.IsPayment() || v.PaymentID == "" {
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		status, known := eventStatus(v.RawStatus)
		if known && status != payment.StatusApproved {
			res.Outcome = OutcomeNotActionable
			return res, nil
		}
		if r.alreadyProcessed(ctx, v.PaymentID) {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
		// The body is unsigned, so the processor's own record decides the
		// status and, when it has one, the metadata.
		details, err := r.processor.GetPayment(ctx, v.PaymentID)
		if err != nil {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("%w: get payment %s: %w", ErrUpstreamProcessor, v.PaymentID, err)
		}
		if known && details.Status != status {
			log.Printf("reconcile: payment=%s notified as %s but processor reports %s", v.PaymentID, status, details.Status)
		}
		status = details.Status
		meta := details.Metadata
		if meta.Empty() && v.Metadata != nil {
			meta = *v.Metadata
		}
		if status != payment.StatusApproved {
			res.Outcome = OutcomeNotActionable
			return res, nil
		}
		return r.settle(ctx, res, meta)

	case payment.MidtransNotification:
		res.PaymentID = firstNonBlank(v.TransactionID, v.OrderID)
		if res.PaymentID == "" {
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		if r.serverKey != "" && !v.VerifySignature(r.serverKey) {
			res.Outcome = OutcomeRejected
			return res, errors.New("midtrans signature mismatch")
		}
		status, err := v.Status()
		if err != nil || r.serverKey == "" {
			// Unparseable or unverifiable: trust only the processor.
			details, lerr := r.processor.GetPayment(ctx, firstNonBlank(v.OrderID, v.TransactionID))
			if lerr != nil {
				res.Outcome = OutcomeFailed
				return res, fmt.Errorf("%w: check transaction %s: %w", ErrUpstreamProcessor, v.OrderID, lerr)
			}
			status = details.Status
		}
		if status != payment.StatusApproved {
			res.Outcome = OutcomeNotActionable
			return res, nil
		}
		if r.alreadyProcessed(ctx, res.PaymentID) {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
		meta := payment.Metadata{GroupCorrelationID: v.OrderID}
		if v.Metadata != nil && !v.Metadata.Empty() {
			meta = *v.Metadata
		}
		return r.settle(ctx, res, meta)
	}

	res.Outcome = OutcomeIgnored
	return res, nil
}

// ReconcilePayment looks a payment up at the processor and applies it as
// if its notification had arrived.  Operators use it to recover payments
// whose webhook was lost.
func (r *Reconciler) ReconcilePayment(ctx context.Context, paymentID string) (res ReconcileResult, err error) {
	res = ReconcileResult{Provider: "lookup", PaymentID: paymentID}
	defer func() { monitoring.ObserveReconciliation(res.Provider, string(res.Outcome)) }()
	details, err := r.processor.GetPayment(ctx, paymentID)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("%w: get payment %s: %w", ErrUpstreamProcessor, paymentID, err)
	}
	if details.ID != "" {
		res.PaymentID = details.ID
	}
	if details.Status != payment.StatusApproved {
		res.Outcome = OutcomeNotActionable
		return res, nil
	}
	return r.settle(ctx, res, details.Metadata)
}

// settle resolves an approved payment to ledger rows or a non-slot
// checkout and confirms it.
func (r *Reconciler) settle(ctx context.Context, res ReconcileResult, meta payment.Metadata) (ReconcileResult, error) {
	res.GroupCorrelationID = meta.GroupCorrelationID

	ids := meta.ReservationIDs
	if len(ids) == 0 && meta.GroupCorrelationID != "" {
		var err error
		if ids, err = r.ledger.IDsByGroup(ctx, meta.GroupCorrelationID); err != nil {
			res.Outcome = OutcomeFailed
			return res, storageErr("resolve group", err)
		}
	}
	if len(ids) == 0 {
		return r.settleNonSlot(ctx, res, meta)
	}

	c, err := r.confirm(ctx, ids, res.PaymentID)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	res.Confirmed = c.confirmed
	res.Conflicts = c.conflicts
	if len(c.conflicts) > 0 {
		monitoring.AddReconcileConflicts(len(c.conflicts))
		log.Printf("reconcile: CONFLICT payment=%s group=%s reservations=%v left pending, slot taken by another booking; needs manual recovery",
			res.PaymentID, res.GroupCorrelationID, c.conflicts)
	}

	switch {
	case len(c.confirmed) > 0:
		res.Outcome = OutcomeConfirmed
		monitoring.AddConfirmed(int64(len(c.confirmed)))
		r.markCheckoutPaid(ctx, res)
		if err := r.announceReservations(ctx, res.PaymentID, res.GroupCorrelationID, res.Confirmed); err != nil {
			log.Printf("reconcile: publish reservation confirmed group=%s left for relay: %v", res.GroupCorrelationID, err)
		}
	case len(c.conflicts) > 0:
		res.Outcome = OutcomeConflict
		return res, nil
	case c.alreadyConfirmed:
		res.Outcome = OutcomeAlreadyApplied
	default:
		res.Outcome = OutcomeMiss
		return res, fmt.Errorf("%w: reservations %v are no longer pending", ErrReconciliationMiss, ids)
	}
	r.markProcessed(ctx, res.PaymentID)
	return res, nil
}

type confirmation struct {
	confirmed        []uint64
	conflicts        []uint64
	alreadyConfirmed bool
}

// confirm moves the still-pending rows among ids to confirmed, skipping
// rows whose slot already has another blocking reservation.
func (r *Reconciler) confirm(ctx context.Context, ids []uint64, paymentID string) (confirmation, error) {
	var out confirmation
	now := r.now().UTC()
	err := r.ledger.WithTx(ctx, func(tx repository.LedgerTx) error {
		out = confirmation{}
		slots, err := tx.SlotIDsFor(ctx, ids)
		if err != nil {
			return storageErr("resolve slots", err)
		}
		if len(slots) == 0 {
			return nil
		}
		if _, err := tx.LockSlots(ctx, slots); err != nil {
			return storageErr("lock slots", err)
		}
		rows, err := tx.ReservationsForUpdate(ctx, ids)
		if err != nil {
			return storageErr("lock reservations", err)
		}

		var pending []model.Reservation
		for _, row := range rows {
			switch row.State {
			case model.StatePending:
				pending = append(pending, row)
			case model.StateConfirmed:
				out.alreadyConfirmed = true
			}
		}
		if len(pending) == 0 {
			return nil
		}

		pendingIDs := make([]uint64, len(pending))
		pendingSlots := make([]uint64, len(pending))
		for i, row := range pending {
			pendingIDs[i] = row.ID
			pendingSlots[i] = row.TimeslotID
		}
		taken, err := tx.SlotsBlockedByOthers(ctx, pendingSlots, pendingIDs, now)
		if err != nil {
			return storageErr("check competing reservations", err)
		}
		isTaken := make(map[uint64]bool, len(taken))
		for _, s := range taken {
			isTaken[s] = true
		}

		var confirmable []uint64
		for _, row := range pending {
			if isTaken[row.TimeslotID] {
				out.conflicts = append(out.conflicts, row.ID)
				continue
			}
			confirmable = append(confirmable, row.ID)
		}
		if len(confirmable) == 0 {
			return nil
		}
		n, err := tx.ConfirmPending(ctx, confirmable, paymentID, now)
		if err != nil {
			return storageErr("confirm reservations", err)
		}
		if n != int64(len(confirmable)) {
			return storageErr("confirm reservations", fmt.Errorf("confirmed %d of %d locked rows", n, len(confirmable)))
		}
		out.confirmed = confirmable
		return nil
	})
	if err != nil && !errors.Is(err, ErrStorage) {
		err = storageErr("confirm transaction", err)
	}
	return out, err
}

// settleNonSlot handles payments for checkouts that never held slots.
func (r *Reconciler) settleNonSlot(ctx context.Context, res ReconcileResult, meta payment.Metadata) (ReconcileResult, error) {
	if meta.GroupCorrelationID == "" {
		res.Outcome = OutcomeMiss
		return res, fmt.Errorf("%w: payment carries no correlation id", ErrReconciliationMiss)
	}
	co, err := r.checkouts.GetByGroup(ctx, meta.GroupCorrelationID)
	if errors.Is(err, repository.ErrNotFound) {
		if meta.Mode != "" && !meta.Mode.SlotBacked() {
			// Paid for a non-slot booking we have no record of; nothing to mark.
			res.Outcome = OutcomeNonSlot
			log.Printf("reconcile: non-slot payment=%s group=%s mode=%s has no checkout record", res.PaymentID, res.GroupCorrelationID, meta.Mode)
			r.markProcessed(ctx, res.PaymentID)
			return res, nil
		}
		res.Outcome = OutcomeMiss
		return res, fmt.Errorf("%w: group %s", ErrReconciliationMiss, meta.GroupCorrelationID)
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, storageErr("load checkout", err)
	}
	if co.Mode.SlotBacked() {
		res.Outcome = OutcomeMiss
		return res, fmt.Errorf("%w: checkout %s has no reservations", ErrReconciliationMiss, co.GroupCorrelationID)
	}

	now := r.now().UTC()
	moved, err := r.checkouts.MarkPaid(ctx, co.GroupCorrelationID, res.PaymentID, now)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, storageErr("mark checkout paid", err)
	}
	if !moved {
		res.Outcome = OutcomeAlreadyApplied
		r.markProcessed(ctx, res.PaymentID)
		return res, nil
	}

	res.Outcome = OutcomeNonSlot
	if err := r.announceEnrollment(ctx, co, res.PaymentID, now); err != nil {
		log.Printf("reconcile: publish enrollment confirmed group=%s left for relay: %v", co.GroupCorrelationID, err)
	}
	r.markProcessed(ctx, res.PaymentID)
	return res, nil
}

// announceEnrollment publishes the enrollment event of a paid non-slot
// checkout and stamps the checkout once the broker has it.
func (r *Reconciler) announceEnrollment(ctx context.Context, co *model.Checkout, paymentID string, paidAt time.Time) error {
	ev := queue.EnrollmentConfirmedEvent{
		PaymentID:          paymentID,
		GroupCorrelationID: co.GroupCorrelationID,
		Mode:               string(co.Mode),
		Title:              co.Title,
		StudentName:        co.StudentName,
		StudentEmail:       co.StudentEmail,
		ConfirmedAt:        paidAt.UTC().Format(time.RFC3339),
	}
	if err := r.publish(ctx, func(ctx context.Context) error {
		return r.notifier.PublishEnrollmentConfirmed(ctx, ev)
	}); err != nil {
		return err
	}
	if err := r.checkouts.MarkNotified(ctx, co.GroupCorrelationID, r.now().UTC()); err != nil {
		log.Printf("reconcile: stamp checkout notified group=%s: %v", co.GroupCorrelationID, err)
	}
	return nil
}

// announceReservations publishes one event for the given confirmed rows
// and stamps them once the broker has it.  Rows left unstamped are picked
// up again by RedeliverAnnouncements.
func (r *Reconciler) announceReservations(ctx context.Context, paymentID, groupID string, ids []uint64) error {
	ev := queue.ReservationConfirmedEvent{
		PaymentID:          paymentID,
		GroupCorrelationID: groupID,
		ReservationIDs:     ids,
		ConfirmedAt:        r.now().UTC().Format(time.RFC3339),
	}
	details, err := r.ledger.ConfirmationDetails(ctx, ids)
	if err != nil {
		log.Printf("reconcile: load confirmation details %v: %v", ids, err)
	}
	var teachers []string
	seen := map[string]bool{}
	for _, d := range details {
		if ev.StudentEmail == "" {
			ev.StudentName, ev.StudentEmail = d.StudentName, d.StudentEmail
		}
		if !seen[d.TeacherName] {
			seen[d.TeacherName] = true
			teachers = append(teachers, d.TeacherName)
		}
		ev.SlotDescriptions = append(ev.SlotDescriptions, d.Description())
	}
	sort.Strings(teachers)
	ev.TeacherName = strings.Join(teachers, ", ")
	if err := r.publish(ctx, func(ctx context.Context) error {
		return r.notifier.PublishReservationConfirmed(ctx, ev)
	}); err != nil {
		return err
	}
	if _, err := r.ledger.MarkAnnounced(ctx, ids, r.now().UTC()); err != nil {
		// The relay will publish these rows again; consumers see a duplicate.
		log.Printf("reconcile: stamp announced %v: %v", ids, err)
	}
	return nil
}

// publish offers one event to the broker up to publishAttempts times,
// doubling the pause between attempts.
func (r *Reconciler) publish(ctx context.Context, send func(ctx context.Context) error) error {
	wait := r.publishBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = send(ctx); err == nil {
			return nil
		}
		if attempt >= r.publishAttempts {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish abandoned after %d attempts: %w", attempt, err)
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// RedeliverAnnouncements republishes confirmation events that never
// reached the broker: confirmed reservations without an announcement
// stamp and paid non-slot checkouts without a notification stamp.  It
// returns how many events were published.  Rows confirmed within the
// relay grace period are skipped so an in-flight publish is not doubled.
func (r *Reconciler) RedeliverAnnouncements(ctx context.Context) (int, error) {
	before := r.now().UTC().Add(-r.relayGrace)
	rows, err := r.ledger.Unannounced(ctx, before, relayBatch)
	if err != nil {
		return 0, storageErr("list unannounced reservations", err)
	}

	type batch struct {
		paymentID, groupID string
		ids                []uint64
	}
	var (
		batches []*batch
		byKey   = map[string]*batch{}
	)
	for _, row := range rows {
		var pay, group string
		if row.PaymentID != nil {
			pay = *row.PaymentID
		}
		if row.GroupCorrelationID != nil {
			group = *row.GroupCorrelationID
		}
		key := pay + "\x00" + group
		b, ok := byKey[key]
		if !ok {
			b = &batch{paymentID: pay, groupID: group}
			byKey[key] = b
			batches = append(batches, b)
		}
		b.ids = append(b.ids, row.ID)
	}

	sent := 0
	var firstErr error
	for _, b := range batches {
		if err := r.announceReservations(ctx, b.paymentID, b.groupID, b.ids); err != nil {
			log.Printf("reconcile: relay reservation confirmed group=%s: %v", b.groupID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	paid, err := r.checkouts.UnnotifiedPaid(ctx, before, relayBatch)
	if err != nil {
		return sent, storageErr("list unnotified checkouts", err)
	}
	for i := range paid {
		co := &paid[i]
		var pay string
		if co.LastPaymentID != nil {
			pay = *co.LastPaymentID
		}
		paidAt := r.now()
		if co.PaidAt != nil {
			paidAt = *co.PaidAt
		}
		if err := r.announceEnrollment(ctx, co, pay, paidAt); err != nil {
			log.Printf("reconcile: relay enrollment confirmed group=%s: %v", co.GroupCorrelationID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Printf("reconcile: relay republished %d confirmation events", sent)
	}
	return sent, firstErr
}

func (r *Reconciler) markCheckoutPaid(ctx context.Context, res ReconcileResult) {
	if res.GroupCorrelationID == "" {
		return
	}
	if _, err := r.checkouts.MarkPaid(ctx, res.GroupCorrelationID, res.PaymentID, r.now().UTC()); err != nil {
		log.Printf("reconcile: mark checkout paid group=%s: %v", res.GroupCorrelationID, err)
	}
}

func (r *Reconciler) alreadyProcessed(ctx context.Context, paymentID string) bool {
	seen, err := r.processed.Seen(ctx, paymentID)
	if err != nil {
		log.Printf("reconcile: processed cache lookup %s: %v", paymentID, err)
		return false
	}
	return seen
}

func (r *Reconciler) markProcessed(ctx context.Context, paymentID string) {
	if err := r.processed.Mark(ctx, paymentID); err != nil {
		log.Printf("reconcile: processed cache mark %s: %v", paymentID, err)
	}
}

// eventStatus parses an optional status.  Unknown strings count as
// missing so the authoritative status is fetched instead.
func eventStatus(raw string) (payment.Status, bool) {
	if raw == "" {
		return "", false
	}
	st, err := payment.ParseStatus(raw)
	if err != nil {
		return "", false
	}
	return st, true
}

func auditEntry(n payment.Notification, body []byte, at time.Time) repository.PaymentEvent {
	ev := repository.PaymentEvent{Provider: n.Provider(), Payload: body, ReceivedAt: at}
	switch v := n.(type) {
	case payment.PaymentEvent:
		ev.PaymentID, ev.EventType, ev.Status = v.PaymentID, v.Type, v.RawStatus
	case payment.MidtransNotification:
		ev.PaymentID = firstNonBlank(v.TransactionID, v.OrderID)
		ev.EventType = "midtrans"
		ev.Status = v.TransactionStatus
	case payment.Unrecognized:
		ev.EventType = "unrecognized"
	}
	return ev
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type noCheckouts struct{}

func (noCheckouts) Create(context.Context, *model.Checkout) error              { return nil }
func (noCheckouts) AttachIntent(context.Context, string, string, string) error { return nil }
func (noCheckouts) MarkFailed(context.Context, string) error                   { return nil }
func (noCheckouts) MarkPaid(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}
func (noCheckouts) GetByGroup(context.Context, string) (*model.Checkout, error) {
	return nil, repository.ErrNotFound
}
func (noCheckouts) MarkNotified(context.Context, string, time.Time) error { return nil }
func (noCheckouts) UnnotifiedPaid(context.Context, time.Time, int) ([]model.Checkout, error) {
	return nil, nil
}

type noEventLog struct{}

func (noEventLog) Record(context.Context, repository.PaymentEvent) (uint64, error) { return 0, nil }
func (noEventLog) Finish(context.Context, uint64, string, string, time.Time) error  { return nil }

type noProcessed struct{}

func (noProcessed) Seen(context.Context, string) (bool, error) { return false, nil }
func (noProcessed) Mark(context.Context, string) error         { return nil }

type noNotifier struct{}

func (noNotifier) PublishReservationConfirmed(context.Context, queue.ReservationConfirmedEvent) error {
	return nil
}
func (noNotifier) PublishEnrollmentConfirmed(context.Context, queue.EnrollmentConfirmedEvent) error {
	return nil
}
