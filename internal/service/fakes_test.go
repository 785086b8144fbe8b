package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/lingua-enrollment/internal/model"
	"github.com/iliyamo/lingua-enrollment/internal/payment"
	"github.com/iliyamo/lingua-enrollment/internal/queue"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSlot struct {
	teacher string
	day     model.Weekday
	clock   string
}

// memLedger is an in-memory Ledger.  One mutex serialises transactions,
// which is at least as strict as the row locks of the MySQL ledger.
type memLedger struct {
	mu     sync.Mutex
	slots  map[uint64]fakeSlot
	rows   map[uint64]model.Reservation
	nextID uint64
}

var (
	_ repository.Ledger   = (*memLedger)(nil)
	_ repository.LedgerTx = (*memTx)(nil)
)

func newLedger(slotIDs ...uint64) *memLedger {
	l := &memLedger{slots: map[uint64]fakeSlot{}, rows: map[uint64]model.Reservation{}}
	for _, id := range slotIDs {
		l.slots[id] = fakeSlot{teacher: "Ana", day: model.Monday, clock: "09:30"}
	}
	return l
}

func (l *memLedger) WithTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := make(map[uint64]model.Reservation, len(l.rows))
	for k, v := range l.rows {
		snapshot[k] = v
	}
	next := l.nextID
	if err := fn(&memTx{l: l}); err != nil {
		l.rows, l.nextID = snapshot, next
		return err
	}
	return nil
}

func (l *memLedger) CancelExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, r := range l.rows {
		if r.State == model.StatePending && r.HoldExpiresAt != nil && r.HoldExpiresAt.Before(now) {
			r.State = model.StateCancelled
			l.rows[id] = r
			n++
		}
	}
	return n, nil
}

func (l *memLedger) CancelGroupPending(ctx context.Context, groupID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, r := range l.rows {
		if r.State == model.StatePending && r.GroupCorrelationID != nil && *r.GroupCorrelationID == groupID {
			r.State = model.StateCancelled
			l.rows[id] = r
			n++
		}
	}
	return n, nil
}

func (l *memLedger) IDsByGroup(ctx context.Context, groupID string) ([]uint64, error) {
	rows, _ := l.ListByGroup(ctx, groupID)
	var ids []uint64
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (l *memLedger) ListByGroup(ctx context.Context, groupID string) ([]model.Reservation, error) {
	return l.filter(func(r model.Reservation) bool {
		return r.GroupCorrelationID != nil && *r.GroupCorrelationID == groupID
	}), nil
}

func (l *memLedger) ListBySlot(ctx context.Context, slotID uint64) ([]model.Reservation, error) {
	return l.filter(func(r model.Reservation) bool { return r.TimeslotID == slotID }), nil
}

func (l *memLedger) ConfirmationDetails(ctx context.Context, ids []uint64) ([]repository.ConfirmedReservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []repository.ConfirmedReservation
	for _, id := range sortedIDs(ids) {
		r, ok := l.rows[id]
		if !ok || r.State != model.StateConfirmed {
			continue
		}
		s := l.slots[r.TimeslotID]
		out = append(out, repository.ConfirmedReservation{
			ID: r.ID, TimeslotID: r.TimeslotID, StudentName: r.StudentName, StudentEmail: r.StudentEmail,
			TeacherName: s.teacher, Weekday: s.day, StartTime: s.clock,
		})
	}
	return out, nil
}

func (l *memLedger) Unannounced(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error) {
	rows := l.filter(func(r model.Reservation) bool {
		return r.State == model.StateConfirmed && r.AnnouncedAt == nil && r.PaymentID != nil &&
			r.ConfirmedAt != nil && r.ConfirmedAt.Before(before)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (l *memLedger) MarkAnnounced(ctx context.Context, ids []uint64, at time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, id := range ids {
		r, ok := l.rows[id]
		if !ok || r.AnnouncedAt != nil {
			continue
		}
		stamp := at
		r.AnnouncedAt = &stamp
		l.rows[id] = r
		n++
	}
	return n, nil
}

func (l *memLedger) filter(keep func(model.Reservation) bool) []model.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Reservation
	for _, r := range l.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// row returns a copy of one reservation for assertions.
func (l *memLedger) row(id uint64) model.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[id]
}

// seed inserts a row directly, bypassing every check.
func (l *memLedger) seed(r model.Reservation) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	r.ID = l.nextID
	l.rows[r.ID] = r
	return r.ID
}

func (l *memLedger) blockingCount(slotID uint64, now time.Time) int {
	n := 0
	for _, r := range l.filter(func(r model.Reservation) bool { return r.TimeslotID == slotID }) {
		if r.IsBlocking(now) {
			n++
		}
	}
	return n
}

type memTx struct{ l *memLedger }

func (t *memTx) LockSlots(ctx context.Context, slotIDs []uint64) ([]uint64, error) {
	var found []uint64
	for _, id := range sortedIDs(slotIDs) {
		if _, ok := t.l.slots[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (t *memTx) BlockingSlots(ctx context.Context, slotIDs []uint64, now time.Time) ([]uint64, error) {
	return t.SlotsBlockedByOthers(ctx, slotIDs, nil, now)
}

func (t *memTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	if _, ok := t.l.slots[r.TimeslotID]; !ok {
		return repository.ErrNotFound
	}
	t.l.nextID++
	r.ID = t.l.nextID
	r.CreatedAt = t0
	t.l.rows[r.ID] = *r
	return nil
}

func (t *memTx) SlotIDsFor(ctx context.Context, reservationIDs []uint64) ([]uint64, error) {
	var slots []uint64
	for _, id := range reservationIDs {
		if r, ok := t.l.rows[id]; ok {
			slots = append(slots, r.TimeslotID)
		}
	}
	return sortedIDs(slots), nil
}

func (t *memTx) ReservationsForUpdate(ctx context.Context, reservationIDs []uint64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, id := range sortedIDs(reservationIDs) {
		if r, ok := t.l.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) SlotsBlockedByOthers(ctx context.Context, slotIDs, excludeIDs []uint64, now time.Time) ([]uint64, error) {
	want := toSet(slotIDs)
	skip := toSet(excludeIDs)
	var out []uint64
	for _, r := range t.l.rows {
		if want[r.TimeslotID] && !skip[r.ID] && r.IsBlocking(now) {
			out = append(out, r.TimeslotID)
		}
	}
	return sortedIDs(out), nil
}

func (t *memTx) ConfirmPending(ctx context.Context, ids []uint64, paymentID string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		r, ok := t.l.rows[id]
		if !ok || r.State != model.StatePending {
			continue
		}
		r.State = model.StateConfirmed
		r.HoldExpiresAt = nil
		pay, conf := paymentID, at
		r.PaymentID, r.ConfirmedAt = &pay, &conf
		t.l.rows[id] = r
		n++
	}
	return n, nil
}

func (t *memTx) CancelOnSlot(ctx context.Context, slotID uint64, states ...model.ReservationState) (int64, error) {
	var n int64
	for id, r := range t.l.rows {
		if r.TimeslotID != slotID {
			continue
		}
		for _, s := range states {
			if r.State == s {
				r.State = model.StateCancelled
				t.l.rows[id] = r
				n++
				break
			}
		}
	}
	return n, nil
}

func (t *memTx) HasConfirmed(ctx context.Context, slotID uint64) (bool, error) {
	for _, r := range t.l.rows {
		if r.TimeslotID == slotID && r.State == model.StateConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func toSet(ids []uint64) map[uint64]bool {
	m := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func sortedIDs(ids []uint64) []uint64 {
	set := toSet(ids)
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeProcessor struct {
	mu        sync.Mutex
	createErr error
	getErr    error
	payments  map[string]*payment.Details
	intents   []payment.Intent
	getCalls  int
}

func (p *fakeProcessor) CreatePaymentIntent(ctx context.Context, in payment.Intent) (*payment.IntentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, in)
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &payment.IntentResult{
		ID:          "intent-" + in.Metadata.GroupCorrelationID,
		CheckoutURL: "https://pay.example/" + in.Metadata.GroupCorrelationID,
	}, nil
}

// record registers what the processor reports for a payment id.
func (p *fakeProcessor) record(d payment.Details) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payments == nil {
		p.payments = map[string]*payment.Details{}
	}
	p.payments[d.ID] = &d
}

func (p *fakeProcessor) GetPayment(ctx context.Context, id string) (*payment.Details, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	d, ok := p.payments[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return d, nil
}

// fakeNotifier records published events.  The first failFirst publishes
// fail as if the broker were unreachable.
type fakeNotifier struct {
	mu          sync.Mutex
	failFirst   int
	attempts    int
	reservation []queue.ReservationConfirmedEvent
	enrollment  []queue.EnrollmentConfirmedEvent
}

var errBrokerDown = errors.New("broker unreachable")

func (n *fakeNotifier) PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.attempts <= n.failFirst {
		return errBrokerDown
	}
	n.reservation = append(n.reservation, ev)
	return nil
}

func (n *fakeNotifier) PublishEnrollmentConfirmed(ctx context.Context, ev queue.EnrollmentConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.attempts <= n.failFirst {
		return errBrokerDown
	}
	n.enrollment = append(n.enrollment, ev)
	return nil
}

// failNext makes the next k publishes fail.
func (n *fakeNotifier) failNext(k int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failFirst = n.attempts + k
}

func (n *fakeNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reservation), len(n.enrollment)
}

type fakeCheckouts struct {
	mu   sync.Mutex
	byID map[string]*model.Checkout
}

func newCheckouts() *fakeCheckouts { return &fakeCheckouts{byID: map[string]*model.Checkout{}} }

func (f *fakeCheckouts) Create(ctx context.Context, c *model.Checkout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.byID[c.GroupCorrelationID]; dup {
		return repository.ErrConflict
	}
	cp := *c
	f.byID[c.GroupCorrelationID] = &cp
	return nil
}

func (f *fakeCheckouts) AttachIntent(ctx context.Context, groupID, intentID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	c.ProcessorIntentID, c.CheckoutURL = &intentID, &url
	return nil
}

func (f *fakeCheckouts) MarkFailed(ctx context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[groupID]; ok && c.Status == model.CheckoutOpen {
		c.Status = model.CheckoutFailed
	}
	return nil
}

func (f *fakeCheckouts) MarkPaid(ctx context.Context, groupID, paymentID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[groupID]
	if !ok || c.Status == model.CheckoutPaid {
		return false, nil
	}
	c.Status = model.CheckoutPaid
	c.LastPaymentID = &paymentID
	c.PaidAt = &at
	return true, nil
}

func (f *fakeCheckouts) GetByGroup(ctx context.Context, groupID string) (*model.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[groupID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCheckouts) MarkNotified(ctx context.Context, groupID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[groupID]; ok && c.NotifiedAt == nil {
		c.NotifiedAt = &at
	}
	return nil
}

func (f *fakeCheckouts) UnnotifiedPaid(ctx context.Context, before time.Time, limit int) ([]model.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Checkout
	for _, c := range f.byID {
		if c.Status == model.CheckoutPaid && c.NotifiedAt == nil && !c.Mode.SlotBacked() &&
			c.PaidAt != nil && c.PaidAt.Before(before) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupCorrelationID < out[j].GroupCorrelationID })
	return out, nil
}

type fakeProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeProcessed) Seen(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id], nil
}

func (f *fakeProcessed) Mark(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[id] = true
	return nil
}

type fakeEventLog struct {
	mu       sync.Mutex
	recorded []repository.PaymentEvent
	outcomes []string
}

func (f *fakeEventLog) Record(ctx context.Context, ev repository.PaymentEvent) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, ev)
	return uint64(len(f.recorded)), nil
}

func (f *fakeEventLog) Finish(ctx context.Context, id uint64, outcome, errText string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}
