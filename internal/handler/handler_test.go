package handler

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/lingua-enrollment/internal/model"
    "github.com/iliyamo/lingua-enrollment/internal/payment"
    "github.com/iliyamo/lingua-enrollment/internal/repository"
    "github.com/iliyamo/lingua-enrollment/internal/service"
)

// stubLedger knows a fixed set of slots, some of them taken.  It is just
// enough ledger to drive the handlers.
type stubLedger struct {
    slots  map[uint64]bool
    taken  map[uint64]bool
    nextID uint64
    err    error
}

func (l *stubLedger) WithTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
    return fn(l)
}
func (l *stubLedger) CancelExpiredHolds(context.Context, time.Time) (int64, error) { return 0, nil }
func (l *stubLedger) CancelGroupPending(context.Context, string) (int64, error)    { return 1, nil }
func (l *stubLedger) IDsByGroup(context.Context, string) ([]uint64, error)          { return nil, l.err }
func (l *stubLedger) ListByGroup(context.Context, string) ([]model.Reservation, error) {
    return nil, l.err
}
func (l *stubLedger) ListBySlot(context.Context, uint64) ([]model.Reservation, error) {
    return nil, l.err
}
func (l *stubLedger) ConfirmationDetails(context.Context, []uint64) ([]repository.ConfirmedReservation, error) {
    return nil, nil
}
func (l *stubLedger) LockSlots(ctx context.Context, ids []uint64) ([]uint64, error) {
    var out []uint64
    for _, id := range ids {
        if l.slots[id] {
            out = append(out, id)
        }
    }
    return out, nil
}
func (l *stubLedger) BlockingSlots(ctx context.Context, ids []uint64, now time.Time) ([]uint64, error) {
    var out []uint64
    for _, id := range ids {
        if l.taken[id] {
            out = append(out, id)
        }
    }
    return out, nil
}
func (l *stubLedger) InsertReservation(ctx context.Context, r *model.Reservation) error {
    l.nextID++
    r.ID = l.nextID
    return nil
}
func (l *stubLedger) SlotIDsFor(context.Context, []uint64) ([]uint64, error) { return nil, nil }
func (l *stubLedger) ReservationsForUpdate(context.Context, []uint64) ([]model.Reservation, error) {
    return nil, nil
}
func (l *stubLedger) SlotsBlockedByOthers(context.Context, []uint64, []uint64, time.Time) ([]uint64, error) {
    return nil, nil
}
func (l *stubLedger) ConfirmPending(context.Context, []uint64, string, time.Time) (int64, error) {
    return 0, nil
}
func (l *stubLedger) Unannounced(context.Context, time.Time, int) ([]model.Reservation, error) {
    return nil, nil
}
func (l *stubLedger) MarkAnnounced(context.Context, []uint64, time.Time) (int64, error) { return 0, nil }
func (l *stubLedger) CancelOnSlot(context.Context, uint64, ...model.ReservationState) (int64, error) {
    return 0, nil
}
func (l *stubLedger) HasConfirmed(context.Context, uint64) (bool, error) { return false, nil }

type stubProcessor struct{ err error }

func (p stubProcessor) CreatePaymentIntent(ctx context.Context, in payment.Intent) (*payment.IntentResult, error) {
    if p.err != nil {
        return nil, p.err
    }
    return &payment.IntentResult{ID: "i-1", CheckoutURL: "https://pay.example/i-1"}, nil
}
func (p stubProcessor) GetPayment(context.Context, string) (*payment.Details, error) {
    return nil, errors.New("not found")
}

type stubCheckouts struct{ created []model.Checkout }

func (s *stubCheckouts) Create(ctx context.Context, c *model.Checkout) error {
    s.created = append(s.created, *c)
    return nil
}
func (*stubCheckouts) AttachIntent(context.Context, string, string, string) error { return nil }
func (*stubCheckouts) MarkFailed(context.Context, string) error                   { return nil }
func (*stubCheckouts) MarkPaid(context.Context, string, string, time.Time) (bool, error) {
    return false, nil
}
func (*stubCheckouts) GetByGroup(context.Context, string) (*model.Checkout, error) {
    return nil, repository.ErrNotFound
}
func (*stubCheckouts) MarkNotified(context.Context, string, time.Time) error { return nil }
func (*stubCheckouts) UnnotifiedPaid(context.Context, time.Time, int) ([]model.Checkout, error) {
    return nil, nil
}

func newTestEcho() *echo.Echo {
    e := echo.New()
    e.Validator = NewRequestValidator()
    return e
}

func enrollmentEcho(ledger *stubLedger, proc payment.Processor) *echo.Echo {
    return enrollmentEchoWith(ledger, proc, &stubCheckouts{})
}

func enrollmentEchoWith(ledger *stubLedger, proc payment.Processor, checkouts *stubCheckouts) *echo.Echo {
    holds := service.NewHoldService(ledger)
    checkout := service.NewCheckoutService(holds, ledger, checkouts, proc, service.CheckoutSettings{})
    h := NewEnrollmentHandler(holds, checkout)
    e := newTestEcho()
    e.POST("/holds", h.CreateHold)
    e.POST("/checkout", h.Checkout)
    return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestCreateHoldCreated(t *testing.T) {
    e := enrollmentEcho(&stubLedger{slots: map[uint64]bool{1: true, 2: true}}, stubProcessor{})

    rec := do(e, http.MethodPost, "/holds", `{"slot_ids":[1,2],"student_name":"Maria","student_email":"maria@example.com","intake_form":{"level":"A2"}}`)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    assert.Contains(t, rec.Body.String(), `"reservation_ids":[1,2]`)
    assert.Contains(t, rec.Body.String(), `"group_correlation_id"`)
}

func TestCreateHoldConflict(t *testing.T) {
    e := enrollmentEcho(&stubLedger{slots: map[uint64]bool{1: true, 2: true}, taken: map[uint64]bool{2: true}}, stubProcessor{})

    rec := do(e, http.MethodPost, "/holds", `{"slot_ids":[1,2],"student_name":"Maria","student_email":"maria@example.com"}`)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.JSONEq(t, `{"error":"slot unavailable","unavailable":[2]}`, rec.Body.String())
}

func TestCreateHoldRejectsBadInput(t *testing.T) {
    e := enrollmentEcho(&stubLedger{slots: map[uint64]bool{1: true}}, stubProcessor{})

    rec := do(e, http.MethodPost, "/holds", `{"slot_ids":[1],"student_name":"Maria","student_email":"nope"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"field":"student_email"`)

    rec = do(e, http.MethodPost, "/holds", `{"slot_ids":[],"student_name":"Maria","student_email":"m@example.com"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = do(e, http.MethodPost, "/holds", `{"slot_ids":[99],"student_name":"Maria","student_email":"m@example.com"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = do(e, http.MethodPost, "/holds", `{`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutCreated(t *testing.T) {
    e := enrollmentEcho(&stubLedger{slots: map[uint64]bool{1: true}}, stubProcessor{})

    rec := do(e, http.MethodPost, "/checkout", `{"slot_ids":[1],"student_name":"Maria","student_email":"maria@example.com","price":"350000"}`)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    assert.Contains(t, rec.Body.String(), `"checkout_url":"https://pay.example/i-1"`)
    assert.Contains(t, rec.Body.String(), `"mode":"individual"`)
}

func TestCheckoutAcceptsDocumentedBody(t *testing.T) {
    checkouts := &stubCheckouts{}
    e := enrollmentEchoWith(&stubLedger{slots: map[uint64]bool{1: true}}, stubProcessor{}, checkouts)

    rec := do(e, http.MethodPost, "/checkout", `{"title":"Spanish A2","price":"350000","currency":"IDR","slot_ids":[1],
        "student_name":"Maria","student_email":"maria@example.com","form":{"level":"A2","goals":"travel"}}`)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    require.Len(t, checkouts.created, 1)
    co := checkouts.created[0]
    assert.Equal(t, "Spanish A2", co.Title)
    assert.Equal(t, "IDR", co.Currency)
    assert.JSONEq(t, `{"level":"A2","goals":"travel"}`, string(co.IntakeForm))

    rec = do(e, http.MethodPost, "/checkout", `{"title":"Spanish A2","price":"350000","currency":"USD","mode":"flat_fee",
        "student_name":"Maria","student_email":"maria@example.com","form":{}}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"field":"currency"`)
    assert.Len(t, checkouts.created, 1)

    rec = do(e, http.MethodPost, "/checkout", `{"price":"0.4","mode":"flat_fee","student_name":"Maria","student_email":"maria@example.com"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"field":"price"`)
}

func TestCheckoutUpstreamFailure(t *testing.T) {
    e := enrollmentEcho(&stubLedger{slots: map[uint64]bool{1: true}}, stubProcessor{err: errors.New("boom")})

    rec := do(e, http.MethodPost, "/checkout", `{"slot_ids":[1],"student_name":"Maria","student_email":"maria@example.com","price":120000}`)
    assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCheckoutRejectsUnknownMode(t *testing.T) {
    e := enrollmentEcho(&stubLedger{}, stubProcessor{})
    rec := do(e, http.MethodPost, "/checkout", `{"mode":"workshop","student_name":"Maria","student_email":"maria@example.com","price":"10"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"field":"mode"`)
}

func TestPaymentWebhookAlwaysAcknowledges(t *testing.T) {
    ledger := &stubLedger{err: errors.New("db down")}
    h := NewWebhookHandler(service.NewReconciler(ledger, stubProcessor{}))
    e := newTestEcho()
    e.POST("/payment-webhook", h.PaymentWebhook)

    for _, body := range []string{
        `garbage`,
        `{"type":"payment","data":{"id":"p-1"},"status":"approved","metadata":{"group_correlation_id":"g"}}`,
        `{"type":"payment","data":{"id":"p-2"}}`,
        ``,
    } {
        rec := do(e, http.MethodPost, "/payment-webhook", body)
        assert.Equal(t, http.StatusOK, rec.Code, body)
        assert.JSONEq(t, `{"received":true}`, rec.Body.String())
    }
}

type slotRows []repository.SlotRow

func (s slotRows) ListWithOccupancy(context.Context, time.Time, repository.SlotFilter) ([]repository.SlotRow, error) {
    return s, nil
}

type noTeachers struct{}

func (noTeachers) List(context.Context) ([]model.Teacher, error) { return nil, nil }

func TestListSlots(t *testing.T) {
    svc := service.NewCatalogService(slotRows{
        {SlotID: 3, TeacherID: 1, TeacherName: "Ana", Weekday: model.Wednesday, StartTime: "17:00:00"},
    }, noTeachers{})
    h := NewCatalogHandler(svc)
    e := newTestEcho()
    e.GET("/slots", h.ListSlots)
    e.GET("/teachers", h.ListTeachers)

    rec := do(e, http.MethodGet, "/slots", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `[{"slot_id":3,"teacher":{"id":1,"name":"Ana"},"weekday":"wednesday","time":"17:00","state":"available"}]`, rec.Body.String())

    rec = do(e, http.MethodGet, "/slots?state=taken", "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = do(e, http.MethodGet, "/teachers", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `[]`, rec.Body.String())
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
    e := newTestEcho()
    e.GET("/healthz", Health(pinger{}))
    e.GET("/down", Health(pinger{err: errors.New("refused")}))

    assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "").Code)
    assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
}

func TestAdminSetSlotStateValidation(t *testing.T) {
    ledger := &stubLedger{slots: map[uint64]bool{1: true}}
    h := NewAdminHandler(service.NewAdminService(nil, nil, ledger, 0), "", 60)
    e := newTestEcho()
    e.PUT("/admin/slots/:id/state", h.SetSlotState)

    rec := do(e, http.MethodPut, "/admin/slots/1/state", `{"state":"occupied"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    rec = do(e, http.MethodPut, "/admin/slots/x/state", `{"state":"blocked"}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    rec = do(e, http.MethodPut, "/admin/slots/7/state", `{"state":"blocked"}`)
    assert.Equal(t, http.StatusNotFound, rec.Code)
    rec = do(e, http.MethodPut, "/admin/slots/1/state", `{"state":"blocked"}`)
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSessionNeedsSecret(t *testing.T) {
    h := NewAdminHandler(service.NewAdminService(nil, nil, &stubLedger{}, 0), "", 60)
    e := newTestEcho()
    e.POST("/admin/session", h.Session)
    assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodPost, "/admin/session", "").Code)
}
