package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lingua-enrollment/internal/config"
	"github.com/iliyamo/lingua-enrollment/internal/service"
)

type fakeRunner struct {
	swept     int64
	sweepErr  error
	result    service.ReconcileResult
	recErr    error
	paymentID string
	relayed   int
	relayErr  error
	closed    bool
}

func (f *fakeRunner) SweepOnce(context.Context) (int64, error) { return f.swept, f.sweepErr }

func (f *fakeRunner) ReconcilePayment(_ context.Context, id string) (service.ReconcileResult, error) {
	f.paymentID = id
	return f.result, f.recErr
}

func (f *fakeRunner) RedeliverAnnouncements(context.Context) (int, error) {
	return f.relayed, f.relayErr
}

func (f *fakeRunner) Close() { f.closed = true }

func withRunner(t *testing.T, r *fakeRunner) {
	t.Helper()
	prevLoad, prevOpen := loadConfig, openApp
	loadConfig = func() config.Config { return config.Config{} }
	openApp = func(context.Context, config.Config) (runner, error) { return r, nil }
	t.Cleanup(func() { loadConfig, openApp = prevLoad, prevOpen })
}

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--env-file", "testdata/none.env"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestSweepCommand(t *testing.T) {
	r := &fakeRunner{swept: 3}
	withRunner(t, r)

	outText, err := run("sweep")
	require.NoError(t, err)
	assert.Equal(t, "cancelled 3 expired holds\n", outText)
	assert.True(t, r.closed)
}

func TestSweepCommandError(t *testing.T) {
	withRunner(t, &fakeRunner{sweepErr: errors.New("deadlock")})

	_, err := run("sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}

func TestReconcileCommand(t *testing.T) {
	r := &fakeRunner{result: service.ReconcileResult{
		Outcome:            service.OutcomeConfirmed,
		PaymentID:          "pay-9",
		GroupCorrelationID: "g-1",
		Confirmed:          []uint64{4, 5},
	}}
	withRunner(t, r)

	outText, err := run("reconcile", "--payment-id", " pay-9 ")
	require.NoError(t, err)
	assert.Equal(t, "pay-9", r.paymentID)
	assert.Contains(t, outText, `"outcome": "confirmed"`)
	assert.Contains(t, outText, `"group_correlation_id": "g-1"`)
}

func TestReconcileCommandNeedsPaymentID(t *testing.T) {
	withRunner(t, &fakeRunner{})

	_, err := run("reconcile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--payment-id")
}

func TestReconcileCommandReportsFailure(t *testing.T) {
	withRunner(t, &fakeRunner{
		result: service.ReconcileResult{Outcome: service.OutcomeFailed, PaymentID: "pay-1"},
		recErr: service.ErrStorage,
	})

	outText, err := run("reconcile", "--payment-id", "pay-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrStorage)
	assert.Contains(t, outText, `"outcome": "failed"`)
}

func TestRelayCommand(t *testing.T) {
	r := &fakeRunner{relayed: 2}
	withRunner(t, r)

	outText, err := run("relay")
	require.NoError(t, err)
	assert.Equal(t, "republished 2 confirmation events\n", outText)
	assert.True(t, r.closed)

	r.relayErr = errors.New("broker unreachable")
	_, err = run("relay")
	assert.ErrorContains(t, err, "broker unreachable")
}
