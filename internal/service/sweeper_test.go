package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lingua-enrollment/internal/model"
)

func TestSweeperCancelsOnlyExpiredHolds(t *testing.T) {
	clock := newClock()
	ledger := newLedger(1, 2, 3)
	expired := t0.Add(-time.Second)
	live := t0.Add(time.Minute)
	a := ledger.seed(model.Reservation{TimeslotID: 1, State: model.StatePending, HoldExpiresAt: &expired})
	b := ledger.seed(model.Reservation{TimeslotID: 2, State: model.StatePending, HoldExpiresAt: &live})
	c := ledger.seed(model.Reservation{TimeslotID: 3, State: model.StateConfirmed})
	d := ledger.seed(model.Reservation{TimeslotID: 3, State: model.StateBlocked})

	n, err := NewSweeper(ledger, time.Minute, clock.Now).RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, model.StateCancelled, ledger.row(a).State)
	assert.Equal(t, model.StatePending, ledger.row(b).State)
	assert.Equal(t, model.StateConfirmed, ledger.row(c).State)
	assert.Equal(t, model.StateBlocked, ledger.row(d).State)

	n, err = NewSweeper(ledger, time.Minute, clock.Now).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAbandonedHoldIsRecovered(t *testing.T) {
	clock := newClock()
	ledger := newLedger(1)
	holds := NewHoldService(ledger, WithHoldClock(clock.Now))
	sweeper := NewSweeper(ledger, time.Minute, clock.Now)

	hold, err := holds.CreateHold(context.Background(), holdReq(1))
	require.NoError(t, err)
	rows, _ := ledger.ListBySlot(context.Background(), 1)
	assert.Equal(t, model.SlotPending, model.DeriveSlotState(rows, clock.Now()))

	clock.Advance(11 * time.Minute)
	n, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, model.StateCancelled, ledger.row(hold.ReservationIDs[0]).State)

	rows, _ = ledger.ListBySlot(context.Background(), 1)
	assert.Equal(t, model.SlotAvailable, model.DeriveSlotState(rows, clock.Now()))

	_, err = holds.CreateHold(context.Background(), holdReq(1))
	assert.NoError(t, err)
}

func TestSweeperTickRunsRelay(t *testing.T) {
	clock := newClock()
	ledger := newLedger(1)
	expired := t0.Add(-time.Second)
	id := ledger.seed(model.Reservation{TimeslotID: 1, State: model.StatePending, HoldExpiresAt: &expired})

	calls := 0
	s := NewSweeper(ledger, time.Minute, clock.Now).WithRelay(func(context.Context) (int, error) {
		calls++
		return 0, errors.New("broker unreachable")
	})
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, model.StateCancelled, ledger.row(id).State)
}

func TestSweeperSchedule(t *testing.T) {
	ledger := newLedger(1)
	expired := time.Now().Add(-time.Hour)
	id := ledger.seed(model.Reservation{TimeslotID: 1, State: model.StatePending, HoldExpiresAt: &expired})

	s := NewSweeper(ledger, time.Second, nil)
	require.NoError(t, s.Start())
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool {
		return ledger.row(id).State == model.StateCancelled
	}, 5*time.Second, 50*time.Millisecond)
}
