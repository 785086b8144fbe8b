package monitoring

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSweep(t *testing.T) {
	okBefore := testutil.ToFloat64(sweeperRuns.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(sweeperRuns.WithLabelValues("error"))
	cancelledBefore := testutil.ToFloat64(sweeperCancelled)

	ObserveSweep(3, nil)
	ObserveSweep(5, errors.New("db down"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(sweeperRuns.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(sweeperRuns.WithLabelValues("error")))
	assert.Equal(t, cancelledBefore+3, testutil.ToFloat64(sweeperCancelled), "failed ticks cancel nothing")
}

func TestObserveReconciliation(t *testing.T) {
	c := reconcileOutcomes.WithLabelValues("midtrans", "confirmed")
	before := testutil.ToFloat64(c)
	ObserveReconciliation("midtrans", "confirmed")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
