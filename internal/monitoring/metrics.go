// Package monitoring exposes the Prometheus metrics of the enrollment
// service.  Reconciliation failures never reach the processor (the webhook
// always answers 200), so these counters are how operators notice them.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	holdAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_hold_attempts_total",
			Help: "Hold requests by result",
		},
		[]string{"result"},
	)

	holdDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrollment_hold_tx_duration_seconds",
			Help:    "Time spent in the hold transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_reconciliation_outcomes_total",
			Help: "Payment notifications by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	reconcileConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollment_reconciliation_conflicts_total",
			Help: "Paid reservations left pending because their slot was taken after the hold expired",
		},
	)

	confirmedReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollment_reservations_confirmed_total",
			Help: "Reservations transitioned to confirmed",
		},
	)

	sweeperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_sweeper_runs_total",
			Help: "Sweeper ticks by result",
		},
		[]string{"result"},
	)

	sweeperCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrollment_sweeper_cancelled_total",
			Help: "Expired holds cancelled by the sweeper",
		},
	)

	checkoutResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_checkouts_total",
			Help: "Checkout attempts by mode and result",
		},
		[]string{"mode", "result"},
	)

	publishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_event_publish_failures_total",
			Help: "Confirmation events that could not be published",
		},
		[]string{"queue"},
	)
)

// ObserveHold records one hold attempt and how long its transaction took.
func ObserveHold(result string, took time.Duration) {
	holdAttempts.WithLabelValues(result).Inc()
	holdDuration.Observe(took.Seconds())
}

// ObserveReconciliation counts one processed notification.
func ObserveReconciliation(provider, outcome string) {
	reconcileOutcomes.WithLabelValues(provider, outcome).Inc()
}

// AddReconcileConflicts counts paid rows that could not be confirmed.
func AddReconcileConflicts(n int) { reconcileConflicts.Add(float64(n)) }

// AddConfirmed counts rows moved to confirmed.
func AddConfirmed(n int64) { confirmedReservations.Add(float64(n)) }

// ObserveSweep counts one sweeper tick.
func ObserveSweep(cancelled int64, err error) {
	if err != nil {
		sweeperRuns.WithLabelValues("error").Inc()
		return
	}
	sweeperRuns.WithLabelValues("ok").Inc()
	sweeperCancelled.Add(float64(cancelled))
}

// ObserveCheckout counts one checkout attempt.
func ObserveCheckout(mode, result string) {
	checkoutResults.WithLabelValues(mode, result).Inc()
}

// PublishFailed counts an event that did not reach the broker.
func PublishFailed(queue string) { publishFailures.WithLabelValues(queue).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
