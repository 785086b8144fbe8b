package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/lingua-enrollment/internal/monitoring"
	"github.com/iliyamo/lingua-enrollment/internal/repository"
)

// DefaultSweepInterval is the maximum time an abandoned hold keeps its
// slot after expiring.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically cancels pending reservations whose hold ran out.
// Each tick is one idempotent conditional update, so a failed tick needs
// no backoff; the next one simply tries again.
type Sweeper struct {
	ledger   repository.Ledger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	cron     *cron.Cron
	relay    func(ctx context.Context) (int, error)
}

// NewSweeper builds a Sweeper.  A non-positive interval means
// DefaultSweepInterval.
func NewSweeper(ledger repository.Ledger, interval time.Duration, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{ledger: ledger, interval: interval, timeout: 30 * time.Second, now: now}
}

// RunOnce performs one sweep and returns how many holds it cancelled.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.ledger.CancelExpiredHolds(ctx, s.now().UTC())
	monitoring.ObserveSweep(n, err)
	if err != nil {
		log.Printf("[SWEEPER] cancel expired holds failed: %v", err)
		return 0, storageErr("cancel expired holds", err)
	}
	if n > 0 {
		log.Printf("[SWEEPER] cancelled %d expired holds", n)
	}
	return n, nil
}

// WithRelay adds a job run after every scheduled sweep, used to republish
// confirmation events the broker never received.
func (s *Sweeper) WithRelay(relay func(ctx context.Context) (int, error)) *Sweeper {
	s.relay = relay
	return s
}

// Tick runs one sweep followed by the relay, if any.  A sweep failure
// does not stop the relay.
func (s *Sweeper) Tick(ctx context.Context) (int64, error) {
	n, err := s.RunOnce(ctx)
	if s.relay != nil {
		if _, rerr := s.relay(ctx); rerr != nil {
			log.Printf("[SWEEPER] relay failed: %v", rerr)
		}
	}
	return n, err
}

// Start schedules Tick every interval.  Overlapping ticks are skipped.
func (s *Sweeper) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	s.cron = c
	log.Printf("[SWEEPER] started schedule=%q", spec)
	return nil
}

// Stop halts the schedule and returns a context that is done once a
// running tick has finished.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}
