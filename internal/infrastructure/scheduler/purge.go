package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/pkg/metrics"
)

const (
	defaultInterval = time.Hour
	sweepTimeout    = time.Minute
)

// PurgeSweeper periodically deletes expired refresh sessions from a store.
type PurgeSweeper struct {
	store    ports.SessionStore
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewPurgeSweeper creates a sweeper that runs every interval.
// If interval <= 0, defaultInterval is used.
func NewPurgeSweeper(store ports.SessionStore, interval time.Duration, log zerolog.Logger) *PurgeSweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &PurgeSweeper{
		store:    store,
		interval: interval,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the sweep loop. It stops when ctx is cancelled.
func (p *PurgeSweeper) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *PurgeSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Sweep(ctx)
		}
	}
}

// Sweep runs one purge and returns how many sessions were deleted. Failures
// are logged and returned; the next tick retries.
func (p *PurgeSweeper) Sweep(ctx context.Context) (int64, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := p.store.PurgeExpired(sweepCtx, p.now())
	metrics.SessionPurgeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.log.Error().Err(err).Msg("session purge failed")
		return 0, err
	}

	metrics.SessionsPurgedTotal.Add(float64(n))
	if n > 0 {
		p.log.Info().Int64("purged", n).Msg("expired sessions purged")
	}
	return n, nil
}
