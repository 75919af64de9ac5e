// Package sweep runs the daily decay pass: it re-evaluates every zone
// with a persisted confidence state, applying time decay, hazard lapse,
// and conflict expiry, and resets the 24h intel counters.
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unmappedos-sys/unmappedos/internal/confidence"
	"github.com/unmappedos-sys/unmappedos/internal/resilience"
	"github.com/unmappedos-sys/unmappedos/internal/store"
)

// Summary reports one sweep run. Failed zones are logged and counted,
// never fatal; a zone missed today decays correctly tomorrow because
// decay is computed from timestamps, not from sweep ticks.
type Summary struct {
	Zones    int           `json:"zones"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Sweeper walks all zones and recomputes their confidence states.
type Sweeper struct {
	store       store.Store
	cfg         confidence.EngineConfig
	retry       resilience.RetryConfig
	concurrency int
	limiter     *rate.Limiter
	now         func() time.Time
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithConcurrency bounds the number of zones processed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRateLimit caps zone updates per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(s *Sweeper) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithClock overrides the sweep clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New builds a Sweeper over a Store.
func New(st store.Store, cfg confidence.EngineConfig, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:       st,
		cfg:         cfg,
		retry:       resilience.DefaultRetryConfig(),
		concurrency: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one full sweep over every known zone. It returns an
// error only when the zone listing itself fails; individual zone
// failures are isolated, logged, and counted in the Summary.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	started := s.now().UTC()

	zoneIDs, err := s.store.ListZoneIDs(ctx)
	if err != nil {
		return Summary{}, eris.Wrap(err, "sweep: list zones")
	}

	var updated, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, zoneID := range zoneIDs {
		zoneID := zoneID
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			switch err := s.sweepZone(gctx, zoneID, started); {
			case err == nil:
				updated.Add(1)
			case eris.Is(err, errNoState):
				skipped.Add(1)
			default:
				failed.Add(1)
				zap.L().Warn("sweep: zone update failed",
					zap.String("zone_id", zoneID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	// Workers only return errors for context cancellation.
	if err := g.Wait(); err != nil {
		return Summary{}, eris.Wrap(err, "sweep: canceled")
	}

	summary := Summary{
		Zones:    len(zoneIDs),
		Updated:  int(updated.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
		Duration: s.now().UTC().Sub(started),
	}
	zap.L().Info("sweep complete",
		zap.Int("zones", summary.Zones),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// errNoState marks zones that have never received intel. They have no
// state row to decay and are skipped.
var errNoState = eris.New("sweep: zone has no confidence state")

func (s *Sweeper) sweepZone(ctx context.Context, zoneID string, now time.Time) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		prev, err := s.store.GetState(ctx, zoneID)
		if err != nil {
			return eris.Wrapf(err, "sweep: load state for zone %s", zoneID)
		}
		if prev == nil {
			return errNoState
		}

		window, err := s.store.SubmissionsSince(ctx, zoneID, now.Add(-24*time.Hour))
		if err != nil {
			return eris.Wrapf(err, "sweep: load window for zone %s", zoneID)
		}

		hazardCount, err := s.store.CountHazardReports(ctx, zoneID, now.Add(-s.cfg.HazardWindow()))
		if err != nil {
			return eris.Wrapf(err, "sweep: count hazards for zone %s", zoneID)
		}

		next, _, err := confidence.Compose(confidence.UpdateInput{
			State:              prev,
			Window:             window,
			HazardCount:        hazardCount,
			ResetDailyCounters: true,
			ZoneID:             zoneID,
			Now:                now,
		}, s.cfg)
		if err != nil {
			return eris.Wrapf(err, "sweep: compose zone %s", zoneID)
		}

		if err := s.store.UpsertState(ctx, &next); err != nil {
			return eris.Wrapf(err, "sweep: upsert state for zone %s", zoneID)
		}
		return nil
	})
}
