// Package finalizer runs the three long-lived periodic tasks (minute,
// hour, day) that promote completed candles to finalized on their
// period boundary.
package finalizer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/v4poolindex/indexer/internal/aggregator"
	"github.com/v4poolindex/indexer/internal/eventbus"
	"github.com/v4poolindex/indexer/internal/store"
)

// period is the fixed wall-clock width of one interval's bucket.
func period(interval store.CandleInterval) time.Duration {
	switch interval {
	case store.IntervalMinute:
		return time.Minute
	case store.IntervalHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Finalizer promotes every current candle for a just-ended bucket to
// finalized and publishes one candle.finalized event per promoted row.
type Finalizer struct {
	aggregator *aggregator.Aggregator
	bus        *eventbus.Bus
}

func New(agg *aggregator.Aggregator, bus *eventbus.Bus) *Finalizer {
	return &Finalizer{aggregator: agg, bus: bus}
}

// Run starts the three timer loops and blocks until ctx is cancelled
// or one of them returns an error.
func (f *Finalizer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, interval := range []store.CandleInterval{store.IntervalMinute, store.IntervalHour, store.IntervalDay} {
		interval := interval
		g.Go(func() error {
			return f.loop(gctx, interval)
		})
	}
	return g.Wait()
}

// loop sleeps until the next boundary of interval, finalizes the
// bucket that just ended, and repeats.
func (f *Finalizer) loop(ctx context.Context, interval store.CandleInterval) error {
	for {
		now := time.Now().UTC()
		next := nextBoundary(now, interval)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		endedBucket := next.Add(-period(interval))
		if err := f.finalizeOnce(interval, endedBucket); err != nil {
			return err
		}
	}
}

func (f *Finalizer) finalizeOnce(interval store.CandleInterval, endedBucket time.Time) error {
	rows, err := f.aggregator.FinalizeBoundary(interval, endedBucket)
	if err != nil {
		return err
	}
	for _, row := range rows {
		f.bus.PublishCandleFinalized(eventbus.CandleFinalized{Interval: interval, Candle: row})
	}
	return nil
}

// nextBoundary returns the next minute/hour/day tick strictly after
// now, in UTC.
func nextBoundary(now time.Time, interval store.CandleInterval) time.Time {
	switch interval {
	case store.IntervalMinute:
		trunc := now.Truncate(time.Minute)
		return trunc.Add(time.Minute)
	case store.IntervalHour:
		trunc := now.Truncate(time.Hour)
		return trunc.Add(time.Hour)
	default:
		y, m, d := now.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return midnight.Add(24 * time.Hour)
	}
}
