// Package reaper purges persons whose activity went stale. A disconnected
// socket does not delete the person record; this is the only thing that does.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pubhouse/internal/store"
)

// Reaper deletes stale person rows on a fixed interval until its context is
// cancelled. A failed tick is logged and skipped; it never stops the loop.
type Reaper struct {
	store     store.Store
	interval  time.Duration
	staleness time.Duration
	log       *zap.Logger
}

func New(st store.Store, interval, staleness time.Duration, log *zap.Logger) *Reaper {
	return &Reaper{store: st, interval: interval, staleness: staleness, log: log}
}

// Run blocks until ctx is cancelled. No final pass happens on cancellation.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	n, err := r.store.DeleteStalePersons(ctx, r.staleness)
	if err != nil {
		r.log.Error("reap failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("reaped stale persons", zap.Int64("count", n))
	}
}
