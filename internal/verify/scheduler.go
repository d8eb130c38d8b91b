package verify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers batch runs on a fixed interval when serve mode is
// configured with an in-process schedule. The external clock trigger remains
// the primary mechanism; this is a convenience for deployments without one.
type Scheduler struct {
	run      func(ctx context.Context)
	interval time.Duration
}

// NewScheduler creates a Scheduler calling run every interval.
func NewScheduler(interval time.Duration, run func(ctx context.Context)) *Scheduler {
	return &Scheduler{run: run, interval: interval}
}

// Run starts the ticker loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "verify.scheduler"))
	log.Info("starting batch scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("batch scheduler stopped")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}
