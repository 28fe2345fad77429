package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Job is the work run on each tick.
type Job func(ctx context.Context) error

// Loop runs a Job on a Schedule until its context is cancelled.
type Loop struct {
	schedule Schedule
	job      Job
	logger   *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// NewLoop creates a loop.
func NewLoop(schedule Schedule, job Job, logger *slog.Logger) *Loop {
	return &Loop{
		schedule: schedule,
		job:      job,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// Run blocks until ctx is done. A failing job is logged and the loop waits
// for the next slot. When runNow is set the job runs once immediately.
func (l *Loop) Run(ctx context.Context, runNow bool) error {
	if runNow {
		l.runOnce(ctx)
	}
	for {
		now := l.now()
		next := l.schedule.Next(now)
		l.logger.Info("Next run scheduled",
			"schedule", l.schedule.String(),
			"at", next.Format(time.RFC3339),
			"in", humanize.RelTime(now, next, "ago", "from now"),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.after(next.Sub(now)):
		}
		l.runOnce(ctx)
	}
}

func (l *Loop) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := l.now()
	if err := l.job(ctx); err != nil {
		l.logger.Error("Scheduled run failed",
			"error", err.Error(),
			"duration_ms", l.now().Sub(start).Milliseconds(),
		)
		return
	}
	l.logger.Info("Scheduled run complete", "duration_ms", l.now().Sub(start).Milliseconds())
}
