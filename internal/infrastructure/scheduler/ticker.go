package scheduler

import (
	"context"
	"time"
)

// Job is one scheduled run; trigger is the tick time.
type Job func(ctx context.Context, trigger time.Time)

// Ticker runs a job immediately and then once per interval.
type Ticker struct {
	interval time.Duration
	now      func() time.Time
}

// NewTicker builds a ticker; a non-positive interval means run once.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval, now: time.Now}
}

// Run blocks until ctx is done. Runs never overlap.
func (t *Ticker) Run(ctx context.Context, job Job) error {
	if job == nil {
		return nil
	}

	job(ctx, t.now())
	if t.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			job(ctx, tick)
		}
	}
}
