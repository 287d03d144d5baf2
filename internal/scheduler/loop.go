// Package scheduler provides the ticker-driven loop shared by the
// dispatcher, reaper, and retention tasks: run a tick function on a fixed
// interval, skip a tick if the previous one is still running, and stop
// cleanly on context cancellation.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/drivelog/tripcore/internal/logging"
)

// TickFunc is one unit of scheduled work.
type TickFunc func(ctx context.Context) error

// Loop runs a TickFunc on a fixed interval with a re-entrancy guard: if a
// tick is still executing when the next one is due, the next tick is
// skipped rather than run concurrently.
type Loop struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   *logging.Logger
	running  int32
	lastTick int64 // unix nanos of the last completed tick, atomic
}

// New creates a named Loop. name is used in log lines and must be unique
// across the process's loops.
func New(name string, interval time.Duration, fn TickFunc, logger *logging.Logger) *Loop {
	return &Loop{name: name, interval: interval, fn: fn, logger: logger}
}

// Run blocks, ticking until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		l.logger.Debug("skipping tick, previous still running", "loop", l.name)
		return
	}
	defer atomic.StoreInt32(&l.running, 0)

	start := time.Now()
	err := l.fn(ctx)
	atomic.StoreInt64(&l.lastTick, time.Now().UnixNano())
	l.logger.LogJobExecution(l.name, time.Since(start), err)
}

// Name returns the loop's registered name.
func (l *Loop) Name() string { return l.name }

// Interval returns the loop's tick interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// LastTick returns the time of the most recently completed tick, or the
// zero Time if the loop hasn't ticked yet.
func (l *Loop) LastTick() time.Time {
	nanos := atomic.LoadInt64(&l.lastTick)
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
