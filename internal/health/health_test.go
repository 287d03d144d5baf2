package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/scheduler"
)

func TestCheckLoopAwaitingFirstTick(t *testing.T) {
	loop := scheduler.New("fresh", time.Hour, func(ctx context.Context) error { return nil }, logging.Default())
	checker := &Checker{startTime: time.Now()}

	dep := checker.checkLoop(loop)
	assert.Equal(t, StatusHealthy, dep.Status)
}

func TestCheckLoopHealthyAfterRecentTick(t *testing.T) {
	loop := scheduler.New("recent", 5*time.Millisecond, func(ctx context.Context) error { return nil }, logging.Default())
	checker := &Checker{startTime: time.Now()}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	dep := checker.checkLoop(loop)
	assert.Equal(t, StatusHealthy, dep.Status)
}

func TestCheckLoopUnhealthyWhenStale(t *testing.T) {
	loop := scheduler.New("stale", time.Millisecond, func(ctx context.Context) error { return nil }, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	loop.Run(ctx)
	time.Sleep(10 * time.Millisecond) // well past 3x the 1ms interval

	checker := &Checker{startTime: time.Now().Add(-time.Hour)}
	dep := checker.checkLoop(loop)
	assert.Equal(t, StatusUnhealthy, dep.Status)
	assert.Contains(t, dep.Error, "ago")
}

func TestCheckLoopUnhealthyWhenNoTickSinceStartup(t *testing.T) {
	loop := scheduler.New("dead", time.Millisecond, func(ctx context.Context) error { return nil }, logging.Default())
	checker := &Checker{startTime: time.Now().Add(-time.Hour)}

	dep := checker.checkLoop(loop)
	assert.Equal(t, StatusUnhealthy, dep.Status)
}

func TestRegisterLoopAddsDependencyEntry(t *testing.T) {
	loop := scheduler.New("registered", time.Hour, func(ctx context.Context) error { return nil }, logging.Default())
	checker := New(nil, nil, "test", "0.0.0")
	checker.RegisterLoop(loop)

	assert.Len(t, checker.loops, 1)
}
