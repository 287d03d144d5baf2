// Package health exposes liveness/readiness checks for the database and
// Redis dependencies the trip detection core relies on.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/drivelog/tripcore/internal/scheduler"
)

// Status is a dependency or overall health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Checker reports the health of the core's dependencies.
type Checker struct {
	db          *gorm.DB
	redis       *redis.Client
	startTime   time.Time
	serviceName string
	version     string
	mu          sync.RWMutex
	loops       []*scheduler.Loop
}

// New creates a health Checker.
func New(db *gorm.DB, redisClient *redis.Client, serviceName, version string) *Checker {
	return &Checker{
		db:          db,
		redis:       redisClient,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// RegisterLoop adds a background loop to the readiness heartbeat check. A
// loop is considered stale once it goes more than 3 intervals without a
// completed tick.
func (c *Checker) RegisterLoop(loop *scheduler.Loop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loops = append(c.loops, loop)
}

// Response is the JSON body returned by the health endpoints.
type Response struct {
	Status       Status                `json:"status"`
	Timestamp    time.Time             `json:"timestamp"`
	Service      string                `json:"service"`
	Version      string                `json:"version"`
	Uptime       string                `json:"uptime"`
	Dependencies map[string]Dependency `json:"dependencies,omitempty"`
	Errors       []string              `json:"errors,omitempty"`
}

// Dependency is a single dependency's check result.
type Dependency struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Liveness is the cheap liveness probe — always healthy if the process can
// respond at all.
func (c *Checker) Liveness() Response {
	return Response{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Service:   c.serviceName,
		Version:   c.version,
		Uptime:    c.uptime(),
	}
}

// Readiness checks the database and Redis and reports overall status:
// unhealthy if the database is down (nothing works without it), degraded if
// only Redis is down (locking/caching impaired, core logic still runs).
func (c *Checker) Readiness(ctx context.Context) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resp := Response{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Service:      c.serviceName,
		Version:      c.version,
		Uptime:       c.uptime(),
		Dependencies: make(map[string]Dependency, 2),
		Errors:       []string{},
	}

	dbDep := c.checkDatabase(ctx)
	resp.Dependencies["database"] = dbDep
	if dbDep.Status != StatusHealthy {
		resp.Status = StatusUnhealthy
		resp.Errors = append(resp.Errors, fmt.Sprintf("database: %s", dbDep.Error))
	}

	redisDep := c.checkRedis(ctx)
	resp.Dependencies["redis"] = redisDep
	if redisDep.Status != StatusHealthy && resp.Status == StatusHealthy {
		resp.Status = StatusDegraded
	}
	if redisDep.Error != "" {
		resp.Errors = append(resp.Errors, fmt.Sprintf("redis: %s", redisDep.Error))
	}

	for _, loop := range c.loops {
		dep := c.checkLoop(loop)
		resp.Dependencies["loop:"+loop.Name()] = dep
		if dep.Status != StatusHealthy {
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
			resp.Errors = append(resp.Errors, fmt.Sprintf("loop:%s: %s", loop.Name(), dep.Error))
		}
	}

	return resp
}

// checkLoop reports a background loop stale once it has gone more than 3
// intervals without a completed tick — a single skipped tick (overlap
// guard) is normal, a run of them means the loop is wedged.
func (c *Checker) checkLoop(loop *scheduler.Loop) Dependency {
	last := loop.LastTick()
	if last.IsZero() {
		if time.Since(c.startTime) < loop.Interval() {
			return Dependency{Status: StatusHealthy, Message: "awaiting first tick"}
		}
		return Dependency{Status: StatusUnhealthy, Error: "no tick since startup"}
	}
	age := time.Since(last)
	if age > 3*loop.Interval() {
		return Dependency{Status: StatusUnhealthy, Error: fmt.Sprintf("last tick %s ago", age.Round(time.Second))}
	}
	return Dependency{Status: StatusHealthy, Message: fmt.Sprintf("last tick %s ago", age.Round(time.Second))}
}

func (c *Checker) checkDatabase(ctx context.Context) Dependency {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	sqlDB, err := c.db.DB()
	if err != nil {
		return Dependency{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}
	if err := sqlDB.PingContext(checkCtx); err != nil {
		return Dependency{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}

	latency := time.Since(start).Milliseconds()
	if latency > 1000 {
		return Dependency{Status: StatusDegraded, LatencyMs: latency, Message: "slow response"}
	}
	return Dependency{Status: StatusHealthy, LatencyMs: latency, Message: "connected"}
}

func (c *Checker) checkRedis(ctx context.Context) Dependency {
	if c.redis == nil {
		return Dependency{Status: StatusUnhealthy, Error: "redis not configured"}
	}

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.redis.Ping(checkCtx).Err(); err != nil {
		return Dependency{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
	}

	latency := time.Since(start).Milliseconds()
	if latency > 500 {
		return Dependency{Status: StatusDegraded, LatencyMs: latency, Message: "slow response"}
	}
	return Dependency{Status: StatusHealthy, LatencyMs: latency, Message: "connected"}
}

func (c *Checker) uptime() string {
	d := time.Since(c.startTime)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
