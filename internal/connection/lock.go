package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker hands out short-lived per-VIN locks via Redis SET NX PX, giving the
// dispatcher its "exactly one processor per VIN at a time" guarantee even
// across multiple dispatcher instances.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Locker with the given lock TTL. ttl should comfortably
// exceed one dispatcher tick's processing time for a single VIN.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: "vin-lock", ttl: ttl}
}

// TryLock attempts to acquire the per-VIN lock, returning a release token and
// true on success, or false if another processor already holds it.
func (l *Locker) TryLock(ctx context.Context, vin string) (string, bool, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	key := l.key(vin)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("connection: acquire lock for %s: %w", vin, err)
	}
	return token, ok, nil
}

// Release drops the lock for vin only if token still matches the holder,
// so a lock that expired and was re-acquired by another processor is never
// stolen back.
func (l *Locker) Release(ctx context.Context, vin, token string) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, l.client, []string{l.key(vin)}, token).Err(); err != nil {
		return fmt.Errorf("connection: release lock for %s: %w", vin, err)
	}
	return nil
}

func (l *Locker) key(vin string) string {
	return fmt.Sprintf("%s:%s", l.prefix, vin)
}
