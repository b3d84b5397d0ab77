package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/medidir/booking-engine/internal/timerange"
)

var ErrLockNotAcquired = errors.New("provider date lock not acquired")

// Locker serializes mutations of one provider's bookings for one date.
// Attempts for different providers, or the same provider on different dates,
// never contend. A guest affiliation decision touches both of the provider's
// locations on the same date, so this single key covers it too.
type Locker interface {
	WithProviderDateLock(ctx context.Context, providerID uuid.UUID, date timerange.Date, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxAttempts   int
}

// NewRedisLocker creates a locker backed by one Redis key per
// (provider, date) pair. Acquisition retries briefly so short critical
// sections are serialized rather than rejected outright.
func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration) Locker {
	return &redisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxAttempts:   20,
	}
}

func (l *redisLocker) WithProviderDateLock(ctx context.Context, providerID uuid.UUID, date timerange.Date, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:provider:%s:date:%s", providerID, date)
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire provider date lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release provider date lock: %w", err)
	}
	return nil
}
