package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLocker serialises mutations of one session across instances.
// Without redis it hands out no-op locks and the database row lock is the only guard.
type SessionLocker struct {
	helper     *CacheHelper
	ttl        time.Duration
	retryDelay time.Duration
	retries    int
}

func NewSessionLocker(helper *CacheHelper, ttl time.Duration) *SessionLocker {
	return &SessionLocker{
		helper:     helper,
		ttl:        ttl,
		retryDelay: 50 * time.Millisecond,
		retries:    20,
	}
}

func sessionLockKey(sessionID uint) string {
	return fmt.Sprintf("lock:session:%d", sessionID)
}

// Acquire blocks briefly while another holder owns the lock. The returned
// release function is always safe to call.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID uint) (func(), error) {
	if !l.helper.Available() {
		return func() {}, nil
	}

	key := l.helper.GetCacheKey(sessionLockKey(sessionID))
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.helper.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.helper.client, []string{key}, token).Err()
	}, nil
}
