package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"billtrack/logger"
)

// DefaultRunLockTTL bounds how long a crashed run can block a user
const DefaultRunLockTTL = 5 * time.Minute

// RunLock serializes regenerate and scan runs of the same user across
// processes. Without Redis every acquisition succeeds.
type RunLock struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewRunLock creates a per-user lock
func NewRunLock(redis *RedisClient, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}
	return &RunLock{redis: redis, ttl: ttl}
}

func runLockKey(userID string) string {
	return fmt.Sprintf("billtrack:run:%s", userID)
}

// Acquire takes the user's lock. ok is false when another run holds it.
// release is always safe to call and only removes a lock this call owns.
func (l *RunLock) Acquire(ctx context.Context, userID string) (release func(), ok bool, err error) {
	noop := func() {}
	if l == nil || l.redis == nil {
		return noop, true, nil
	}

	key := runLockKey(userID)
	token := uuid.NewString()
	ok, err = l.redis.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return noop, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return noop, false, nil
	}

	release = func() {
		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := l.redis.DeleteIfEquals(ctx, key, token); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to release run lock")
		}
	}
	return release, true, nil
}
