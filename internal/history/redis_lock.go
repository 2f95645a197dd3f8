package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultLockTTL   = 60 * time.Second
	defaultLockWait  = 30 * time.Second
	lockRetryDelay   = 200 * time.Millisecond
	lockReleaseLimit = 2 * time.Second
)

// RedisLocker serializes same-chat updates across processes with a redsync mutex.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	ttl    time.Duration
	tries  int
}

func NewRedisLocker(client redis.UniversalClient, keyPrefix string, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	tries := int(wait / lockRetryDelay)
	if tries < 1 {
		tries = 1
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: keyPrefix,
		ttl:    ttl,
		tries:  tries,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, chatID string) (func(), error) {
	mutex := l.rs.NewMutex(
		LockKeyPrefix+l.prefix+chatID,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockBusy, ctx.Err())
		}
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken") {
			return nil, fmt.Errorf("%w: %v", ErrLockBusy, err)
		}
		return nil, ioError("lock", err)
	}

	return func() {
		// The request context may already be done; release on a fresh deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseLimit)
		defer cancel()
		if _, err := mutex.UnlockContext(releaseCtx); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID).Msg("release history lease")
		}
	}, nil
}
