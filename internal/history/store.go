package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/kvchat/internal/conversation"
)

var (
	// ErrStoreUnavailable means the backing store was never connected.
	ErrStoreUnavailable = errors.New("history store unavailable")
	// ErrStoreIO means a call to a connected store failed or timed out.
	ErrStoreIO = errors.New("history store request failed")
	// ErrLockBusy means the per-chat lease could not be acquired in time.
	ErrLockBusy = errors.New("history lease busy")
	// ErrSerialization is returned by Fetch when the stored record is malformed.
	ErrSerialization = conversation.ErrSerialization
)

// Store persists one conversation history per chat.
type Store interface {
	// Fetch returns the stored history, or an empty history when there is no record.
	Fetch(ctx context.Context, chatID string) (conversation.History, error)
	// Replace overwrites the full record for chatID.
	Replace(ctx context.Context, chatID string, h conversation.History) error
	// Clear deletes the record. Clearing a missing record is not an error.
	Clear(ctx context.Context, chatID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Locker hands out a per-chat lease held for one fetch-generate-replace cycle.
type Locker interface {
	Acquire(ctx context.Context, chatID string) (release func(), err error)
}

const (
	BackendAuto     = "auto"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options controls store construction.
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	KeyPrefix   string
	TTL         time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
}

// Open connects the configured backend and returns it together with a matching Locker.
// Redis gets a distributed lease; every other backend gets an in-process one.
func Open(ctx context.Context, opts Options) (Store, Locker, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendAuto
	}
	if backend == BackendAuto {
		switch {
		case strings.TrimSpace(opts.RedisURL) != "":
			backend = BackendRedis
		case strings.TrimSpace(opts.DatabaseURL) != "":
			backend = BackendPostgres
		default:
			return nil, nil, fmt.Errorf("%w: no REDIS_URL or DATABASE_URL configured", ErrStoreUnavailable)
		}
	}

	switch backend {
	case BackendRedis:
		s, err := NewRedisStore(ctx, opts.RedisURL, opts.KeyPrefix, opts.TTL)
		if err != nil {
			return nil, nil, err
		}
		return s, NewRedisLocker(s.client, opts.KeyPrefix, opts.LockTTL, opts.LockWait), nil
	case BackendPostgres:
		s, err := NewPostgresStore(ctx, opts.DatabaseURL, opts.TTL)
		if err != nil {
			return nil, nil, err
		}
		return s, NewLocalLocker(opts.LockWait), nil
	case BackendMemory:
		return NewInMemoryStore(), NewLocalLocker(opts.LockWait), nil
	default:
		return nil, nil, fmt.Errorf("unsupported history backend %q", opts.Backend)
	}
}

// Unavailable is the Store used when the configured backend could not be opened at startup.
// Every call fails with ErrStoreUnavailable.
type Unavailable struct {
	Reason error
}

func (u Unavailable) err() error {
	if u.Reason == nil {
		return ErrStoreUnavailable
	}
	if errors.Is(u.Reason, ErrStoreUnavailable) {
		return u.Reason
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, u.Reason)
}

func (u Unavailable) Fetch(context.Context, string) (conversation.History, error) {
	return nil, u.err()
}

func (u Unavailable) Replace(context.Context, string, conversation.History) error { return u.err() }

func (u Unavailable) Clear(context.Context, string) error { return u.err() }

func (u Unavailable) Ping(context.Context) error { return u.err() }

func (u Unavailable) Close() error { return nil }

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreIO, op, err)
}
