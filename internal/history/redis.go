package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/conversation"
)

// LockKeyPrefix namespaces lease keys so they never collide with history records.
const LockKeyPrefix = "lock:"

// RedisStore keeps each chat's history as one JSON string value. With an empty prefix
// the key is the bare chat id.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, redisURL, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("%w: redis URL must be provided", ErrStoreUnavailable)
	}

	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis URL: %v", ErrStoreUnavailable, err)
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("ignoring non-zero DB for redis cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect redis: %v", ErrStoreUnavailable, err)
	}

	log.Info().Int("addrs", len(opts.Addrs)).Msg("connected to redis history store")
	return newRedisStoreWithClient(client, keyPrefix, ttl), nil
}

func newRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: keyPrefix, ttl: ttl}
}

// buildUniversalOptions accepts a single redis:// or rediss:// URL, or a comma-separated
// list of URLs and host:port pairs for cluster deployments.
func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("no redis addresses provided")
	}
	return opts, nil
}

func (s *RedisStore) key(chatID string) string {
	return s.prefix + chatID
}

func (s *RedisStore) Fetch(ctx context.Context, chatID string) (conversation.History, error) {
	raw, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversation.History{}, nil
		}
		return nil, ioError("get", err)
	}
	return conversation.Unmarshal(raw)
}

func (s *RedisStore) Replace(ctx context.Context, chatID string, h conversation.History) error {
	payload, err := conversation.Marshal(h)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(chatID), payload, s.ttl).Err(); err != nil {
		return ioError("set", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, chatID string) error {
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		return ioError("del", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return ioError("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
