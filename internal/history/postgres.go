package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/conversation"
)

// PostgresStore persists chat histories in PostgreSQL, one JSONB row per chat.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", ErrStoreUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	log.Info().Msg("connected to postgres history store")
	if ttl < 0 {
		ttl = 0
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_histories (
			chat_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_histories_expires ON chat_histories (expires_at) WHERE expires_at IS NOT NULL;`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Fetch(ctx context.Context, chatID string) (conversation.History, error) {
	var payload string
	err := s.pool.QueryRow(ctx,
		`SELECT payload::text FROM chat_histories
		 WHERE chat_id=$1 AND (expires_at IS NULL OR expires_at > now())`,
		chatID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.History{}, nil
		}
		return nil, ioError("select history", err)
	}
	return conversation.Unmarshal([]byte(payload))
}

func (s *PostgresStore) Replace(ctx context.Context, chatID string, h conversation.History) error {
	payload, err := conversation.Marshal(h)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if s.ttl > 0 {
		t := time.Now().UTC().Add(s.ttl)
		expiresAt = &t
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_histories (chat_id, payload, updated_at, expires_at)
		 VALUES ($1, $2::jsonb, now(), $3)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		chatID,
		string(payload),
		expiresAt,
	)
	if err != nil {
		return ioError("upsert history", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, chatID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_histories WHERE chat_id=$1`, chatID); err != nil {
		return ioError("delete history", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return ioError("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
