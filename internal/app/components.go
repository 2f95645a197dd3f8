package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/config"
	"github.com/antoniostano/kvchat/internal/history"
	"github.com/antoniostano/kvchat/internal/llm"
)

const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
)

// ComponentStatus is the typed init result of one external dependency.
type ComponentStatus struct {
	Name   string
	Status string
	Detail string
	Err    error
}

func (c ComponentStatus) Available() bool { return c.Status == StatusOK }

type storeSetup struct {
	store  history.Store
	locker history.Locker
	status ComponentStatus
}

// resolveStore opens the configured history backend. A backend that cannot be reached or
// is not configured yields the Unavailable stand-in; only invalid settings are fatal.
func resolveStore(ctx context.Context, cfg config.Config) (storeSetup, error) {
	store, locker, err := history.Open(ctx, history.Options{
		Backend:     cfg.HistoryBackend,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		KeyPrefix:   cfg.HistoryKeyPrefix,
		TTL:         cfg.HistoryTTL,
		LockTTL:     cfg.HistoryLockTTL,
		LockWait:    cfg.HistoryLockWait,
	})
	if err != nil {
		if !errors.Is(err, history.ErrStoreUnavailable) {
			return storeSetup{}, fmt.Errorf("history store init failed: %w", err)
		}
		log.Warn().Err(err).Msg("history store unavailable; chats will get the configuration reply")
		return storeSetup{
			store:  history.Unavailable{Reason: err},
			locker: history.NewLocalLocker(cfg.HistoryLockWait),
			status: ComponentStatus{Name: "store", Status: StatusUnavailable, Detail: err.Error(), Err: err},
		}, nil
	}
	return storeSetup{
		store:  store,
		locker: locker,
		status: ComponentStatus{Name: "store", Status: StatusOK, Detail: storeDetail(store)},
	}, nil
}

func storeDetail(s history.Store) string {
	switch s.(type) {
	case *history.RedisStore:
		return history.BackendRedis
	case *history.PostgresStore:
		return history.BackendPostgres
	case *history.InMemoryStore:
		return history.BackendMemory
	default:
		return "custom"
	}
}

type modelSetup struct {
	client llm.Client
	status ComponentStatus
}

func resolveModel(cfg config.Config) (modelSetup, error) {
	client, err := llm.New(llm.Config{
		Provider:      cfg.LLMProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		GeminiBaseURL: cfg.GeminiBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Timeout:       cfg.LLMTimeout,
	})
	if err != nil {
		if !errors.Is(err, llm.ErrModelUnavailable) {
			return modelSetup{}, fmt.Errorf("completion client init failed: %w", err)
		}
		log.Warn().Err(err).Msg("completion model unavailable; chats will get the configuration reply")
		return modelSetup{
			client: llm.Unavailable{Reason: err},
			status: ComponentStatus{Name: "model", Status: StatusUnavailable, Detail: err.Error(), Err: err},
		}, nil
	}
	provider := llm.ProviderName(client)
	if provider == llm.ProviderMock {
		log.Warn().Msg("using mock completion model")
	}
	return modelSetup{
		client: client,
		status: ComponentStatus{Name: "model", Status: StatusOK, Detail: provider},
	}, nil
}
