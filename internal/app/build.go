package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/kvchat/internal/bot"
	"github.com/antoniostano/kvchat/internal/config"
	"github.com/antoniostano/kvchat/internal/events"
	"github.com/antoniostano/kvchat/internal/history"
	"github.com/antoniostano/kvchat/internal/httpapi"
	"github.com/antoniostano/kvchat/internal/llm"
	"github.com/antoniostano/kvchat/internal/observability"
	"github.com/antoniostano/kvchat/internal/telegram"
)

const webhookRegisterTimeout = 10 * time.Second

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *bot.Orchestrator
	Store        history.Store
	Model        llm.Client
	// Telegram is nil when no bot token is configured.
	Telegram *telegram.Client
	Events   *events.Hub
	Metrics  *observability.Metrics

	StoreStatus ComponentStatus
	ModelStatus ComponentStatus

	// Cleanup should be called on shutdown to release external resources (redis, postgres).
	Cleanup func() error
}

// Build constructs every service explicitly. Missing or unreachable dependencies do not fail
// the build; they are reported in StoreStatus/ModelStatus and served by typed stand-ins.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*BuildResult, error) {
	metrics := observability.NewMetricsWith(reg, cfg.MetricsNamespace)

	storeSetup, err := resolveStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	modelSetup, err := resolveModel(cfg)
	if err != nil {
		_ = storeSetup.store.Close()
		return nil, err
	}

	var (
		tg     *telegram.Client
		sender bot.Sender
	)
	if cfg.TelegramToken != "" {
		tg = telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramToken, cfg.TelegramTimeout)
		sender = tg
	} else {
		log.Warn().Msg("TELEGRAM_TOKEN is not set; replies will be dropped")
	}

	hub := events.NewHub(64)
	hub.SetCountHook(func(active int) {
		metrics.EventSubscribers.Set(float64(active))
	})

	orchestrator := bot.NewOrchestrator(
		storeSetup.store,
		storeSetup.locker,
		modelSetup.client,
		sender,
		metrics,
		hub,
		bot.Options{
			Replies: bot.Replies{
				Reset:    cfg.ReplyReset,
				Apology:  cfg.ReplyApology,
				Config:   cfg.ReplyConfig,
				Degraded: cfg.ReplyDegraded,
				Busy:     cfg.ReplyBusy,
			},
			Persona: bot.Persona{
				Enabled:         cfg.PersonaEnabled,
				Instruction:     cfg.PersonaInstruction,
				Acknowledgement: cfg.PersonaAck,
			},
			MaxTurns: cfg.HistoryMaxTurns,
		},
	)

	api := httpapi.New(cfg, orchestrator, storeSetup.store, modelSetup.client, hub, metrics).
		WithLocker(storeSetup.locker)

	store := storeSetup.store
	cleanup := func() error {
		var errs []string
		hub.Close()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Store:        storeSetup.store,
		Model:        modelSetup.client,
		Telegram:     tg,
		Events:       hub,
		Metrics:      metrics,
		StoreStatus:  storeSetup.status,
		ModelStatus:  modelSetup.status,
		Cleanup:      cleanup,
	}, nil
}

// RegisterWebhook points the platform at TELEGRAM_WEBHOOK_URL. It is a no-op when either
// the URL or the bot token is missing.
func (b *BuildResult) RegisterWebhook(ctx context.Context) error {
	url := strings.TrimSpace(b.Config.TelegramWebhookURL)
	if url == "" || b.Telegram == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, webhookRegisterTimeout)
	defer cancel()
	if err := b.Telegram.SetWebhook(ctx, url, b.Config.TelegramWebhookSecret); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return nil
}
