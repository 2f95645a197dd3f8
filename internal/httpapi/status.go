package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/antoniostano/kvchat/internal/history"
	"github.com/antoniostano/kvchat/internal/llm"
)

const (
	checkOK    = "ok"
	checkWarn  = "warn"
	checkError = "error"
)

type componentCheck struct {
	ID       string `json:"id"`
	Status   string `json:"status"` // ok|warn|error
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Detail   string `json:"detail,omitempty"`
	Fix      string `json:"fix,omitempty"`
}

type statusResponse struct {
	WebhookPath     string           `json:"webhook_path"`
	SecretRequired  bool             `json:"webhook_secret_required"`
	ModelProvider   string           `json:"model_provider"`
	HistoryMaxTurns int              `json:"history_max_turns"`
	EventFeedOpen   int              `json:"event_subscribers"`
	Checks          []componentCheck `json:"checks"`
}

// componentChecks reports the store, model and messaging components. Only the store and
// model gate readiness.
func (s *Server) componentChecks(ctx context.Context) []componentCheck {
	checks := make([]componentCheck, 0, 3)
	checks = append(checks, s.storeCheck(ctx), s.modelCheck())

	telegramCheck := componentCheck{ID: "telegram", Label: "Telegram replies", Status: checkOK}
	if s.cfg.TelegramToken == "" {
		telegramCheck.Status = checkWarn
		telegramCheck.Detail = "no bot token configured; replies are dropped"
		telegramCheck.Fix = "Set TELEGRAM_TOKEN."
	}
	checks = append(checks, telegramCheck)
	return checks
}

func (s *Server) storeCheck(ctx context.Context) componentCheck {
	c := componentCheck{ID: "store", Label: "History store", Required: true, Status: checkOK}
	if s.store == nil {
		c.Status, c.Detail = checkError, "not configured"
		return c
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(pingCtx); err != nil {
		c.Status, c.Detail = checkError, err.Error()
		if _, ok := s.store.(history.Unavailable); ok {
			c.Fix = "Set REDIS_URL (or KV_URL) or DATABASE_URL."
		}
	}
	return c
}

func (s *Server) modelCheck() componentCheck {
	c := componentCheck{ID: "model", Label: "Completion model", Required: true, Status: checkOK}
	switch m := s.model.(type) {
	case nil:
		c.Status, c.Detail = checkError, "not configured"
	case llm.Unavailable:
		c.Status = checkError
		if m.Reason != nil {
			c.Detail = m.Reason.Error()
		}
		c.Fix = "Set GEMINI_API_KEY or OPENAI_API_KEY."
	default:
		c.Detail = llm.ProviderName(m)
		if c.Detail == llm.ProviderMock {
			c.Status = checkWarn
		}
	}
	return c
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		WebhookPath:     s.cfg.WebhookPath,
		SecretRequired:  s.cfg.TelegramWebhookSecret != "",
		ModelProvider:   llm.ProviderName(s.model),
		HistoryMaxTurns: s.cfg.HistoryMaxTurns,
		Checks:          s.componentChecks(r.Context()),
	}
	if s.hub != nil {
		resp.EventFeedOpen = s.hub.Count()
	}
	respondJSON(w, http.StatusOK, resp)
}
