package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/kvchat/internal/bot"
	"github.com/antoniostano/kvchat/internal/config"
	"github.com/antoniostano/kvchat/internal/events"
	"github.com/antoniostano/kvchat/internal/history"
	"github.com/antoniostano/kvchat/internal/llm"
	"github.com/antoniostano/kvchat/internal/observability"
	"github.com/antoniostano/kvchat/internal/telegram"
)

// UpdateHandler processes one inbound platform update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) bot.Result
}

type Server struct {
	cfg      config.Config
	handler  UpdateHandler
	store    history.Store
	locker   history.Locker
	model    llm.Client
	hub      *events.Hub
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(
	cfg config.Config,
	handler UpdateHandler,
	store history.Store,
	model llm.Client,
	hub *events.Hub,
	metrics *observability.Metrics,
) *Server {
	if strings.TrimSpace(cfg.WebhookPath) == "" {
		cfg.WebhookPath = "/api"
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		store:   store,
		model:   model,
		hub:     hub,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed is bearer-protected and consumed by operator tooling, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WithLocker makes admin history writes take the same per-chat lease as update handling.
func (s *Server) WithLocker(l history.Locker) *Server {
	s.locker = l
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post(s.cfg.WebhookPath, s.handleWebhook)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	if s.cfg.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/v1/status", s.handleStatus)
			r.Get("/v1/chats/{chatID}/history", s.handleGetHistory)
			r.Delete("/v1/chats/{chatID}/history", s.handleClearHistory)
			r.Get("/v1/events/ws", s.handleEventsWS)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := s.componentChecks(r.Context())
	status, code := "ready", http.StatusOK
	for _, c := range checks {
		if c.Required && c.Status == checkError {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
