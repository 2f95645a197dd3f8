package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/antoniostano/kvchat/internal/conversation"
	"github.com/antoniostano/kvchat/internal/history"
)

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		// Websocket clients cannot always set headers.
		if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
			return t, true
		}
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type turnView struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type historyResponse struct {
	ChatID string     `json:"chat_id"`
	Count  int        `json:"count"`
	Turns  []turnView `json:"turns"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(chi.URLParam(r, "chatID"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "missing chat id")
		return
	}
	h, err := s.store.Fetch(r.Context(), chatID)
	if err != nil {
		s.respondStoreError(w, r, "fetch", err)
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		ChatID: chatID,
		Count:  len(h),
		Turns:  viewTurns(h),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimSpace(chi.URLParam(r, "chatID"))
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "missing chat id")
		return
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(r.Context(), chatID)
		if err != nil {
			s.respondStoreError(w, r, "lock", err)
			return
		}
		defer release()
	}
	if err := s.store.Clear(r.Context(), chatID); err != nil {
		s.respondStoreError(w, r, "clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zerolog.Ctx(r.Context()).Warn().Err(err).Str("op", op).Msg("admin history request failed")
	switch {
	case errors.Is(err, history.ErrLockBusy):
		respondError(w, http.StatusConflict, "chat_busy", err.Error())
	case errors.Is(err, history.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	case errors.Is(err, conversation.ErrSerialization):
		respondError(w, http.StatusUnprocessableEntity, "malformed_history", err.Error())
	default:
		if s.metrics != nil {
			s.metrics.StoreErrors.WithLabelValues(op).Inc()
		}
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
	}
}

func viewTurns(h conversation.History) []turnView {
	out := make([]turnView, 0, len(h))
	for _, t := range h {
		out = append(out, turnView{Role: string(t.Role), Text: t.Text()})
	}
	return out
}
