package httpapi

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/antoniostano/kvchat/internal/telegram"
)

const maxUpdateBytes = 1 << 20

// handleWebhook always acknowledges updates with 200 so the platform does not redeliver them.
// Only a secret mismatch is rejected, since such a request did not come from the platform.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	if !telegram.VerifySecret(r.Header.Get(telegram.SecretHeader), s.cfg.TelegramWebhookSecret) {
		logger.Warn().Msg("webhook secret mismatch")
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBytes)
	var u telegram.Update
	if err := decodeJSON(r, &u); err != nil {
		logger.Warn().Err(err).Msg("decode update")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx := r.Context()
	if s.cfg.UpdateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UpdateTimeout)
		defer cancel()
	}
	if s.handler != nil {
		s.handler.HandleUpdate(ctx, u)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
