package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleEventsWS streams per-update outcome events to an operator until either side closes.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "event feed not configured")
		return
	}
	// Subscribe before the handshake completes so no event published after it is missed.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := zerolog.Ctx(r.Context())
	logger.Info().Str("subscriber", sub.ID).Msg("event feed connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Closing the conn from the writer unblocks the read loop below.
	sendClose := func(code int) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second))
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				sendClose(websocket.CloseNormalClosure)
				return
			case e, ok := <-sub.C:
				if !ok {
					sendClose(websocket.CloseGoingAway)
					_ = conn.Close()
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(e); err != nil {
					logger.Debug().Err(err).Str("subscriber", sub.ID).Msg("event feed write failed")
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// The feed is one-way; reads only drive pong and close handling.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
	logger.Info().
		Str("subscriber", sub.ID).
		Int64("dropped", sub.Dropped()).
		Msg("event feed disconnected")
}
