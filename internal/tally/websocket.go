package tally

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jaydahhei/reviewer2/internal/domain"
)

const keepaliveInterval = 30 * time.Second

// WebSocketHandler streams live counter updates to browser clients.
type WebSocketHandler struct {
	svc           *Service
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a handler for the live tally feed.
func NewWebSocketHandler(svc *Service, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{svc: svc, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP upgrades the connection and pushes counter updates until the
// client disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept tally WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			slog.Debug("Failed to close tally websocket", "error", closeErr)
		}
	}()

	// The feed is push-only; CloseRead discards client frames and cancels the
	// context when the connection drops.
	ctx := ws.CloseRead(r.Context())

	updates, cancel := h.svc.Subscribe()
	defer cancel()

	// Seed the client with the current values before streaming deltas.
	snapshot, err := h.svc.Snapshot(ctx)
	if err != nil {
		slog.Warn("Failed to read tally snapshot for feed", "error", err)
	} else {
		seed := []Update{
			{Counter: domain.CounterSubmissions, Value: snapshot.Submissions},
			{Counter: domain.CounterAccepted, Value: snapshot.Accepted},
			{Counter: domain.CounterRejected, Value: snapshot.Rejected},
		}
		for _, u := range seed {
			if err := writeJSON(ctx, ws, u); err != nil {
				slog.Debug("Failed to seed tally feed", "error", err)
				return
			}
		}
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := writeJSON(ctx, ws, update); err != nil {
				slog.Debug("Failed to write tally update", "error", err)
				return
			}
		case <-keepalive.C:
			if err := ws.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.allowedOrigin
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
