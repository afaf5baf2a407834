package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"example.com/teamboard/internal/auth"
)

// Handler upgrades authenticated requests to push-channel sessions. A
// request without a valid bearer token is refused with 401 before the
// upgrade; no registry or presence state is recorded for it.
type Handler struct {
	hub      *Hub
	tokens   *auth.TokenManager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, tokens *auth.TokenManager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.Verify(bearerToken(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication failed"})
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	s := newSession(uuid.NewString(), userID, h.hub, conn, h.logger)
	h.hub.register <- s
	go s.writePump()
	go s.readPump()
}

// bearerToken reads the handshake token from the Authorization header or,
// for browser websocket clients that cannot set headers, the query string.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, found := strings.CutPrefix(header, "Bearer "); found {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
