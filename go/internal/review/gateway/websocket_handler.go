package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/relay"
)

// WebSocketHandler handles WebSocket upgrade requests for review sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleSessionConnection upgrades a client. A bearer token on the upgrade
// request is checked here and answered with 401 when invalid; without one the
// client must authenticate in its CONNECT frame.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	var who relay.Identity
	if authorization := r.Header.Get("Authorization"); authorization != "" {
		var err error
		who, err = h.connectionManager.authenticate.Authenticate(authorization)
		if err != nil {
			log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected WebSocket upgrade")
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
	}

	// on failure the upgrader has already answered the request
	if err := h.connectionManager.UpgradeConnection(w, r, who); err != nil {
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes mounts the upgrade endpoint at path and the stats under it.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router, path string) {
	r.Get(path, h.HandleSessionConnection)
	r.Get(path+"/stats", h.HandleConnectionStats)
}
