// Package gateway serves review sessions to STOMP clients over WebSocket,
// running every command through a relay.
package gateway

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/relay"
)

// Service is the review gateway: WebSocket connections plus event broadcasting
type Service struct {
	config            Config
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the review gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// Path the STOMP endpoint is served on. Stats live under Path + "/stats".
	Path string
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Path:             "/ws",
	}
}

func NewService(config Config, r *relay.Relay, authenticate relay.Authenticator) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, r, authenticate)

	return &Service{
		config:            config,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// Start runs the broadcaster until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("path", s.config.Path).Msg("starting review gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("review gateway service stopped")
	return nil
}

func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r, s.config.Path)
	log.Info().Msg("review gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "review_gateway"
	stats["status"] = "running"
	return stats
}
