// Command reviewrelay serves review sessions for local use: STOMP clients over
// WebSocket and, when a NATS URL is configured, NATS clients through the bridge.
// Both share one relay, so positions and rosters agree across them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/mcdev12/teamsync/go/internal/auth"
	"github.com/mcdev12/teamsync/go/internal/config"
	"github.com/mcdev12/teamsync/go/internal/review/gateway"
	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport/natsbus"
)

func main() {
	configPath := flag.String("config", "teamsync.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	if cfg.Relay.JWTSecret == "" {
		log.Fatal().Msg("relay.jwt_secret (TEAMSYNC_JWT_SECRET) is required")
	}

	clock := clockwork.NewRealClock()
	verifier := auth.NewVerifier(cfg.Relay.JWTSecret, clock)
	authenticate := relay.Authenticator(func(token string) (relay.Identity, error) {
		claims, err := verifier.Verify(token)
		if err != nil {
			return relay.Identity{}, err
		}
		return relay.Identity{UserID: claims.Subject, Username: claims.Username}, nil
	})
	sessions := relay.New(clock)

	gatewayService := gateway.NewService(gateway.DefaultConfig(), sessions, authenticate)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	gatewayService.RegisterRoutes(r)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/info", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gatewayService.GetStats())
	})

	server := &http.Server{
		Addr:         cfg.Relay.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	if cfg.Relay.NATSURL != "" {
		nc, err := nats.Connect(cfg.Relay.NATSURL,
			nats.Name("teamsync-relay"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn().Err(err).Msg("NATS disconnected")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			}),
		)
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.Relay.NATSURL).Msg("failed to connect to NATS")
		}
		defer nc.Drain()

		bridge := natsbus.NewBridge(nc, sessions, authenticate, natsbus.DefaultBridgeConfig())
		go func() {
			if err := bridge.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS bridge failed")
			}
		}()
	}

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Str("nats_url", cfg.Relay.NATSURL).Msg("review relay starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	log.Info().Msg("review relay shutdown complete")
}
