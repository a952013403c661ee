// Command reviewsync joins a review session headlessly: it signs in, opens a
// session view on a virtual player and drives it from stdin.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/mcdev12/teamsync/go/internal/config"
)

// options are the command-line settings of one run.
type options struct {
	configPath  string
	sessionID   string
	email       string
	password    string
	token       string
	logLevel    string
	videoLength time.Duration
}

// loadEnv reads .env files into the environment without overriding variables
// already set. A missing file is fine.
func loadEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
}

// parseFlags reads args. Credential defaults come from TEAMSYNC_EMAIL,
// TEAMSYNC_PASSWORD and TEAMSYNC_TOKEN, so loadEnv runs first.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("reviewsync", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "teamsync.yaml", "path to the YAML config file")
	fs.StringVarP(&opts.sessionID, "session", "s", "", "review session to join")
	fs.StringVar(&opts.email, "email", os.Getenv("TEAMSYNC_EMAIL"), "account email")
	fs.StringVar(&opts.password, "password", os.Getenv("TEAMSYNC_PASSWORD"), "account password")
	fs.StringVar(&opts.token, "token", os.Getenv("TEAMSYNC_TOKEN"), "bearer token to use instead of logging in")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	fs.DurationVar(&opts.videoLength, "video-length", time.Hour, "length of the simulated video")

	err := fs.Parse(args)
	return opts, err
}

func main() {
	loadEnv()

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	if opts.sessionID == "" {
		log.Fatal().Msg("--session is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services := setupServices(cfg)
	user, err := services.signIn(ctx, opts.email, opts.password, opts.token)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign in")
	}

	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("broker", cfg.Broker.Kind).
		Str("session_id", opts.sessionID).
		Msg("starting review sync")

	if _, err := services.API.JoinSession(ctx, opts.sessionID); err != nil {
		log.Fatal().Err(err).Msg("failed to join session")
	}

	view := services.openView(opts.sessionID, user, opts.videoLength.Seconds())
	if err := view.Open(ctx); err != nil {
		log.Error().Err(err).Msg("session view failed to open, type 'retry' to try again")
	}

	console := newConsole(view, services.API, os.Stdin, os.Stdout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		console.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case <-done:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := view.Leave(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to leave session")
	}
	services.Transport.Disconnect()

	log.Info().Msg("review sync shutdown complete")
}
