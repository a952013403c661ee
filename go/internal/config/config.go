package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/teamsync/go/internal/review/reconciler"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

const envPrefix = "TEAMSYNC_"

// Broker kinds
const (
	BrokerStomp = "stomp"
	BrokerNATS  = "nats"
)

// Config holds everything the review binaries read at startup.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url" validate:"required,url"`
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	} `yaml:"api"`

	Broker struct {
		Kind      string        `yaml:"kind" validate:"oneof=stomp nats"`
		URL       string        `yaml:"url" validate:"required,url"`
		HeartBeat time.Duration `yaml:"heartbeat" validate:"gte=0"`
	} `yaml:"broker"`

	Transport struct {
		ConnectTimeout       time.Duration `yaml:"connect_timeout" validate:"gt=0"`
		ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" validate:"gt=0"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" validate:"gte=0"`
	} `yaml:"transport"`

	Review struct {
		PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
		SettleDelay  time.Duration `yaml:"settle_delay" validate:"gte=0"`
	} `yaml:"review"`

	Relay struct {
		Addr      string `yaml:"addr" validate:"required"`
		JWTSecret string `yaml:"jwt_secret"`
		NATSURL   string `yaml:"nats_url" validate:"omitempty,url"`
	} `yaml:"relay"`

	Log struct {
		Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
	} `yaml:"log"`
}

// Default returns the settings the client ships with.
func Default() *Config {
	var c Config
	c.API.BaseURL = "http://localhost:8080"
	c.API.Timeout = 30 * time.Second

	c.Broker.Kind = BrokerStomp
	c.Broker.URL = "ws://localhost:8080/ws"
	c.Broker.HeartBeat = 10 * time.Second

	t := transport.DefaultConfig()
	c.Transport.ConnectTimeout = t.ConnectTimeout
	c.Transport.ReconnectBaseDelay = t.ReconnectBaseDelay
	c.Transport.MaxReconnectAttempts = t.MaxReconnectAttempts

	r := reconciler.DefaultConfig()
	c.Review.PollInterval = r.PollInterval
	c.Review.SettleDelay = r.SettleDelay

	c.Relay.Addr = ":8081"

	c.Log.Level = "info"
	return &c
}

// Load reads the YAML file at path over the defaults, then applies TEAMSYNC_*
// environment overrides and validates the result. An empty path or a missing
// file leaves the defaults in place.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	c.applyEnv()

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.Timeout = getEnvAsDuration("API_TIMEOUT", c.API.Timeout)

	c.Broker.Kind = strings.ToLower(getEnv("BROKER_KIND", c.Broker.Kind))
	c.Broker.URL = getEnv("BROKER_URL", c.Broker.URL)
	c.Broker.HeartBeat = getEnvAsDuration("BROKER_HEARTBEAT", c.Broker.HeartBeat)

	c.Transport.ConnectTimeout = getEnvAsDuration("CONNECT_TIMEOUT", c.Transport.ConnectTimeout)
	c.Transport.ReconnectBaseDelay = getEnvAsDuration("RECONNECT_BASE_DELAY", c.Transport.ReconnectBaseDelay)
	c.Transport.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", c.Transport.MaxReconnectAttempts)

	c.Review.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.Review.PollInterval)
	c.Review.SettleDelay = getEnvAsDuration("SETTLE_DELAY", c.Review.SettleDelay)

	c.Relay.Addr = getEnv("RELAY_ADDR", c.Relay.Addr)
	c.Relay.JWTSecret = getEnv("JWT_SECRET", c.Relay.JWTSecret)
	c.Relay.NATSURL = getEnv("NATS_URL", c.Relay.NATSURL)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
}

// TransportConfig is the connection policy for transport.NewManager.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		ConnectTimeout:       c.Transport.ConnectTimeout,
		ReconnectBaseDelay:   c.Transport.ReconnectBaseDelay,
		MaxReconnectAttempts: c.Transport.MaxReconnectAttempts,
	}
}

// ReviewConfig is the timing for reconciler.New.
func (c *Config) ReviewConfig() reconciler.Config {
	return reconciler.Config{
		SettleDelay:  c.Review.SettleDelay,
		PollInterval: c.Review.PollInterval,
	}
}

// LogLevel parses Log.Level, which Load has already validated.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
