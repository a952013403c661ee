package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// BridgeConfig holds configuration for the relay bridge
type BridgeConfig struct {
	CommandSubject string // e.g., "app.session.*.*"
	QueueGroup     string
	BufferSize     int
}

// DefaultBridgeConfig returns default bridge configuration
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		CommandSubject: "app.session.*.*",
		QueueGroup:     "review-relay",
		BufferSize:     100,
	}
}

// Bridge consumes session commands from NATS, runs them through the relay and
// publishes the resulting events on the session topic subject.
type Bridge struct {
	nc           *nats.Conn
	relay        *relay.Relay
	authenticate relay.Authenticator
	config       BridgeConfig
}

func NewBridge(nc *nats.Conn, r *relay.Relay, authenticate relay.Authenticator, config BridgeConfig) *Bridge {
	return &Bridge{
		nc:           nc,
		relay:        r,
		authenticate: authenticate,
		config:       config,
	}
}

// Start consumes commands until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	log.Info().
		Str("subject", b.config.CommandSubject).
		Str("queue", b.config.QueueGroup).
		Msg("starting review relay bridge")

	messageCh := make(chan *nats.Msg, b.config.BufferSize)
	sub, err := b.nc.ChanQueueSubscribe(b.config.CommandSubject, b.config.QueueGroup, messageCh)
	if err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("review relay bridge shutting down")
			return nil
		case msg := <-messageCh:
			if err := b.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject).
					Msg("failed to process command")
			}
		}
	}
}

func (b *Bridge) processMessage(msg *nats.Msg) error {
	subject, body, err := b.route(msg.Subject, msg.Header.Get(AuthorizationHeader), msg.Data)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// route turns one command into the subject and body of the event to broadcast.
func (b *Bridge) route(subject, authorization string, data []byte) (string, []byte, error) {
	who, err := b.authenticate.Authenticate(authorization)
	if err != nil {
		return "", nil, err
	}

	sessionID, action, err := relay.ParseCommandDestination(Destination(subject))
	if err != nil {
		return "", nil, err
	}

	env, err := b.relay.Handle(sessionID, action, who, data)
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", nil, fmt.Errorf("encode event: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("action", action).
		Str("user_id", who.UserID).
		Msg("relayed session command")

	return Subject(transport.TopicDestination(sessionID)), body, nil
}
