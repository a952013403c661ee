// Package inmem is an in-process broker that behaves like the review server:
// commands sent to /app/session/{id}/{action} come back as events on
// /topic/session/{id} for every subscriber, the sender included.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// Hub is a transport.Dialer whose links all share one relay.
type Hub struct {
	relay *relay.Relay

	mu        sync.Mutex
	users     map[string]relay.Identity // bearer token -> identity
	links     map[*link]struct{}
	available bool
	dials     int
}

func NewHub(clock clockwork.Clock) *Hub {
	return &Hub{
		relay:     relay.New(clock),
		users:     make(map[string]relay.Identity),
		links:     make(map[*link]struct{}),
		available: true,
	}
}

// Register accepts token as the credential of the given user.
func (h *Hub) Register(token, userID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[token] = relay.Identity{UserID: userID, Username: username}
}

// SetAvailable makes subsequent dials fail with a transport error while false.
func (h *Hub) SetAvailable(available bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = available
}

// Dials returns how many dial attempts the hub has seen.
func (h *Hub) Dials() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dials
}

func (h *Hub) Dial(ctx context.Context, token string) (transport.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.dials++
	if !h.available {
		return nil, fmt.Errorf("%w: broker unavailable", transport.ErrTransport)
	}
	who, ok := h.users[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", transport.ErrHandshakeFailed)
	}

	l := newLink(h, who)
	h.links[l] = struct{}{}
	go l.run()

	log.Debug().Str("user_id", who.UserID).Msg("inmem link opened")
	return l, nil
}

// DropAll severs every open link as if the broker went away.
func (h *Hub) DropAll() {
	h.mu.Lock()
	links := make([]*link, 0, len(h.links))
	for l := range h.links {
		links = append(links, l)
	}
	h.mu.Unlock()

	for _, l := range links {
		l.terminate(fmt.Errorf("%w: broker dropped the connection", transport.ErrTransport))
	}
}

// Broadcast publishes env on the session topic, bypassing the relay.
func (h *Hub) Broadcast(sessionID string, env events.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode broadcast")
		return
	}
	h.fanOut(transport.TopicDestination(sessionID), body)
}

// Position returns the relay's current playback state for the session.
func (h *Hub) Position(sessionID string) events.TransportPayload {
	return h.relay.Position(sessionID)
}

func (h *Hub) remove(l *link) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.links, l)
}

func (h *Hub) command(from *link, destination string, body []byte) error {
	sessionID, action, err := relay.ParseCommandDestination(destination)
	if err != nil {
		return err
	}
	env, err := h.relay.Handle(sessionID, action, from.who, body)
	if err != nil {
		// the server answers a bad command with silence, not a broken connection
		log.Warn().Err(err).Str("session_id", sessionID).Str("action", action).Msg("relay rejected command")
		return nil
	}
	h.Broadcast(sessionID, env)
	return nil
}

func (h *Hub) fanOut(destination string, body []byte) {
	h.mu.Lock()
	targets := make([]*link, 0, len(h.links))
	for l := range h.links {
		targets = append(targets, l)
	}
	h.mu.Unlock()

	for _, l := range targets {
		l.deliver(destination, body)
	}
}

func (h *Hub) joined(l *link, destination string) {
	sessionID, ok := transport.SessionFromTopic(destination)
	if !ok {
		return
	}
	if env, err := h.relay.Join(sessionID, l.who); err == nil {
		h.Broadcast(sessionID, env)
	}
}

func (h *Hub) left(l *link, destination string) {
	sessionID, ok := transport.SessionFromTopic(destination)
	if !ok {
		return
	}
	if env, err := h.relay.Leave(sessionID, l.who); err == nil {
		h.Broadcast(sessionID, env)
	}
}
