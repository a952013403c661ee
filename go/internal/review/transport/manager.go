package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Config holds the connection and reconnection policy of a Manager
type Config struct {
	ConnectTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the policy the review client ships with
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:       10 * time.Second,
		ReconnectBaseDelay:   3 * time.Second,
		MaxReconnectAttempts: 3,
	}
}

// Handler receives the raw body of every message on a subscribed session topic.
type Handler func(body []byte)

// Subscription is the registration of one session's event stream.
type Subscription struct {
	SessionID   string
	Destination string

	handler Handler
	active  atomic.Bool
	remote  LinkSubscription // nil while the link is down
}

func (s *Subscription) deliver(body []byte) {
	if !s.active.Load() {
		return
	}
	s.handler(body)
}

// Active reports whether the subscription still delivers messages.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Manager owns the single broker connection shared by every open session view
// and brokers per-session subscriptions on top of it.
type Manager struct {
	dialer Dialer
	creds  Credentials
	clock  clockwork.Clock
	config Config

	connectGroup singleflight.Group

	mu          sync.Mutex
	link        Link
	state       State
	tearingDown bool
	generation  uint64        // bumped by every caller-initiated Disconnect
	stop        chan struct{} // closed by Disconnect to wake pending backoff waits
	subs        map[string]*Subscription
	holders     int // session views between Acquire and Release

	listenersMu sync.Mutex
	listeners   map[int]func(State)
	nextID      int
}

// NewManager creates a disconnected Manager.
func NewManager(config Config, dialer Dialer, creds Credentials, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		dialer:    dialer,
		creds:     creds,
		clock:     clock,
		config:    config,
		state:     StateDisconnected,
		stop:      make(chan struct{}),
		subs:      make(map[string]*Subscription),
		listeners: make(map[int]func(State)),
	}
}

// OnStateChange registers fn to be called on every state transition. The returned
// func removes the listener.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected is true only once the handshake completed and no teardown is running.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedLocked()
}

func (m *Manager) connectedLocked() bool {
	return m.link != nil && m.state == StateConnected && !m.tearingDown
}

// Connect establishes the link using the token current at call time. Concurrent
// callers share one in-flight attempt; ctx only bounds how long this caller waits.
func (m *Manager) Connect(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	ch := m.connectGroup.DoChan("connect", func() (any, error) {
		return nil, m.dial(nil)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dial performs one connection attempt. When expectGen is set the attempt is
// abandoned if a Disconnect happened since the caller read the generation.
func (m *Manager) dial(expectGen *uint64) error {
	m.mu.Lock()
	if m.connectedLocked() {
		m.mu.Unlock()
		return nil
	}
	gen := m.generation
	if expectGen != nil && *expectGen != gen {
		m.mu.Unlock()
		return ErrClosed
	}
	token, ok := m.creds.BearerToken()
	if !ok || token == "" {
		m.mu.Unlock()
		return ErrNoCredential
	}
	reconnecting := m.state == StateReconnecting
	if !reconnecting {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	if !reconnecting {
		m.notify(StateConnecting)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	log.Debug().Bool("reconnecting", reconnecting).Msg("dialing broker")

	link, err := m.dialer.Dial(ctx, token)
	if err != nil {
		err = classifyDialError(ctx, err)
		m.mu.Lock()
		changed := m.state == StateConnecting
		if changed {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		if changed {
			m.notify(StateDisconnected)
		}
		log.Error().Err(err).Msg("broker connection failed")
		return err
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		_ = link.Close()
		log.Debug().Msg("discarding link established during disconnect")
		return ErrClosed
	}
	m.link = link
	m.state = StateConnected
	m.tearingDown = false
	m.resubscribeLocked(link)
	subCount := len(m.subs)
	m.mu.Unlock()

	log.Info().
		Bool("reconnected", reconnecting).
		Int("subscriptions", subCount).
		Msg("connected to broker")

	m.notify(StateConnected)
	go m.watch(link, gen)

	return nil
}

func classifyDialError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrHandshakeFailed), errors.Is(err, ErrTransport):
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

// resubscribeLocked re-establishes retained subscriptions on a fresh link.
func (m *Manager) resubscribeLocked(link Link) {
	for sid, sub := range m.subs {
		remote, err := link.Subscribe(sub.Destination, sub.deliver)
		if err != nil {
			log.Error().Err(err).Str("session_id", sid).Msg("failed to restore subscription")
			continue
		}
		sub.remote = remote
		log.Debug().Str("session_id", sid).Msg("subscription restored")
	}
}

// watch waits for the link to go away and starts the reconnect policy unless the
// caller tore it down.
func (m *Manager) watch(link Link, gen uint64) {
	<-link.Done()

	m.mu.Lock()
	if m.link != link {
		m.mu.Unlock()
		return
	}
	m.link = nil
	for _, sub := range m.subs {
		sub.remote = nil
	}
	if m.generation != gen || m.tearingDown {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notify(StateDisconnected)
		return
	}
	m.state = StateReconnecting
	stop := m.stop
	m.mu.Unlock()

	log.Warn().Err(link.Err()).Msg("broker connection lost")
	m.notify(StateReconnecting)

	m.reconnect(gen, stop)
}

// reconnect retries with linear backoff: attempt n waits n × base delay.
func (m *Manager) reconnect(gen uint64, stop <-chan struct{}) {
	for attempt := 1; attempt <= m.config.MaxReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * m.config.ReconnectBaseDelay

		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", m.config.MaxReconnectAttempts).
			Dur("delay", delay).
			Msg("scheduling reconnect")

		select {
		case <-m.clock.After(delay):
		case <-stop:
			log.Debug().Msg("reconnect cancelled by disconnect")
			return
		}

		_, err, _ := m.connectGroup.Do("connect", func() (any, error) {
			return nil, m.dial(&gen)
		})
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}

	m.mu.Lock()
	if m.generation != gen || m.link != nil {
		m.mu.Unlock()
		return
	}
	m.state = StateFailed
	m.mu.Unlock()

	log.Error().Int("attempts", m.config.MaxReconnectAttempts).Msg("giving up on reconnect")
	m.notify(StateFailed)
}

// Disconnect unsubscribes everything and closes the link. It never triggers the
// reconnect policy and is a no-op when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.generation++
	close(m.stop)
	m.stop = make(chan struct{})

	if m.link == nil && len(m.subs) == 0 && m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.tearingDown = true
	link := m.link
	subs := m.subs
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	log.Info().Int("subscriptions", len(subs)).Msg("disconnecting from broker")

	for sid, sub := range subs {
		sub.active.Store(false)
		if sub.remote == nil {
			continue
		}
		if err := sub.remote.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("session_id", sid).Msg("error unsubscribing")
		}
	}

	if link != nil {
		if err := link.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing broker link")
		}
	}

	m.mu.Lock()
	if m.link != nil && m.link != link {
		// a Connect issued after this Disconnect already owns a fresh link
		m.mu.Unlock()
		log.Debug().Msg("keeping link established during disconnect")
		return
	}
	m.link = nil
	m.state = StateDisconnected
	m.tearingDown = false
	m.mu.Unlock()

	m.notify(StateDisconnected)
}

// Acquire marks the connection as in use by one more session view, so a
// Release from another view cannot tear it down between Connect and
// SubscribeToSession. Each Acquire is paired with one Release.
func (m *Manager) Acquire() {
	m.mu.Lock()
	m.holders++
	m.mu.Unlock()
}

// Release drops a hold taken with Acquire and disconnects once no view holds
// the connection and no subscription remains.
func (m *Manager) Release() bool {
	m.mu.Lock()
	if m.holders > 0 {
		m.holders--
	}
	idle := m.holders == 0 && len(m.subs) == 0
	m.mu.Unlock()

	if !idle {
		return false
	}
	m.Disconnect()
	return true
}

// SubscribeToSession registers handler for every event on the session topic.
// A second call for the same session returns the existing Subscription.
func (m *Manager) SubscribeToSession(sessionID string, handler Handler) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connectedLocked() {
		log.Error().Str("session_id", sessionID).Msg("cannot subscribe while not connected")
		return nil, ErrNotConnected
	}

	if existing, ok := m.subs[sessionID]; ok {
		log.Debug().Str("session_id", sessionID).Msg("already subscribed to session")
		return existing, nil
	}

	sub := &Subscription{
		SessionID:   sessionID,
		Destination: TopicDestination(sessionID),
		handler:     handler,
	}
	sub.active.Store(true)

	remote, err := m.link.Subscribe(sub.Destination, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrTransport, sub.Destination, err)
	}
	sub.remote = remote
	m.subs[sessionID] = sub

	log.Info().
		Str("session_id", sessionID).
		Str("destination", sub.Destination).
		Msg("subscribed to session")

	return sub, nil
}

// UnsubscribeFromSession releases the session's subscription, if any.
func (m *Manager) UnsubscribeFromSession(sessionID string) {
	m.mu.Lock()
	sub, ok := m.subs[sessionID]
	if ok {
		delete(m.subs, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	sub.active.Store(false)
	if sub.remote != nil {
		if err := sub.remote.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("error unsubscribing from session")
		}
	}

	log.Info().Str("session_id", sessionID).Msg("unsubscribed from session")
}

// SubscriptionCount returns the number of sessions currently subscribed.
func (m *Manager) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Publish serialises payload and sends it to destination. It never blocks on
// reconnection: without a live link the result is NotConnected.
func (m *Manager) Publish(destination string, payload any) Delivery {
	m.mu.Lock()
	var link Link
	if m.connectedLocked() {
		link = m.link
	}
	m.mu.Unlock()

	if link == nil {
		log.Warn().Str("destination", destination).Msg("not connected, cannot publish")
		return NotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("destination", destination).Msg("failed to encode message")
		return EncodeFailed
	}

	if err := link.Send(destination, body); err != nil {
		log.Error().Err(err).Str("destination", destination).Msg("failed to send message")
		return SendFailed
	}

	return Delivered
}

func (m *Manager) notify(state State) {
	m.listenersMu.Lock()
	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
