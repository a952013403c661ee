package gateway

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/relay"
)

// ConnectionManager manages STOMP-over-WebSocket connections for review sessions
type ConnectionManager struct {
	// Connections organized by subscribed destination
	topics map[string]map[*Connection]bool
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	relay        *relay.Relay
	authenticate relay.Authenticator

	broadcastCh chan BroadcastMessage
}

// Connection is one client socket. A client may hold several STOMP
// subscriptions, one per open session view.
type Connection struct {
	ID       string
	Identity relay.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	connected bool // readPump only

	sendMu sync.Mutex
	closed bool
	subs   map[string]string // subscription id -> destination, written by readPump
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// HeartBeat is how often clients are asked to send STOMP heart-beats.
	HeartBeat   time.Duration
	CheckOrigin func(r *http.Request) bool
}

// BroadcastMessage is an event body bound for every subscriber of Destination
type BroadcastMessage struct {
	Destination string
	Body        []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		HeartBeat:       10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager relaying through r.
func NewConnectionManager(config ConnectionConfig, r *relay.Relay, authenticate relay.Authenticator) *ConnectionManager {
	return &ConnectionManager{
		topics: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
			Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		},
		config:       config,
		relay:        r,
		authenticate: authenticate,
		broadcastCh:  make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. who is the identity
// proven on the upgrade request, zero when the client authenticates in CONNECT.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, who relay.Identity) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Identity:    who,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		subs:        make(map[string]string),
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", who.UserID).
		Str("subprotocol", conn.Subprotocol()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) subscribe(c *Connection, destination string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.topics[destination] == nil {
		cm.topics[destination] = make(map[*Connection]bool)
	}
	cm.topics[destination][c] = true
}

// unsubscribe drops c from destination unless another of its subscriptions
// still points there.
func (cm *ConnectionManager) unsubscribe(c *Connection, destination string) {
	if len(c.subscriptionIDs(destination)) > 0 {
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, ok := cm.topics[destination]; ok {
		delete(connections, c)
		if len(connections) == 0 {
			delete(cm.topics, destination)
		}
	}
}

// Broadcast queues body for every subscriber of destination
func (cm *ConnectionManager) Broadcast(destination string, body []byte) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Destination: destination, Body: body}:
	default:
		log.Warn().Str("destination", destination).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.topics[message.Destination]))
	for conn := range cm.topics[message.Destination] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		for _, id := range conn.subscriptionIDs(message.Destination) {
			data, err := encodeFrame(frame.New(frame.MESSAGE,
				frame.Destination, message.Destination,
				frame.Subscription, id,
				frame.MessageId, uuid.New().String(),
				frame.ContentType, "application/json",
			), message.Body)
			if err != nil {
				log.Error().Err(err).Msg("failed to encode MESSAGE frame")
				return
			}
			if !conn.enqueue(data) {
				// Connection is slow or dead, close it
				log.Warn().
					Str("connection_id", conn.ID).
					Str("user_id", conn.Identity.UserID).
					Msg("connection send buffer full, closing connection")
				conn.Conn.Close()
				break
			}
		}
	}

	log.Debug().
		Str("destination", message.Destination).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active subscriptions
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	seen := make(map[*Connection]bool)
	topicCounts := make(map[string]int)
	for destination, connections := range cm.topics {
		topicCounts[destination] = len(connections)
		for conn := range connections {
			seen[conn] = true
		}
	}

	return map[string]interface{}{
		"total_connections": len(seen),
		"active_sessions":   len(cm.topics),
		"topic_connections": topicCounts,
	}
}

// subscriptionIDs returns the ids c subscribed to destination with.
func (c *Connection) subscriptionIDs(destination string) []string {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var ids []string
	for id, d := range c.subs {
		if d == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

// enqueue hands data to the writePump. It reports false when the connection is
// closed or its buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending frames to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the socket closes, then leaves every session the
// connection was in.
func (c *Connection) readPump() {
	defer func() {
		c.leaveAll()
		c.closeSend()
		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.Identity.UserID).
			Msg("connection closed")
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if !c.handleClientMessage(message) {
			return
		}
	}
}

func encodeFrame(f *frame.Frame, body []byte) ([]byte, error) {
	if body != nil {
		f.Body = body
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(body)))
	}
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
