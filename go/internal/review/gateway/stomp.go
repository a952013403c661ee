package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// handleClientMessage processes one WebSocket message, which may hold several
// frames or a heart-beat. It returns false when the connection must close.
func (c *Connection) handleClientMessage(message []byte) bool {
	reader := frame.NewReader(bytes.NewReader(message))
	for {
		f, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			c.sendError("malformed frame", err.Error())
			return false
		}
		if f == nil {
			continue // heart-beat
		}
		if !c.handleFrame(f) {
			return false
		}
	}
}

func (c *Connection) handleFrame(f *frame.Frame) bool {
	if !c.connected {
		if f.Command != frame.CONNECT && f.Command != frame.STOMP {
			c.sendError("not connected", "expected CONNECT, got "+f.Command)
			return false
		}
		return c.handleConnect(f)
	}

	switch f.Command {
	case frame.SUBSCRIBE:
		c.handleSubscribe(f)
	case frame.UNSUBSCRIBE:
		c.handleUnsubscribe(f)
	case frame.SEND:
		c.handleSend(f)
	case frame.DISCONNECT:
		c.sendReceipt(f)
		return false
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("command", f.Command).
			Msg("ignoring client frame")
	}
	c.sendReceipt(f)
	return true
}

func (c *Connection) handleConnect(f *frame.Frame) bool {
	if authorization := f.Header.Get("Authorization"); authorization != "" {
		who, err := c.Manager.authenticate.Authenticate(authorization)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("rejected CONNECT")
			c.sendError("Invalid token", err.Error())
			return false
		}
		c.Identity = who
	}
	if c.Identity.UserID == "" {
		c.sendError("Invalid token", "no bearer token on CONNECT")
		return false
	}

	version := "1.2"
	if accept := f.Header.Get(frame.AcceptVersion); accept != "" && !strings.Contains(accept, "1.2") {
		version = "1.1"
	}

	// the server sends no heart-beats of its own; WebSocket pings cover that direction
	heartBeat := "0," + strconv.FormatInt(c.Manager.config.HeartBeat.Milliseconds(), 10)
	if data, err := encodeFrame(frame.New(frame.CONNECTED,
		frame.Version, version,
		frame.HeartBeat, heartBeat,
		frame.Server, "teamsync-relay",
	), nil); err == nil {
		c.enqueue(data)
	}

	c.connected = true
	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Str("username", c.Identity.Username).
		Msg("stomp session connected")
	return true
}

func (c *Connection) handleSubscribe(f *frame.Frame) {
	id := f.Header.Get(frame.Id)
	destination := f.Header.Get(frame.Destination)
	if id == "" || destination == "" {
		log.Warn().Str("connection_id", c.ID).Msg("SUBSCRIBE without id or destination")
		return
	}

	c.sendMu.Lock()
	c.subs[id] = destination
	c.sendMu.Unlock()
	c.Manager.subscribe(c, destination)

	if sessionID, ok := transport.SessionFromTopic(destination); ok {
		c.Manager.announce(sessionID, c.Manager.relay.Join, c.Identity)
	}
}

func (c *Connection) handleUnsubscribe(f *frame.Frame) {
	id := f.Header.Get(frame.Id)

	c.sendMu.Lock()
	destination, ok := c.subs[id]
	delete(c.subs, id)
	c.sendMu.Unlock()
	if !ok {
		return
	}

	c.Manager.unsubscribe(c, destination)
	if sessionID, ok := transport.SessionFromTopic(destination); ok {
		c.Manager.announce(sessionID, c.Manager.relay.Leave, c.Identity)
	}
}

// handleSend runs a session command through the relay. Rejected commands are
// logged and dropped; the connection stays up.
func (c *Connection) handleSend(f *frame.Frame) {
	destination := f.Header.Get(frame.Destination)

	sessionID, action, err := relay.ParseCommandDestination(destination)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping SEND")
		return
	}
	env, err := c.Manager.relay.Handle(sessionID, action, c.Identity, f.Body)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("action", action).
			Str("user_id", c.Identity.UserID).
			Msg("relay rejected command")
		return
	}

	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode session event")
		return
	}
	c.Manager.Broadcast(transport.TopicDestination(sessionID), body)
}

// leaveAll drops every subscription, announcing USER_LEFT on each session topic.
func (c *Connection) leaveAll() {
	c.sendMu.Lock()
	subs := c.subs
	c.subs = make(map[string]string)
	c.sendMu.Unlock()

	left := make(map[string]bool)
	for _, destination := range subs {
		if left[destination] {
			continue
		}
		left[destination] = true
		c.Manager.unsubscribe(c, destination)
		if sessionID, ok := transport.SessionFromTopic(destination); ok {
			c.Manager.announce(sessionID, c.Manager.relay.Leave, c.Identity)
		}
	}
}

func (c *Connection) sendReceipt(f *frame.Frame) {
	receipt := f.Header.Get(frame.Receipt)
	if receipt == "" {
		return
	}
	if data, err := encodeFrame(frame.New(frame.RECEIPT, frame.ReceiptId, receipt), nil); err == nil {
		c.enqueue(data)
	}
}

// sendError queues an ERROR frame. The caller closes the connection after it.
func (c *Connection) sendError(message, detail string) {
	data, err := encodeFrame(frame.New(frame.ERROR,
		frame.Message, message,
		frame.ContentType, "text/plain",
	), []byte(detail))
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (cm *ConnectionManager) announce(sessionID string, roster func(string, relay.Identity) (events.Envelope, error), who relay.Identity) {
	env, err := roster(sessionID, who)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build roster event")
		return
	}
	body, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode roster event")
		return
	}
	cm.Broadcast(transport.TopicDestination(sessionID), body)
}
