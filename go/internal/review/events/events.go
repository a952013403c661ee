package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EventType is the type tag carried by every message on a session topic
type EventType string

const (
	EventTypePlay         EventType = "PLAY"
	EventTypePause        EventType = "PAUSE"
	EventTypeSeek         EventType = "SEEK"
	EventTypeSyncResponse EventType = "SYNC_RESPONSE"
	EventTypeNoteAdded    EventType = "NOTE_ADDED"
	EventTypeUserJoined   EventType = "USER_JOINED"
	EventTypeUserLeft     EventType = "USER_LEFT"
)

var ErrMalformed = errors.New("malformed session event")

// Envelope is the JSON shape broadcast on /topic/session/{id}
type Envelope struct {
	Type      EventType       `json:"type"`
	UserID    UserID          `json:"userId"`
	Username  string          `json:"username"`
	Timestamp Timestamp       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TransportPayload is carried by PLAY, PAUSE, SEEK and SYNC_RESPONSE
type TransportPayload struct {
	TimestampMs float64 `json:"timestamp"`
	IsPlaying   bool    `json:"isPlaying"`
}

// Seconds returns the payload position in seconds.
func (p TransportPayload) Seconds() float64 {
	return p.TimestampMs / 1000
}

// NoteCommand is the body published to /app/session/{id}/note
type NoteCommand struct {
	NoteID           string `json:"noteId"`
	Content          string `json:"content"`
	VideoTimestampMs int64  `json:"videoTimestamp"`
}

// NotePayload is carried by NOTE_ADDED
type NotePayload struct {
	NoteID           string  `json:"noteId,omitempty"`
	Content          string  `json:"content"`
	VideoTimestampMs float64 `json:"videoTimestamp"`
	AuthorName       string  `json:"authorName,omitempty"`
}

// Meta holds the envelope fields shared by every event.
type Meta struct {
	UserID   string
	Username string
	SentAt   time.Time
}

// Event is the closed set of inbound session events. The concrete types are
// Play, Pause, Seek, SyncResponse, NoteAdded, UserJoined, UserLeft and Unknown.
type Event interface {
	Type() EventType
	Meta() Meta
	sealed()
}

type base struct {
	meta Meta
}

func (b base) Meta() Meta { return b.meta }
func (base) sealed()      {}

type Play struct {
	base
	TransportPayload
}

type Pause struct {
	base
	TransportPayload
}

type Seek struct {
	base
	TransportPayload
}

type SyncResponse struct {
	base
	TransportPayload
}

type NoteAdded struct {
	base
	NotePayload
}

type UserJoined struct{ base }

type UserLeft struct{ base }

// Unknown carries a tag this client does not understand. It is logged and ignored.
type Unknown struct {
	base
	Tag     EventType
	Payload json.RawMessage
}

func (Play) Type() EventType         { return EventTypePlay }
func (Pause) Type() EventType        { return EventTypePause }
func (Seek) Type() EventType         { return EventTypeSeek }
func (SyncResponse) Type() EventType { return EventTypeSyncResponse }
func (NoteAdded) Type() EventType    { return EventTypeNoteAdded }
func (UserJoined) Type() EventType   { return EventTypeUserJoined }
func (UserLeft) Type() EventType     { return EventTypeUserLeft }
func (u Unknown) Type() EventType    { return u.Tag }

// Decode parses one message body into its event variant.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Event()
}

// Event converts the envelope into its typed variant.
func (e Envelope) Event() (Event, error) {
	b := base{meta: Meta{
		UserID:   string(e.UserID),
		Username: e.Username,
		SentAt:   time.Time(e.Timestamp),
	}}

	switch e.Type {
	case EventTypePlay:
		p, err := decodeTransport(e)
		if err != nil {
			return nil, err
		}
		return Play{base: b, TransportPayload: p}, nil
	case EventTypePause:
		p, err := decodeTransport(e)
		if err != nil {
			return nil, err
		}
		return Pause{base: b, TransportPayload: p}, nil
	case EventTypeSeek:
		p, err := decodeTransport(e)
		if err != nil {
			return nil, err
		}
		return Seek{base: b, TransportPayload: p}, nil
	case EventTypeSyncResponse:
		p, err := decodeTransport(e)
		if err != nil {
			return nil, err
		}
		return SyncResponse{base: b, TransportPayload: p}, nil
	case EventTypeNoteAdded:
		var p NotePayload
		if err := decodePayload(e, &p); err != nil {
			return nil, err
		}
		return NoteAdded{base: b, NotePayload: p}, nil
	case EventTypeUserJoined:
		return UserJoined{base: b}, nil
	case EventTypeUserLeft:
		return UserLeft{base: b}, nil
	default:
		return Unknown{base: b, Tag: e.Type, Payload: e.Payload}, nil
	}
}

func decodeTransport(e Envelope) (TransportPayload, error) {
	var p TransportPayload
	if err := decodePayload(e, &p); err != nil {
		return TransportPayload{}, err
	}
	return p, nil
}

func decodePayload(e Envelope, v any) error {
	if len(e.Payload) == 0 || bytes.Equal(e.Payload, []byte("null")) {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// UserID accepts both JSON strings and numbers; the server emits numeric ids.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// Timestamp accepts epoch milliseconds or an RFC 3339 string.
type Timestamp time.Time

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp(time.Time{})
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = Timestamp(time.UnixMilli(ms))
			return nil
		}
		parsed, err := parseTimeString(s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = Timestamp(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(time.UnixMilli(int64(ms)))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UnixMilli())
}

// parseTimeString also accepts the zone-less ISO form java.time.LocalDateTime serialises to.
func parseTimeString(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
