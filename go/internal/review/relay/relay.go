// Package relay holds the server side of a review session: it turns commands
// published to /app/session/{id}/{action} into events broadcast on the session topic.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/events"
)

var (
	ErrUnknownAction  = errors.New("unknown session action")
	ErrBadDestination = errors.New("not a session command destination")
	ErrInvalidCommand = errors.New("invalid command body")
	ErrEmptyNote      = errors.New("note content is empty")

	ErrUnauthenticated = errors.New("command without valid bearer token")
)

// Identity is the authenticated sender of a command.
type Identity struct {
	UserID   string
	Username string
}

// Authenticator resolves a bearer token to its owner.
type Authenticator func(token string) (Identity, error)

// Authenticate resolves an "Authorization: Bearer <token>" value.
func (a Authenticator) Authenticate(authorization string) (Identity, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, ErrUnauthenticated
	}
	who, err := a(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return who, nil
}

type sessionState struct {
	playing      bool
	positionMs   float64
	updatedAt    time.Time
	participants map[string]models.Participant
}

// Relay keeps the authoritative playback position of every session it has seen.
type Relay struct {
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func New(clock clockwork.Clock) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		clock:    clock,
		sessions: make(map[string]*sessionState),
	}
}

// ParseCommandDestination splits /app/session/{id}/{action}.
func ParseCommandDestination(destination string) (sessionID, action string, err error) {
	parts := strings.Split(strings.TrimPrefix(destination, "/"), "/")
	if len(parts) != 4 || parts[0] != "app" || parts[1] != "session" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadDestination, destination)
	}
	return parts[2], parts[3], nil
}

// Handle applies one command and returns the event to broadcast.
func (r *Relay) Handle(sessionID, action string, who Identity, body []byte) (events.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(sessionID)
	now := r.clock.Now()

	switch action {
	case "play", "pause", "seek":
		var p events.TransportPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return events.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		eventType := events.EventTypeSeek
		switch action {
		case "play":
			eventType, p.IsPlaying = events.EventTypePlay, true
		case "pause":
			eventType, p.IsPlaying = events.EventTypePause, false
		}
		s.positionMs = max(p.TimestampMs, 0)
		s.playing = p.IsPlaying
		s.updatedAt = now

		return envelope(eventType, who, now, events.TransportPayload{TimestampMs: s.positionMs, IsPlaying: s.playing})

	case "sync":
		return envelope(events.EventTypeSyncResponse, who, now, events.TransportPayload{
			TimestampMs: s.positionAt(now),
			IsPlaying:   s.playing,
		})

	case "note":
		var cmd events.NoteCommand
		if err := json.Unmarshal(body, &cmd); err != nil {
			return events.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if strings.TrimSpace(cmd.Content) == "" {
			return events.Envelope{}, ErrEmptyNote
		}
		return envelope(events.EventTypeNoteAdded, who, now, events.NotePayload{
			NoteID:           cmd.NoteID,
			Content:          cmd.Content,
			VideoTimestampMs: float64(cmd.VideoTimestampMs),
			AuthorName:       who.Username,
		})

	default:
		return events.Envelope{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Join adds who to the session roster and returns the USER_JOINED event.
func (r *Relay) Join(sessionID string, who Identity) (events.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(sessionID)
	p := models.Participant{UserID: who.UserID, Username: who.Username}
	s.participants[who.UserID] = p

	return envelope(events.EventTypeUserJoined, who, r.clock.Now(), p)
}

// Leave removes who from the roster and returns the USER_LEFT event.
func (r *Relay) Leave(sessionID string, who Identity) (events.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessionLocked(sessionID)
	delete(s.participants, who.UserID)

	return envelope(events.EventTypeUserLeft, who, r.clock.Now(), models.Participant{UserID: who.UserID, Username: who.Username})
}

// Position returns the session's playback state extrapolated to now.
func (r *Relay) Position(sessionID string) events.TransportPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return events.TransportPayload{}
	}
	return events.TransportPayload{TimestampMs: s.positionAt(r.clock.Now()), IsPlaying: s.playing}
}

// Participants returns the number of users currently in the session.
func (r *Relay) Participants(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		return len(s.participants)
	}
	return 0
}

func (r *Relay) sessionLocked(sessionID string) *sessionState {
	s, ok := r.sessions[sessionID]
	if !ok {
		s = &sessionState{
			updatedAt:    r.clock.Now(),
			participants: make(map[string]models.Participant),
		}
		r.sessions[sessionID] = s
		log.Debug().Str("session_id", sessionID).Msg("relay tracking new session")
	}
	return s
}

func (s *sessionState) positionAt(now time.Time) float64 {
	if !s.playing {
		return s.positionMs
	}
	return s.positionMs + float64(now.Sub(s.updatedAt).Milliseconds())
}

func envelope(t events.EventType, who Identity, at time.Time, payload any) (events.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return events.Envelope{
		Type:      t,
		UserID:    events.UserID(who.UserID),
		Username:  who.Username,
		Timestamp: events.Timestamp(at),
		Payload:   raw,
	}, nil
}
