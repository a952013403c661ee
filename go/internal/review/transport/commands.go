package transport

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/events"
)

// SendPlay publishes a play command at the given playhead position.
func (m *Manager) SendPlay(sessionID string, timestampMs int64) Delivery {
	d := m.Publish(CommandDestination(sessionID, ActionPlay), events.TransportPayload{
		TimestampMs: float64(timestampMs),
		IsPlaying:   true,
	})
	logSent(d, sessionID, ActionPlay, timestampMs)
	return d
}

// SendPause publishes a pause command at the given playhead position.
func (m *Manager) SendPause(sessionID string, timestampMs int64) Delivery {
	d := m.Publish(CommandDestination(sessionID, ActionPause), events.TransportPayload{
		TimestampMs: float64(timestampMs),
		IsPlaying:   false,
	})
	logSent(d, sessionID, ActionPause, timestampMs)
	return d
}

// SendSeek publishes a seek command carrying the sender's play flag.
func (m *Manager) SendSeek(sessionID string, timestampMs int64, isPlaying bool) Delivery {
	d := m.Publish(CommandDestination(sessionID, ActionSeek), events.TransportPayload{
		TimestampMs: float64(timestampMs),
		IsPlaying:   isPlaying,
	})
	logSent(d, sessionID, ActionSeek, timestampMs)
	return d
}

// RequestSync asks the server to broadcast the authoritative playback state.
func (m *Manager) RequestSync(sessionID string) Delivery {
	d := m.Publish(CommandDestination(sessionID, ActionSync), struct{}{})
	if d.OK() {
		log.Debug().Str("session_id", sessionID).Msg("requested sync")
	}
	return d
}

// SendNote publishes a new note for the session.
func (m *Manager) SendNote(sessionID string, note events.NoteCommand) Delivery {
	d := m.Publish(CommandDestination(sessionID, ActionNote), note)
	logSent(d, sessionID, ActionNote, note.VideoTimestampMs)
	return d
}

func logSent(d Delivery, sessionID, action string, timestampMs int64) {
	if !d.OK() {
		return
	}
	log.Debug().
		Str("session_id", sessionID).
		Str("action", action).
		Int64("timestamp_ms", timestampMs).
		Msg("sent session command")
}
