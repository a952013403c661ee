package reconciler

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// Local actions change the surface and local state first and publish second.
// The returned Delivery says whether other participants were told. The local
// change stands either way.

// Play starts playback locally and broadcasts the position it started from.
func (r *Reconciler) Play() (transport.Delivery, error) {
	var d transport.Delivery
	err := r.call(func() {
		r.surface.Play()
		r.playback.IsPlaying = true
		d = r.transport.SendPlay(r.sessionID, models.SecondsToMs(r.position()))
	})
	return d, err
}

// Pause stops playback locally and broadcasts where it stopped.
func (r *Reconciler) Pause() (transport.Delivery, error) {
	var d transport.Delivery
	err := r.call(func() {
		r.surface.Pause()
		r.playback.IsPlaying = false
		d = r.transport.SendPause(r.sessionID, models.SecondsToMs(r.position()))
	})
	return d, err
}

// SeekFraction seeks to a point on the progress bar, f in [0,1] of the duration.
func (r *Reconciler) SeekFraction(f float64) (transport.Delivery, error) {
	var d transport.Delivery
	err := r.call(func() {
		f = min(max(f, 0), 1)
		d = r.seek(f * r.duration())
	})
	return d, err
}

// SeekTo seeks to an absolute position in seconds.
func (r *Reconciler) SeekTo(seconds float64) (transport.Delivery, error) {
	var d transport.Delivery
	err := r.call(func() {
		d = r.seek(seconds)
	})
	return d, err
}

func (r *Reconciler) seek(target float64) transport.Delivery {
	target = max(target, 0)
	if dur := r.duration(); dur > 0 {
		target = min(target, dur)
	}

	r.surface.SeekTo(target)
	r.playback.CurrentTime = target
	return r.transport.SendSeek(r.sessionID, models.SecondsToMs(target), r.playback.IsPlaying)
}

// AddNote annotates the current position. The note is appended locally at once;
// its echo from the server is filtered out by author.
func (r *Reconciler) AddNote(content string) (models.Note, transport.Delivery, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Note{}, transport.NotConnected, ErrEmptyNote
	}

	var (
		note models.Note
		d    transport.Delivery
	)
	err := r.call(func() {
		author := r.localUser.Username
		if author == "" {
			author = "You"
		}
		note = models.Note{
			ID:               uuid.New().String(),
			Content:          content,
			VideoTimestampMs: models.SecondsToMs(r.position()),
			Author:           author,
			CreatedAt:        r.clock.Now(),
		}

		d = r.transport.SendNote(r.sessionID, events.NoteCommand{
			NoteID:           note.ID,
			Content:          note.Content,
			VideoTimestampMs: note.VideoTimestampMs,
		})
		r.notes = append(r.notes, note)
	})
	return note, d, err
}

// position prefers the surface clock and falls back to the last known state
// while no player is attached.
func (r *Reconciler) position() float64 {
	if r.surface.Attached() {
		return r.surface.CurrentTime()
	}
	return r.playback.CurrentTime
}

func (r *Reconciler) duration() float64 {
	if d := r.surface.Duration(); d > 0 {
		return d
	}
	return r.playback.Duration
}

// Snapshot is a copy of a session view's state.
type Snapshot struct {
	SessionID    string
	Phase        Phase
	Connected    bool
	Synced       bool
	LastError    string
	Session      *models.Session
	VideoID      string
	MediaError   string
	Playback     models.PlaybackState
	Notes        []models.Note
	Participants []models.Participant
}

// Snapshot reads the view state through the loop.
func (r *Reconciler) Snapshot() Snapshot {
	var s Snapshot
	err := r.call(func() {
		s = Snapshot{
			SessionID: r.sessionID,
			Phase:     r.phase,
			Connected: r.transport.IsConnected(),
			Synced:    r.synced,
			VideoID:   r.videoID,
			Playback:  r.playback,
			Notes:     append([]models.Note(nil), r.notes...),
		}
		if r.lastErr != nil {
			s.LastError = r.lastErr.Error()
		}
		if r.mediaErr != nil {
			s.MediaError = r.mediaErr.Error()
		}
		if r.session != nil {
			session := *r.session
			s.Session = &session
		}
		for _, p := range r.participants {
			s.Participants = append(s.Participants, p)
		}
		sort.Slice(s.Participants, func(i, j int) bool {
			return s.Participants[i].UserID < s.Participants[j].UserID
		})
	})
	if err != nil {
		return Snapshot{SessionID: r.sessionID, Phase: PhaseClosed}
	}
	return s
}
