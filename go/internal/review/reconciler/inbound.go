package reconciler

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/events"
)

// onMessage runs on the transport's delivery goroutine. Bodies are decoded there
// and applied on the loop.
func (r *Reconciler) onMessage(body []byte) {
	ev, err := events.Decode(body)
	if err != nil {
		log.Warn().Err(err).Str("session_id", r.sessionID).Msg("dropping malformed session event")
		return
	}
	r.post(func() { r.apply(ev) })
}

func (r *Reconciler) apply(ev events.Event) {
	if r.phase == PhaseClosed {
		return
	}

	log.Debug().
		Str("session_id", r.sessionID).
		Str("event_type", string(ev.Type())).
		Str("user_id", ev.Meta().UserID).
		Msg("applying session event")

	switch ev := ev.(type) {
	case events.Play:
		r.applyPlayState(ev.TransportPayload, true)
	case events.Pause:
		r.applyPlayState(ev.TransportPayload, false)
	case events.Seek:
		r.applyPosition(ev.TransportPayload)
	case events.SyncResponse:
		r.applyPosition(ev.TransportPayload)
		if !r.synced {
			r.synced = true
			log.Info().Str("session_id", r.sessionID).Float64("position", ev.Seconds()).Msg("initial sync applied")
		}
	case events.NoteAdded:
		r.applyNote(ev)
	case events.UserJoined:
		r.participants[ev.Meta().UserID] = models.Participant{
			UserID:   ev.Meta().UserID,
			Username: ev.Meta().Username,
		}
	case events.UserLeft:
		delete(r.participants, ev.Meta().UserID)
	case events.Unknown:
		log.Warn().Str("session_id", r.sessionID).Str("event_type", string(ev.Tag)).Msg("ignoring unknown session event")
	}
}

// applyPlayState handles PLAY and PAUSE: seek first, then set the play state
// once the seek settled. The originator obeys its own broadcast too.
func (r *Reconciler) applyPlayState(p events.TransportPayload, playing bool) {
	position := p.Seconds()
	r.surface.SeekTo(position)
	r.settle()

	if playing {
		r.surface.Play()
	} else {
		r.surface.Pause()
	}
	r.playback.IsPlaying = playing
	r.playback.CurrentTime = position
}

// applyPosition handles SEEK and SYNC_RESPONSE. Play/pause is only issued when
// the surface disagrees with the payload.
func (r *Reconciler) applyPosition(p events.TransportPayload) {
	position := p.Seconds()
	r.surface.SeekTo(position)
	r.playback.CurrentTime = position
	r.settle()

	actual := r.surface.IsPlaying()
	switch {
	case p.IsPlaying && !actual:
		r.surface.Play()
	case !p.IsPlaying && actual:
		r.surface.Pause()
	}
	r.playback.IsPlaying = p.IsPlaying
}

func (r *Reconciler) applyNote(ev events.NoteAdded) {
	meta := ev.Meta()
	if meta.UserID == r.localUser.UserID {
		// already appended when it was created here
		return
	}

	createdAt := meta.SentAt
	if createdAt.IsZero() {
		createdAt = r.clock.Now()
	}
	id := ev.NoteID
	if id == "" {
		id = strconv.FormatInt(createdAt.UnixMilli(), 10)
	}
	author := ev.AuthorName
	if author == "" {
		author = meta.Username
	}

	r.notes = append(r.notes, models.Note{
		ID:               id,
		Content:          ev.Content,
		VideoTimestampMs: int64(ev.VideoTimestampMs),
		Author:           author,
		CreatedAt:        createdAt,
	})
}

func (r *Reconciler) settle() {
	if r.config.SettleDelay <= 0 {
		return
	}
	select {
	case <-r.clock.After(r.config.SettleDelay):
	case <-r.quit:
	}
}
