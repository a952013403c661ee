package relay

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/internal/review/events"
)

var coach = Identity{UserID: "7", Username: "coach"}

func decode(t *testing.T, env events.Envelope) events.Event {
	t.Helper()
	ev, err := env.Event()
	require.NoError(t, err)
	return ev
}

func TestParseCommandDestination(t *testing.T) {
	sid, action, err := ParseCommandDestination("/app/session/abc-123/seek")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", sid)
	assert.Equal(t, "seek", action)

	for _, bad := range []string{"/topic/session/abc", "/app/session//play", "/app/session/abc", "/app/other/abc/play"} {
		_, _, err := ParseCommandDestination(bad)
		assert.ErrorIs(t, err, ErrBadDestination, bad)
	}
}

func TestPlayForcesPlayingAndSyncExtrapolates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	env, err := r.Handle("s1", "play", coach, []byte(`{"timestamp":5000,"isPlaying":false}`))
	require.NoError(t, err)

	play, ok := decode(t, env).(events.Play)
	require.True(t, ok)
	assert.Equal(t, float64(5000), play.TimestampMs)
	assert.True(t, play.IsPlaying)
	assert.Equal(t, "7", play.Meta().UserID)

	clock.Advance(2 * time.Second)

	env, err = r.Handle("s1", "sync", coach, []byte(`{}`))
	require.NoError(t, err)
	sync, ok := decode(t, env).(events.SyncResponse)
	require.True(t, ok)
	assert.Equal(t, float64(7000), sync.TimestampMs)
	assert.True(t, sync.IsPlaying)
}

func TestPauseHoldsPosition(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	_, err := r.Handle("s1", "seek", coach, []byte(`{"timestamp":12000,"isPlaying":true}`))
	require.NoError(t, err)
	_, err = r.Handle("s1", "pause", coach, []byte(`{"timestamp":12000}`))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Equal(t, events.TransportPayload{TimestampMs: 12000, IsPlaying: false}, r.Position("s1"))
}

func TestNoteCommand(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	env, err := r.Handle("s1", "note", coach, []byte(`{"noteId":"n1","content":"box out","videoTimestamp":3400}`))
	require.NoError(t, err)

	note, ok := decode(t, env).(events.NoteAdded)
	require.True(t, ok)
	assert.Equal(t, "n1", note.NoteID)
	assert.Equal(t, "box out", note.Content)
	assert.Equal(t, float64(3400), note.VideoTimestampMs)
	assert.Equal(t, "coach", note.AuthorName)

	_, err = r.Handle("s1", "note", coach, []byte(`{"content":"   "}`))
	assert.ErrorIs(t, err, ErrEmptyNote)
}

func TestRejectsBadCommands(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	_, err := r.Handle("s1", "rewind", coach, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = r.Handle("s1", "play", coach, []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestRoster(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	env, err := r.Join("s1", coach)
	require.NoError(t, err)
	_, ok := decode(t, env).(events.UserJoined)
	assert.True(t, ok)

	_, err = r.Join("s1", Identity{UserID: "8", Username: "analyst"})
	require.NoError(t, err)
	_, err = r.Join("s1", coach)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Participants("s1"))

	env, err = r.Leave("s1", coach)
	require.NoError(t, err)
	_, ok = decode(t, env).(events.UserLeft)
	assert.True(t, ok)
	assert.Equal(t, 1, r.Participants("s1"))
	assert.Zero(t, r.Participants("unknown"))
}
