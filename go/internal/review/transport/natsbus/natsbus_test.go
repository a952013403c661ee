package natsbus

import (
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

func TestSubjectMapping(t *testing.T) {
	tests := []struct {
		destination string
		subject     string
	}{
		{transport.TopicDestination("abc"), "topic.session.abc"},
		{transport.CommandDestination("abc", transport.ActionSeek), "app.session.abc.seek"},
		{"/queue/errors/", "queue.errors"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.subject, Subject(tt.destination))
	}
	assert.Equal(t, "/app/session/abc/play", Destination("app.session.abc.play"))
}

func newTestBridge() *Bridge {
	authenticate := func(token string) (relay.Identity, error) {
		if token != "tok-1" {
			return relay.Identity{}, errors.New("unknown token")
		}
		return relay.Identity{UserID: "1", Username: "alice"}, nil
	}
	return NewBridge(nil, relay.New(clockwork.NewFakeClock()), authenticate, DefaultBridgeConfig())
}

func TestBridgeRoutesCommandToTopic(t *testing.T) {
	b := newTestBridge()

	subject, body, err := b.route("app.session.S1.seek", "Bearer tok-1", []byte(`{"timestamp":12000,"isPlaying":false}`))
	require.NoError(t, err)
	assert.Equal(t, "topic.session.S1", subject)

	ev, err := events.Decode(body)
	require.NoError(t, err)
	seek, ok := ev.(events.Seek)
	require.True(t, ok)
	assert.Equal(t, float64(12000), seek.TimestampMs)
	assert.False(t, seek.IsPlaying)
	assert.Equal(t, "alice", seek.Meta().Username)
}

func TestBridgeRejectsUnauthenticated(t *testing.T) {
	b := newTestBridge()

	_, _, err := b.route("app.session.S1.play", "", []byte(`{}`))
	assert.ErrorIs(t, err, relay.ErrUnauthenticated)

	_, _, err = b.route("app.session.S1.play", "Bearer nope", []byte(`{}`))
	assert.ErrorIs(t, err, relay.ErrUnauthenticated)
}

func TestBridgeRejectsUnknownAction(t *testing.T) {
	b := newTestBridge()

	_, _, err := b.route("app.session.S1.rewind", "Bearer tok-1", []byte(`{}`))
	assert.ErrorIs(t, err, relay.ErrUnknownAction)

	_, _, err = b.route("app.other", "Bearer tok-1", []byte(`{}`))
	assert.ErrorIs(t, err, relay.ErrBadDestination)
}
