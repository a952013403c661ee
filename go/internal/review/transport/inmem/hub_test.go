package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

func collect(t *testing.T, l transport.Link, destination string) <-chan events.Event {
	t.Helper()
	ch := make(chan events.Event, 16)
	_, err := l.Subscribe(destination, func(body []byte) {
		ev, err := events.Decode(body)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		ch <- ev
	})
	require.NoError(t, err)
	return ch
}

func next(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

// nextOfType skips roster events that subscriptions produce.
func nextOfType(t *testing.T, ch <-chan events.Event, want events.EventType) events.Event {
	t.Helper()
	for {
		ev := next(t, ch)
		if ev.Type() == want {
			return ev
		}
	}
}

func TestCommandsFanOutToEverySubscriber(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock())
	hub.Register("tok-a", "1", "alice")
	hub.Register("tok-b", "2", "bob")

	a, err := hub.Dial(context.Background(), "tok-a")
	require.NoError(t, err)
	b, err := hub.Dial(context.Background(), "tok-b")
	require.NoError(t, err)

	topic := transport.TopicDestination("S1")
	aEvents := collect(t, a, topic)
	bEvents := collect(t, b, topic)

	require.NoError(t, a.Send(transport.CommandDestination("S1", transport.ActionPlay), []byte(`{"timestamp":5000,"isPlaying":true}`)))

	for _, ch := range []<-chan events.Event{aEvents, bEvents} {
		play, ok := nextOfType(t, ch, events.EventTypePlay).(events.Play)
		require.True(t, ok)
		assert.Equal(t, float64(5000), play.TimestampMs)
		assert.Equal(t, "1", play.Meta().UserID)
		assert.Equal(t, "alice", play.Meta().Username)
	}
}

func TestSubscribeAnnouncesParticipant(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock())
	hub.Register("tok-a", "1", "alice")
	hub.Register("tok-b", "2", "bob")

	a, err := hub.Dial(context.Background(), "tok-a")
	require.NoError(t, err)
	aEvents := collect(t, a, transport.TopicDestination("S1"))
	nextOfType(t, aEvents, events.EventTypeUserJoined)

	b, err := hub.Dial(context.Background(), "tok-b")
	require.NoError(t, err)
	sub, err := b.Subscribe(transport.TopicDestination("S1"), func([]byte) {})
	require.NoError(t, err)

	joined := nextOfType(t, aEvents, events.EventTypeUserJoined)
	assert.Equal(t, "2", joined.Meta().UserID)

	require.NoError(t, sub.Unsubscribe())
	left := nextOfType(t, aEvents, events.EventTypeUserLeft)
	assert.Equal(t, "bob", left.Meta().Username)
}

func TestDialFailures(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock())
	hub.Register("tok-a", "1", "alice")

	_, err := hub.Dial(context.Background(), "nope")
	assert.ErrorIs(t, err, transport.ErrHandshakeFailed)

	hub.SetAvailable(false)
	_, err = hub.Dial(context.Background(), "tok-a")
	assert.ErrorIs(t, err, transport.ErrTransport)
	assert.Equal(t, 2, hub.Dials())
}

func TestDropAllEndsLinks(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock())
	hub.Register("tok-a", "1", "alice")

	a, err := hub.Dial(context.Background(), "tok-a")
	require.NoError(t, err)

	hub.DropAll()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("link still open")
	}
	assert.ErrorIs(t, a.Err(), transport.ErrTransport)
	assert.ErrorIs(t, a.Send("/app/session/S1/play", []byte(`{}`)), transport.ErrNotConnected)
}

func TestCloseIsClean(t *testing.T) {
	hub := NewHub(clockwork.NewFakeClock())
	hub.Register("tok-a", "1", "alice")

	a, err := hub.Dial(context.Background(), "tok-a")
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	<-a.Done()
	assert.NoError(t, a.Err())
}
