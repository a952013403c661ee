package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/reconciler"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

type fakeView struct {
	calls    []string
	delivery transport.Delivery
	snapshot reconciler.Snapshot
}

func (f *fakeView) Play() (transport.Delivery, error) {
	f.calls = append(f.calls, "play")
	return f.delivery, nil
}

func (f *fakeView) Pause() (transport.Delivery, error) {
	f.calls = append(f.calls, "pause")
	return f.delivery, nil
}

func (f *fakeView) SeekTo(seconds float64) (transport.Delivery, error) {
	f.calls = append(f.calls, "seek")
	f.snapshot.Playback.CurrentTime = seconds
	return f.delivery, nil
}

func (f *fakeView) SeekFraction(fr float64) (transport.Delivery, error) {
	f.calls = append(f.calls, "jump")
	f.snapshot.Playback.CurrentTime = fr * f.snapshot.Playback.Duration
	return f.delivery, nil
}

func (f *fakeView) AddNote(content string) (models.Note, transport.Delivery, error) {
	if content == "" {
		return models.Note{}, transport.NotConnected, reconciler.ErrEmptyNote
	}
	n := models.Note{Content: content, Author: "alice", VideoTimestampMs: models.SecondsToMs(f.snapshot.Playback.CurrentTime)}
	f.snapshot.Notes = append(f.snapshot.Notes, n)
	return n, f.delivery, nil
}

func (f *fakeView) Retry(context.Context) error {
	f.calls = append(f.calls, "retry")
	return nil
}

func (f *fakeView) Snapshot() reconciler.Snapshot { return f.snapshot }

type fakeEnder struct{ ended string }

func (f *fakeEnder) EndSession(_ context.Context, sessionID string) error {
	f.ended = sessionID
	return nil
}

func newTestConsole(input string) (*console, *fakeView, *fakeEnder, *bytes.Buffer) {
	view := &fakeView{
		delivery: transport.Delivered,
		snapshot: reconciler.Snapshot{SessionID: "S1", Phase: reconciler.PhaseLive},
	}
	view.snapshot.Playback.Duration = 600
	ender := &fakeEnder{}
	out := &bytes.Buffer{}
	return newConsole(view, ender, strings.NewReader(input), out), view, ender, out
}

func TestConsoleDrivesView(t *testing.T) {
	c, view, _, out := newTestConsole("play\nseek 90\njump 50%\nnote check the rotate\nnotes\npause\nquit\nplay\n")
	c.Run(context.Background())

	assert.Equal(t, []string{"play", "seek", "jump", "pause"}, view.calls, "nothing runs after quit")
	assert.Contains(t, out.String(), "note at 5:00 added")
	assert.Contains(t, out.String(), "[5:00] alice: check the rotate")
}

func TestConsoleReportsLocalOnlyActions(t *testing.T) {
	c, view, _, out := newTestConsole("")
	view.delivery = transport.NotConnected

	c.execute(context.Background(), "play")
	assert.Contains(t, out.String(), "applied locally only (not_connected)")
}

func TestConsoleRejectsBadArguments(t *testing.T) {
	c, view, _, out := newTestConsole("")
	ctx := context.Background()

	c.execute(ctx, "seek soon")
	c.execute(ctx, "jump")
	c.execute(ctx, "note")
	c.execute(ctx, "rewind")

	assert.Empty(t, view.calls)
	assert.Contains(t, out.String(), "usage: seek <seconds>")
	assert.Contains(t, out.String(), "usage: jump <percent>")
	assert.Contains(t, out.String(), "note not added")
	assert.Contains(t, out.String(), `unknown command "rewind"`)
}

func TestConsoleEndStopsLoop(t *testing.T) {
	c, _, ender, _ := newTestConsole("")

	require.True(t, c.execute(context.Background(), "end"))
	assert.Equal(t, "S1", ender.ended)
}

func TestFormatPosition(t *testing.T) {
	assert.Equal(t, "0:00", formatPosition(0))
	assert.Equal(t, "1:05", formatPosition(65_400))
	assert.Equal(t, "1:00:00", formatPosition(3_600_000))
}
