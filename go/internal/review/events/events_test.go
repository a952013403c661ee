package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransportEvents(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    EventType
		ms      float64
		playing bool
	}{
		{"play", `{"type":"PLAY","userId":"u1","username":"ana","timestamp":1700000000000,"payload":{"timestamp":5000,"isPlaying":true}}`, EventTypePlay, 5000, true},
		{"pause", `{"type":"PAUSE","userId":"u1","payload":{"timestamp":7250,"isPlaying":false}}`, EventTypePause, 7250, false},
		{"seek", `{"type":"SEEK","userId":"u2","payload":{"timestamp":90000,"isPlaying":true}}`, EventTypeSeek, 90000, true},
		{"sync", `{"type":"SYNC_RESPONSE","payload":{"timestamp":12000,"isPlaying":false}}`, EventTypeSyncResponse, 12000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type())

			var p TransportPayload
			switch e := ev.(type) {
			case Play:
				p = e.TransportPayload
			case Pause:
				p = e.TransportPayload
			case Seek:
				p = e.TransportPayload
			case SyncResponse:
				p = e.TransportPayload
			default:
				t.Fatalf("unexpected variant %T", ev)
			}
			assert.Equal(t, tt.ms, p.TimestampMs)
			assert.Equal(t, tt.playing, p.IsPlaying)
			assert.InDelta(t, tt.ms/1000, p.Seconds(), 1e-9)
		})
	}
}

func TestDecodeMeta(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"USER_JOINED","userId":42,"username":"coach","timestamp":1700000000123}`))
	require.NoError(t, err)

	joined, ok := ev.(UserJoined)
	require.True(t, ok)
	assert.Equal(t, "42", joined.Meta().UserID)
	assert.Equal(t, "coach", joined.Meta().Username)
	assert.Equal(t, time.UnixMilli(1700000000123), joined.Meta().SentAt)
}

func TestDecodeStringTimestamps(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"USER_LEFT","userId":"7","timestamp":"2025-03-01T10:15:30"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 15, 30, 0, time.UTC), ev.Meta().SentAt)

	ev, err = Decode([]byte(`{"type":"USER_LEFT","userId":"7","timestamp":"2025-03-01T10:15:30+02:00"}`))
	require.NoError(t, err)
	assert.True(t, ev.Meta().SentAt.Equal(time.Date(2025, 3, 1, 8, 15, 30, 0, time.UTC)))
}

func TestDecodeNoteAdded(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"NOTE_ADDED","userId":"u3","username":"sam","payload":{"noteId":"n1","content":"watch the flank","videoTimestamp":61000,"authorName":"Sam"}}`))
	require.NoError(t, err)

	note, ok := ev.(NoteAdded)
	require.True(t, ok)
	assert.Equal(t, "n1", note.NoteID)
	assert.Equal(t, "watch the flank", note.Content)
	assert.Equal(t, float64(61000), note.VideoTimestampMs)
	assert.Equal(t, "Sam", note.AuthorName)
	assert.Equal(t, "u3", note.Meta().UserID)
}

func TestDecodeUnknownType(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"REACTION","userId":"u1","payload":{"emoji":"fire"}}`))
	require.NoError(t, err)

	unknown, ok := ev.(Unknown)
	require.True(t, ok)
	assert.Equal(t, EventType("REACTION"), unknown.Type())
	assert.JSONEq(t, `{"emoji":"fire"}`, string(unknown.Payload))
}

func TestDecodeMalformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"userId":"u1"}`,
		`{"type":"PLAY","userId":"u1"}`,
		`{"type":"SEEK","payload":{"timestamp":"soon"}}`,
		`{"type":"PLAY","userId":{"id":1},"payload":{"timestamp":1,"isPlaying":true}}`,
	}
	for _, body := range bodies {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}
