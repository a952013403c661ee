package models

import (
	"time"
)

// Participant is an entry in a session's roster, keyed by UserID
type Participant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Note is a timestamped annotation on the session video
type Note struct {
	ID               string    `json:"id"`
	Content          string    `json:"content"`
	VideoTimestampMs int64     `json:"videoTimestamp"` // position in the video, milliseconds
	Author           string    `json:"author"`
	CreatedAt        time.Time `json:"createdAt"`
}

// PlaybackState is the local view of the media surface.
type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"` // seconds
	Duration    float64 `json:"duration"`    // seconds
}

// CurrentTimeMs returns the playback position in whole milliseconds, the unit used on the wire.
func (p PlaybackState) CurrentTimeMs() int64 {
	return SecondsToMs(p.CurrentTime)
}

// SecondsToMs floors a position in seconds to milliseconds.
func SecondsToMs(sec float64) int64 {
	if sec <= 0 {
		return 0
	}
	return int64(sec * 1000)
}

// MsToSeconds converts a wire timestamp to seconds.
func MsToSeconds(ms float64) float64 {
	return ms / 1000
}
