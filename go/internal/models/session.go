package models

import (
	"time"
)

// SessionStatus defines the lifecycle status of a review session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusEnded  SessionStatus = "ENDED"
)

// Session is the read-only copy of a shared video-review room
type Session struct {
	SessionID          string        `json:"sessionId"`
	TeamID             string        `json:"teamId,omitempty"`
	Title              string        `json:"title"`
	Description        *string       `json:"description,omitempty"`
	VideoURL           string        `json:"videoUrl"`
	Status             SessionStatus `json:"status"`
	CreatedBy          string        `json:"createdBy,omitempty"`
	ActiveParticipants int           `json:"activeParticipants"`
	IsPlaying          *bool         `json:"isPlaying,omitempty"`
	CreatedAt          *time.Time    `json:"createdAt,omitempty"`
}

// IsActive reports whether the session can still be joined.
func (s Session) IsActive() bool {
	return s.Status == SessionStatusActive
}
