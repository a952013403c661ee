package reviewapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/media"
)

// CreateSessionRequest opens a new review room for a team.
type CreateSessionRequest struct {
	TeamID      string  `json:"teamId" validate:"required"`
	VideoURL    string  `json:"videoUrl" validate:"required,url"`
	Title       string  `json:"title" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

// CreateSession validates req, including that the video is a YouTube URL, and
// creates the session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	if _, err := media.YouTubeVideoID(req.VideoURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var session models.Session
	if err := c.DoJSON(ctx, http.MethodPost, SessionsEndpoint, req, &session); err != nil {
		return nil, fmt.Errorf("failed to create review session: %w", classify(err, nil))
	}
	return &session, nil
}

// GetSession fetches one session's metadata.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	endpoint := fmt.Sprintf(sessionByIDEndpoint, url.PathEscape(sessionID))
	if err := c.DoJSON(ctx, http.MethodGet, endpoint, nil, &session); err != nil {
		return nil, fmt.Errorf("failed to get review session %s: %w", sessionID, classify(err, ErrSessionNotFound))
	}
	return &session, nil
}

func (c *Client) JoinSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := c.DoJSON(ctx, http.MethodPost, JoinSessionEndpoint, sessionRef{SessionID: sessionID}, &session); err != nil {
		return nil, fmt.Errorf("failed to join review session %s: %w", sessionID, classify(err, ErrSessionNotFound))
	}
	return &session, nil
}

func (c *Client) LeaveSession(ctx context.Context, sessionID string) error {
	if err := c.DoJSON(ctx, http.MethodPost, LeaveSessionEndpoint, sessionRef{SessionID: sessionID}, nil); err != nil {
		return fmt.Errorf("failed to leave review session %s: %w", sessionID, classify(err, ErrSessionNotFound))
	}
	return nil
}

// EndSession closes the session for everyone. Only its creator may do so.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if err := c.DoJSON(ctx, http.MethodPost, EndSessionEndpoint, sessionRef{SessionID: sessionID}, nil); err != nil {
		return fmt.Errorf("failed to end review session %s: %w", sessionID, classify(err, ErrSessionNotFound))
	}
	return nil
}

// ActiveSessions lists the team's sessions that can still be joined.
func (c *Client) ActiveSessions(ctx context.Context, teamID string) ([]models.Session, error) {
	var sessions []models.Session
	endpoint := fmt.Sprintf(activeByTeamEndpoint, url.PathEscape(teamID))
	if err := c.DoJSON(ctx, http.MethodGet, endpoint, nil, &sessions); err != nil {
		return nil, fmt.Errorf("failed to list active sessions for team %s: %w", teamID, classify(err, nil))
	}
	return sessions, nil
}
