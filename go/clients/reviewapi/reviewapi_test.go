package reviewapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/clients"
	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/reconciler"
)

var (
	_ reconciler.SessionSource = (*Client)(nil)
	_ reconciler.SessionLeaver = (*Client)(nil)
)

type staticToken string

func (s staticToken) BearerToken() (string, bool) { return string(s), s != "" }

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestLoginAcceptsNumericUserID(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"token":"tok","userId":7,"username":"alice","email":"a@example.com"}`)
	c := NewClient(srv.URL, nil)

	res, err := c.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, models.User{ID: "7", Username: "alice", Email: "a@example.com"}, res.User)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, LoginEndpoint, rec.path)
	assert.Equal(t, "a@example.com", rec.body["email"])
	assert.Empty(t, rec.auth)
}

func TestLoginRejected(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
	c := NewClient(srv.URL, nil)

	_, err := c.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *clients.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestRegisterValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", nil)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: "secret1", Username: "alice"}},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "123", Username: "alice"}},
		{"missing username", RegisterRequest{Email: "a@example.com", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestGetSessionSendsBearerToken(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"sessionId":"S1","title":"Scrim review","videoUrl":"https://youtu.be/dQw4w9WgXcQ","status":"ACTIVE","activeParticipants":2}`)
	c := NewClient(srv.URL, staticToken("tok"))

	s, err := c.GetSession(context.Background(), "S1")
	require.NoError(t, err)

	assert.Equal(t, "/review-sessions/S1", rec.path)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Equal(t, "Scrim review", s.Title)
	assert.True(t, s.IsActive())
	assert.Equal(t, 2, s.ActiveParticipants)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newServer(t, http.StatusNotFound, `session missing`)
	c := NewClient(srv.URL, staticToken("tok"))

	_, err := c.GetSession(context.Background(), "S404")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionMembershipCalls(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"sessionId":"S1","status":"ACTIVE"}`)
	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	_, err := c.JoinSession(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, JoinSessionEndpoint, rec.path)
	assert.Equal(t, "S1", rec.body["sessionId"])

	require.NoError(t, c.LeaveSession(ctx, "S1"))
	assert.Equal(t, LeaveSessionEndpoint, rec.path)

	require.NoError(t, c.EndSession(ctx, "S1"))
	assert.Equal(t, EndSessionEndpoint, rec.path)
}

func TestActiveSessions(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `[{"sessionId":"S1","status":"ACTIVE"},{"sessionId":"S2","status":"ACTIVE"}]`)
	c := NewClient(srv.URL, staticToken("tok"))

	sessions, err := c.ActiveSessions(context.Background(), "T9")
	require.NoError(t, err)
	assert.Equal(t, "/review-sessions/team/T9/active", rec.path)
	assert.Len(t, sessions, 2)
}

func TestCreateSession(t *testing.T) {
	srv, rec := newServer(t, http.StatusCreated, `{"sessionId":"S3","title":"VOD","videoUrl":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","status":"ACTIVE"}`)
	c := NewClient(srv.URL, staticToken("tok"))

	s, err := c.CreateSession(context.Background(), CreateSessionRequest{
		TeamID:   "T9",
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:    "VOD",
	})
	require.NoError(t, err)
	assert.Equal(t, "S3", s.SessionID)
	assert.Equal(t, SessionsEndpoint, rec.path)
	assert.Equal(t, "T9", rec.body["teamId"])
	assert.Nil(t, rec.body["description"])

	_, err = c.CreateSession(context.Background(), CreateSessionRequest{
		TeamID:   "T9",
		VideoURL: "https://vimeo.com/123",
		Title:    "VOD",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
