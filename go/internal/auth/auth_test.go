package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/teamsync/go/internal/models"
)

var alice = models.User{ID: "42", Username: "alice", Email: "alice@example.com"}

func newClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestStoreOpaqueToken(t *testing.T) {
	s := NewStore(newClock())

	_, ok := s.BearerToken()
	assert.False(t, ok)

	s.Set("opaque-token", alice)
	token, ok := s.BearerToken()
	require.True(t, ok)
	assert.Equal(t, "opaque-token", token)

	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, alice, user)

	s.Clear()
	_, ok = s.BearerToken()
	assert.False(t, ok)
	_, ok = s.User()
	assert.False(t, ok)
}

func TestStoreHonoursExpiry(t *testing.T) {
	clock := newClock()
	v := NewVerifier("secret", clock)
	token, err := v.Issue(alice, time.Hour)
	require.NoError(t, err)

	s := NewStore(clock)
	s.Set(token, models.User{})

	got, ok := s.BearerToken()
	require.True(t, ok)
	assert.Equal(t, token, got)

	user, _ := s.User()
	assert.Equal(t, "42", user.ID, "subject fills a missing user id")
	assert.Equal(t, "alice", user.Username)

	clock.Advance(time.Hour)
	_, ok = s.BearerToken()
	assert.False(t, ok)
}

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret", newClock())
	token, err := v.Issue(alice, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerifierRejects(t *testing.T) {
	clock := newClock()
	v := NewVerifier("secret", clock)

	good, err := v.Issue(alice, time.Minute)
	require.NoError(t, err)

	forged, err := NewVerifier("other", clock).Issue(alice, time.Minute)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := v.Issue(models.User{Username: "ghost"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
		{"unsigned", unsigned},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	clock.Advance(2 * time.Minute)
	_, err = v.Verify(good)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
