package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/models"
)

// Store is the process-wide credential store. The transport reads the bearer
// token from it at connect time, so a token set after a failed connect is picked
// up by the next attempt.
type Store struct {
	clock clockwork.Clock

	mu        sync.RWMutex
	token     string
	user      models.User
	expiresAt time.Time // zero when the token does not say
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock}
}

// Set replaces the stored credential. JWTs are inspected, without verification,
// for their expiry and subject; any other token is stored as is.
func (s *Store) Set(token string, user models.User) {
	var expiresAt time.Time

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		log.Debug().Err(err).Msg("stored token is not a jwt")
	} else {
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if user.ID == "" {
			user.ID = claims.Subject
		}
		if user.Username == "" {
			user.Username = claims.Username
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.expiresAt = expiresAt
}

// BearerToken returns the stored token, or false when there is none or it has
// expired.
func (s *Store) BearerToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && !s.clock.Now().Before(s.expiresAt) {
		log.Warn().Time("expires_at", s.expiresAt).Msg("stored token has expired")
		return "", false
	}
	return s.token, true
}

// User returns the signed-in account.
func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.token != ""
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = models.User{}
	s.expiresAt = time.Time{}
}
