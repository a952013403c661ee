package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotReady  = errors.New("media surface not ready")
	ErrDestroyed = errors.New("media surface destroyed")
)

// Surface is the capability exposed by an embedded player. Implementations may
// fail or panic while the underlying player is loading or after it was torn down.
type Surface interface {
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	CurrentTime() (float64, error)
	Duration() (float64, error)
	IsPlaying() (bool, error)
}

// Guarded wraps a Surface so that no call fails past it: errors and panics are
// logged and turned into no-ops or zero values. The surface can be attached after
// construction because player readiness is asynchronous.
type Guarded struct {
	mu      sync.RWMutex
	surface Surface
}

// Guard returns a Guarded around s. s may be nil until Attach is called.
func Guard(s Surface) *Guarded {
	return &Guarded{surface: s}
}

// Attach swaps in the player once it reports ready.
func (g *Guarded) Attach(s Surface) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.surface = s
}

// Detach drops the player, e.g. when the embed is destroyed.
func (g *Guarded) Detach() {
	g.Attach(nil)
}

// Attached reports whether a player is currently attached.
func (g *Guarded) Attached() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.surface != nil
}

// Play reports whether the call reached the player without error.
func (g *Guarded) Play() bool {
	return g.do("play", func(s Surface) error { return s.Play() })
}

func (g *Guarded) Pause() bool {
	return g.do("pause", func(s Surface) error { return s.Pause() })
}

func (g *Guarded) SeekTo(seconds float64) bool {
	if seconds < 0 {
		seconds = 0
	}
	return g.do("seek", func(s Surface) error { return s.SeekTo(seconds) })
}

// CurrentTime returns 0 when the player cannot answer.
func (g *Guarded) CurrentTime() float64 {
	var v float64
	g.do("current_time", func(s Surface) error {
		t, err := s.CurrentTime()
		if err == nil {
			v = t
		}
		return err
	})
	return v
}

// Duration returns 0 when the player cannot answer.
func (g *Guarded) Duration() float64 {
	var v float64
	g.do("duration", func(s Surface) error {
		d, err := s.Duration()
		if err == nil {
			v = d
		}
		return err
	})
	return v
}

// IsPlaying returns false when the player cannot answer.
func (g *Guarded) IsPlaying() bool {
	var v bool
	g.do("is_playing", func(s Surface) error {
		p, err := s.IsPlaying()
		if err == nil {
			v = p
		}
		return err
	})
	return v
}

func (g *Guarded) do(op string, fn func(Surface) error) (ok bool) {
	g.mu.RLock()
	s := g.surface
	g.mu.RUnlock()

	if s == nil {
		log.Debug().Str("op", op).Msg("media surface not attached, ignoring call")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("op", op).Str("panic", fmt.Sprint(r)).Msg("media surface call panicked")
			ok = false
		}
	}()

	if err := fn(s); err != nil {
		log.Debug().Err(err).Str("op", op).Msg("media surface call failed")
		return false
	}
	return true
}
