package media

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// VirtualPlayer is a headless Surface whose playhead advances on a clock. It backs
// the CLI and tests where no real embed exists.
type VirtualPlayer struct {
	clock clockwork.Clock

	mu        sync.Mutex
	duration  float64
	position  float64 // seconds at anchor
	anchor    time.Time
	playing   bool
	ready     bool
	destroyed bool
}

// NewVirtualPlayer returns a ready player of the given duration, paused at 0.
func NewVirtualPlayer(clock clockwork.Clock, duration float64) *VirtualPlayer {
	return &VirtualPlayer{
		clock:    clock,
		duration: duration,
		anchor:   clock.Now(),
		ready:    true,
	}
}

// SetReady toggles readiness, simulating an embed that is still loading.
func (v *VirtualPlayer) SetReady(ready bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ready = ready
}

// Destroy tears the player down; every later call fails with ErrDestroyed.
func (v *VirtualPlayer) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destroyed = true
}

func (v *VirtualPlayer) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if !v.playing {
		v.position = v.positionLocked()
		v.anchor = v.clock.Now()
		v.playing = true
	}
	return nil
}

func (v *VirtualPlayer) Pause() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if v.playing {
		v.position = v.positionLocked()
		v.anchor = v.clock.Now()
		v.playing = false
	}
	return nil
}

func (v *VirtualPlayer) SeekTo(seconds float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	v.position = clamp(seconds, 0, v.duration)
	v.anchor = v.clock.Now()
	return nil
}

func (v *VirtualPlayer) CurrentTime() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.positionLocked(), nil
}

func (v *VirtualPlayer) Duration() (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.duration, nil
}

func (v *VirtualPlayer) IsPlaying() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return false, err
	}
	return v.playing && v.positionLocked() < v.duration, nil
}

func (v *VirtualPlayer) check() error {
	if v.destroyed {
		return ErrDestroyed
	}
	if !v.ready {
		return ErrNotReady
	}
	return nil
}

func (v *VirtualPlayer) positionLocked() float64 {
	if !v.playing {
		return v.position
	}
	elapsed := v.clock.Since(v.anchor).Seconds()
	return clamp(v.position+elapsed, 0, v.duration)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if hi > 0 && x > hi {
		return hi
	}
	return x
}
