package media

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval matches the cadence the embed widget is sampled at.
const DefaultPollInterval = 100 * time.Millisecond

// Sample is one reading of the surface clock.
type Sample struct {
	CurrentTime float64
	Duration    float64
	IsPlaying   bool
}

// Poller samples a surface on a fixed interval since the embed has no reliable
// time-update callback.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	surface  *Guarded
}

func NewPoller(clock clockwork.Clock, surface *Guarded, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		clock:    clock,
		interval: interval,
		surface:  surface,
	}
}

// Run calls fn with a fresh sample every interval until ctx is done. Ticks are
// skipped while no player is attached.
func (p *Poller) Run(ctx context.Context, fn func(Sample)) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !p.surface.Attached() {
				continue
			}
			fn(Sample{
				CurrentTime: p.surface.CurrentTime(),
				Duration:    p.surface.Duration(),
				IsPlaying:   p.surface.IsPlaying(),
			})
		}
	}
}
