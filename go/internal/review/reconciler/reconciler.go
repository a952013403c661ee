package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/events"
	"github.com/mcdev12/teamsync/go/internal/review/media"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

var (
	ErrEmptyNote      = errors.New("note content is empty")
	ErrNotOpen        = errors.New("session view is closed")
	ErrConnectionLost = errors.New("connection to the session was lost")
)

// Phase is where a session view is in its lifecycle
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseSyncing
	PhaseLive
	PhaseErrored
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseSyncing:
		return "syncing"
	case PhaseLive:
		return "live"
	case PhaseErrored:
		return "errored"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionSource fetches the session metadata shown by the view.
type SessionSource interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// SessionLeaver is implemented by sources that can also record leaving a session.
type SessionLeaver interface {
	LeaveSession(ctx context.Context, sessionID string) error
}

// Transport is the part of transport.Manager a session view drives.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	SubscribeToSession(sessionID string, handler transport.Handler) (*transport.Subscription, error)
	UnsubscribeFromSession(sessionID string)
	Acquire()
	Release() bool
	OnStateChange(fn func(transport.State)) func()

	SendPlay(sessionID string, timestampMs int64) transport.Delivery
	SendPause(sessionID string, timestampMs int64) transport.Delivery
	SendSeek(sessionID string, timestampMs int64, isPlaying bool) transport.Delivery
	RequestSync(sessionID string) transport.Delivery
	SendNote(sessionID string, note events.NoteCommand) transport.Delivery
}

// Config tunes timing of a session view.
type Config struct {
	// SettleDelay separates a seek from the play/pause that follows it.
	SettleDelay  time.Duration
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:  100 * time.Millisecond,
		PollInterval: media.DefaultPollInterval,
	}
}

// Deps are the collaborators of a session view. Transport is shared by every
// open view in the process.
type Deps struct {
	Sessions  SessionSource
	Transport Transport
	Surface   *media.Guarded
	Clock     clockwork.Clock
}

// Reconciler binds one session view's media surface to the session's shared
// event stream. All view state is owned by a single loop goroutine; inbound
// events, local actions, poll samples and connection changes are queued to it
// and applied in arrival order.
type Reconciler struct {
	sessionID string
	localUser models.Participant
	config    Config

	sessions  SessionSource
	transport Transport
	surface   *media.Guarded
	clock     clockwork.Clock

	ops  chan func()
	quit chan struct{}

	lifecycle   sync.Mutex // serialises Open, Retry and Close
	holding     bool       // transport acquired; guarded by lifecycle
	stopPolling context.CancelFunc
	unlisten    func()

	// loop-owned
	phase        Phase
	lastErr      error
	synced       bool
	session      *models.Session
	videoID      string
	mediaErr     error
	playback     models.PlaybackState
	notes        []models.Note
	participants map[string]models.Participant
}

// New creates a view for sessionID on behalf of localUser. Nothing happens on the
// network until Open.
func New(sessionID string, localUser models.Participant, deps Deps, config Config) *Reconciler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Surface == nil {
		deps.Surface = media.Guard(nil)
	}

	r := &Reconciler{
		sessionID:    sessionID,
		localUser:    localUser,
		config:       config,
		sessions:     deps.Sessions,
		transport:    deps.Transport,
		surface:      deps.Surface,
		clock:        deps.Clock,
		ops:          make(chan func(), 256),
		quit:         make(chan struct{}),
		phase:        PhaseInitializing,
		participants: make(map[string]models.Participant),
	}

	go r.loop()
	r.unlisten = r.transport.OnStateChange(func(s transport.State) {
		r.post(func() { r.onTransportState(s) })
	})

	return r
}

func (r *Reconciler) loop() {
	for {
		select {
		case <-r.quit:
			return
		case fn := <-r.ops:
			fn()
		}
	}
}

// post queues fn on the loop without waiting for it.
func (r *Reconciler) post(fn func()) {
	select {
	case r.ops <- fn:
	case <-r.quit:
	}
}

// call runs fn on the loop and waits for it to finish.
func (r *Reconciler) call(fn func()) error {
	done := make(chan struct{})
	select {
	case r.ops <- func() { fn(); close(done) }:
	case <-r.quit:
		return ErrNotOpen
	}
	select {
	case <-done:
		return nil
	case <-r.quit:
		return ErrNotOpen
	}
}

// Open runs Initializing → Syncing → Live. Any failure leaves the view Errored
// with the error kept for the retry banner.
func (r *Reconciler) Open(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	var phase Phase
	if err := r.call(func() { phase = r.phase }); err != nil {
		return err
	}
	switch phase {
	case PhaseClosed:
		return ErrNotOpen
	case PhaseLive, PhaseSyncing:
		return nil
	}

	return r.open(ctx)
}

// Retry re-enters Initializing from Errored. It is a no-op in any other phase.
func (r *Reconciler) Retry(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	var phase Phase
	if err := r.call(func() { phase = r.phase }); err != nil {
		return err
	}
	if phase != PhaseErrored {
		return nil
	}

	log.Info().Str("session_id", r.sessionID).Msg("retrying session connection")
	return r.open(ctx)
}

func (r *Reconciler) open(ctx context.Context) error {
	if !r.holding {
		r.transport.Acquire()
		r.holding = true
	}

	r.call(func() {
		r.phase = PhaseInitializing
		r.lastErr = nil
	})

	session, err := r.sessions.GetSession(ctx, r.sessionID)
	if err != nil {
		return r.fail(fmt.Errorf("load session: %w", err))
	}
	r.call(func() { r.loadSession(session) })

	if err := r.transport.Connect(ctx); err != nil {
		return r.fail(err)
	}

	r.call(func() { r.phase = PhaseSyncing })

	if _, err := r.transport.SubscribeToSession(r.sessionID, r.onMessage); err != nil {
		return r.fail(err)
	}
	d := r.transport.RequestSync(r.sessionID)

	r.call(func() {
		r.phase = PhaseLive
		r.playback.Duration = r.surface.Duration()
	})
	r.startPolling()

	log.Info().
		Str("session_id", r.sessionID).
		Str("user_id", r.localUser.UserID).
		Stringer("sync_request", d).
		Msg("session view live")

	return nil
}

func (r *Reconciler) fail(err error) error {
	r.call(func() {
		if r.phase == PhaseClosed {
			return
		}
		r.phase = PhaseErrored
		r.lastErr = err
	})
	log.Error().Err(err).Str("session_id", r.sessionID).Msg("session view failed")
	return err
}

func (r *Reconciler) loadSession(s *models.Session) {
	r.session = s
	r.videoID = ""
	r.mediaErr = nil

	id, err := media.YouTubeVideoID(s.VideoURL)
	if err != nil {
		r.mediaErr = err
		log.Warn().Err(err).Str("session_id", r.sessionID).Str("video_url", s.VideoURL).Msg("unrecognised video url")
		return
	}
	r.videoID = id
}

func (r *Reconciler) startPolling() {
	if r.stopPolling != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.stopPolling = cancel

	poller := media.NewPoller(r.clock, r.surface, r.config.PollInterval)
	go poller.Run(ctx, func(s media.Sample) {
		r.post(func() { r.applySample(s) })
	})
}

func (r *Reconciler) applySample(s media.Sample) {
	r.playback.CurrentTime = s.CurrentTime
	if s.Duration > 0 {
		r.playback.Duration = s.Duration
	}
}

func (r *Reconciler) onTransportState(s transport.State) {
	switch s {
	case transport.StateConnected:
		// subscriptions survive a reconnect; what we missed while away comes from a resync
		if r.phase == PhaseLive {
			log.Info().Str("session_id", r.sessionID).Msg("reconnected, requesting sync")
			r.transport.RequestSync(r.sessionID)
		}
	case transport.StateFailed:
		if r.phase == PhaseLive || r.phase == PhaseSyncing {
			r.phase = PhaseErrored
			r.lastErr = ErrConnectionLost
		}
	case transport.StateDisconnected:
		// another view tore the shared connection down under us
		if r.phase == PhaseLive {
			r.phase = PhaseErrored
			r.lastErr = ErrConnectionLost
		}
	}
}

// Close unsubscribes, then releases the shared connection if no other view
// still holds it. Safe to call more than once.
func (r *Reconciler) Close() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if err := r.call(func() { r.phase = PhaseClosed }); err != nil {
		return
	}

	if r.stopPolling != nil {
		r.stopPolling()
		r.stopPolling = nil
	}

	r.transport.UnsubscribeFromSession(r.sessionID)
	if r.holding {
		r.holding = false
		if r.transport.Release() {
			log.Debug().Str("session_id", r.sessionID).Msg("released idle connection")
		}
	}
	r.unlisten()
	close(r.quit)

	log.Info().Str("session_id", r.sessionID).Msg("session view closed")
}

// Leave records leaving the session with the backend, then closes the view. The
// view is closed even when the backend call fails.
func (r *Reconciler) Leave(ctx context.Context) error {
	var err error
	if leaver, ok := r.sessions.(SessionLeaver); ok {
		if err = leaver.LeaveSession(ctx, r.sessionID); err != nil {
			log.Error().Err(err).Str("session_id", r.sessionID).Msg("error leaving session")
		}
	}
	r.Close()
	return err
}
