package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/reconciler"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// sessionView is what the console drives; *reconciler.Reconciler in production.
type sessionView interface {
	Play() (transport.Delivery, error)
	Pause() (transport.Delivery, error)
	SeekTo(seconds float64) (transport.Delivery, error)
	SeekFraction(f float64) (transport.Delivery, error)
	AddNote(content string) (models.Note, transport.Delivery, error)
	Retry(ctx context.Context) error
	Snapshot() reconciler.Snapshot
}

type sessionEnder interface {
	EndSession(ctx context.Context, sessionID string) error
}

const help = `commands:
  play | pause
  seek <seconds>      jump to an absolute position
  jump <percent>      jump to a point on the progress bar
  note <text>         annotate the current position
  notes | who | status
  retry               reconnect after an error
  end                 end the session for everyone
  quit                leave the session`

type console struct {
	view  sessionView
	ender sessionEnder
	in    io.Reader
	out   io.Writer
}

func newConsole(view sessionView, ender sessionEnder, in io.Reader, out io.Writer) *console {
	return &console{view: view, ender: ender, in: in, out: out}
}

// Run reads commands until quit, end of input or ctx is done.
func (c *console) Run(ctx context.Context) {
	fmt.Fprintln(c.out, help)

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := c.execute(ctx, scanner.Text()); quit {
			return
		}
	}
}

// execute runs one command line and reports whether the console should stop.
func (c *console) execute(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "play":
		c.report(c.view.Play())
	case "pause":
		c.report(c.view.Pause())
	case "seek":
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fmt.Fprintln(c.out, "usage: seek <seconds>")
			return false
		}
		c.report(c.view.SeekTo(seconds))
	case "jump":
		percent, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			fmt.Fprintln(c.out, "usage: jump <percent>")
			return false
		}
		c.report(c.view.SeekFraction(percent / 100))
	case "note":
		note, d, err := c.view.AddNote(arg)
		if err != nil {
			fmt.Fprintf(c.out, "note not added: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "note at %s added\n", formatPosition(note.VideoTimestampMs))
		c.report(d, nil)
	case "notes":
		for _, n := range c.view.Snapshot().Notes {
			fmt.Fprintf(c.out, "[%s] %s: %s\n", formatPosition(n.VideoTimestampMs), n.Author, n.Content)
		}
	case "who":
		for _, p := range c.view.Snapshot().Participants {
			fmt.Fprintf(c.out, "%s (%s)\n", p.Username, p.UserID)
		}
	case "status":
		c.status()
	case "retry":
		if err := c.view.Retry(ctx); err != nil {
			fmt.Fprintf(c.out, "retry failed: %v\n", err)
		}
	case "end":
		sessionID := c.view.Snapshot().SessionID
		if err := c.ender.EndSession(ctx, sessionID); err != nil {
			fmt.Fprintf(c.out, "could not end session: %v\n", err)
			return false
		}
		log.Info().Str("session_id", sessionID).Msg("session ended")
		return true
	case "quit", "exit", "leave":
		return true
	case "help":
		fmt.Fprintln(c.out, help)
	default:
		fmt.Fprintf(c.out, "unknown command %q, try help\n", cmd)
	}
	return false
}

// report tells the user when an action stayed local.
func (c *console) report(d transport.Delivery, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "error: %v\n", err)
	case !d.OK():
		fmt.Fprintf(c.out, "applied locally only (%s)\n", d)
	}
}

func (c *console) status() {
	s := c.view.Snapshot()

	state := "paused"
	if s.Playback.IsPlaying {
		state = "playing"
	}
	fmt.Fprintf(c.out, "%s  %s  %s / %s  connected=%t synced=%t\n",
		s.Phase, state,
		formatPosition(models.SecondsToMs(s.Playback.CurrentTime)),
		formatPosition(models.SecondsToMs(s.Playback.Duration)),
		s.Connected, s.Synced,
	)
	if s.Session != nil {
		fmt.Fprintf(c.out, "%s  video=%s\n", s.Session.Title, s.VideoID)
	}
	if s.MediaError != "" {
		fmt.Fprintf(c.out, "media: %s\n", s.MediaError)
	}
	if s.LastError != "" {
		fmt.Fprintf(c.out, "error: %s (type retry)\n", s.LastError)
	}
}

// formatPosition renders milliseconds as m:ss or h:mm:ss.
func formatPosition(ms int64) string {
	d := (time.Duration(ms) * time.Millisecond).Truncate(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
