// Package natsbus carries review sessions over NATS core subjects instead of a
// STOMP broker. Destinations map to subjects one to one.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// AuthorizationHeader carries the sender's bearer token on every command.
const AuthorizationHeader = "Authorization"

// Subject maps a broker destination such as /topic/session/abc to topic.session.abc.
func Subject(destination string) string {
	return strings.ReplaceAll(strings.Trim(destination, "/"), "/", ".")
}

// Destination is the inverse of Subject.
func Destination(subject string) string {
	return "/" + strings.ReplaceAll(subject, ".", "/")
}

// Config holds configuration for NATS links
type Config struct {
	URL  string
	Name string
}

// DefaultConfig returns default NATS link configuration
func DefaultConfig() Config {
	return Config{
		URL:  nats.DefaultURL,
		Name: "teamsync-review",
	}
}

// Dialer opens one NATS connection per link. The connection never reconnects on
// its own; the transport manager owns that policy.
type Dialer struct {
	config Config
}

func NewDialer(config Config) *Dialer {
	return &Dialer{config: config}
}

func (d *Dialer) Dial(ctx context.Context, token string) (transport.Link, error) {
	l := &link{
		token: token,
		done:  make(chan struct{}),
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	opts := []nats.Option{
		nats.Name(d.config.Name),
		nats.Token(token),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err == nil {
				err = errors.New("server closed the connection")
			}
			log.Warn().Err(err).Msg("NATS disconnected")
			l.shutdown(fmt.Errorf("%w: %v", transport.ErrTransport, err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			l.shutdown(nil)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(d.config.URL, opts...)
		ch <- result{nc, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		go func() {
			if late := <-ch; late.nc != nil {
				late.nc.Close()
			}
		}()
		return nil, ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, nats.ErrAuthorization) {
			return nil, fmt.Errorf("%w: %v", transport.ErrHandshakeFailed, res.err)
		}
		return nil, fmt.Errorf("%w: connect to NATS: %v", transport.ErrTransport, res.err)
	}
	l.nc = res.nc

	log.Debug().Str("url", res.nc.ConnectedUrl()).Msg("NATS link established")
	return l, nil
}

type link struct {
	nc    *nats.Conn
	token string

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func (l *link) Subscribe(destination string, fn func([]byte)) (transport.LinkSubscription, error) {
	sub, err := l.nc.Subscribe(Subject(destination), func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", transport.ErrTransport, destination, err)
	}
	return subscription{sub}, nil
}

func (l *link) Send(destination string, body []byte) error {
	msg := nats.NewMsg(Subject(destination))
	msg.Data = body
	msg.Header.Set(AuthorizationHeader, "Bearer "+l.token)

	if err := l.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}
	return nil
}

func (l *link) Close() error {
	l.shutdown(nil)
	l.nc.Close()
	return nil
}

func (l *link) Done() <-chan struct{} { return l.done }

func (l *link) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *link) shutdown(err error) {
	l.closeOnce.Do(func() {
		l.errMu.Lock()
		l.err = err
		l.errMu.Unlock()
		close(l.done)
	})
}

type subscription struct {
	sub *nats.Subscription
}

func (s subscription) Unsubscribe() error {
	err := s.sub.Unsubscribe()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}
