package transport

import (
	"context"
	"errors"
)

var (
	ErrNoCredential    = errors.New("no authentication token found")
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrTransport       = errors.New("transport error")
	ErrConnectTimeout  = errors.New("connection timeout")
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("connection closed by caller")
)

// Credentials hands out the bearer token current at connect time.
type Credentials interface {
	BearerToken() (string, bool)
}

// Dialer opens one authenticated link to a broker. Implementations should return
// errors wrapping ErrHandshakeFailed when the broker rejects the credential and
// ErrTransport for socket-level failures.
type Dialer interface {
	Dial(ctx context.Context, token string) (Link, error)
}

// Link is one established broker connection.
type Link interface {
	Subscribe(destination string, fn func(body []byte)) (LinkSubscription, error)
	Send(destination string, body []byte) error
	// Close tears the link down. Done is closed afterwards.
	Close() error
	// Done is closed when the link is gone, whether closed locally or dropped.
	Done() <-chan struct{}
	// Err reports why the link went down, nil for a local Close.
	Err() error
}

// LinkSubscription is a broker-level subscription on a Link.
type LinkSubscription interface {
	Unsubscribe() error
}
