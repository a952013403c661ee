package inmem

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/relay"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

const sendBufferSize = 256

type link struct {
	hub *Hub
	who relay.Identity

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int

	// deliveries run on the link goroutine, in order, never on the publisher's
	queue chan func()

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

type subscription struct {
	link        *link
	id          int
	destination string
	fn          func([]byte)
}

func newLink(h *Hub, who relay.Identity) *link {
	return &link{
		hub:   h,
		who:   who,
		subs:  make(map[int]*subscription),
		queue: make(chan func(), sendBufferSize),
		done:  make(chan struct{}),
	}
}

func (l *link) run() {
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

func (l *link) deliver(destination string, body []byte) {
	l.mu.Lock()
	var fns []func([]byte)
	for _, s := range l.subs {
		if s.destination == destination {
			fns = append(fns, s.fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		select {
		case l.queue <- func() { fn(body) }:
		case <-l.done:
			return
		default:
			log.Warn().Str("user_id", l.who.UserID).Msg("link send buffer full, dropping message")
		}
	}
}

func (l *link) Subscribe(destination string, fn func([]byte)) (transport.LinkSubscription, error) {
	select {
	case <-l.done:
		return nil, transport.ErrNotConnected
	default:
	}

	l.mu.Lock()
	l.nextID++
	s := &subscription{link: l, id: l.nextID, destination: destination, fn: fn}
	l.subs[s.id] = s
	l.mu.Unlock()

	l.hub.joined(l, destination)
	return s, nil
}

func (s *subscription) Unsubscribe() error {
	l := s.link
	l.mu.Lock()
	_, ok := l.subs[s.id]
	delete(l.subs, s.id)
	l.mu.Unlock()

	if ok {
		l.hub.left(l, s.destination)
	}
	return nil
}

func (l *link) Send(destination string, body []byte) error {
	select {
	case <-l.done:
		return transport.ErrNotConnected
	default:
	}
	return l.hub.command(l, destination, body)
}

func (l *link) Close() error {
	l.terminate(nil)
	return nil
}

func (l *link) terminate(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.err = err
		subs := l.subs
		l.subs = make(map[int]*subscription)
		l.mu.Unlock()

		l.hub.remove(l)
		close(l.done)

		for _, s := range subs {
			l.hub.left(l, s.destination)
		}
	})
}

func (l *link) Done() <-chan struct{} { return l.done }

func (l *link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
