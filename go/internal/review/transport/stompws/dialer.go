package stompws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/internal/review/transport"
)

// Subprotocols offered during the WebSocket upgrade, newest first.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Config holds configuration for STOMP links
type Config struct {
	URL            string
	Host           string
	HeartBeat      time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	Clock          clockwork.Clock
}

// DefaultConfig returns the configuration used against the review server
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Host:           "/",
		HeartBeat:      10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Dialer opens STOMP 1.2 sessions over a WebSocket.
type Dialer struct {
	config Config
	ws     *websocket.Dialer
}

// NewDialer creates a Dialer for config.URL.
func NewDialer(config Config) *Dialer {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Dialer{
		config: config,
		ws: &websocket.Dialer{
			Proxy:        http.ProxyFromEnvironment,
			Subprotocols: Subprotocols,
		},
	}
}

// Dial upgrades to a WebSocket, performs the CONNECT handshake with token as the
// bearer credential and returns the live link.
func (d *Dialer) Dial(ctx context.Context, token string) (transport.Link, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.ws.DialContext(ctx, d.config.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: upgrade rejected with status %d", transport.ErrHandshakeFailed, resp.StatusCode)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}
	if d.config.MaxMessageSize > 0 {
		conn.SetReadLimit(d.config.MaxMessageSize)
	}

	l := newLink(conn, d.config)
	go l.readPump()

	if err := l.handshake(ctx, token); err != nil {
		l.shutdown(err)
		conn.Close()
		return nil, err
	}

	go l.dispatch()
	if l.sendEvery > 0 {
		go l.heartbeat()
	}

	log.Debug().
		Str("url", d.config.URL).
		Str("subprotocol", conn.Subprotocol()).
		Dur("send_heartbeat", l.sendEvery).
		Dur("read_timeout", time.Duration(l.readTimeout.Load())).
		Msg("stomp session established")

	return l, nil
}

type link struct {
	conn   *websocket.Conn
	config Config

	reader *frame.Reader
	pipeW  *io.PipeWriter

	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string]func([]byte)

	sendEvery   time.Duration
	readTimeout atomic.Int64 // nanoseconds, set once the server's heart-beat is known

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newLink(conn *websocket.Conn, config Config) *link {
	pr, pw := io.Pipe()
	return &link{
		conn:   conn,
		config: config,
		reader: frame.NewReader(pr),
		pipeW:  pw,
		subs:   make(map[string]func([]byte)),
		done:   make(chan struct{}),
	}
}

// readPump feeds WebSocket payloads into the frame reader. A single message may
// carry several frames or a bare heart-beat EOL.
func (l *link) readPump() {
	defer l.conn.Close()

	for {
		if timeout := time.Duration(l.readTimeout.Load()); timeout > 0 {
			l.conn.SetReadDeadline(time.Now().Add(timeout))
		}
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.pipeW.CloseWithError(err)
			return
		}
		if _, err := l.pipeW.Write(data); err != nil {
			return
		}
	}
}

func (l *link) handshake(ctx context.Context, token string) error {
	heartBeat := strconv.FormatInt(l.config.HeartBeat.Milliseconds(), 10)
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2,1.1,1.0",
		frame.Host, l.config.Host,
		frame.HeartBeat, heartBeat+","+heartBeat,
	)
	connect.Header.Set("Authorization", "Bearer "+token)

	if err := l.writeFrame(connect); err != nil {
		return fmt.Errorf("%w: write CONNECT: %v", transport.ErrTransport, err)
	}

	type result struct {
		f   *frame.Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			f, err := l.reader.Read()
			if err != nil || f != nil {
				ch <- result{f, err}
				return
			}
		}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		l.conn.Close()
		return ctx.Err()
	}

	if res.err != nil {
		return fmt.Errorf("%w: awaiting CONNECTED: %v", transport.ErrTransport, res.err)
	}

	switch res.f.Command {
	case frame.CONNECTED:
		l.negotiateHeartBeat(res.f.Header.Get(frame.HeartBeat))
		return nil
	case frame.ERROR:
		return fmt.Errorf("%w: %s", transport.ErrHandshakeFailed, errorText(res.f))
	default:
		return fmt.Errorf("%w: unexpected %s frame", transport.ErrHandshakeFailed, res.f.Command)
	}
}

// negotiateHeartBeat applies the STOMP rule: each side uses the larger of what it
// offers and what the peer wants, zero meaning none.
func (l *link) negotiateHeartBeat(server string) {
	ours := l.config.HeartBeat
	if ours <= 0 || server == "" {
		return
	}
	parts := strings.SplitN(server, ",", 2)
	if len(parts) != 2 {
		return
	}
	sx, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	sy, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return
	}

	if sy > 0 {
		l.sendEvery = max(ours, time.Duration(sy)*time.Millisecond)
	}
	if sx > 0 {
		l.readTimeout.Store(int64(2 * max(ours, time.Duration(sx)*time.Millisecond)))
	}
}

func (l *link) dispatch() {
	for {
		f, err := l.reader.Read()
		if err != nil {
			select {
			case <-l.done:
				l.shutdown(nil)
			default:
				l.shutdown(fmt.Errorf("%w: %v", transport.ErrTransport, err))
			}
			return
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			id := f.Header.Get(frame.Subscription)
			l.subsMu.RLock()
			fn, ok := l.subs[id]
			l.subsMu.RUnlock()
			if !ok {
				log.Debug().Str("subscription", id).Msg("message for unknown subscription")
				continue
			}
			fn(f.Body)
		case frame.ERROR:
			err := fmt.Errorf("%w: broker error: %s", transport.ErrTransport, errorText(f))
			log.Error().Err(err).Msg("stomp error frame")
			l.shutdown(err)
			l.conn.Close()
			return
		case frame.RECEIPT:
		default:
			log.Debug().Str("command", f.Command).Msg("ignoring stomp frame")
		}
	}
}

func (l *link) heartbeat() {
	ticker := l.config.Clock.NewTicker(l.sendEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.Chan():
			if err := l.writeRaw([]byte("\n")); err != nil {
				log.Warn().Err(err).Msg("failed to send heart-beat")
				return
			}
		}
	}
}

func (l *link) Subscribe(destination string, fn func([]byte)) (transport.LinkSubscription, error) {
	id := uuid.New().String()

	l.subsMu.Lock()
	l.subs[id] = fn
	l.subsMu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := l.writeFrame(f); err != nil {
		l.subsMu.Lock()
		delete(l.subs, id)
		l.subsMu.Unlock()
		return nil, fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}

	return &subscription{link: l, id: id}, nil
}

func (l *link) Send(destination string, body []byte) error {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body

	if err := l.writeFrame(f); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}
	return nil
}

func (l *link) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}

	// DISCONNECT is a courtesy, the socket goes away regardless.
	_ = l.writeFrame(frame.New(frame.DISCONNECT))
	l.shutdown(nil)

	l.writeMu.Lock()
	l.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.writeMu.Unlock()

	return l.conn.Close()
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

func (l *link) writeFrame(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return l.writeRaw(buf.Bytes())
}

func (l *link) writeRaw(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.config.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

type subscription struct {
	link *link
	id   string
	once sync.Once
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.link.subsMu.Lock()
		delete(s.link.subs, s.id)
		s.link.subsMu.Unlock()

		select {
		case <-s.link.done:
			return
		default:
		}
		err = s.link.writeFrame(frame.New(frame.UNSUBSCRIBE, frame.Id, s.id))
	})
	return err
}

func errorText(f *frame.Frame) string {
	if msg := f.Header.Get(frame.Message); msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return string(f.Body)
	}
	return "rejected"
}

var _ transport.Dialer = (*Dialer)(nil)
