package wslink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Send while the link has no open connection.
var ErrNotConnected = errors.New("link not connected")

// Conn is the part of *websocket.Conn the link uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens one connection to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer adapts a gorilla dialer to a DialFunc.
func WebSocketDialer(d *websocket.Dialer) DialFunc {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Config holds configuration for an outbound link
type Config struct {
	Name           string
	URL            string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	Dial           DialFunc
	Clock          clockwork.Clock

	// OnMessage receives every inbound frame, on the link's read goroutine.
	OnMessage func(data []byte)
	// OnConnect runs after each successful dial.
	OnConnect func()
}

// Stats is a snapshot of link counters.
type Stats struct {
	Connected  bool  `json:"connected"`
	Sent       int64 `json:"sent"`
	Dropped    int64 `json:"dropped"`
	Reconnects int64 `json:"reconnects"`
}

// Link is one supervised outbound WebSocket connection. A background task
// dials, reads until the connection fails, waits ReconnectDelay and dials
// again. Sends are never queued: while the link is down they are dropped.
type Link struct {
	cfg Config

	mu     sync.Mutex
	conn   Conn
	closed bool
	stats  Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a link; nothing is dialed until Start
func New(cfg Config) *Link {
	if cfg.Name == "" {
		cfg.Name = "link"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = WebSocketDialer(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Link{cfg: cfg, done: make(chan struct{})}
}

// Start launches the supervising goroutine. It stops when ctx is cancelled or Close is called.
func (l *Link) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Link) run(ctx context.Context) {
	defer close(l.done)

	first := true
	for {
		if !first {
			if !l.wait(ctx) {
				return
			}
			l.mu.Lock()
			l.stats.Reconnects++
			l.mu.Unlock()
		}
		first = false

		conn, err := l.cfg.Dial(ctx, l.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Str("link", l.cfg.Name).
				Str("url", l.cfg.URL).
				Dur("retry_in", l.cfg.ReconnectDelay).
				Msg("dial failed")
			continue
		}

		if !l.attach(conn) {
			_ = conn.Close()
			return
		}
		log.Info().Str("link", l.cfg.Name).Str("url", l.cfg.URL).Msg("link connected")
		if l.cfg.OnConnect != nil {
			l.cfg.OnConnect()
		}

		err = l.readLoop(conn)
		l.detach(conn)
		if ctx.Err() != nil {
			return
		}
		log.Warn().
			Err(err).
			Str("link", l.cfg.Name).
			Dur("retry_in", l.cfg.ReconnectDelay).
			Msg("link disconnected")
	}
}

// wait blocks for the reconnect delay. It returns false when ctx ends first.
func (l *Link) wait(ctx context.Context) bool {
	timer := l.cfg.Clock.NewTimer(l.cfg.ReconnectDelay)
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return false
	}
}

func (l *Link) readLoop(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if l.cfg.OnMessage != nil {
			l.cfg.OnMessage(data)
		}
	}
}

func (l *Link) attach(conn Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conn = conn
	l.stats.Connected = true
	return true
}

func (l *Link) detach(conn Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == conn {
		l.conn = nil
		l.stats.Connected = false
	}
	_ = conn.Close()
}

// Send writes one text frame if the link is open. While disconnected the
// frame is dropped with a warning and ErrNotConnected is returned. A failed
// write drops the frame and closes the connection, which triggers a reconnect.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		l.stats.Dropped++
		log.Warn().
			Str("link", l.cfg.Name).
			Int("bytes", len(data)).
			Int64("dropped", l.stats.Dropped).
			Msg("link not connected, dropping message")
		return ErrNotConnected
	}

	_ = l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		l.stats.Dropped++
		log.Warn().Err(err).Str("link", l.cfg.Name).Msg("write failed, dropping message")
		_ = l.conn.Close()
		return fmt.Errorf("failed to write to %s: %w", l.cfg.Name, err)
	}
	l.stats.Sent++
	return nil
}

// Connected reports whether the link currently has an open connection.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close cancels any pending reconnect, closes the open connection and waits
// for the supervising goroutine to exit. Safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	cancel := l.cancel
	conn := l.conn
	l.mu.Unlock()

	if cancel == nil {
		// never started
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-l.done
	log.Info().Str("link", l.cfg.Name).Msg("link closed")
	return nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
