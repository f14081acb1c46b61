package wslink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	writeErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// scriptedDialer hands out the queued results one dial at a time and
// reports every attempt on dials.
type scriptedDialer struct {
	results chan dialResult
	dials   chan struct{}
}

type dialResult struct {
	conn Conn
	err  error
}

func newScriptedDialer() *scriptedDialer {
	return &scriptedDialer{results: make(chan dialResult, 8), dials: make(chan struct{}, 8)}
}

func (d *scriptedDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.dials <- struct{}{}
	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitDial(t *testing.T, d *scriptedDialer) {
	t.Helper()
	select {
	case <-d.dials:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial attempt")
	}
}

func TestLinkReconnectsAfterFixedDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	dialer := newScriptedDialer()
	link := New(Config{Name: "test", URL: "ws://relay", ReconnectDelay: 5 * time.Second, Dial: dialer.Dial, Clock: clock})

	dialer.results <- dialResult{err: errors.New("connection refused")}
	link.Start(ctx)
	defer link.Close()

	waitDial(t, dialer)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.False(t, link.Connected())

	// not yet
	clock.Advance(4 * time.Second)
	select {
	case <-dialer.dials:
		t.Fatal("redialed before the reconnect delay")
	case <-time.After(50 * time.Millisecond):
	}

	conn := newFakeConn()
	dialer.results <- dialResult{conn: conn}
	clock.Advance(time.Second)
	waitDial(t, dialer)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Send([]byte(`{"type":"ping"}`)))
	assert.Equal(t, [][]byte{[]byte(`{"type":"ping"}`)}, conn.Written())

	// remote side drops the connection
	_ = conn.Close()
	require.Eventually(t, func() bool { return !link.Connected() }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	next := newFakeConn()
	dialer.results <- dialResult{conn: next}
	clock.Advance(5 * time.Second)
	waitDial(t, dialer)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	stats := link.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(2), stats.Reconnects)
}

func TestLinkDropsWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	dialer := newScriptedDialer()
	link := New(Config{URL: "ws://relay", Dial: dialer.Dial, Clock: clock})

	dialer.results <- dialResult{err: errors.New("no route to host")}
	link.Start(ctx)
	defer link.Close()
	waitDial(t, dialer)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	assert.ErrorIs(t, link.Send([]byte("a")), ErrNotConnected)
	assert.ErrorIs(t, link.Send([]byte("b")), ErrNotConnected)
	assert.Equal(t, int64(2), link.Stats().Dropped)

	// nothing was queued for the next connection
	conn := newFakeConn()
	dialer.results <- dialResult{conn: conn}
	clock.Advance(5 * time.Second)
	waitDial(t, dialer)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.Written())
}

func TestLinkWriteFailureDropsAndReconnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	dialer := newScriptedDialer()
	link := New(Config{URL: "ws://relay", Dial: dialer.Dial, Clock: clock})

	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	dialer.results <- dialResult{conn: conn}
	link.Start(ctx)
	defer link.Close()
	waitDial(t, dialer)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	err := link.Send([]byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, int64(1), link.Stats().Dropped)

	require.Eventually(t, func() bool { return !link.Connected() }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestLinkDeliversInboundFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan string, 4)
	connected := make(chan struct{}, 1)
	dialer := newScriptedDialer()
	link := New(Config{
		URL:       "ws://ergrace",
		Dial:      dialer.Dial,
		Clock:     clockwork.NewFakeClock(),
		OnMessage: func(data []byte) { received <- string(data) },
		OnConnect: func() { connected <- struct{}{} },
	})

	conn := newFakeConn()
	dialer.results <- dialResult{conn: conn}
	link.Start(ctx)
	defer link.Close()

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("link never connected")
	}

	conn.inbound <- []byte(`{"SPM":"22"}`)
	select {
	case got := <-received:
		assert.Equal(t, `{"SPM":"22"}`, got)
	case <-ctx.Done():
		t.Fatal("frame not delivered")
	}
}

func TestLinkCloseReleasesPendingReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	dialer := newScriptedDialer()
	link := New(Config{URL: "ws://relay", Dial: dialer.Dial, Clock: clock})

	dialer.results <- dialResult{err: errors.New("refused")}
	link.Start(ctx)
	waitDial(t, dialer)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	done := make(chan struct{})
	go func() {
		_ = link.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("close did not return")
	}

	// the reconnect timer was released
	require.NoError(t, clock.BlockUntilContext(ctx, 0))
	assert.NoError(t, link.Close())
	assert.ErrorIs(t, link.Send([]byte("late")), ErrNotConnected)
}

func TestLinkCloseWhileConnected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialer := newScriptedDialer()
	link := New(Config{URL: "ws://relay", Dial: dialer.Dial, Clock: clockwork.NewFakeClock()})

	conn := newFakeConn()
	dialer.results <- dialResult{conn: conn}
	link.Start(ctx)
	waitDial(t, dialer)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Close())
	assert.False(t, link.Connected())
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection left open")
	}
}
