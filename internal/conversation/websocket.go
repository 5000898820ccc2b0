// ABOUTME: gorilla/websocket Transport for the relay with serialized, deadline-bounded writes
// ABOUTME: Keeps the connection alive with pings and closes the socket when its context ends

package conversation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket defaults, used when options are zero.
const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultReadLimit    = 64 * 1024
)

// WSOptions tunes a WSTransport.
type WSOptions struct {
	WriteTimeout time.Duration
	PongWait     time.Duration // read deadline, refreshed by every pong; pings go out at 9/10 of it
	ReadLimit    int64
}

// WSTransport adapts a *websocket.Conn to Transport.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	stop      func() bool
}

// NewWSTransport wraps conn. The socket is closed when ctx is done, which
// unblocks a pending Receive.
func NewWSTransport(ctx context.Context, conn *websocket.Conn, opts WSOptions) *WSTransport {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}

	t := &WSTransport{
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
		pongWait:     opts.PongWait,
		closed:       make(chan struct{}),
	}

	conn.SetReadLimit(opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(t.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	t.stop = context.AfterFunc(ctx, func() { _ = t.Close() })
	go t.pingLoop()

	return t
}

// Receive returns the next text or binary message. Pongs are only handled
// while a read is pending, so the deadline restarts on every call.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
		if t.isClosed() {
			return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return nil, err
	}
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Send writes payload as one text message.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.stop != nil {
			t.stop()
		}

		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *WSTransport) pingLoop() {
	ticker := time.NewTicker(t.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				_ = t.Close()
				return
			}
		}
	}
}
