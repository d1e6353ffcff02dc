package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown"
)

const sendBuffer = 256

// Options tunes a dialled connection.
type Options struct {
	// PingInterval is the keep-alive ping period. The read deadline is
	// slightly longer and is pushed back by every message and pong.
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	Header           http.Header
	Logger           zerolog.Logger
}

// DefaultOptions returns the keep-alive settings used against the main server.
func DefaultOptions() Options {
	return Options{
		PingInterval:     54 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Logger:           zerolog.Nop(),
	}
}

// Conn is a client websocket connection with a single writer goroutine.
type Conn struct {
	id     string
	url    string
	conn   *websocket.Conn
	opts   Options
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan string

	mu     sync.RWMutex
	closed bool
	err    error
}

// Dial opens a websocket to url and starts its write pump.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &showdown.TransportError{Op: "dial " + url, Err: err}
	}
	return newConn(ws, url, opts), nil
}

func newConn(ws *websocket.Conn, url string, opts Options) *Conn {
	defaults := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	c := &Conn{
		id:     id,
		url:    url,
		conn:   ws,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "websocket").Str("session", id).Logger(),
		ctx:    ctx,
		cancel: cancel,
		sendCh: make(chan string, sendBuffer),
	}

	ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	go c.writePump()
	return c
}

// ID returns a unique identifier for this connection.
func (c *Conn) ID() string {
	return c.id
}

// URL returns the address the connection was dialled to.
func (c *Conn) URL() string {
	return c.url
}

// Done is closed once the connection is closed or broken.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Read blocks for the next text frame. Close unblocks it.
func (c *Conn) Read() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", &showdown.TransportError{Op: showdown.ErrMsgServerClosed, Err: err}
			}
			return "", &showdown.TransportError{Op: "read", Err: c.cause(err)}
		}
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		if kind != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

// Send queues a frame for the write pump.
func (c *Conn) Send(ctx context.Context, frame string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return &showdown.TransportError{Op: showdown.ErrMsgConnectionClosed, Err: c.err}
	}

	// Hold the read lock while queueing so Close cannot close sendCh under us.
	select {
	case c.sendCh <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return &showdown.TransportError{Op: showdown.ErrMsgConnectionClosed, Err: c.err}
	}
}

// Close sends a normal close frame and releases the connection. It is safe to
// call more than once.
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))

	close(c.sendCh)
	return c.conn.Close()
}

// writePump pumps frames from the send channel to the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				c.fail(err)
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// fail records the first error that broke the connection.
func (c *Conn) fail(err error) {
	// Cancel first: a Send blocked on a full buffer holds the read lock.
	c.cancel()
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Conn) cause(err error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New(showdown.ErrMsgConnectionClosed)
	}
	return err
}

func (c *Conn) pongWait() time.Duration {
	return c.opts.PingInterval * 10 / 9
}
