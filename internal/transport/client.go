package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ablyth/sensi-core/internal/auth"
	"github.com/ablyth/sensi-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the transport client.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenSource supplies bearer tokens for the realtime connection.
// Invalidate is called when the server rejects the current token so the
// next Token call performs a fresh exchange.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Conn is the subset of the websocket connection the client uses.
// Satisfied by *websocket.Conn; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes a websocket connection to the realtime endpoint.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// gorillaDialer adapts the gorilla websocket dialer to the Dialer type.
func gorillaDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		d := &websocket.Dialer{HandshakeTimeout: timeout}
		conn, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// errAuthExpired signals that the server rejected the bearer token mid
// session. The reconnect loop invalidates the token and redials.
var errAuthExpired = errors.New("transport: session token rejected")

type ackResult struct {
	data json.RawMessage
	err  error
}

// Client maintains the realtime push channel to the cloud.
//
// Run owns the connection lifecycle: dial, read until failure, invalidate
// the token on auth rejection, back off with jitter, redial. Inbound server
// events are delivered on the Events channel; emits go out through a single
// serialized writer. An independent ticker polls full state for every known
// device regardless of push health.
type Client struct {
	cfg    config.TransportConfig
	tokens TokenSource
	dialer Dialer
	logger Logger

	connectTimeout time.Duration
	pollInterval   time.Duration

	events chan Event

	connMu sync.Mutex
	conn   Conn

	writeMu sync.Mutex

	ackMu  sync.Mutex
	ackSeq int64
	acks   map[int64]chan ackResult

	devicesMu sync.RWMutex
	devices   func() []string

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a realtime client. Run must be called to start it.
func New(cfg config.TransportConfig, tokens TokenSource) *Client {
	connectTimeout := time.Duration(cfg.ConnectTimeout) * time.Second

	return &Client{
		cfg:            cfg,
		tokens:         tokens,
		dialer:         gorillaDialer(connectTimeout),
		logger:         noopLogger{},
		connectTimeout: connectTimeout,
		pollInterval:   time.Duration(cfg.PollInterval) * time.Second,
		events:         make(chan Event, 64),
		acks:           make(map[int64]chan ackResult),
		done:           make(chan struct{}),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetDialer overrides how connections are established. Used in tests.
func (c *Client) SetDialer(d Dialer) {
	c.dialer = d
}

// SetDeviceLister registers the source of known device identifiers used by
// the polling fallback.
func (c *Client) SetDeviceLister(fn func() []string) {
	c.devicesMu.Lock()
	c.devices = fn
	c.devicesMu.Unlock()
}

// Events returns the stream of transport events. The channel is closed
// when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run connects and keeps the channel alive until the context is cancelled,
// Close is called, or authentication fails fatally. Reconnection is
// automatic with capped exponential backoff and full jitter.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	// Tear down any live connection on shutdown so the read loop unblocks.
	go func() {
		select {
		case <-ctx.Done():
			c.setConn(nil)
		case <-c.done:
		}
	}()

	if c.pollInterval > 0 {
		go c.pollLoop(ctx)
	}

	bo := newBackoff(
		time.Duration(c.cfg.Reconnect.InitialDelay)*time.Second,
		time.Duration(c.cfg.Reconnect.MaxDelay)*time.Second,
	)
	failures := 0
	degraded := false

	for {
		if stop, err := c.stopped(ctx); stop {
			return err
		}

		conn, err := c.connect(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrAuthenticationFailed) {
				c.logger.Error("authentication failed, stopping", "error", err)
				return err
			}
			if stop, stopErr := c.stopped(ctx); stop {
				return stopErr
			}

			failures++
			if failures >= c.cfg.DegradedThreshold && !degraded {
				degraded = true
				c.logger.Warn("connection degraded",
					"consecutive_failures", failures)
				c.send(Event{Type: EventDegraded})
			}

			delay := bo.next()
			c.logger.Warn("connection failed, retrying",
				"error", err, "delay", delay.String())
			if !c.sleep(ctx, delay) {
				_, stopErr := c.stopped(ctx)
				return stopErr
			}
			continue
		}

		failures = 0
		degraded = false
		bo.reset()
		c.setConn(conn)
		c.logger.Info("realtime channel connected")
		c.send(Event{Type: EventConnected})

		err = c.readLoop(conn)
		c.setConn(nil)
		conn.Close()
		c.failAcks(ErrNotConnected)

		if stop, stopErr := c.stopped(ctx); stop {
			return stopErr
		}

		c.logger.Warn("realtime channel dropped", "error", err)
		c.send(Event{Type: EventDisconnected, Err: err})

		if errors.Is(err, errAuthExpired) {
			c.tokens.Invalidate()
		}

		failures++
		if !c.sleep(ctx, bo.next()) {
			_, stopErr := c.stopped(ctx)
			return stopErr
		}
	}
}

// Emit sends a fire-and-forget event on the current connection.
func (c *Client) Emit(ctx context.Context, name string, data any) error {
	payload, err := encodeEvent(name, data, -1)
	if err != nil {
		return err
	}
	return c.write(payload)
}

// EmitWithAck sends an event carrying an ack identifier and waits for the
// server's numbered acknowledgment. Returns the raw ack payload, or
// ErrAckTimeout when the deadline passes without one.
func (c *Client) EmitWithAck(ctx context.Context, name string, data any, timeout time.Duration) (json.RawMessage, error) {
	id, ch := c.registerAck()
	defer c.dropAck(id)

	payload, err := encodeEvent(name, data, id)
	if err != nil {
		return nil, err
	}
	if err := c.write(payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Close tears down the connection and stops the reconnect loop.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.setConn(nil)
		c.failAcks(ErrClosed)
	})
	return nil
}

// readLoop consumes frames until the connection fails. Pings are answered
// inline; events and acks are dispatched; everything else is logged.
func (c *Client) readLoop(conn Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f, err := parseFrame(raw)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}

		switch f.kind {
		case frameOpen:
			// Engine.io handshake done; join the default namespace.
			if err := c.writeConn(conn, connectFrame); err != nil {
				return fmt.Errorf("namespace connect: %w", err)
			}
		case framePing:
			if err := c.writeConn(conn, pongFrame); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		case framePong, frameConnect:
			// Nothing to do.
		case frameDisconnect:
			return errors.New("transport: server closed namespace")
		case frameEvent:
			c.send(Event{Type: EventMessage, Name: f.name, Data: f.data})
		case frameAck:
			c.resolveAck(f.ackID, json.RawMessage(f.body))
		case frameError:
			if isAuthExpired(f) {
				return errAuthExpired
			}
			c.logger.Warn("server error frame", "body", f.body)
		}
	}
}

func (c *Client) connect(ctx context.Context) (Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch bearer token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	return c.dialer(dialCtx, c.endpoint(), header)
}

// endpoint builds the connection URL with the websocket transport marker
// and the requested capability list.
func (c *Client) endpoint() string {
	u := c.cfg.URL

	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	u += sep + "transport=websocket"

	if len(c.cfg.Capabilities) > 0 {
		u += "&capabilities=" + strings.Join(c.cfg.Capabilities, ",")
	}
	return u
}

// pollLoop requests full state for every known device on a fixed interval.
// It runs independently of push-channel health so a quiet or flapping
// connection still converges on fresh state.
func (c *Client) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.pollOnce(ctx)
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) {
	c.devicesMu.RLock()
	lister := c.devices
	c.devicesMu.RUnlock()

	if lister == nil {
		return
	}

	for _, id := range lister() {
		err := c.Emit(ctx, "get_state", map[string]string{"icd_id": id})
		if err != nil {
			c.logger.Debug("state poll skipped", "device", id, "error", err)
			return
		}
	}
}

func (c *Client) setConn(conn Conn) {
	c.connMu.Lock()
	if conn == nil && c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) write(payload []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return c.writeConn(conn, payload)
}

// writeConn serializes all writes on one connection. The websocket allows
// only a single concurrent writer.
func (c *Client) writeConn(conn Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) registerAck() (int64, chan ackResult) {
	ch := make(chan ackResult, 1)

	c.ackMu.Lock()
	c.ackSeq++
	id := c.ackSeq
	c.acks[id] = ch
	c.ackMu.Unlock()

	return id, ch
}

func (c *Client) dropAck(id int64) {
	c.ackMu.Lock()
	delete(c.acks, id)
	c.ackMu.Unlock()
}

func (c *Client) resolveAck(id int64, data json.RawMessage) {
	if id < 0 {
		return
	}

	c.ackMu.Lock()
	ch, ok := c.acks[id]
	delete(c.acks, id)
	c.ackMu.Unlock()

	if ok {
		ch <- ackResult{data: data}
	}
}

// failAcks resolves every pending ack with an error. Called on disconnect
// so command waiters fail fast instead of running out their timeouts.
func (c *Client) failAcks(err error) {
	c.ackMu.Lock()
	for id, ch := range c.acks {
		delete(c.acks, id)
		ch <- ackResult{err: err}
	}
	c.ackMu.Unlock()
}

func (c *Client) send(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// sleep waits for the delay, returning false when interrupted by shutdown.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

// stopped reports whether shutdown was requested, and the error Run
// should return. Close yields a nil error; context cancellation yields
// the context's error.
func (c *Client) stopped(ctx context.Context) (bool, error) {
	select {
	case <-c.done:
		return true, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return false, nil
}
