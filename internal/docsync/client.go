// Package docsync keeps a client's document list in step with the server.
// It maintains one realtime connection, re-dialing on a fixed delay after
// every drop, and surfaces document changes and status notifications through
// callbacks. Messages sent while disconnected are dropped, not queued.
package docsync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"pecel/api/internal/realtime"
)

// State is the connection lifecycle of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Conn is one established realtime connection.
type Conn interface {
	// ReadMessage blocks for the next text frame.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one text frame.
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes connections. The websocket dialer implements it in
// production; tests substitute scripted dialers.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Identity is the user bound onto the connection by the auth handshake.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

const defaultRetryDelay = 3 * time.Second

// Client is the sync loop. Create with New, register callbacks, then Start.
type Client struct {
	url        string
	identity   Identity
	dialer     Dialer
	retryDelay time.Duration

	mu    sync.Mutex
	state State
	conn  Conn

	onDocumentChanged func()
	onNotification    func(realtime.Notification)

	done      chan struct{}
	closeOnce sync.Once
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRetryDelay overrides the delay between reconnect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func New(url string, identity Identity, opts ...Option) *Client {
	c := &Client{
		url:        url,
		identity:   identity,
		dialer:     &wsDialer{},
		retryDelay: defaultRetryDelay,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers the callback invoked once per document_update frame.
// The caller refetches its list there; frames carry no delta to apply.
func (c *Client) Subscribe(fn func()) {
	c.mu.Lock()
	c.onDocumentChanged = fn
	c.mu.Unlock()
}

// OnNotification registers the callback for status_change notifications
// addressed to this user. Other notification kinds are ignored.
func (c *Client) OnNotification(fn func(realtime.Notification)) {
	c.mu.Lock()
	c.onNotification = fn
	c.mu.Unlock()
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the connect loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Close stops the loop and drops the active connection, if any.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send writes one frame on the live connection. When disconnected the frame
// is dropped with a warning; callers must not rely on delivery.
func (c *Client) Send(envelope realtime.Envelope) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state < StateConnected {
		log.Printf("[SYNC] not connected, dropping %s message", envelope.Type)
		return
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[SYNC] marshal %s message: %v", envelope.Type, err)
		return
	}
	if err := conn.WriteMessage(payload); err != nil {
		log.Printf("[SYNC] send %s message: %v", envelope.Type, err)
	}
}

func (c *Client) run(ctx context.Context) {
	for {
		if c.stopped(ctx) {
			return
		}
		c.setState(StateConnecting)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			log.Printf("[SYNC] dial %s: %v", c.url, err)
			c.setState(StateDisconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		select {
		case <-c.done:
			_ = conn.Close()
			return
		default:
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		c.sendAuth(conn)
		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		_ = conn.Close()

		if c.stopped(ctx) {
			return
		}
		log.Printf("[SYNC] connection lost, reconnecting in %s", c.retryDelay)
		if !c.sleep(ctx) {
			return
		}
	}
}

// sendAuth binds the local identity onto the connection. Anonymous clients
// (no user id) stay unbound and only receive the public broadcast stream.
func (c *Client) sendAuth(conn Conn) {
	if c.identity.UserID == "" {
		return
	}
	payload, err := json.Marshal(realtime.AuthMessage{
		Type:     realtime.TypeAuth,
		UserID:   c.identity.UserID,
		Username: c.identity.Username,
		Role:     c.identity.Role,
	})
	if err != nil {
		log.Printf("[SYNC] marshal auth message: %v", err)
		return
	}
	if err := conn.WriteMessage(payload); err != nil {
		log.Printf("[SYNC] send auth message: %v", err)
	}
}

// inboundFrame mirrors the server envelope with the payload left raw so each
// frame type can decode its own shape.
type inboundFrame struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) readLoop(conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("[SYNC] error parsing frame: %v", err)
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame inboundFrame) {
	switch frame.Type {
	case realtime.TypeConnected:
		log.Printf("[SYNC] %s", frame.Message)
	case realtime.TypeAuthSuccess:
		c.setState(StateAuthenticated)
		log.Printf("[SYNC] authenticated as %s", c.identity.Username)
	case realtime.TypeDocumentUpdate:
		c.mu.Lock()
		fn := c.onDocumentChanged
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	case realtime.TypeNotification:
		var notification realtime.Notification
		if err := json.Unmarshal(frame.Data, &notification); err != nil {
			log.Printf("[SYNC] error parsing notification: %v", err)
			return
		}
		if notification.Type != realtime.NotificationStatusChange {
			return
		}
		c.mu.Lock()
		fn := c.onNotification
		c.mu.Unlock()
		if fn != nil {
			fn(notification)
		}
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits out the retry delay. It returns false when the client stopped
// while waiting.
func (c *Client) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}
