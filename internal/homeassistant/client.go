package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/synced-select/internal/infrastructure/config"
)

// Default timing used when the configuration leaves a value at zero.
const (
	defaultCallTimeout    = 10 * time.Second
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	handshakeTimeout      = 10 * time.Second
	closeWriteTimeout     = 2 * time.Second
)

// Client is a Home Assistant WebSocket API client.
//
// It authenticates with a long-lived access token, keeps a local cache of
// every entity state (seeded by get_states and updated by state_changed
// events) and issues service calls.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Listener callbacks run on the connection's read goroutine and must not block.
type Client struct {
	url          string
	token        string
	callTimeout  time.Duration
	initialDelay time.Duration
	maxDelay     time.Duration
	maxAttempts  int
	dialer       *websocket.Dialer

	mu      sync.Mutex
	conn    *connection
	closed  bool
	nextID  int
	pending map[int]chan incoming

	cache *stateCache

	logger Logger
}

// connection is one authenticated WebSocket session.
type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	lost    chan struct{}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// New creates a client from configuration. It does not connect.
func New(cfg *config.Config) (*Client, error) {
	wsURL, err := cfg.HomeAssistantWebSocketURL()
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:          wsURL,
		token:        cfg.HomeAssistant.Token,
		callTimeout:  cfg.GetCallTimeout(),
		initialDelay: time.Duration(cfg.HomeAssistant.Reconnect.InitialDelay) * time.Second,
		maxDelay:     time.Duration(cfg.HomeAssistant.Reconnect.MaxDelay) * time.Second,
		maxAttempts:  cfg.HomeAssistant.Reconnect.MaxAttempts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		pending: make(map[int]chan incoming),
		cache:   newStateCache(),
		logger:  noopLogger{},
	}

	if c.callTimeout <= 0 {
		c.callTimeout = defaultCallTimeout
	}
	if c.initialDelay <= 0 {
		c.initialDelay = defaultInitialBackoff
	}
	if c.maxDelay < c.initialDelay {
		c.maxDelay = defaultMaxBackoff
	}

	return c, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// IsConnected reports whether an authenticated session is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials Home Assistant, authenticates, subscribes to state_changed
// and loads every entity state into the cache.
//
// Calling Connect while already connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	version, err := c.authenticate(ws)
	if err != nil {
		ws.Close()
		return err
	}

	conn := &connection{ws: ws, lost: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	// Subscribe before loading states so no change is missed in between.
	if _, err := c.call(ctx, map[string]any{
		"type":       cmdSubscribeEvents,
		"event_type": eventStateChanged,
	}); err != nil {
		c.dropConnection(conn)
		return fmt.Errorf("subscribing to state changes: %w", err)
	}

	if err := c.syncStates(ctx); err != nil {
		c.dropConnection(conn)
		return err
	}

	c.logger.Info("connected to home assistant",
		"url", c.url,
		"ha_version", version,
		"entities", c.cache.len(),
	)
	return nil
}

// authenticate runs the auth_required -> auth -> auth_ok handshake.
func (c *Client) authenticate(ws *websocket.Conn) (string, error) {
	deadline := time.Now().Add(handshakeTimeout)
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{}) //nolint:errcheck // best-effort reset

	var hello incoming
	if err := ws.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("%w: reading auth_required: %w", ErrConnectionFailed, err)
	}
	if hello.Type != msgAuthRequired {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrConnectionFailed, msgAuthRequired, hello.Type)
	}

	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(authMessage{Type: msgAuth, AccessToken: c.token}); err != nil {
		return "", fmt.Errorf("%w: sending auth: %w", ErrConnectionFailed, err)
	}
	_ = ws.SetWriteDeadline(time.Time{})

	var reply incoming
	if err := ws.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("%w: reading auth reply: %w", ErrConnectionFailed, err)
	}

	switch reply.Type {
	case msgAuthOK:
		return reply.HAVersion, nil
	case msgAuthInvalid:
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return "", fmt.Errorf("%w: unexpected auth reply %q", ErrConnectionFailed, reply.Type)
	}
}

// syncStates replaces the cache with a fresh get_states snapshot and
// notifies every listener.
func (c *Client) syncStates(ctx context.Context) error {
	states, err := c.GetStates(ctx)
	if err != nil {
		return fmt.Errorf("loading states: %w", err)
	}
	c.cache.replace(states)
	c.cache.notifyAll()
	return nil
}

// Run keeps the client connected until ctx is cancelled.
//
// Lost connections are re-established with exponential backoff. On every
// reconnect the state cache is resynchronised and all listeners are
// notified. Run returns nil when ctx is cancelled, ErrAuthFailed when the
// token is rejected, or ErrConnectionFailed once MaxAttempts consecutive
// attempts have failed (0 means retry forever).
func (c *Client) Run(ctx context.Context) error {
	delay := c.initialDelay
	attempts := 0

	for {
		lost := c.lostChan()
		if lost == nil {
			err := c.Connect(ctx)
			switch {
			case err == nil:
				attempts = 0
				delay = c.initialDelay
				continue
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrClosed):
				return err
			}

			attempts++
			if c.maxAttempts > 0 && attempts >= c.maxAttempts {
				return fmt.Errorf("%w: giving up after %d attempts: %w", ErrConnectionFailed, attempts, err)
			}

			c.logger.Warn("home assistant connection attempt failed",
				"attempt", attempts,
				"retry_in", delay.String(),
				"error", err,
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case <-lost:
			c.logger.Warn("home assistant connection lost, reconnecting")
		}
	}
}

func (c *Client) lostChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.lost
}

// Close terminates the session. Later calls to Connect return ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}

	conn.writeMu.Lock()
	_ = conn.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout),
	)
	conn.writeMu.Unlock()

	c.dropConnection(conn)
}

// readLoop routes server messages until the connection fails.
func (c *Client) readLoop(conn *connection) {
	defer c.dropConnection(conn)

	for {
		var msg incoming
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if !c.isClosed() {
				c.logger.Debug("home assistant read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case msgResult, msgPong:
			c.deliver(msg)
		case msgEvent:
			c.handleEvent(msg)
		default:
			c.logger.Debug("ignoring home assistant message", "type", msg.Type)
		}
	}
}

// dropConnection detaches conn and fails every pending command.
// Safe to call more than once for the same connection.
func (c *Client) dropConnection(conn *connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[int]chan incoming)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(conn.lost)
	conn.ws.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) deliver(msg incoming) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("result for unknown command", "id", msg.ID)
		return
	}
	ch <- msg
}

func (c *Client) handleEvent(msg incoming) {
	if msg.Event == nil || msg.Event.EventType != eventStateChanged {
		return
	}

	var data stateChangedData
	if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
		c.logger.Warn("malformed state_changed event", "error", err)
		return
	}
	if data.EntityID == "" {
		return
	}

	if data.NewState == nil {
		c.cache.remove(data.EntityID)
	} else {
		c.cache.set(*data.NewState)
	}
	c.cache.notify(data.EntityID)
}

// call sends a command and waits for its result.
// payload must not contain "id"; it is assigned here.
func (c *Client) call(ctx context.Context, payload map[string]any) (incoming, error) {
	ch := make(chan incoming, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return incoming{}, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	payload["id"] = id

	conn.writeMu.Lock()
	err := conn.ws.WriteJSON(payload)
	conn.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return incoming{}, fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return incoming{}, ErrNotConnected
		}
		if msg.Type == msgResult && !msg.Success {
			if msg.Error != nil {
				return msg, msg.Error
			}
			return msg, ErrCommandFailed
		}
		return msg, nil
	case <-timer.C:
		c.forget(id)
		return incoming{}, fmt.Errorf("%w: %v after %s", ErrTimeout, payload["type"], c.callTimeout)
	case <-ctx.Done():
		c.forget(id)
		return incoming{}, ctx.Err()
	}
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// GetStates fetches every entity state from Home Assistant.
// It does not touch the local cache.
func (c *Client) GetStates(ctx context.Context) ([]State, error) {
	msg, err := c.call(ctx, map[string]any{"type": cmdGetStates})
	if err != nil {
		return nil, err
	}

	var states []State
	if err := json.Unmarshal(msg.Result, &states); err != nil {
		return nil, fmt.Errorf("decoding states: %w", err)
	}
	return states, nil
}

// CallService invokes domain.service with serviceData against target.
// target may be nil.
func (c *Client) CallService(ctx context.Context, domain, service string, serviceData, target map[string]any) error {
	payload := map[string]any{
		"type":    cmdCallService,
		"domain":  domain,
		"service": service,
	}
	if serviceData != nil {
		payload["service_data"] = serviceData
	}
	if target != nil {
		payload["target"] = target
	}

	if _, err := c.call(ctx, payload); err != nil {
		return fmt.Errorf("calling %s.%s: %w", domain, service, err)
	}
	return nil
}

// Ping checks the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, map[string]any{"type": msgPing})
	return err
}

// State returns the cached state of entityID.
func (c *Client) State(entityID string) (State, bool) {
	return c.cache.get(entityID)
}

// EntityIDs lists cached entity IDs in the given domains, sorted.
// With no domains every entity is listed.
func (c *Client) EntityIDs(domains ...string) []string {
	return c.cache.entityIDs(domains...)
}

// EntityIDsWithAttribute lists cached entities whose attribute key is the
// string value, sorted.
func (c *Client) EntityIDsWithAttribute(key, value string) []string {
	return c.cache.withAttribute(key, value)
}

// TrackStateChange calls handler with the entity ID whenever one of
// entityIDs changes, and once for each of them after every resync.
// The returned function removes the registration.
func (c *Client) TrackStateChange(entityIDs []string, handler func(entityID string)) (cancel func()) {
	return c.cache.track(entityIDs, handler)
}
