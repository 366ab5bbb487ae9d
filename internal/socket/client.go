package socket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/models"
)

// Status of the single session connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Frame is the wire wrapper for every message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrNotConnected is returned by Emit while the connection is down.
var ErrNotConnected = errors.New("socket: not connected")

// Client owns the one persistent connection per authenticated session. It
// dispatches named push events to registered handlers, keeps the connection
// alive with ping/pong, and reconnects automatically within a bounded number
// of attempts. It never interprets application payloads.
type Client struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	credential string
	generation uint64
	running    bool
	closing    bool
	restart    bool
	stopCh     chan struct{}

	handlers       map[string]map[int]func(json.RawMessage)
	statusHandlers map[int]func(Status)
	nextHandlerID  int

	writeMu sync.Mutex
}

// NewClient builds a disconnected client for the given socket URL.
func NewClient(url string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:            url,
		dialer:         websocket.DefaultDialer,
		log:            log,
		maxAttempts:    5,
		baseDelay:      time.Second,
		maxDelay:       5 * time.Second,
		pingInterval:   25 * time.Second,
		pongTimeout:    60 * time.Second,
		status:         StatusDisconnected,
		handlers:       make(map[string]map[int]func(json.RawMessage)),
		statusHandlers: make(map[int]func(Status)),
	}
}

// Connect starts the connection with the given bearer credential. It is
// idempotent: while a connection is live or being established, further calls
// do nothing. Failures surface through the status, never as an error here.
func (c *Client) Connect(credential string) {
	c.mu.Lock()
	if c.running {
		c.credential = credential
		// A teardown is still winding down; have the run loop start over
		// instead of finishing, so this call is not silently lost.
		if c.closing {
			c.restart = true
		}
		c.mu.Unlock()
		return
	}
	c.running = true
	c.closing = false
	c.credential = credential
	c.stopCh = make(chan struct{})
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	go c.run()
}

// IsConnected reports whether the connection is currently live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Generation counts successful (re)connections. Consumers tag state they
// derive from pushes with the generation it arrived under; anything older
// than the last full resync is stale.
func (c *Client) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Disconnect tears the connection down and stops any reconnect attempts.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.running || c.closing {
		c.restart = false
		c.mu.Unlock()
		return
	}
	c.closing = true
	close(c.stopCh)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// On registers a handler for a named push event. The returned function is
// the only way to stop receiving; callers must invoke it on teardown.
func (c *Client) On(event string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextHandlerID
	c.nextHandlerID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func(json.RawMessage))
	}
	c.handlers[event][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// OnStatus registers a connection-state listener.
func (c *Client) OnStatus(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextHandlerID
	c.nextHandlerID++
	c.statusHandlers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusHandlers, id)
	}
}

// Emit sends a named event to the server.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(Frame{Event: event, Data: data}); err != nil {
		return errors.Wrapf(err, "emit %s", event)
	}
	return nil
}

// Room primitives. Membership belongs to the component that joined; the
// client only carries the commands.

func (c *Client) JoinConversation(matchID int) error {
	return c.Emit(EventChatJoin, models.ChatRoomRef{MatchID: matchID})
}

func (c *Client) LeaveConversation(matchID int) error {
	return c.Emit(EventChatLeave, models.ChatRoomRef{MatchID: matchID})
}

func (c *Client) JoinEvent(eventID int) error {
	return c.Emit(EventEventJoin, models.EventRoomRef{EventID: eventID})
}

func (c *Client) LeaveEvent(eventID int) error {
	return c.Emit(EventEventLeave, models.EventRoomRef{EventID: eventID})
}

// run owns the connection lifecycle: dial, pump, reconnect with bounded
// backoff, give up after maxAttempts consecutive failures.
func (c *Client) run() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	bo.MaxInterval = c.maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := 0
	for {
		c.mu.Lock()
		if c.closing {
			c.finishLocked()
			return
		}
		credential := c.credential
		stopCh := c.stopCh
		c.mu.Unlock()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+credential)
		conn, resp, err := c.dialer.Dial(c.url, header)
		if err != nil {
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			attempts++
			c.log.Warn("socket connect failed",
				zap.Int("attempt", attempts),
				zap.Error(err))
			if attempts >= c.maxAttempts {
				c.mu.Lock()
				c.finishLocked()
				c.mu.Unlock()
				return
			}
			select {
			case <-time.After(bo.NextBackOff()):
			case <-stopCh:
			}
			continue
		}

		attempts = 0
		bo.Reset()

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			_ = conn.Close()
			c.mu.Lock()
			c.finishLocked()
			c.mu.Unlock()
			return
		}
		c.conn = conn
		c.generation++
		c.setStatusLocked(StatusConnected)
		c.mu.Unlock()

		pingDone := make(chan struct{})
		go c.pingLoop(conn, pingDone)

		c.readLoop(conn)
		close(pingDone)
		_ = conn.Close()

		c.mu.Lock()
		c.conn = nil
		if c.closing {
			c.finishLocked()
			c.mu.Unlock()
			return
		}
		c.setStatusLocked(StatusConnecting)
		c.mu.Unlock()
	}
}

// finishLocked ends the run loop, or starts it over when a Connect arrived
// during the teardown. Caller holds c.mu.
func (c *Client) finishLocked() {
	c.conn = nil
	if c.restart {
		c.restart = false
		c.closing = false
		c.stopCh = make(chan struct{})
		c.setStatusLocked(StatusConnecting)
		go c.run()
		return
	}
	c.running = false
	c.closing = false
	c.setStatusLocked(StatusDisconnected)
}

// readLoop pumps frames until the connection dies. Handlers run on this
// goroutine, so per-connection dispatch order matches arrival order.
func (c *Client) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("socket read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	c.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(c.handlers[frame.Event]))
	for _, fn := range c.handlers[frame.Event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(frame.Data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Warn("socket ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// setStatusLocked updates the state and notifies listeners. Caller holds
// c.mu; listeners run on a fresh goroutine to keep them off the lock.
func (c *Client) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s

	fns := make([]func(Status), 0, len(c.statusHandlers))
	for _, fn := range c.statusHandlers {
		fns = append(fns, fn)
	}
	go func() {
		for _, fn := range fns {
			fn(s)
		}
	}()
}
