package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rentport/internal/constants"
	"rentport/internal/utils"
)

// ErrDegraded is reported once the channel has exhausted its reconnect
// budget. The application stays usable on on-demand fetches.
var ErrDegraded = errors.New("realtime channel degraded: reconnect attempts exhausted")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// BackoffConfig bounds the reconnect loop. Tests inject tiny values to
// drive the state machine deterministically.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   constants.ReconnectBaseDelay,
		MaxDelay:    constants.ReconnectMaxDelay,
		MaxAttempts: constants.MaxReconnectAttempts,
	}
}

// Channel is one tab's authenticated realtime transport. One logical
// event stream: resource pushes in, acknowledgement frames out.
type Channel struct {
	mu sync.Mutex

	baseURL string
	backoff BackoffConfig
	dialer  *websocket.Dialer

	state    State
	conn     *websocket.Conn
	token    string
	stop     chan struct{} // closed by Disconnect; cancels backoff waits
	gen      int           // connection generation; stale run loops exit

	resourceHandlers map[string]func(kind EventKind, data json.RawMessage)
	eventHandlers    map[string]func(payload json.RawMessage)
	stateHandlers    []func(State)
	stateQueue       []State
	stateWake        chan struct{}
}

func NewChannel(baseURL string, backoff BackoffConfig) *Channel {
	c := &Channel{
		baseURL: baseURL,
		backoff: backoff,
		dialer: &websocket.Dialer{
			ReadBufferSize:   constants.WSBufferSize,
			WriteBufferSize:  constants.WSBufferSize,
			HandshakeTimeout: constants.WSHandshakeTimeout,
		},
		state:            StateDisconnected,
		resourceHandlers: make(map[string]func(EventKind, json.RawMessage)),
		eventHandlers:    make(map[string]func(json.RawMessage)),
		stateWake:        make(chan struct{}, 1),
	}
	go c.stateLoop()
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange adds a state observer. Observers accumulate, so the
// reconnect refresh logic and a status display can watch the same
// channel. Callbacks run outside the channel lock.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, fn)
	c.mu.Unlock()
}

// OnResourceUpdate registers the handler for one resource's events.
// Re-registering the same resource replaces the previous handler, so a
// remounting consumer never sees duplicate delivery.
func (c *Channel) OnResourceUpdate(resource string, handler func(kind EventKind, data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.resourceHandlers, resource)
		return
	}
	c.resourceHandlers[resource] = handler
}

// On registers a handler for a non-resource event type.
func (c *Channel) On(event string, handler func(payload json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		delete(c.eventHandlers, event)
		return
	}
	c.eventHandlers[event] = handler
}

// Emit sends a generic frame to the server (e.g. a notification read
// receipt). Fails fast when the transport is down.
func (c *Channel) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Frame{Type: event, Payload: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		if state == StateDegraded {
			return ErrDegraded
		}
		return errors.New("realtime channel not connected")
	}

	conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Connect starts the transport with the tab's bearer token. A no-op
// while a live transport for the same token exists; otherwise any
// existing transport is torn down first.
func (c *Channel) Connect(token string) {
	c.mu.Lock()
	if (c.state == StateConnected || c.state == StateConnecting) && c.token == token {
		c.mu.Unlock()
		return
	}

	c.teardownLocked()
	c.gen++
	gen := c.gen
	c.token = token
	c.stop = make(chan struct{})
	stop := c.stop
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.run(gen, token, stop)
}

// Disconnect closes the transport and stops any pending backoff timer
// immediately. Safe to call when already disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.teardownLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

// teardownLocked invalidates the current run loop and closes the socket.
func (c *Channel) teardownLocked() {
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) run(gen int, token string, stop <-chan struct{}) {
	attempts := 0

	for {
		conn, err := c.dial(token)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}

		if err == nil {
			c.conn = conn
			attempts = 0
			c.setStateLocked(StateConnected)
			c.mu.Unlock()

			serverClosed := c.readLoop(conn)

			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return
			}
			c.conn = nil
			c.setStateLocked(StateConnecting)
			c.mu.Unlock()

			// A server-initiated close is an instruction to come back
			// now; a broken pipe waits out the backoff below.
			if serverClosed {
				continue
			}
		} else {
			c.setStateLocked(StateConnecting)
			c.mu.Unlock()
		}

		attempts++
		if attempts > c.backoff.MaxAttempts {
			c.mu.Lock()
			if c.gen == gen {
				c.setStateLocked(StateDegraded)
			}
			c.mu.Unlock()
			log.Printf("⚠️  Realtime channel degraded after %d attempts", c.backoff.MaxAttempts)
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(c.delay(attempts)):
		}
	}
}

func (c *Channel) dial(token string) (*websocket.Conn, error) {
	wsURL := utils.WebSocketURL(c.baseURL, constants.EndpointWebSocket, token)
	conn, _, err := c.dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(constants.MaxWSMessageSize)
	return conn, nil
}

// readLoop dispatches inbound frames until the connection dies and
// reports whether the server closed it deliberately.
func (c *Channel) readLoop(conn *websocket.Conn) (serverClosed bool) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				switch closeErr.Code {
				case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseServiceRestart:
					return true
				}
			}
			return false
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame Frame) {
	c.mu.Lock()
	var resourceHandler func(EventKind, json.RawMessage)
	var eventHandler func(json.RawMessage)
	if resource := resourceOf(frame.Type); resource != "" {
		resourceHandler = c.resourceHandlers[resource]
	} else {
		eventHandler = c.eventHandlers[frame.Type]
	}
	c.mu.Unlock()

	if resourceHandler != nil {
		resourceHandler(frame.Event, frame.Data)
	}
	if eventHandler != nil {
		eventHandler(frame.Payload)
	}
}

func (c *Channel) delay(attempt int) time.Duration {
	d := c.backoff.BaseDelay << (attempt - 1)
	if d > c.backoff.MaxDelay || d <= 0 {
		d = c.backoff.MaxDelay
	}
	return d
}

// setStateLocked updates the state and enqueues the transition while
// the lock is still held, so observers see transitions in the order
// they happened.
func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.stateQueue = append(c.stateQueue, s)

	select {
	case c.stateWake <- struct{}{}:
	default:
	}
}

// stateLoop is the single dispatcher for state observers. Callbacks run
// outside the channel lock, one transition at a time.
func (c *Channel) stateLoop() {
	for range c.stateWake {
		for {
			c.mu.Lock()
			if len(c.stateQueue) == 0 {
				c.mu.Unlock()
				break
			}
			s := c.stateQueue[0]
			c.stateQueue = c.stateQueue[1:]
			handlers := make([]func(State), len(c.stateHandlers))
			copy(handlers, c.stateHandlers)
			c.mu.Unlock()

			for _, fn := range handlers {
				fn(s)
			}
		}
	}
}
