// Package client is the reconnecting protocol client shared by every
// participant: controllers and players speak to the hub through the
// same connect / await-ack / backoff-reconnect state machine.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cuecast/internal/models"
	"cuecast/internal/protocol"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateGivenUp      State = "givenUp"
)

const (
	// DefaultMaxAttempts is how many consecutive failed connections
	// are tolerated before giving up.
	DefaultMaxAttempts = 10

	maxBackoff = 30 * time.Second

	// ackWait bounds how long a freshly opened socket may take to
	// acknowledge registration. An open socket is not a connection:
	// the hub can still reject the application-level handshake.
	ackWait = 10 * time.Second
)

// Backoff returns the reconnect delay before the given attempt:
// 1s, 2s, 4s, ... capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return maxBackoff
	}
	d := time.Duration(1<<(attempt-1)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Identity is the registration payload; it is the only role-specific
// part of the client.
type Identity struct {
	DeviceID   string
	DeviceName string
	Role       models.DeviceRole
}

type Client struct {
	url         string
	identity    Identity
	maxAttempts int
	dialer      *websocket.Dialer

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	manual  bool
	gen     int

	messages chan protocol.Envelope
	states   chan State
}

type Option func(*Client)

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func New(url string, identity Identity, opts ...Option) *Client {
	c := &Client{
		url:         url,
		identity:    identity,
		maxAttempts: DefaultMaxAttempts,
		dialer:      websocket.DefaultDialer,
		state:       StateDisconnected,
		messages:    make(chan protocol.Envelope, 32),
		states:      make(chan State, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages yields every inbound frame received while connected. The
// channel is never closed; drain it for the client's lifetime.
func (c *Client) Messages() <-chan protocol.Envelope {
	return c.messages
}

// States yields state transitions, best effort.
func (c *Client) States() <-chan State {
	return c.states
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState applies a transition from the connection loop of the given
// generation. A stale loop that lost to a newer Connect must not
// touch the state it no longer owns.
func (c *Client) setState(gen int, s State) {
	c.mu.Lock()
	if c.gen != gen || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	select {
	case c.states <- s:
	default:
	}
}

// Connect starts the connection loop. A no-op while a loop is already
// running (connecting, connected, or between retries).
func (c *Client) Connect() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	select {
	case c.states <- StateConnecting:
	default:
	}
	go c.run(ctx, gen)
}

// Disconnect stops the loop, cancels any pending reconnect delay, and
// suppresses automatic reconnection until Connect is called again.
// The state drops to disconnected immediately, so a Connect issued
// right after is never swallowed by the winding-down loop.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	cancel := c.cancel
	conn := c.conn
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if changed {
		select {
		case c.states <- StateDisconnected:
		default:
		}
	}
}

func (c *Client) run(ctx context.Context, gen int) {
	attempt := 0
	for {
		connected, err := c.runSession(ctx, gen)
		if ctx.Err() != nil || c.manualRequested() {
			c.setState(gen, StateDisconnected)
			return
		}
		if err != nil {
			log.Printf("client %s: %v", c.identity.DeviceID, err)
		}
		if connected {
			attempt = 0
		}
		attempt++
		if attempt > c.maxAttempts {
			log.Printf("client %s: giving up after %d attempts", c.identity.DeviceID, c.maxAttempts)
			c.setState(gen, StateGivenUp)
			return
		}

		c.setState(gen, StateReconnecting)
		select {
		case <-ctx.Done():
			c.setState(gen, StateDisconnected)
			return
		case <-time.After(Backoff(attempt)):
		}
		c.setState(gen, StateConnecting)
	}
}

func (c *Client) manualRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// runSession dials, registers, and pumps inbound frames until the
// connection dies. It reports whether the registered ack was reached.
func (c *Client) runSession(ctx context.Context, gen int) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	if err := c.write(conn, protocol.Register{
		Type:       protocol.TypeRegister,
		DeviceID:   c.identity.DeviceID,
		DeviceName: c.identity.DeviceName,
		DeviceType: c.identity.Role,
	}); err != nil {
		return false, fmt.Errorf("sending register: %w", err)
	}

	if err := c.awaitAck(ctx, conn); err != nil {
		return false, err
	}
	c.setState(gen, StateConnected)
	log.Printf("client %s: connected as %s", c.identity.DeviceID, c.identity.Role)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Printf("client %s: %v", c.identity.DeviceID, err)
			continue
		}
		if env.Type == protocol.TypePing {
			c.write(conn, protocol.NewPong())
			continue
		}
		select {
		case c.messages <- *env:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// awaitAck reads until the hub acknowledges registration. Frames that
// arrive before the ack (welcome, device lists) are forwarded as usual.
func (c *Client) awaitAck(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(ackWait))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("awaiting registration ack: %w", err)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeRegistered:
			select {
			case c.messages <- *env:
			default:
			}
			return nil
		case protocol.TypeError:
			var e protocol.Error
			env.Payload(&e)
			return fmt.Errorf("registration rejected: %s", e.Message)
		default:
			select {
			case c.messages <- *env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

var ErrNotConnected = errors.New("not connected")

// Send delivers one message on the live connection. Fire and forget:
// callers re-send after reconnection if they still care.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	return c.write(conn, v)
}

// SendCommand issues a command to one or more players.
func (c *Client) SendCommand(action models.CommandAction, targets []string, mediaRef string) error {
	return c.Send(protocol.Command{
		Type:          protocol.TypeCommand,
		Action:        action,
		TargetDevices: targets,
		MediaRef:      mediaRef,
		Timestamp:     time.Now().UTC(),
	})
}

// SendStatus reports this device's playback state.
func (c *Client) SendStatus(snap models.PlaybackSnapshot) error {
	return c.Send(protocol.Status{
		Type:            protocol.TypeStatus,
		DeviceID:        c.identity.DeviceID,
		DeviceName:      c.identity.DeviceName,
		State:           snap.State,
		CurrentMedia:    snap.CurrentMedia,
		ImmersiveMode:   snap.ImmersiveMode,
		PositionSeconds: snap.PositionSeconds,
	})
}

// SendTransferProgress reports download progress for relay back to
// controllers.
func (c *Client) SendTransferProgress(filename, status string, transferred, total int64) error {
	progress := 0.0
	if total > 0 {
		progress = float64(transferred) / float64(total)
	}
	return c.Send(protocol.TransferProgress{
		Type:             protocol.TypeTransferProgress,
		DeviceID:         c.identity.DeviceID,
		Filename:         filename,
		Status:           status,
		Progress:         progress,
		BytesTransferred: transferred,
		TotalBytes:       total,
	})
}
