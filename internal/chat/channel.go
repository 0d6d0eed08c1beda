// Package chat is the real-time side of EngineerHub: a reconnecting
// WebSocket Channel and the per-conversation Room state built on top of it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"engineerhub/internal/logging"
)

// ErrNotConnected is returned when sending while the channel is not CONNECTED.
var ErrNotConnected = errors.New("chat: not connected")

const (
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
	defaultHandshakeTimeout     = 10 * time.Second
	defaultWriteTimeout         = 10 * time.Second
)

// Options configures a Channel.
type Options struct {
	URL                  string
	Token                string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // consecutive failures tolerated before ERROR
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
}

// Channel is a WebSocket connection that redials after failures with a fixed
// interval. Inbound frames are decoded into Messages and fanned out to
// subscribers on the read goroutine.
type Channel struct {
	opts   Options
	dialer websocket.Dialer

	mu           sync.Mutex
	state        ReadyState
	conn         *websocket.Conn
	last         Message
	hasLast      bool
	reconnects   int
	messages     int
	subs         map[int]func(Message)
	stateSubs    map[int]func(ReadyState)
	reconnectFns []func()
	nextSub      int
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}

	writeMu sync.Mutex
}

// NewChannel creates an unconnected channel; Run connects it.
func NewChannel(opts Options) *Channel {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Channel{
		opts:      opts,
		dialer:    websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		state:     Disconnected,
		subs:      make(map[int]func(Message)),
		stateSubs: make(map[int]func(ReadyState)),
	}
}

// Run connects and keeps the channel connected until ctx is cancelled or
// Close is called, which return nil, or until MaxReconnectAttempts
// consecutive attempts fail, which leaves the channel in ERROR.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("chat: channel already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.running, c.cancel, c.done = true, cancel, done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		if failures == 0 {
			c.setState(Connecting)
		}

		conn, err := c.dial(ctx)
		if err == nil {
			recovered := failures > 0
			failures = 0
			c.attach(conn)
			c.setState(Connected)
			logging.Chat("connected to %s", c.opts.URL)
			if recovered {
				c.fireReconnect()
			}
			err = c.readLoop(ctx, conn)
			c.detach(conn)
		}

		if ctx.Err() != nil {
			c.setState(Disconnected)
			return nil
		}
		if failures >= c.opts.MaxReconnectAttempts {
			c.setState(Errored)
			logging.ChatWarn("giving up after %d reconnect attempts: %v", failures, err)
			return fmt.Errorf("chat: giving up after %d reconnect attempts: %w", failures, err)
		}

		failures++
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.setState(Reconnecting)
		logging.ChatWarn("connection lost (%v); attempt %d/%d in %s",
			err, failures, c.opts.MaxReconnectAttempts, c.opts.ReconnectInterval)

		t := time.NewTimer(c.opts.ReconnectInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.setState(Disconnected)
			return nil
		case <-t.C:
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// readLoop delivers frames until the connection fails or ctx ends, in which
// case a normal closure is sent first.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			logging.ChatWarn("dropping malformed frame: %v", err)
			continue
		}
		if m.Type == "" {
			logging.ChatWarn("dropping untyped frame")
			continue
		}
		c.deliver(m)
	}
}

func (c *Channel) deliver(m Message) {
	c.mu.Lock()
	c.last, c.hasLast = m, true
	c.messages++
	fns := make([]func(Message), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	logging.ChatDebug("received %s", m.Type)
	for _, fn := range fns {
		fn(m)
	}
}

func (c *Channel) setState(s ReadyState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(ReadyState), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	logging.ChatDebug("state %s", s)
	for _, fn := range fns {
		fn(s)
	}
}

func (c *Channel) fireReconnect() {
	c.mu.Lock()
	fns := append([]func(){}, c.reconnectFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close stops Run and waits for it to return. It is a no-op when not running.
func (c *Channel) Close() {
	c.mu.Lock()
	running, cancel, done := c.running, c.cancel, c.done
	c.mu.Unlock()
	if !running {
		return
	}
	cancel()
	<-done
}

// ReadyState returns the current lifecycle state.
func (c *Channel) ReadyState() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastMessage returns the most recent inbound message.
func (c *Channel) LastMessage() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// ReconnectCount returns how many reconnection attempts were made.
func (c *Channel) ReconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// MessageCount returns how many inbound messages were delivered.
func (c *Channel) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// Send writes one frame. It fails with ErrNotConnected unless CONNECTED.
func (c *Channel) Send(typ MessageType, payload any) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	env := envelope{Type: typ, Data: payload, Timestamp: time.Now().UTC().Format(time.RFC3339)}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("chat: send %s: %w", typ, err)
	}
	return nil
}

// SendJSON is Send reporting only whether the frame was accepted.
func (c *Channel) SendJSON(payload any, typ MessageType) bool {
	err := c.Send(typ, payload)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		logging.ChatWarn("%v", err)
	}
	return err == nil
}

// Subscribe registers fn for inbound messages and returns its remover.
func (c *Channel) Subscribe(fn func(Message)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// WatchState registers fn for state transitions and returns its remover.
func (c *Channel) WatchState(fn func(ReadyState)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// OnReconnect registers fn to run each time a connection is re-established
// after a failure.
func (c *Channel) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectFns = append(c.reconnectFns, fn)
}
