// Package transport owns the live websocket connection for the active room.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

var (
	// ErrClosed is returned when sending on a closed or superseded connection.
	ErrClosed = errors.New("connection closed")
	// ErrQueueFull is returned when the outbound queue cannot take more frames.
	ErrQueueFull = errors.New("send queue full")
	// ErrSuperseded is returned by Open when a newer Open won the race.
	ErrSuperseded = errors.New("connection superseded")
)

// State is a connection's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	}
	return "closed"
}

// Handler receives everything a connection observes.
type Handler interface {
	HandleFrame(conn *Conn, data []byte)
	HandleState(conn *Conn, state State, err error)
}

// Adapter guarantees at most one open connection at a time.
type Adapter struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu      sync.Mutex
	current *Conn
	seq     uint64
}

// NewAdapter returns an Adapter dialing rooms under baseURL (ws:// or wss://).
func NewAdapter(baseURL string, logger zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// URL returns the room-scoped live channel address.
func (a *Adapter) URL(roomID string) string {
	return fmt.Sprintf("%s/ws/chat/%s/", a.baseURL, url.PathEscape(roomID))
}

// Current returns the open connection, if any.
func (a *Adapter) Current() *Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Open closes the current connection, then dials roomID. The handler sees
// StateConnecting before the dial and StateOpen or StateError after it.
func (a *Adapter) Open(ctx context.Context, roomID string, h Handler) (*Conn, error) {
	a.mu.Lock()
	prev := a.current
	a.current = nil
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	if prev != nil {
		prev.close()
		a.logger.Debug().Str("room", prev.room).Uint64("conn", prev.seq).Msg("closed superseded connection")
	}

	c := &Conn{
		seq:     seq,
		room:    roomID,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		handler: h,
		logger:  a.logger,
	}
	h.HandleState(c, StateConnecting, nil)

	target := a.URL(roomID)
	ws, _, err := a.dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.state.Store(int32(StateError))
		c.closed.Store(true)
		h.HandleState(c, StateError, err)
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	a.mu.Lock()
	if a.seq != seq {
		a.mu.Unlock()
		ws.Close()
		c.closed.Store(true)
		c.state.Store(int32(StateClosed))
		return nil, ErrSuperseded
	}
	c.ws = ws
	a.current = c
	a.mu.Unlock()

	c.state.Store(int32(StateOpen))
	h.HandleState(c, StateOpen, nil)
	a.logger.Info().Str("room", roomID).Str("url", target).Msg("live channel open")

	go c.writePump()
	go c.readPump()
	return c, nil
}

// Send queues payload as a JSON text frame on conn.
func (a *Adapter) Send(conn *Conn, payload any) error {
	if conn == nil {
		return ErrClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.enqueue(data)
}

// Close closes conn. Closing twice is a no-op.
func (a *Adapter) Close(conn *Conn) error {
	if conn == nil {
		return nil
	}
	a.mu.Lock()
	if a.current == conn {
		a.current = nil
	}
	a.mu.Unlock()
	conn.close()
	return nil
}

// Conn is one live channel to one room.
type Conn struct {
	seq     uint64
	room    string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	handler Handler
	logger  zerolog.Logger

	state     atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
}

// Room returns the room this connection was opened for.
func (c *Conn) Room() string { return c.room }

// Seq returns the adapter-wide sequence number of this connection.
func (c *Conn) Seq() uint64 { return c.seq }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Closed reports whether the connection was closed or superseded.
func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) enqueue(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.state.Store(int32(StateClosed))
		close(c.done)
		if c.ws == nil {
			return
		}
		// Unblock a pending read; the write pump sends the close frame.
		c.ws.SetReadDeadline(time.Now().Add(writeWait))
	})
}

func (c *Conn) readPump() {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Swap(true) {
				return
			}
			c.closeOnce.Do(func() { close(c.done) })
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.state.Store(int32(StateClosed))
				c.handler.HandleState(c, StateClosed, nil)
				return
			}
			c.logger.Error().Err(err).Str("room", c.room).Msg("live channel read failed")
			c.state.Store(int32(StateError))
			c.handler.HandleState(c, StateError, err)
			return
		}
		if c.closed.Load() {
			continue
		}
		c.handler.HandleFrame(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
