package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames map[string][]string
	states []State
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{frames: make(map[string][]string)}
}

func (h *recordingHandler) HandleFrame(conn *Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames[conn.Room()] = append(h.frames[conn.Room()], string(data))
}

func (h *recordingHandler) HandleState(conn *Conn, state State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *recordingHandler) framesFor(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames[room]...)
}

func (h *recordingHandler) seenStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// roomServer echoes every frame back and records which rooms saw a close.
type roomServer struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed map[string]bool
}

func newRoomServer(t *testing.T) (*roomServer, *httptest.Server) {
	t.Helper()
	rs := &roomServer{
		conns:  make(map[string]*websocket.Conn),
		closed: make(map[string]bool),
	}
	srv := httptest.NewServer(http.HandlerFunc(rs.serve))
	t.Cleanup(srv.Close)
	return rs, srv
}

func (rs *roomServer) serve(w http.ResponseWriter, r *http.Request) {
	room := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/")
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	rs.mu.Lock()
	rs.conns[room] = conn
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.closed[room] = true
		rs.mu.Unlock()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (rs *roomServer) push(room, frame string) error {
	rs.mu.Lock()
	conn := rs.conns[room]
	rs.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (rs *roomServer) wasClosed(room string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.closed[room]
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestAdapter_URL(t *testing.T) {
	a := NewAdapter("ws://127.0.0.1:8000/", zerolog.Nop())
	assert.Equal(t, "ws://127.0.0.1:8000/ws/chat/12/", a.URL("12"))
}

func TestAdapter_OpenSendReceive(t *testing.T) {
	_, srv := newRoomServer(t)
	a := NewAdapter(wsURL(srv), zerolog.Nop())
	h := newRecordingHandler()

	conn, err := a.Open(context.Background(), "1", h)
	require.NoError(t, err)
	defer a.Close(conn)

	assert.Equal(t, StateOpen, conn.State())
	assert.Same(t, conn, a.Current())

	require.NoError(t, a.Send(conn, map[string]string{"message": "hi", "user": "alice"}))

	require.Eventually(t, func() bool {
		return len(h.framesFor("1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"message":"hi","user":"alice"}`, h.framesFor("1")[0])
	assert.Equal(t, []State{StateConnecting, StateOpen}, h.seenStates())
}

func TestAdapter_OpenClosesPrevious(t *testing.T) {
	rs, srv := newRoomServer(t)
	a := NewAdapter(wsURL(srv), zerolog.Nop())
	h := newRecordingHandler()

	first, err := a.Open(context.Background(), "1", h)
	require.NoError(t, err)

	second, err := a.Open(context.Background(), "2", h)
	require.NoError(t, err)
	defer a.Close(second)

	assert.True(t, first.Closed())
	assert.Equal(t, StateClosed, first.State())
	assert.Same(t, second, a.Current())
	assert.ErrorIs(t, a.Send(first, map[string]string{"message": "late"}), ErrClosed)

	require.Eventually(t, func() bool { return rs.wasClosed("1") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, rs.push("2", `{"message":"fresh"}`))
	require.Eventually(t, func() bool {
		return len(h.framesFor("2")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.framesFor("1"))
}

func TestAdapter_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a := NewAdapter(wsURL(srv), zerolog.Nop())
	h := newRecordingHandler()

	conn, err := a.Open(context.Background(), "1", h)
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, a.Current())
	assert.Equal(t, []State{StateConnecting, StateError}, h.seenStates())
}

func TestAdapter_RemoteCloseReportsState(t *testing.T) {
	rs, srv := newRoomServer(t)
	a := NewAdapter(wsURL(srv), zerolog.Nop())
	h := newRecordingHandler()

	conn, err := a.Open(context.Background(), "1", h)
	require.NoError(t, err)

	rs.mu.Lock()
	server := rs.conns["1"]
	rs.mu.Unlock()
	require.NoError(t, server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")))

	require.Eventually(t, conn.Closed, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		states := h.seenStates()
		return len(states) == 3 && states[2] == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdapter_CloseIsIdempotent(t *testing.T) {
	_, srv := newRoomServer(t)
	a := NewAdapter(wsURL(srv), zerolog.Nop())

	conn, err := a.Open(context.Background(), "1", newRecordingHandler())
	require.NoError(t, err)

	require.NoError(t, a.Close(conn))
	require.NoError(t, a.Close(conn))
	assert.Nil(t, a.Current())
	assert.ErrorIs(t, a.Send(conn, "x"), ErrClosed)
}
