package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/roomchat/internal/store"
)

type mockConn struct {
	id       string
	room     string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func (m *mockConn) ID() string   { return m.id }
func (m *mockConn) Room() string { return m.room }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// loopRelay is an in-memory relay shared by several hubs.
type loopRelay struct {
	mu   sync.Mutex
	subs []chan store.RoomFrame
}

func (l *loopRelay) Publish(ctx context.Context, frame store.RoomFrame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		ch <- frame
	}
	return nil
}

func (l *loopRelay) Subscribe(ctx context.Context, logger zerolog.Logger) (<-chan store.RoomFrame, error) {
	ch := make(chan store.RoomFrame, 16)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.subs {
			if sub == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub) ([]*mockConn, *mockConn)
		wantReceived map[string]int
	}{
		{
			name: "broadcast to room members",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				sender := &mockConn{id: "sender", room: "1"}
				receiver1 := &mockConn{id: "recv1", room: "1"}
				receiver2 := &mockConn{id: "recv2", room: "1"}
				h.Register(sender)
				h.Register(receiver1)
				h.Register(receiver2)
				return []*mockConn{receiver1, receiver2, sender}, sender
			},
			wantReceived: map[string]int{"recv1": 1, "recv2": 1, "sender": 0},
		},
		{
			name: "no cross-room broadcast",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				sender := &mockConn{id: "sender", room: "1"}
				receiver := &mockConn{id: "recv1", room: "2"}
				h.Register(sender)
				h.Register(receiver)
				return []*mockConn{receiver}, sender
			},
			wantReceived: map[string]int{"recv1": 0},
		},
		{
			name: "server broadcast reaches everyone",
			setup: func(h *Hub) ([]*mockConn, *mockConn) {
				a := &mockConn{id: "a", room: "1"}
				b := &mockConn{id: "b", room: "1"}
				h.Register(a)
				h.Register(b)
				return []*mockConn{a, b}, nil
			},
			wantReceived: map[string]int{"a": 1, "b": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(zerolog.Nop())
			conns, sender := tt.setup(h)

			var from Connection
			if sender != nil {
				from = sender
			}
			h.Broadcast("1", from, []byte(`{"message":"hi"}`))

			for _, c := range conns {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.id], c.id)
			}
		})
	}
}

func TestHub_UnregisterRemovesEmptyRoom(t *testing.T) {
	h := New(zerolog.Nop())
	a := &mockConn{id: "a", room: "1"}
	b := &mockConn{id: "b", room: "2"}
	h.Register(a)
	h.Register(b)

	rooms, clients := h.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 2, clients)

	h.Unregister(a)
	h.Unregister(a)

	rooms, clients = h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := New(zerolog.Nop())
	slow := &mockConn{id: "slow", room: "1", sendErr: errors.New("full")}
	ok := &mockConn{id: "ok", room: "1"}
	h.Register(slow)
	h.Register(ok)

	h.Broadcast("1", nil, []byte(`{}`))

	assert.Len(t, ok.getReceived(), 1)
	require.Eventually(t, slow.isClosed, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, clients := h.Stats()
		return clients == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHub_RelayAcrossInstances(t *testing.T) {
	relay := &loopRelay{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := New(zerolog.Nop())
	second := New(zerolog.Nop())
	go first.Run(ctx, relay)
	go second.Run(ctx, relay)

	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return len(relay.subs) == 2
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		first.mu.RLock()
		defer first.mu.RUnlock()
		return first.relay != nil
	}, time.Second, 10*time.Millisecond)

	sender := &mockConn{id: "sender", room: "1"}
	local := &mockConn{id: "local", room: "1"}
	remote := &mockConn{id: "remote", room: "1"}
	first.Register(sender)
	first.Register(local)
	second.Register(remote)

	first.Broadcast("1", sender, []byte(`{"message":"hi","user":"alice"}`))

	require.Eventually(t, func() bool { return len(remote.getReceived()) == 1 }, time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"message":"hi","user":"alice"}`, string(remote.getReceived()[0]))

	// The origin instance skips its own frame, so local gets it exactly once.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, local.getReceived(), 1)
	assert.Empty(t, sender.getReceived())
}
