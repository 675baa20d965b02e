package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoomChannel(t *testing.T) {
	assert.Equal(t, "chat:room:12", roomChannel("12"))
}

func TestRedisStore_PublishSubscribe(t *testing.T) {
	s := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames, err := s.Subscribe(ctx, zerolog.Nop())
	require.NoError(t, err)

	want := RoomFrame{
		Origin: "instance-a",
		Sender: "conn-1",
		Room:   "7",
		Data:   json.RawMessage(`{"message":"hi","user":"alice"}`),
	}
	require.NoError(t, s.Publish(ctx, want))

	select {
	case got := <-frames:
		assert.Equal(t, want.Origin, got.Origin)
		assert.Equal(t, want.Sender, got.Sender)
		assert.Equal(t, want.Room, got.Room)
		assert.JSONEq(t, string(want.Data), string(got.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-frames
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
