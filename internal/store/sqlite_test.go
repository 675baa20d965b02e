package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "nested", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteStore_Rooms(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	random, err := s.CreateRoom(ctx, "random")
	require.NoError(t, err)
	general, err := s.CreateRoom(ctx, "general")
	require.NoError(t, err)
	assert.NotEqual(t, random.ID, general.ID)
	assert.False(t, general.CreatedAt.IsZero())

	_, err = s.CreateRoom(ctx, "general")
	assert.ErrorIs(t, err, ErrDuplicateRoom)

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	// Creation order, not name order.
	assert.Equal(t, "random", rooms[0].Name)
	assert.Equal(t, "general", rooms[1].Name)

	got, err := s.GetRoom(ctx, general.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "general", got.Name)

	missing, err := s.GetRoom(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := s.CountRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_Messages(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	room, err := s.CreateRoom(ctx, "general")
	require.NoError(t, err)
	other, err := s.CreateRoom(ctx, "other")
	require.NoError(t, err)

	first, err := s.CreateMessage(ctx, room.ID, "alice", "hello")
	require.NoError(t, err)
	second, err := s.CreateMessage(ctx, room.ID, "bob", "hi alice")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, other.ID, "carol", "elsewhere")
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, room.ID, first.RoomID)

	msgs, err := s.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "alice", msgs[0].User)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, second.ID, msgs[1].ID)
	assert.True(t, msgs[0].Timestamp.Equal(first.Timestamp))

	empty, err := s.ListMessages(ctx, 9999)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSQLiteStore_MessageForUnknownRoom(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.CreateMessage(context.Background(), 42, "alice", "hello")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, "general")
	require.NoError(t, err)
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)
}
