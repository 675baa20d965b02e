package store

import (
	"context"
	"errors"

	"github.com/eldtechnologies/roomchat/internal/models"
)

var (
	// ErrDuplicateRoom is returned when a room name is already taken.
	ErrDuplicateRoom = errors.New("room name already exists")
	// ErrRoomNotFound is returned when a message targets an unknown room.
	ErrRoomNotFound = errors.New("room not found")
)

// DataStore defines the interface for persistent storage of rooms and messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, name string) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	CountRooms(ctx context.Context) (int64, error)

	// Message operations
	CreateMessage(ctx context.Context, roomID int64, user, content string) (*models.Message, error)
	ListMessages(ctx context.Context, roomID int64) ([]models.Message, error)
	CountMessages(ctx context.Context) (int64, error)
}
