package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.StoreLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateRoom creates a new room.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	defer observePostgres(time.Now())

	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (name)
		VALUES ($1)
		RETURNING id, name, created_at
	`, name).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, ErrDuplicateRoom
		}
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID. It returns nil when the room does not exist.
func (s *PostgresStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	defer observePostgres(time.Now())

	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms returns all rooms by name.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at FROM rooms ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRooms returns the number of rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// CreateMessage persists a message in roomID.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID int64, user, content string) (*models.Message, error) {
	defer observePostgres(time.Now())

	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, "user", content)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, "user", content, timestamp
	`, roomID, user, content).Scan(&msg.ID, &msg.RoomID, &msg.User, &msg.Content, &msg.Timestamp)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a room's messages, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID int64) ([]models.Message, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, "user", content, timestamp
		FROM messages
		WHERE room_id = $1
		ORDER BY timestamp, id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.User, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of stored messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
