package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomchat/internal/metrics"
)

const roomChannelPrefix = "chat:room:"

// RedisStore handles Redis operations: cross-instance room fanout and the
// rate limiter's counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomChannel returns the pub/sub channel for a room.
func roomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// RoomFrame is a live frame travelling between instances.
type RoomFrame struct {
	Origin string          `json:"origin"`
	Sender string          `json:"sender,omitempty"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

// Publish sends frame to every instance subscribed to its room.
func (s *RedisStore) Publish(ctx context.Context, frame RoomFrame) error {
	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, roomChannel(frame.Room), data).Err()
}

// Subscribe delivers frames published to any room until ctx is done. The
// returned channel is closed when the subscription ends.
func (s *RedisStore) Subscribe(ctx context.Context, logger zerolog.Logger) (<-chan RoomFrame, error) {
	sub := s.client.PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan RoomFrame, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame RoomFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					logger.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed relay frame")
					continue
				}
				if frame.Room == "" {
					frame.Room = strings.TrimPrefix(msg.Channel, roomChannelPrefix)
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
