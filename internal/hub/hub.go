// Package hub keeps the per-room registry of live connections and fans frames
// out to room members, across instances when a relay is attached.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/store"
)

const publishTimeout = 2 * time.Second

// Connection is one live member of a room.
type Connection interface {
	ID() string
	Room() string
	Send(data []byte) error
	Close() error
}

// Relay carries frames between instances.
type Relay interface {
	Publish(ctx context.Context, frame store.RoomFrame) error
	Subscribe(ctx context.Context, logger zerolog.Logger) (<-chan store.RoomFrame, error)
}

type room struct {
	clients map[string]Connection
	mu      sync.RWMutex
}

// Hub routes frames to the members of a room.
type Hub struct {
	id     string
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
	relay Relay
}

// New creates a hub that only delivers locally until Run attaches a relay.
func New(logger zerolog.Logger) *Hub {
	id := uuid.New().String()
	return &Hub{
		id:     id,
		logger: logger.With().Str("component", "hub").Str("instance", id).Logger(),
		rooms:  make(map[string]*room),
	}
}

// ID returns this instance's relay identity.
func (h *Hub) ID() string { return h.id }

// Register adds conn to its room.
func (h *Hub) Register(conn Connection) {
	h.mu.Lock()
	r, exists := h.rooms[conn.Room()]
	if !exists {
		r = &room{clients: make(map[string]Connection)}
		h.rooms[conn.Room()] = r
	}
	// Hold the hub lock so Unregister cannot drop this room meanwhile.
	r.mu.Lock()
	h.mu.Unlock()
	r.clients[conn.ID()] = conn
	count := len(r.clients)
	r.mu.Unlock()

	metrics.SocketConnections.Inc()
	h.logger.Info().Str("room", conn.Room()).Str("client", conn.ID()).Int("clients", count).Msg("client connected")
}

// Unregister removes conn from its room. Empty rooms are dropped.
func (h *Hub) Unregister(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, exists := h.rooms[conn.Room()]
	if !exists {
		return
	}

	r.mu.Lock()
	_, member := r.clients[conn.ID()]
	delete(r.clients, conn.ID())
	count := len(r.clients)
	r.mu.Unlock()

	if !member {
		return
	}
	metrics.SocketConnections.Dec()
	h.logger.Info().Str("room", conn.Room()).Str("client", conn.ID()).Int("clients", count).Msg("client disconnected")

	if count == 0 {
		delete(h.rooms, conn.Room())
		h.logger.Debug().Str("room", conn.Room()).Msg("room removed")
	}
}

// Broadcast sends data to every member of roomID except sender, which may be
// nil. With a relay attached the frame is also published to other instances.
func (h *Hub) Broadcast(roomID string, sender Connection, data []byte) {
	senderID := ""
	if sender != nil {
		senderID = sender.ID()
	}
	h.deliver(roomID, senderID, data)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := relay.Publish(ctx, store.RoomFrame{
		Origin: h.id,
		Sender: senderID,
		Room:   roomID,
		Data:   data,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("room", roomID).Msg("relay publish failed")
	}
}

// Run attaches relay and delivers frames published by other instances until
// ctx is done.
func (h *Hub) Run(ctx context.Context, relay Relay) error {
	frames, err := relay.Subscribe(ctx, h.logger)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.relay = nil
		h.mu.Unlock()
	}()

	h.logger.Info().Msg("relay attached")
	for frame := range frames {
		if frame.Origin == h.id {
			continue
		}
		h.deliver(frame.Room, frame.Sender, frame.Data)
	}
	return ctx.Err()
}

func (h *Hub) deliver(roomID, senderID string, data []byte) {
	h.mu.RLock()
	r, exists := h.rooms[roomID]
	h.mu.RUnlock()

	if !exists {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, conn := range r.clients {
		if id == senderID {
			continue
		}
		if err := conn.Send(data); err != nil {
			metrics.SocketFramesDropped.Inc()
			h.logger.Warn().Err(err).Str("room", roomID).Str("client", id).Msg("dropping slow client")
			go func(c Connection) {
				h.Unregister(c)
				c.Close()
			}(conn)
		}
	}
}

// Stats returns the number of live rooms and connected clients.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		clients += len(r.clients)
		r.mu.RUnlock()
	}
	return rooms, clients
}
