package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/roomchat/internal/hub"
	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatSocket upgrades to a room's live channel.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(chi.URLParam(r, "room"))
	if room == "" {
		h.Error(w, http.StatusBadRequest, "room is required")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("upgrade failed")
		return
	}

	id := uuid.New().String()
	conn := hub.NewConn(id, room, ws, h.hub, h, h.logger.With().Str("client", id).Logger())
	conn.Start()
}

// HandleFrame relays an inbound echo frame to the other members of the room,
// with its author normalized. Echoes are not persisted.
func (h *Handler) HandleFrame(conn *hub.Conn, data []byte) {
	var echo models.Echo
	if err := json.Unmarshal(data, &echo); err != nil {
		h.logger.Warn().Err(err).Str("room", conn.Room()).Str("client", conn.ID()).Msg("malformed frame")
		return
	}
	if strings.TrimSpace(echo.Message) == "" {
		h.logger.Warn().Str("room", conn.Room()).Str("client", conn.ID()).Msg("frame without message")
		return
	}
	if len(echo.Message) > models.MaxContentLength {
		h.logger.Warn().Str("room", conn.Room()).Str("client", conn.ID()).Msg("oversized frame")
		return
	}
	// Members see the author the durable write will store.
	echo.User = models.NormalizeUser(echo.User)
	if !models.ValidUser(echo.User) {
		h.logger.Warn().Str("room", conn.Room()).Str("client", conn.ID()).Msg("oversized user")
		return
	}

	out, err := json.Marshal(echo)
	if err != nil {
		return
	}
	h.hub.Broadcast(conn.Room(), conn, out)
	metrics.EchoesRelayed.Inc()
}
