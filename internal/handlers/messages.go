package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/models"
	"github.com/eldtechnologies/roomchat/internal/store"
)

// RoomRef is a room id given either as a JSON number or a numeric string.
type RoomRef int64

func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("room must be an integer id")
	}
	*r = RoomRef(id)
	return nil
}

// CreateMessageRequest represents the durable write request.
type CreateMessageRequest struct {
	Room    *RoomRef `json:"room"`
	User    string   `json:"user"`
	Content string   `json:"content"`
}

// ListMessages returns one room's messages, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomParam := r.URL.Query().Get("room")
	if roomParam == "" {
		h.Error(w, http.StatusBadRequest, "room query parameter is required")
		return
	}
	roomID, err := strconv.ParseInt(roomParam, 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "room must be an integer id")
		return
	}

	room, err := h.db.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Int64("room", roomID).Msg("get room failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	messages, err := h.db.ListMessages(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Int64("room", roomID).Msg("list messages failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	h.JSON(w, http.StatusOK, messages)
}

// CreateMessage persists a message and broadcasts the stored record to every
// live member of its room.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Room == nil {
		h.Error(w, http.StatusBadRequest, "room is required")
		return
	}

	req.User = models.NormalizeUser(req.User)
	if !models.ValidUser(req.User) {
		h.Error(w, http.StatusBadRequest, fmt.Sprintf("user must be at most %d characters", models.MaxUserLength))
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > models.MaxContentLength {
		h.Error(w, http.StatusBadRequest, fmt.Sprintf("content must be at most %d bytes", models.MaxContentLength))
		return
	}

	roomID := int64(*req.Room)
	msg, err := h.db.CreateMessage(r.Context(), roomID, req.User, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			h.Error(w, http.StatusBadRequest, "room not found")
			return
		}
		h.logger.Error().Err(err).Int64("room", roomID).Msg("create message failed")
		h.Error(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	metrics.MessagesPosted.Inc()

	if data, err := json.Marshal(msg); err == nil {
		h.hub.Broadcast(strconv.FormatInt(roomID, 10), nil, data)
	}

	h.JSON(w, http.StatusCreated, msg)
}
