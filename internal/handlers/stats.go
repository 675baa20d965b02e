package handlers

import "net/http"

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalRooms    int64 `json:"total_rooms"`
	TotalMessages int64 `json:"total_messages"`
	LiveRooms     int   `json:"live_rooms"`
	LiveClients   int   `json:"live_clients"`
}

// Stats returns stored totals and live channel counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalRooms, err := h.db.CountRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count rooms")
		return
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	liveRooms, liveClients := h.hub.Stats()

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalRooms:    totalRooms,
		TotalMessages: totalMessages,
		LiveRooms:     liveRooms,
		LiveClients:   liveClients,
	})
}
