package models

import "time"

// MaxRoomNameLength bounds room names.
const MaxRoomNameLength = 100

// Room is a named chat channel.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
