package models

import "time"

const (
	// MaxUserLength bounds the author label.
	MaxUserLength = 100
	// MaxContentLength bounds a message body in bytes.
	MaxContentLength = 4096
	// DefaultUser labels messages posted without an author.
	DefaultUser = "Anonymous"
)

// Message is a persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Echo is the unpersisted frame relayed to the other members of a room.
type Echo struct {
	Message string `json:"message"`
	User    string `json:"user,omitempty"`
}
