// Package timeline merges a room's history pull and its live event stream
// into one ordered, deduplicated sequence of messages.
package timeline

import (
	"strconv"
	"strings"
	"time"
)

// UnknownAuthor is used when an inbound event carries no sender.
const UnknownAuthor = "Unknown"

// LocalIDPrefix marks ids synthesized on this side of the wire.
const LocalIDPrefix = "local-"

// Origin tells whether a message carries a server-assigned id.
type Origin int

const (
	// OriginServer messages came from history or a durable write.
	OriginServer Origin = iota
	// OriginLocal messages are placeholders built from echo frames.
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "server"
}

// Message is the canonical shape every inbound payload is normalized into.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room"`
	Author    string    `json:"user"`
	Body      string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
	Origin    Origin    `json:"-"`
}

// IsPlaceholder reports whether m still lacks a server id.
func (m Message) IsPlaceholder() bool {
	return m.Origin == OriginLocal
}

func (m Message) equal(o Message) bool {
	return m.ID == o.ID &&
		m.RoomID == o.RoomID &&
		m.Author == o.Author &&
		m.Body == o.Body &&
		m.CreatedAt.Equal(o.CreatedAt) &&
		m.Origin == o.Origin
}

// Before reports whether m sorts ahead of other: by CreatedAt, then by ID.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return compareIDs(m.ID, other.ID) < 0
}

// compareIDs orders decimal ids numerically and everything else lexically.
// Numeric ids sort ahead of non-numeric ones.
func compareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// sameLogicalMessage reports whether a placeholder and a server message
// describe one send: same room, author and body, timestamps within tolerance.
func sameLogicalMessage(placeholder, confirmed Message, tolerance time.Duration) bool {
	if placeholder.RoomID != confirmed.RoomID ||
		placeholder.Author != confirmed.Author ||
		placeholder.Body != confirmed.Body {
		return false
	}
	d := placeholder.CreatedAt.Sub(confirmed.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
