package timeline

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNormalize wraps every reason an inbound payload was rejected.
	ErrNormalize = errors.New("normalize")
	// ErrMalformed is returned for payloads that are not a JSON object.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnrecognizedShape is returned for objects matching neither shape.
	ErrUnrecognizedShape = errors.New("unrecognized payload shape")
	// ErrRoomMismatch is returned for records owned by another room.
	ErrRoomMismatch = errors.New("record belongs to another room")
	// ErrBadTimestamp is returned for records whose timestamp cannot be parsed.
	ErrBadTimestamp = errors.New("invalid timestamp")
)

// Shape identifies which inbound payload variant was decoded.
type Shape int

const (
	ShapeRecord Shape = iota + 1
	ShapeEcho
)

func (s Shape) String() string {
	switch s {
	case ShapeRecord:
		return "record"
	case ShapeEcho:
		return "echo"
	}
	return "unknown"
}

// Record is a server-owned message: a history item or a durable-write result.
type Record struct {
	ID        string
	Room      string
	User      string
	Content   string
	Timestamp time.Time
}

// Echo is the minimal live payload: text and, optionally, its sender.
type Echo struct {
	Message string `json:"message"`
	User    string `json:"user,omitempty"`
}

// Inbound is a decoded live frame. Exactly one of Record or Echo is set,
// according to Shape.
type Inbound struct {
	Shape  Shape
	Record *Record
	Echo   *Echo
}

// wirePayload accepts both shapes; ids and rooms may be numbers or strings.
type wirePayload struct {
	ID        json.RawMessage `json:"id"`
	Room      json.RawMessage `json:"room"`
	User      *string         `json:"user"`
	Content   *string         `json:"content"`
	Timestamp *string         `json:"timestamp"`
	Message   *string         `json:"message"`
}

// Decode resolves raw into one of the two inbound shapes.
func Decode(raw []byte) (Inbound, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Inbound{}, fmt.Errorf("%w: %w", ErrNormalize, ErrMalformed)
	}

	var p wirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w: %v", ErrNormalize, ErrMalformed, err)
	}

	id := scalarString(p.ID)
	switch {
	case id != "" && p.Content != nil:
		rec := &Record{
			ID:      id,
			Room:    scalarString(p.Room),
			Content: *p.Content,
		}
		if p.User != nil {
			rec.User = *p.User
		}
		if p.Timestamp != nil && *p.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339Nano, *p.Timestamp)
			if err != nil {
				return Inbound{}, fmt.Errorf("%w: %w: %q", ErrNormalize, ErrBadTimestamp, *p.Timestamp)
			}
			rec.Timestamp = ts
		}
		return Inbound{Shape: ShapeRecord, Record: rec}, nil
	case p.Message != nil:
		echo := &Echo{Message: *p.Message}
		if p.User != nil {
			echo.User = *p.User
		}
		return Inbound{Shape: ShapeEcho, Echo: echo}, nil
	}
	return Inbound{}, fmt.Errorf("%w: %w", ErrNormalize, ErrUnrecognizedShape)
}

// scalarString renders a JSON number or string as text. Anything else is "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// Normalizer turns inbound payloads into canonical Messages. It is safe for
// concurrent use.
type Normalizer struct {
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewNormalizer returns a Normalizer stamping observations with now.
// A nil now uses time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Normalize decodes a live frame for roomID into a Message.
func (n *Normalizer) Normalize(roomID string, raw []byte) (Message, error) {
	in, err := Decode(raw)
	if err != nil {
		return Message{}, err
	}
	return n.FromInbound(roomID, in)
}

// FromInbound converts an already decoded frame.
func (n *Normalizer) FromInbound(roomID string, in Inbound) (Message, error) {
	switch in.Shape {
	case ShapeRecord:
		return n.FromRecord(roomID, *in.Record)
	case ShapeEcho:
		return n.FromEcho(roomID, *in.Echo), nil
	}
	return Message{}, fmt.Errorf("%w: %w", ErrNormalize, ErrUnrecognizedShape)
}

// FromRecord renames a server record's fields into a Message.
func (n *Normalizer) FromRecord(roomID string, r Record) (Message, error) {
	if r.ID == "" {
		return Message{}, fmt.Errorf("%w: %w: record without id", ErrNormalize, ErrUnrecognizedShape)
	}
	if r.Room != "" && r.Room != roomID {
		return Message{}, fmt.Errorf("%w: %w: %s != %s", ErrNormalize, ErrRoomMismatch, r.Room, roomID)
	}
	created := r.Timestamp
	if created.IsZero() {
		created = n.now()
	}
	return Message{
		ID:        r.ID,
		RoomID:    roomID,
		Author:    authorOrUnknown(r.User),
		Body:      r.Content,
		CreatedAt: created,
		Origin:    OriginServer,
	}, nil
}

// FromEcho builds a placeholder with a synthesized id and the observation time.
func (n *Normalizer) FromEcho(roomID string, e Echo) Message {
	now := n.now()
	return Message{
		ID:        n.localID(now),
		RoomID:    roomID,
		Author:    authorOrUnknown(e.User),
		Body:      e.Message,
		CreatedAt: now,
		Origin:    OriginLocal,
	}
}

func (n *Normalizer) localID(at time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), n.entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		id = ulid.Make()
	}
	return LocalIDPrefix + id.String()
}

func authorOrUnknown(user string) string {
	if strings.TrimSpace(user) == "" {
		return UnknownAuthor
	}
	return user
}
