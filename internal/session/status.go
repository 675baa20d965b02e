package session

import "errors"

var (
	// ErrNoRoom is returned when an operation needs an open room.
	ErrNoRoom = errors.New("no room open")
	// ErrEmptyBody is returned for submissions that are blank after trimming.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrTransport marks live channel failures.
	ErrTransport = errors.New("live channel")
	// ErrHistory marks history pull failures.
	ErrHistory = errors.New("history pull")
	// ErrDurableWrite marks failed message persistence.
	ErrDurableWrite = errors.New("durable write")
)

// Level grades a status line.
type Level int

const (
	LevelNone Level = iota
	LevelLoading
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelLoading:
		return "loading"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "none"
}

// Status is what the presentation shows next to the timeline.
type Status struct {
	Level Level
	Text  string
	Err   error
}

const (
	textLoading      = "Loading messages..."
	textHistoryError = "Error loading messages. Please try again."
	textConnError    = "Connection error. Please reopen the room."
	textConnClosed   = "Connection closed."
	textSendError    = "Error sending message. Please try again."
)
