// Package session runs one room at a time: it opens the live channel, pulls
// history, feeds both through the normalizer into the timeline, and tags every
// in-flight operation with the epoch of the room open that started it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomchat/internal/client"
	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/models"
	"github.com/eldtechnologies/roomchat/internal/timeline"
	"github.com/eldtechnologies/roomchat/internal/transport"
)

// DefaultUser is used when the presentation supplies no user id.
const DefaultUser = models.DefaultUser

// API is the request/response side of the server.
type API interface {
	History(ctx context.Context, roomID string) ([]client.Message, error)
	PostMessage(ctx context.Context, roomID, user, content string) (*client.Message, error)
}

// Transport is the live side of the server.
type Transport interface {
	Open(ctx context.Context, roomID string, h transport.Handler) (*transport.Conn, error)
	Send(conn *transport.Conn, payload any) error
	Close(conn *transport.Conn) error
}

// Options tune a Session.
type Options struct {
	User      string
	Tolerance time.Duration
	Now       func() time.Time
}

// View is a read-only snapshot for the presentation.
type View struct {
	RoomID     string
	Epoch      uint64
	State      timeline.State
	Connection transport.State
	Messages   []timeline.Message
	Status     Status
	Dropped    int
}

// Session owns the timeline and live connection of the active room.
type Session struct {
	api        API
	transport  Transport
	normalizer *timeline.Normalizer
	logger     zerolog.Logger
	user       string
	tolerance  time.Duration

	mu        sync.Mutex
	epoch     uint64
	roomID    string
	ctx       context.Context
	cancel    context.CancelFunc
	tl        *timeline.Timeline
	conn      *transport.Conn
	connState transport.State
	status    Status
	dropped   int

	changes chan struct{}
}

// New creates a session with no room open. The user is normalized the way
// the server stores authors, truncated to the server limit.
func New(api API, tr Transport, opts Options, logger zerolog.Logger) *Session {
	user := models.NormalizeUser(opts.User)
	if !models.ValidUser(user) {
		user = models.NormalizeUser(string([]rune(user)[:models.MaxUserLength]))
	}
	return &Session{
		api:        api,
		transport:  tr,
		normalizer: timeline.NewNormalizer(opts.Now),
		logger:     logger.With().Str("component", "session").Str("user", user).Logger(),
		user:       user,
		tolerance:  opts.Tolerance,
		connState:  transport.StateClosed,
		changes:    make(chan struct{}, 1),
	}
}

// User returns the author stamped on outbound messages.
func (s *Session) User() string { return s.user }

// Changes delivers a signal after every visible state change. Signals
// coalesce; read View after receiving one.
func (s *Session) Changes() <-chan struct{} { return s.changes }

// View returns a snapshot of the active room.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		RoomID:     s.roomID,
		Epoch:      s.epoch,
		Connection: s.connState,
		Status:     s.status,
		Dropped:    s.dropped,
	}
	if s.tl != nil {
		v.State = s.tl.State()
		v.Messages = s.tl.Snapshot()
	}
	return v
}

// Open leaves the current room, if any, and starts loading roomID: the
// history pull and the live channel run concurrently.
func (s *Session) Open(ctx context.Context, roomID string) {
	s.mu.Lock()
	s.leaveLocked()

	s.epoch++
	epoch := s.epoch
	roomCtx, cancel := context.WithCancel(ctx)
	s.ctx = roomCtx
	s.cancel = cancel
	s.roomID = roomID
	s.tl = timeline.New(roomID, s.tolerance)
	s.tl.Begin()
	s.connState = transport.StateConnecting
	s.status = Status{Level: LevelLoading, Text: textLoading}
	s.dropped = 0
	s.mu.Unlock()

	s.logger.Info().Str("room", roomID).Uint64("epoch", epoch).Msg("opening room")
	s.notify()

	go s.fetchHistory(roomCtx, epoch, roomID)
	go s.connect(roomCtx, epoch, roomID)
}

// Leave discards the active room's timeline and connection. Completions of
// operations started for it are ignored from now on.
func (s *Session) Leave() {
	s.mu.Lock()
	s.leaveLocked()
	s.mu.Unlock()
	s.notify()
}

// Retry re-issues the history pull after a failure. It reports whether a
// new pull was started.
func (s *Session) Retry() bool {
	s.mu.Lock()
	if s.tl == nil || !s.tl.Begin() {
		s.mu.Unlock()
		return false
	}
	epoch, roomID, ctx := s.epoch, s.roomID, s.ctx
	s.status = Status{Level: LevelLoading, Text: textLoading}
	s.mu.Unlock()

	s.notify()
	go s.fetchHistory(ctx, epoch, roomID)
	return true
}

// Reconnect reopens the live channel of the active room, keeping its
// timeline. It reports whether a connection attempt was started.
func (s *Session) Reconnect() bool {
	s.mu.Lock()
	if s.tl == nil || s.connState == transport.StateOpen || s.connState == transport.StateConnecting {
		s.mu.Unlock()
		return false
	}
	epoch, roomID, ctx := s.epoch, s.roomID, s.ctx
	s.connState = transport.StateConnecting
	s.mu.Unlock()

	s.notify()
	go s.connect(ctx, epoch, roomID)
	return true
}

func (s *Session) leaveLocked() {
	if s.tl == nil {
		return
	}
	s.logger.Info().Str("room", s.roomID).Uint64("epoch", s.epoch).Msg("leaving room")

	s.epoch++
	s.cancel()
	if s.conn != nil {
		s.transport.Close(s.conn)
	}
	s.tl.Reset()
	s.tl = nil
	s.conn = nil
	s.roomID = ""
	s.ctx, s.cancel = nil, nil
	s.connState = transport.StateClosed
	s.status = Status{}
}

// currentLocked reports whether epoch still names the active room.
func (s *Session) currentLocked(epoch uint64) bool {
	return s.tl != nil && s.epoch == epoch
}

func (s *Session) fetchHistory(ctx context.Context, epoch uint64, roomID string) {
	records, err := s.api.History(ctx, roomID)

	s.mu.Lock()
	if !s.currentLocked(epoch) {
		s.mu.Unlock()
		metrics.StaleCompletions.WithLabelValues("history").Inc()
		s.logger.Debug().Str("room", roomID).Uint64("epoch", epoch).Msg("discarded stale history")
		return
	}

	if err != nil {
		s.tl.FailHistory()
		s.status = Status{Level: LevelError, Text: textHistoryError, Err: fmt.Errorf("%w: %w", ErrHistory, err)}
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("room", roomID).Msg("history pull failed")
		s.notify()
		return
	}

	history := make([]timeline.Message, 0, len(records))
	for _, r := range records {
		msg, nerr := s.normalizer.FromRecord(roomID, toRecord(r))
		if nerr != nil {
			s.dropLocked(nerr)
			continue
		}
		history = append(history, msg)
	}
	buffered := s.tl.Buffered()
	s.tl.ApplyHistory(history)
	if s.status.Level == LevelLoading {
		s.status = Status{}
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("room", roomID).
		Int("history", len(history)).
		Int("buffered", buffered).
		Msg("timeline ready")
	s.notify()
}

func (s *Session) connect(ctx context.Context, epoch uint64, roomID string) {
	conn, err := s.transport.Open(ctx, roomID, &roomHandler{session: s, epoch: epoch, roomID: roomID})

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(epoch) {
		if conn != nil {
			s.transport.Close(conn)
		}
		metrics.StaleCompletions.WithLabelValues("connect").Inc()
		return
	}
	if err != nil {
		// HandleState already recorded the failure.
		return
	}
	s.conn = conn
}

func (s *Session) dropLocked(err error) {
	s.dropped++
	metrics.NormalizationFailures.Inc()
	s.logger.Warn().Err(err).Str("room", s.roomID).Msg("dropped inbound event")
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// roomHandler binds live channel callbacks to the epoch they were opened for.
type roomHandler struct {
	session *Session
	epoch   uint64
	roomID  string
}

func (h *roomHandler) HandleFrame(conn *transport.Conn, data []byte) {
	s := h.session

	s.mu.Lock()
	if !s.currentLocked(h.epoch) {
		s.mu.Unlock()
		metrics.StaleCompletions.WithLabelValues("frame").Inc()
		return
	}

	msg, err := s.normalizer.Normalize(h.roomID, data)
	if err != nil {
		s.dropLocked(err)
		s.mu.Unlock()
		s.notify()
		return
	}

	m := s.tl.ApplyLive(msg)
	s.mu.Unlock()

	metrics.TimelineMutations.WithLabelValues(m.String()).Inc()
	if m != timeline.MutationNone {
		s.notify()
	}
}

func (h *roomHandler) HandleState(conn *transport.Conn, state transport.State, err error) {
	s := h.session

	s.mu.Lock()
	if !s.currentLocked(h.epoch) {
		s.mu.Unlock()
		return
	}
	s.connState = state
	switch state {
	case transport.StateOpen:
		if s.status.Level == LevelWarn || errors.Is(s.status.Err, ErrTransport) {
			s.status = Status{}
		}
	case transport.StateError:
		s.status = Status{Level: LevelError, Text: textConnError, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	case transport.StateClosed:
		s.status = Status{Level: LevelWarn, Text: textConnClosed}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).
			Str("room", h.roomID).
			Uint64("conn", conn.Seq()).
			Str("state", state.String()).
			Msg("live channel state")
	}
	s.notify()
}

func toRecord(m client.Message) timeline.Record {
	return timeline.Record{
		ID:        m.IDString(),
		Room:      m.RoomString(),
		User:      m.User,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}
