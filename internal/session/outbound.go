package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/roomchat/internal/metrics"
	"github.com/eldtechnologies/roomchat/internal/timeline"
	"github.com/eldtechnologies/roomchat/internal/transport"
)

// Submit delivers body to the active room on two paths. When the live channel
// is open, an echo frame goes out at once and the same echo is placed in the
// timeline as a placeholder. The durable write always follows; its record
// replaces the placeholder. A failed write leaves the placeholder in place and
// sets an error status. When the history pull had failed, a successful write
// reloads the history, which then carries the record.
//
// Submit blocks until the durable write completes. Concurrent calls are
// independent of each other.
func (s *Session) Submit(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}

	s.mu.Lock()
	if s.tl == nil {
		s.mu.Unlock()
		return ErrNoRoom
	}
	epoch, roomID, conn := s.epoch, s.roomID, s.conn
	optimistic := false
	if conn != nil && conn.State() == transport.StateOpen {
		echo := timeline.Echo{Message: body, User: s.user}
		if err := s.transport.Send(conn, echo); err != nil {
			s.logger.Warn().Err(err).Str("room", roomID).Msg("optimistic send failed")
		} else {
			m := s.tl.ApplyLive(s.normalizer.FromEcho(roomID, echo))
			metrics.TimelineMutations.WithLabelValues(m.String()).Inc()
			optimistic = true
		}
	}
	s.mu.Unlock()

	if optimistic {
		s.notify()
	}
	metrics.MessagesSubmitted.WithLabelValues(fmt.Sprint(optimistic)).Inc()

	rec, err := s.api.PostMessage(ctx, roomID, s.user, body)

	s.mu.Lock()
	if !s.currentLocked(epoch) {
		s.mu.Unlock()
		metrics.StaleCompletions.WithLabelValues("write").Inc()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDurableWrite, err)
		}
		return nil
	}

	if err != nil {
		werr := fmt.Errorf("%w: %w", ErrDurableWrite, err)
		s.status = Status{Level: LevelError, Text: textSendError, Err: werr}
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("room", roomID).Bool("optimistic", optimistic).Msg("durable write failed")
		s.notify()
		return werr
	}

	msg, nerr := s.normalizer.FromRecord(roomID, toRecord(*rec))
	if nerr != nil {
		s.dropLocked(nerr)
		s.mu.Unlock()
		s.notify()
		return nil
	}
	m := s.tl.ApplyLive(msg)
	if errors.Is(s.status.Err, ErrDurableWrite) {
		s.status = Status{}
	}
	// A room whose history pull failed shows nothing live; reload it so the
	// stored record becomes visible.
	reload := s.tl.State() == timeline.StateEmpty && s.tl.Begin()
	if reload {
		s.status = Status{Level: LevelLoading, Text: textLoading}
	}
	roomCtx := s.ctx
	s.mu.Unlock()

	metrics.TimelineMutations.WithLabelValues(m.String()).Inc()
	if reload {
		s.logger.Info().Str("room", roomID).Msg("reloading history after durable write")
		go s.fetchHistory(roomCtx, epoch, roomID)
	}
	s.notify()
	return nil
}
