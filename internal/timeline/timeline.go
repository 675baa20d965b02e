package timeline

import (
	"slices"
	"sort"
	"time"
)

// DefaultTolerance bounds the clock distance between a placeholder and the
// server record that confirms it.
const DefaultTolerance = 10 * time.Second

// State is the reconciler's per-room lifecycle.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "empty"
}

// Mutation describes what a single ApplyLive call did to the timeline.
type Mutation int

const (
	MutationNone Mutation = iota
	MutationBuffered
	MutationInserted
	MutationUpdated
	MutationReplaced
	MutationAbsorbed
)

func (m Mutation) String() string {
	switch m {
	case MutationBuffered:
		return "buffered"
	case MutationInserted:
		return "inserted"
	case MutationUpdated:
		return "updated"
	case MutationReplaced:
		return "replaced"
	case MutationAbsorbed:
		return "absorbed"
	}
	return "none"
}

// Timeline is one room's reconciled message sequence.
//
// A Timeline is not safe for concurrent use; the owning session applies
// every transition under its own lock.
type Timeline struct {
	roomID    string
	tolerance time.Duration

	state   State
	entries []Message
	buffer  []Message

	// claimed holds server ids that already absorbed a placeholder, so one
	// server record never swallows two separate sends.
	claimed map[string]struct{}
}

// New returns an empty timeline for roomID. A non-positive tolerance uses
// DefaultTolerance.
func New(roomID string, tolerance time.Duration) *Timeline {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Timeline{
		roomID:    roomID,
		tolerance: tolerance,
		claimed:   make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (t *Timeline) State() State { return t.state }

// Len returns the number of displayed entries.
func (t *Timeline) Len() int { return len(t.entries) }

// Buffered returns the number of live events waiting for history.
func (t *Timeline) Buffered() int { return len(t.buffer) }

// Begin marks the history pull as started. It only succeeds from Empty.
func (t *Timeline) Begin() bool {
	if t.state != StateEmpty {
		return false
	}
	t.state = StateLoading
	return true
}

// ApplyHistory installs the history list and merges any live events that were
// buffered while it was loading. It only succeeds from Loading.
func (t *Timeline) ApplyHistory(history []Message) bool {
	if t.state != StateLoading {
		return false
	}
	t.entries = make([]Message, 0, len(history)+len(t.buffer))
	for _, m := range history {
		if m.RoomID != t.roomID {
			continue
		}
		t.merge(m)
	}
	for _, m := range t.buffer {
		t.merge(m)
	}
	t.buffer = nil
	t.state = StateReady
	return true
}

// FailHistory abandons a pending load. The timeline returns to Empty and
// anything buffered is discarded; a retry starts over with Begin.
func (t *Timeline) FailHistory() {
	if t.state != StateLoading {
		return
	}
	t.buffer = nil
	t.state = StateEmpty
}

// ApplyLive merges one normalized live event.
func (t *Timeline) ApplyLive(m Message) Mutation {
	if m.RoomID != t.roomID {
		return MutationNone
	}
	switch t.state {
	case StateLoading:
		t.buffer = append(t.buffer, m)
		return MutationBuffered
	case StateReady:
		return t.merge(m)
	}
	return MutationNone
}

// Reset discards everything and returns to Empty.
func (t *Timeline) Reset() {
	t.state = StateEmpty
	t.entries = nil
	t.buffer = nil
	clear(t.claimed)
}

// Snapshot returns a copy of the ordered entries.
func (t *Timeline) Snapshot() []Message {
	return slices.Clone(t.entries)
}

func (t *Timeline) merge(m Message) Mutation {
	if i := t.indexOf(m.ID); i >= 0 {
		if t.entries[i].equal(m) {
			return MutationNone
		}
		if m.IsPlaceholder() && !t.entries[i].IsPlaceholder() {
			return MutationNone
		}
		t.remove(i)
		t.insert(m)
		return MutationUpdated
	}

	if m.IsPlaceholder() {
		for _, e := range t.entries {
			if e.IsPlaceholder() || t.isClaimed(e.ID) {
				continue
			}
			if sameLogicalMessage(m, e, t.tolerance) {
				t.claimed[e.ID] = struct{}{}
				return MutationAbsorbed
			}
		}
		t.insert(m)
		return MutationInserted
	}

	for i, e := range t.entries {
		if e.IsPlaceholder() && sameLogicalMessage(e, m, t.tolerance) {
			t.remove(i)
			t.insert(m)
			t.claimed[m.ID] = struct{}{}
			return MutationReplaced
		}
	}
	t.insert(m)
	return MutationInserted
}

func (t *Timeline) isClaimed(id string) bool {
	_, ok := t.claimed[id]
	return ok
}

func (t *Timeline) indexOf(id string) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) insert(m Message) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return m.Before(t.entries[i])
	})
	t.entries = slices.Insert(t.entries, i, m)
}

func (t *Timeline) remove(i int) {
	t.entries = slices.Delete(t.entries, i, i+1)
}
