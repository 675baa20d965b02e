package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func server(id int, author, body string, at time.Duration) Message {
	return Message{
		ID:        fmt.Sprint(id),
		RoomID:    "1",
		Author:    author,
		Body:      body,
		CreatedAt: base.Add(at),
		Origin:    OriginServer,
	}
}

func placeholder(id, author, body string, at time.Duration) Message {
	return Message{
		ID:        LocalIDPrefix + id,
		RoomID:    "1",
		Author:    author,
		Body:      body,
		CreatedAt: base.Add(at),
		Origin:    OriginLocal,
	}
}

func ready(t *testing.T, history ...Message) *Timeline {
	t.Helper()
	tl := New("1", 5*time.Second)
	require.True(t, tl.Begin())
	require.True(t, tl.ApplyHistory(history))
	return tl
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertOrdered(t *testing.T, msgs []Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].Before(msgs[i]), "entry %d (%s) must precede entry %d (%s)", i-1, msgs[i-1].ID, i, msgs[i].ID)
	}
}

func TestTimeline_StateMachine(t *testing.T) {
	tl := New("1", 0)
	assert.Equal(t, StateEmpty, tl.State())

	assert.False(t, tl.ApplyHistory(nil), "history before Begin is ignored")
	assert.Equal(t, MutationNone, tl.ApplyLive(server(1, "a", "x", 0)), "live events while Empty are ignored")

	require.True(t, tl.Begin())
	assert.Equal(t, StateLoading, tl.State())
	assert.False(t, tl.Begin())

	require.True(t, tl.ApplyHistory(nil))
	assert.Equal(t, StateReady, tl.State())
	assert.False(t, tl.ApplyHistory(nil))

	tl.Reset()
	assert.Equal(t, StateEmpty, tl.State())
	assert.Zero(t, tl.Len())
}

func TestTimeline_HistoryIsSorted(t *testing.T) {
	tl := ready(t,
		server(3, "a", "c", 2*time.Second),
		server(1, "a", "a", 0),
		server(2, "b", "b", 0),
		server(1, "a", "a", 0),
	)

	snap := tl.Snapshot()
	assert.Equal(t, []string{"1", "2", "3"}, ids(snap))
	assertOrdered(t, snap)
}

func TestTimeline_OrderInvariant(t *testing.T) {
	tl := ready(t, server(5, "a", "five", 5*time.Second))

	tl.ApplyLive(server(10, "a", "ten", 10*time.Second))
	tl.ApplyLive(server(2, "a", "two", 2*time.Second))
	tl.ApplyLive(server(11, "a", "tie-late", 5*time.Second))
	tl.ApplyLive(server(4, "a", "tie-early", 5*time.Second))

	snap := tl.Snapshot()
	assert.Equal(t, []string{"2", "4", "5", "11", "10"}, ids(snap))
	assertOrdered(t, snap)
}

func TestTimeline_NoDuplicateIDs(t *testing.T) {
	tl := ready(t, server(1, "a", "x", 0))

	assert.Equal(t, MutationNone, tl.ApplyLive(server(1, "a", "x", 0)))
	assert.Equal(t, 1, tl.Len())

	edited := server(1, "a", "x", 0)
	edited.Author = "renamed"
	assert.Equal(t, MutationUpdated, tl.ApplyLive(edited))
	assert.Equal(t, 1, tl.Len())
	assert.Equal(t, "renamed", tl.Snapshot()[0].Author)
}

func TestTimeline_OptimisticReplace(t *testing.T) {
	tl := ready(t)

	assert.Equal(t, MutationInserted, tl.ApplyLive(placeholder("a", "alice", "hi", 0)))
	require.Equal(t, 1, tl.Len())
	assert.True(t, tl.Snapshot()[0].IsPlaceholder())

	assert.Equal(t, MutationReplaced, tl.ApplyLive(server(42, "alice", "hi", time.Second)))
	snap := tl.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "42", snap[0].ID)
	assert.False(t, snap[0].IsPlaceholder())

	// The broadcast copy of the same record arrives afterwards.
	assert.Equal(t, MutationNone, tl.ApplyLive(server(42, "alice", "hi", time.Second)))
	assert.Equal(t, 1, tl.Len())
}

func TestTimeline_RecordBeforeEcho(t *testing.T) {
	tl := ready(t)

	tl.ApplyLive(server(42, "alice", "hi", 0))
	assert.Equal(t, MutationAbsorbed, tl.ApplyLive(placeholder("a", "alice", "hi", time.Second)))
	assert.Equal(t, []string{"42"}, ids(tl.Snapshot()))
}

func TestTimeline_PlaceholderOutsideTolerance(t *testing.T) {
	tl := ready(t)

	tl.ApplyLive(placeholder("a", "alice", "hi", 0))
	assert.Equal(t, MutationInserted, tl.ApplyLive(server(42, "alice", "hi", time.Minute)))
	assert.Equal(t, 2, tl.Len())
}

func TestTimeline_PlaceholderNeedsSameAuthorAndBody(t *testing.T) {
	tl := ready(t)

	tl.ApplyLive(placeholder("a", "alice", "hi", 0))
	assert.Equal(t, MutationInserted, tl.ApplyLive(server(42, "bob", "hi", 0)))
	assert.Equal(t, MutationInserted, tl.ApplyLive(server(43, "alice", "hello", 0)))
	assert.Equal(t, 3, tl.Len())
}

func TestTimeline_RepeatedSendsStayDistinct(t *testing.T) {
	tl := ready(t)

	tl.ApplyLive(placeholder("a", "alice", "hi", 0))
	tl.ApplyLive(placeholder("b", "alice", "hi", 100*time.Millisecond))
	assert.Equal(t, MutationReplaced, tl.ApplyLive(server(42, "alice", "hi", 200*time.Millisecond)))
	assert.Equal(t, MutationReplaced, tl.ApplyLive(server(43, "alice", "hi", 300*time.Millisecond)))

	assert.Equal(t, []string{"42", "43"}, ids(tl.Snapshot()))

	// A third echo has nothing left to be absorbed into.
	assert.Equal(t, MutationInserted, tl.ApplyLive(placeholder("c", "alice", "hi", 400*time.Millisecond)))
	assert.Equal(t, 3, tl.Len())
}

func TestTimeline_BufferThenMerge(t *testing.T) {
	tl := New("1", 5*time.Second)
	require.True(t, tl.Begin())

	assert.Equal(t, MutationBuffered, tl.ApplyLive(server(4, "b", "live late", 30*time.Second)))
	assert.Equal(t, MutationBuffered, tl.ApplyLive(server(3, "b", "live early", 15*time.Second)))
	assert.Equal(t, MutationBuffered, tl.ApplyLive(server(2, "a", "also in history", 10*time.Second)))
	assert.Equal(t, 3, tl.Buffered())
	assert.Zero(t, tl.Len())

	require.True(t, tl.ApplyHistory([]Message{
		server(1, "a", "old", 0),
		server(2, "a", "also in history", 10*time.Second),
		server(5, "a", "newest history", 20*time.Second),
	}))

	snap := tl.Snapshot()
	assert.Equal(t, []string{"1", "2", "3", "5", "4"}, ids(snap))
	assertOrdered(t, snap)
	assert.Zero(t, tl.Buffered())
}

func TestTimeline_BufferedPlaceholderMatchesHistory(t *testing.T) {
	tl := New("1", 5*time.Second)
	require.True(t, tl.Begin())

	tl.ApplyLive(placeholder("a", "alice", "hi", 0))
	require.True(t, tl.ApplyHistory([]Message{server(42, "alice", "hi", time.Second)}))

	assert.Equal(t, []string{"42"}, ids(tl.Snapshot()))
}

func TestTimeline_RoomIsolation(t *testing.T) {
	tl := ready(t)

	foreign := server(9, "a", "elsewhere", 0)
	foreign.RoomID = "2"
	assert.Equal(t, MutationNone, tl.ApplyLive(foreign))
	assert.Zero(t, tl.Len())

	tl2 := New("1", 0)
	require.True(t, tl2.Begin())
	require.True(t, tl2.ApplyHistory([]Message{foreign, server(1, "a", "here", 0)}))
	assert.Equal(t, []string{"1"}, ids(tl2.Snapshot()))
}

func TestTimeline_FailHistory(t *testing.T) {
	tl := New("1", 0)
	require.True(t, tl.Begin())
	tl.ApplyLive(server(1, "a", "x", 0))

	tl.FailHistory()
	assert.Equal(t, StateEmpty, tl.State())
	assert.Zero(t, tl.Buffered())

	require.True(t, tl.Begin(), "a retry can start a new load")
}

func TestTimeline_SnapshotIsACopy(t *testing.T) {
	tl := ready(t, server(1, "a", "x", 0))

	snap := tl.Snapshot()
	snap[0].Body = "mutated"
	assert.Equal(t, "x", tl.Snapshot()[0].Body)
}
