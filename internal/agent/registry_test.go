// ABOUTME: Tests for the agent Registry — creation, routing, snapshots, change events.
// ABOUTME: Covers unknown-id routing errors and the concurrent progress scenario.

package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/rpc"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	view, err := r.Create(1, "add tests", testDocument(), protocol.Position{Line: 5})
	require.NoError(t, err)
	assert.Equal(t, rpc.AgentID(1), view.ID)
	assert.Equal(t, StatusRunning, view.Status)

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "add tests", got.Task)
	assert.Equal(t, uint32(5), got.Anchor.Line)

	_, ok = r.Get(99)
	assert.False(t, ok)
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	_, err := r.Create(1, "first", testDocument(), protocol.Position{})
	require.NoError(t, err)

	_, err = r.Create(1, "second", testDocument(), protocol.Position{})
	require.ErrorIs(t, err, ErrDuplicateAgent)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnknownIDNeverCreatesEntry(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	err := r.ApplyProgress(rpc.AgentProgress{ID: 42, TextDocument: testDocument(), Status: "done"})
	require.ErrorIs(t, err, ErrUnknownAgent)
	assert.Equal(t, 0, r.Len(), "a routing error must not register a session")
}

func TestRegistry_ApplyProgressUpdatesSession(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)

	ranges := makeRanges(12)
	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "done", Ranges: &ranges})
	require.NoError(t, err)

	view, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, StatusDone, view.Status)
	assert.Len(t, view.Ranges, 1)
}

func TestRegistry_RestartWithSameIDRevivesSession(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)

	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "done"})
	require.NoError(t, err)

	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "running"})
	require.NoError(t, err)

	view, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, view.Status)
}

func TestRegistry_InvalidTransitionSurfaced(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)

	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "accepted"})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRegistry_SnapshotOrderedByID(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	for _, id := range []rpc.AgentID{3, 1, 2} {
		_, err := r.Create(id, "task", testDocument(), protocol.Position{})
		require.NoError(t, err)
	}

	views := r.Snapshot()
	require.Len(t, views, 3)
	assert.Equal(t, rpc.AgentID(1), views[0].ID)
	assert.Equal(t, rpc.AgentID(2), views[1].ID)
	assert.Equal(t, rpc.AgentID(3), views[2].ID)
}

func TestRegistry_ChangeEventsFired(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ctx := t.Context()
	events, _ := r.Subscribe(ctx)

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, rpc.AgentID(1), ev.AgentID)
		assert.Equal(t, StatusRunning, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registration event")
	}

	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "done"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, StatusDone, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transition event")
	}
}

func TestRegistry_NoEventWhenNothingChanged(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ctx := t.Context()
	events, _ := r.Subscribe(ctx)

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)
	<-events // registration event

	// Re-sent running status: no transition, no event.
	err = r.ApplyProgress(rpc.AgentProgress{ID: 1, TextDocument: testDocument(), Status: "running"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for no-op progress: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRegistry_RangesChangeSignaledDespiteBadStatus(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ctx := t.Context()
	events, _ := r.Subscribe(ctx)

	_, err := r.Create(1, "task", testDocument(), protocol.Position{})
	require.NoError(t, err)
	<-events // registration event

	// Ranges replacement lands before the invalid status is rejected; the
	// visible mutation still gets its change event.
	ranges := makeRanges(6)
	err = r.ApplyProgress(rpc.AgentProgress{
		ID: 1, TextDocument: testDocument(), Status: "accepted", Ranges: &ranges,
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	select {
	case ev := <-events:
		assert.Equal(t, rpc.AgentID(1), ev.AgentID)
		assert.Equal(t, StatusRunning, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the ranges change event")
	}

	view, ok := r.Get(1)
	require.True(t, ok)
	assert.Len(t, view.Ranges, 1)
}

// Two agents on the same document progressing concurrently must end up in
// independent, consistent states.
func TestRegistry_ConcurrentProgressOnSameDocument(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	doc := testDocument()
	_, err := r.Create(1, "first", doc, protocol.Position{Line: 1})
	require.NoError(t, err)
	_, err = r.Create(2, "second", doc, protocol.Position{Line: 50})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []rpc.AgentID{1, 2} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint32(0); i < 20; i++ {
				ranges := makeRanges(i)
				_ = r.ApplyProgress(rpc.AgentProgress{ID: id, TextDocument: doc, Ranges: &ranges})
			}
			_ = r.ApplyProgress(rpc.AgentProgress{ID: id, TextDocument: doc, Status: "done"})
		}()
	}
	wg.Wait()

	for _, id := range []rpc.AgentID{1, 2} {
		view, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusDone, view.Status)
		assert.Len(t, view.Ranges, 1, "last ranges update wins wholesale")
	}
}
