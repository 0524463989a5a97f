// ABOUTME: Tests for the agent session state machine.
// ABOUTME: Covers status transitions, terminal immutability, ranges replacement and log trimming.

package agent

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/skiffworks/skiff/internal/rpc"
)

func testDocument() protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{URI: uri.File("/tmp/main.go")}
}

func makeRanges(lines ...uint32) []protocol.Range {
	ranges := make([]protocol.Range, 0, len(lines))
	for _, l := range lines {
		ranges = append(ranges, protocol.Range{
			Start: protocol.Position{Line: l},
			End:   protocol.Position{Line: l + 1},
		})
	}
	return ranges
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"running", "done", "error", "accepted", "rejected"} {
		st, err := ParseStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(st))
	}

	_, err := ParseStatus("finished")
	assert.Error(t, err)
}

func TestStatus_Predicates(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusDone.Terminal())
	assert.False(t, StatusError.Terminal())
	assert.True(t, StatusAccepted.Terminal())
	assert.True(t, StatusRejected.Terminal())

	assert.False(t, StatusRunning.Completed())
	assert.True(t, StatusDone.Completed())
	assert.True(t, StatusError.Completed())
	assert.False(t, StatusAccepted.Completed())
}

func TestSession_TransitionsThroughLifecycle(t *testing.T) {
	s := newSession(1, "rename function", testDocument(), protocol.Position{Line: 10})
	assert.Equal(t, StatusRunning, s.status)

	changed, err := s.apply(rpc.AgentProgress{ID: 1, Status: "done"}, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusDone, s.status)

	changed, err = s.apply(rpc.AgentProgress{ID: 1, Status: "accepted"}, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusAccepted, s.status)
}

func TestSession_InvalidTransitionRejected(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	// running → accepted skips the completed step
	_, err := s.apply(rpc.AgentProgress{ID: 1, Status: "accepted"}, slog.Default())
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusRunning, s.status, "failed transition must not change status")
}

func TestSession_RestartReturnsCompletedToRunning(t *testing.T) {
	for _, completed := range []string{"done", "error"} {
		s := newSession(1, "task", testDocument(), protocol.Position{})

		_, err := s.apply(rpc.AgentProgress{ID: 1, Status: completed}, slog.Default())
		require.NoError(t, err)

		// A restarted agent keeps its id; the engine streams running again.
		changed, err := s.apply(rpc.AgentProgress{ID: 1, Status: "running"}, slog.Default())
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, StatusRunning, s.status)

		// The revived session completes normally.
		_, err = s.apply(rpc.AgentProgress{ID: 1, Status: "done"}, slog.Default())
		require.NoError(t, err)
		_, err = s.apply(rpc.AgentProgress{ID: 1, Status: "accepted"}, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, s.status)
	}
}

func TestSession_RepeatedStatusIsNoOp(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	changed, err := s.apply(rpc.AgentProgress{ID: 1, Status: "running"}, slog.Default())
	require.NoError(t, err)
	assert.False(t, changed, "re-sent status must not signal a change")
}

func TestSession_TerminalStatusIsImmutable(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	_, err := s.apply(rpc.AgentProgress{ID: 1, Status: "done"}, slog.Default())
	require.NoError(t, err)
	_, err = s.apply(rpc.AgentProgress{ID: 1, Status: "rejected"}, slog.Default())
	require.NoError(t, err)

	// Late status after terminal: logged, ignored, no error.
	changed, err := s.apply(rpc.AgentProgress{ID: 1, Status: "done"}, slog.Default())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusRejected, s.status)
}

func TestSession_RangesReplacedWholesale(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	first := makeRanges(5, 9)
	changed, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &first}, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, s.ranges, 2)

	second := makeRanges(20)
	changed, err = s.apply(rpc.AgentProgress{ID: 1, Ranges: &second}, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, s.ranges, 1, "new ranges replace, never merge")
	assert.Equal(t, uint32(20), s.ranges[0].Start.Line)
}

func TestSession_EmptyRangesClearsHighlighting(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	full := makeRanges(1, 2, 3)
	_, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &full}, slog.Default())
	require.NoError(t, err)

	empty := []protocol.Range{}
	changed, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &empty}, slog.Default())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, s.ranges)
}

func TestSession_TerminalTransitionClearsRanges(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	ranges := makeRanges(4)
	_, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &ranges}, slog.Default())
	require.NoError(t, err)
	_, err = s.apply(rpc.AgentProgress{ID: 1, Status: "done"}, slog.Default())
	require.NoError(t, err)

	_, err = s.apply(rpc.AgentProgress{ID: 1, Status: "accepted"}, slog.Default())
	require.NoError(t, err)
	assert.Empty(t, s.ranges, "accept clears the session's highlighting")

	// Ranges arriving after terminal stay ignored.
	late := makeRanges(7)
	changed, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &late}, slog.Default())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, s.ranges)
}

func TestSession_LogHistoryTrimmed(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{})

	for i := 0; i < maxLogEntries+10; i++ {
		entry := rpc.LogEntry{Severity: "info", Message: fmt.Sprintf("step %d", i)}
		_, err := s.apply(rpc.AgentProgress{ID: 1, Log: &entry}, slog.Default())
		require.NoError(t, err)
	}

	require.Len(t, s.logs, maxLogEntries)
	assert.Equal(t, "step 10", s.logs[0].Message, "oldest entries dropped first")
	assert.Equal(t, fmt.Sprintf("step %d", maxLogEntries+9), s.logs[len(s.logs)-1].Message)
}

func TestSession_ViewIsIndependentCopy(t *testing.T) {
	s := newSession(1, "task", testDocument(), protocol.Position{Line: 3})

	ranges := makeRanges(8)
	_, err := s.apply(rpc.AgentProgress{ID: 1, Ranges: &ranges}, slog.Default())
	require.NoError(t, err)

	view := s.view()
	require.Len(t, view.Ranges, 1)

	// Mutating the session afterwards must not leak into the snapshot.
	replacement := makeRanges(90, 91)
	_, err = s.apply(rpc.AgentProgress{ID: 1, Ranges: &replacement}, slog.Default())
	require.NoError(t, err)

	assert.Len(t, view.Ranges, 1)
	assert.Equal(t, uint32(8), view.Ranges[0].Start.Line)
}
