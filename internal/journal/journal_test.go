// ABOUTME: Tests for the SQLite journal — schema creation, inserts, history replay.
// ABOUTME: Uses a temp-dir database file per test.

package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/skiffworks/skiff/internal/rpc"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dirs", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestJournal_ProgressRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := t.Context()

	doc := protocol.TextDocumentIdentifier{URI: uri.File("/src/a.go")}
	ranges := []protocol.Range{{Start: protocol.Position{Line: 2}, End: protocol.Position{Line: 5}}}

	require.NoError(t, j.RecordProgress(ctx, rpc.AgentProgress{
		ID:           1,
		TextDocument: doc,
		Log:          &rpc.LogEntry{Severity: "info", Message: "starting"},
	}))
	require.NoError(t, j.RecordProgress(ctx, rpc.AgentProgress{
		ID:           1,
		TextDocument: doc,
		Status:       "done",
		Ranges:       &ranges,
	}))
	// A different agent's event must not show up in agent 1's history.
	require.NoError(t, j.RecordProgress(ctx, rpc.AgentProgress{
		ID:           2,
		TextDocument: doc,
		Status:       "done",
	}))

	records, err := j.AgentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, rpc.AgentID(1), first.AgentID)
	assert.Empty(t, first.Status)
	require.NotNil(t, first.Log)
	assert.Equal(t, "starting", first.Log.Message)
	assert.False(t, first.RecordedAt.IsZero())

	second := records[1]
	assert.Equal(t, "done", second.Status)
	require.Len(t, second.Ranges, 1)
	assert.Equal(t, uint32(2), second.Ranges[0].Start.Line)
	assert.Nil(t, second.Log)
}

func TestJournal_ChatEvents(t *testing.T) {
	j := openTestJournal(t)
	ctx := t.Context()

	require.NoError(t, j.RecordChat(ctx, rpc.ChatProgress{ID: 5, Response: "partial"}))
	require.NoError(t, j.RecordChat(ctx, rpc.ChatProgress{ID: 5, Response: "partial and final", Done: true}))

	var count int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_events WHERE chat_id = 5").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestJournal_HistoryForUnknownAgentIsEmpty(t *testing.T) {
	j := openTestJournal(t)

	records, err := j.AgentHistory(t.Context(), 404)
	require.NoError(t, err)
	assert.Empty(t, records)
}
