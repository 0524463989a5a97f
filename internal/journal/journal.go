// ABOUTME: SQLite journal of agent progress and chat events using modernc.org/sqlite.
// ABOUTME: Append-only history with automatic schema creation and per-agent replay.

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.lsp.dev/protocol"

	_ "modernc.org/sqlite"

	"github.com/skiffworks/skiff/internal/rpc"
)

// Journal persists every progress and chat notification the client sees.
// Purely additive: nothing in the client reads the journal on its hot path.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// ProgressRecord is one journaled progress event.
type ProgressRecord struct {
	AgentID    rpc.AgentID
	Document   string
	Status     string
	Ranges     []protocol.Range
	Log        *rpc.LogEntry
	RecordedAt time.Time
}

// Open creates or opens the journal database at path. Parent directories
// are created if needed; the schema is created on first use.
func Open(path string) (*Journal, error) {
	logger := slog.Default().With("component", "journal")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	// WAL keeps writers from blocking the occasional history read.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS progress_events (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id     INTEGER NOT NULL,
			document     TEXT NOT NULL,
			status       TEXT,
			ranges_json  TEXT,
			log_severity TEXT,
			log_message  TEXT,
			recorded_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_progress_agent ON progress_events(agent_id);

		CREATE TABLE IF NOT EXISTS chat_events (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id     INTEGER NOT NULL,
			response    TEXT NOT NULL,
			done        INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_id ON chat_events(chat_id);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("creating journal schema: %w", err)
	}
	return nil
}

// RecordProgress appends one progress event.
func (j *Journal) RecordProgress(ctx context.Context, p rpc.AgentProgress) error {
	var rangesJSON *string
	if p.Ranges != nil {
		data, err := json.Marshal(*p.Ranges)
		if err != nil {
			return fmt.Errorf("encoding ranges: %w", err)
		}
		s := string(data)
		rangesJSON = &s
	}

	var logSeverity, logMessage *string
	if p.Log != nil {
		logSeverity = &p.Log.Severity
		logMessage = &p.Log.Message
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO progress_events (agent_id, document, status, ranges_json, log_severity, log_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(p.ID),
		string(p.TextDocument.URI),
		nullable(p.Status),
		rangesJSON,
		logSeverity,
		logMessage,
		time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting progress event: %w", err)
	}
	return nil
}

// RecordChat appends one chat progress event.
func (j *Journal) RecordChat(ctx context.Context, p rpc.ChatProgress) error {
	done := 0
	if p.Done {
		done = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO chat_events (chat_id, response, done, recorded_at)
		VALUES (?, ?, ?, ?)`,
		int64(p.ID),
		p.Response,
		done,
		time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting chat event: %w", err)
	}
	return nil
}

// AgentHistory returns every journaled progress event for one agent in
// arrival order.
func (j *Journal) AgentHistory(ctx context.Context, id rpc.AgentID) ([]ProgressRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT agent_id, document, status, ranges_json, log_severity, log_message, recorded_at
		FROM progress_events
		WHERE agent_id = ?
		ORDER BY seq`,
		int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("querying agent history: %w", err)
	}
	defer rows.Close()

	var records []ProgressRecord
	for rows.Next() {
		var (
			agentID                          int64
			document, recordedAt             string
			status, rangesJSON, sev, message sql.NullString
		)
		if err := rows.Scan(&agentID, &document, &status, &rangesJSON, &sev, &message, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning progress event: %w", err)
		}

		record := ProgressRecord{
			AgentID:  rpc.AgentID(agentID),
			Document: document,
			Status:   status.String,
		}
		if rangesJSON.Valid {
			if err := json.Unmarshal([]byte(rangesJSON.String), &record.Ranges); err != nil {
				return nil, fmt.Errorf("decoding ranges: %w", err)
			}
		}
		if sev.Valid || message.Valid {
			record.Log = &rpc.LogEntry{Severity: sev.String, Message: message.String}
		}
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			record.RecordedAt = ts
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
