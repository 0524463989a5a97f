// ABOUTME: Agent session state machine — status lifecycle, highlighted ranges, log history.
// ABOUTME: Mutated only by progress notifications routed through the Registry.

package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/rpc"
)

// maxLogEntries bounds the per-session log history.
const maxLogEntries = 50

// ErrInvalidTransition indicates a progress notification carried a status
// the state machine does not allow from the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle state of an agent session.
//
// running → {done, error} → {accepted, rejected}
//
// A completed session may also return to running: a restarted agent keeps
// its id and the engine streams a running status for it. accepted and
// rejected are terminal: once reached, no progress notification changes the
// status again.
type Status string

const (
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusError    Status = "error"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a wire status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusRunning, StatusDone, StatusError, StatusAccepted, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown agent status %q", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Completed reports whether the agent finished its work and awaits review.
func (s Status) Completed() bool {
	return s == StatusDone || s == StatusError
}

// canTransition encodes the state machine edges. The completed → running
// edge is the restart path: the engine reuses the agent id and drives the
// session back to running.
func canTransition(from, to Status) bool {
	switch from {
	case StatusRunning:
		return to == StatusDone || to == StatusError
	case StatusDone, StatusError:
		return to == StatusAccepted || to == StatusRejected || to == StatusRunning
	default:
		return false
	}
}

// Session is the client-side record of one engine agent. Created when a
// run request returns an id; never removed from the registry during a
// session so accept/reject can be replayed against completed agents.
type Session struct {
	id       rpc.AgentID
	task     string
	document protocol.TextDocumentIdentifier
	anchor   protocol.Position

	// Guarded by the owning Registry's lock: sessions are mutated only
	// inside Registry.ApplyProgress, which runs notifications to
	// completion one at a time.
	status Status
	ranges []protocol.Range
	logs   []rpc.LogEntry
}

// View is a value snapshot of a Session, safe to hold across mutations.
type View struct {
	ID       rpc.AgentID
	Task     string
	Document protocol.TextDocumentIdentifier
	Anchor   protocol.Position
	Status   Status
	Ranges   []protocol.Range
	Logs     []rpc.LogEntry
}

func newSession(id rpc.AgentID, task string, document protocol.TextDocumentIdentifier, anchor protocol.Position) *Session {
	return &Session{
		id:       id,
		task:     task,
		document: document,
		anchor:   anchor,
		status:   StatusRunning,
	}
}

// ID returns the engine-assigned agent id.
func (s *Session) ID() rpc.AgentID { return s.id }

// apply folds one progress notification into the session. Returns whether
// anything observable changed; the caller fires the change signal exactly
// once per apply that reports a change.
func (s *Session) apply(p rpc.AgentProgress, logger *slog.Logger) (changed bool, err error) {
	if p.Log != nil {
		s.logs = append(s.logs, *p.Log)
		if len(s.logs) > maxLogEntries {
			s.logs = s.logs[len(s.logs)-maxLogEntries:]
		}
	}

	if p.Ranges != nil && !s.status.Terminal() {
		// Wholesale replacement, never a merge. Terminal sessions already
		// cleared their highlighting and stay clear.
		next := make([]protocol.Range, len(*p.Ranges))
		copy(next, *p.Ranges)
		s.ranges = next
		changed = true
	}

	if p.Status == "" {
		return changed, nil
	}

	next, perr := ParseStatus(p.Status)
	if perr != nil {
		return changed, perr
	}

	switch {
	case next == s.status:
		// Re-sent status: no transition, no signal.
	case s.status.Terminal():
		// Late notification after a terminal state: status is immutable,
		// but the event is still worth a trace.
		logger.Warn("progress after terminal status ignored",
			"agent_id", int64(s.id),
			"status", string(s.status),
			"late_status", p.Status,
		)
	case !canTransition(s.status, next):
		return changed, fmt.Errorf("%w: %s → %s for agent %d", ErrInvalidTransition, s.status, next, s.id)
	default:
		s.status = next
		changed = true
		if next.Terminal() {
			// The one place ranges are cleared rather than replaced:
			// accepting or rejecting removes the session's highlighting.
			s.ranges = nil
		}
	}

	return changed, nil
}

// view builds a value snapshot. Caller holds the Registry lock.
func (s *Session) view() View {
	ranges := make([]protocol.Range, len(s.ranges))
	copy(ranges, s.ranges)
	logs := make([]rpc.LogEntry, len(s.logs))
	copy(logs, s.logs)
	return View{
		ID:       s.id,
		Task:     s.task,
		Document: s.document,
		Anchor:   s.anchor,
		Status:   s.status,
		Ranges:   ranges,
		Logs:     logs,
	}
}
