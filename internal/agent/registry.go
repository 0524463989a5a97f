// ABOUTME: Registry maps engine-assigned agent ids to Session objects.
// ABOUTME: Single source of truth for what agents exist and what state they are in.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/rpc"
)

// ErrUnknownAgent indicates a progress notification referenced an id that is
// not in the registry. This is a protocol-level desync between client and
// engine and is surfaced loudly, never swallowed.
var ErrUnknownAgent = errors.New("unknown agent id")

// ErrDuplicateAgent indicates the engine handed out an id that is already
// registered.
var ErrDuplicateAgent = errors.New("agent already registered")

// Registry owns all agent Sessions. It is the single mutable shared
// structure of the client; sessions are mutated only through ApplyProgress
// and Create, each of which runs to completion under the lock, so no
// partial-update state is ever observable.
type Registry struct {
	mu       sync.RWMutex
	sessions map[rpc.AgentID]*Session
	bus      *Broadcaster
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "registry")
	return &Registry{
		sessions: make(map[rpc.AgentID]*Session),
		bus:      NewBroadcaster(logger),
		logger:   logger,
	}
}

// Create registers a new running Session under an engine-assigned id and
// fires a change event. Returns ErrDuplicateAgent if the id is taken.
func (r *Registry) Create(id rpc.AgentID, task string, document protocol.TextDocumentIdentifier, anchor protocol.Position) (View, error) {
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return View{}, fmt.Errorf("%w: %d", ErrDuplicateAgent, id)
	}
	sess := newSession(id, task, document, anchor)
	r.sessions[id] = sess
	view := sess.view()
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("agent registered",
		"agent_id", int64(id),
		"task", task,
		"document", string(document.URI),
		"total_agents", total,
	)
	r.bus.Publish(Event{AgentID: id, Document: document, Status: StatusRunning})
	return view, nil
}

// Get returns a snapshot of a single session.
func (r *Registry) Get(id rpc.AgentID) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return View{}, false
	}
	return sess.view(), true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns value copies of every session, ordered by id.
func (r *Registry) Snapshot() []View {
	r.mu.RLock()
	views := make([]View, 0, len(r.sessions))
	for _, sess := range r.sessions {
		views = append(views, sess.view())
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// ApplyProgress routes a progress notification to the session it addresses
// and fires one change event if anything observable changed. A notification
// whose id is absent is a routing error: it never creates an entry.
func (r *Registry) ApplyProgress(p rpc.AgentProgress) error {
	r.mu.Lock()
	sess, ok := r.sessions[p.ID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: progress for id %d", ErrUnknownAgent, p.ID)
	}
	changed, err := sess.apply(p, r.logger)
	var status Status
	var document protocol.TextDocumentIdentifier
	if changed {
		status = sess.status
		document = sess.document
	}
	r.mu.Unlock()

	// Publish before surfacing the error: ranges may have been replaced even
	// when the status in the same payload was invalid, and that mutation is
	// already visible to snapshot readers.
	if changed {
		r.bus.Publish(Event{AgentID: p.ID, Document: document, Status: status})
	}
	if err != nil {
		return fmt.Errorf("applying progress for agent %d: %w", p.ID, err)
	}
	return nil
}

// Subscribe registers for change events across all agents. The subscription
// is dropped when ctx is cancelled.
func (r *Registry) Subscribe(ctx context.Context) (<-chan Event, string) {
	return r.bus.Subscribe(ctx)
}

// Close shuts down the change-event bus.
func (r *Registry) Close() {
	r.bus.Close()
}
