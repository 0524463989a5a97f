// ABOUTME: UI state bridge — envelope codec and command dispatch between core and panel.
// ABOUTME: Unknown message types are protocol violations and fail loudly, never silently.

package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// ErrProtocolViolation indicates a message whose type is outside the fixed
// envelope contract. The panel and the core both fail loudly on these
// rather than ignoring them.
var ErrProtocolViolation = errors.New("panel protocol violation")

// MessageType discriminates envelope payloads.
type MessageType string

const (
	// TypeStateUpdate carries a full State snapshot, core → panel.
	TypeStateUpdate MessageType = "stateUpdate"
	// TypeRefreshState asks the core to resend the snapshot, panel → core.
	TypeRefreshState MessageType = "refreshState"
	// Panel-originated commands, forwarded to the dispatch layer.
	TypeRunChat MessageType = "runChat"
	TypeCancel  MessageType = "cancel"
	TypeAccept  MessageType = "accept"
	TypeReject  MessageType = "reject"
)

// Envelope is the framing for every bridge message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChatCommand is the payload of a panel-originated runChat message.
type ChatCommand struct {
	Message string `json:"message"`
}

// AgentCommand is the payload of panel-originated cancel/accept/reject.
type AgentCommand struct {
	ID rpc.AgentID `json:"id"`
}

// Controller is the slice of the dispatch layer the panel may drive.
type Controller interface {
	Cancel(ctx context.Context, id rpc.AgentID) error
	Accept(ctx context.Context, id rpc.AgentID) error
	Reject(ctx context.Context, id rpc.AgentID) error
	Chat(ctx context.Context, message string) error
}

// Sender delivers an encoded envelope to the panel process.
type Sender func(data []byte) error

// Bridge serializes state snapshots out to the panel and dispatches the
// fixed inbound command set. It owns the chat transcript shown in the panel.
type Bridge struct {
	controller Controller
	registry   *agent.Registry
	send       Sender
	logger     *slog.Logger

	markdown bool

	mu        sync.Mutex
	connected bool
	chat      []ChatEntry
}

// NewBridge creates a Bridge. renderMarkdown controls whether chat entries
// carry goldmark-rendered HTML.
func NewBridge(controller Controller, registry *agent.Registry, send Sender, renderMarkdown bool, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		controller: controller,
		registry:   registry,
		send:       send,
		markdown:   renderMarkdown,
		logger:     logger.With("component", "panel"),
	}
}

// SetConnected records engine connectivity and pushes a fresh snapshot.
func (b *Bridge) SetConnected(connected bool) error {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
	return b.Push()
}

// AppendChat adds a transcript entry and pushes a fresh snapshot.
func (b *Bridge) AppendChat(role, content string) error {
	entry := NewChatEntry(role, content, b.markdown)
	b.mu.Lock()
	b.chat = append(b.chat, entry)
	b.mu.Unlock()
	return b.Push()
}

// Push serializes the current State and delivers it to the panel. Called on
// every relevant event; the panel replaces its copy wholesale.
func (b *Bridge) Push() error {
	b.mu.Lock()
	connected := b.connected
	chat := make([]ChatEntry, len(b.chat))
	copy(chat, b.chat)
	b.mu.Unlock()

	state := BuildState(connected, b.registry.Snapshot(), chat)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}
	envelope, err := json.Marshal(Envelope{Type: TypeStateUpdate, Data: data})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return b.send(envelope)
}

// HandleInbound decodes one panel-originated message and acts on it. Any
// type outside the fixed set is a protocol violation.
func (b *Bridge) HandleInbound(ctx context.Context, raw []byte) error {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: undecodable envelope: %s", ErrProtocolViolation, err)
	}

	switch envelope.Type {
	case TypeRefreshState:
		return b.Push()

	case TypeRunChat:
		var cmd ChatCommand
		if err := json.Unmarshal(envelope.Data, &cmd); err != nil {
			return fmt.Errorf("%w: bad runChat payload: %s", ErrProtocolViolation, err)
		}
		return b.controller.Chat(ctx, cmd.Message)

	case TypeCancel, TypeAccept, TypeReject:
		var cmd AgentCommand
		if err := json.Unmarshal(envelope.Data, &cmd); err != nil {
			return fmt.Errorf("%w: bad %s payload: %s", ErrProtocolViolation, envelope.Type, err)
		}
		return b.dispatchAgentCommand(ctx, envelope.Type, cmd.ID)

	default:
		b.logger.Error("unexpected panel message", "type", string(envelope.Type))
		return fmt.Errorf("%w: unexpected message type %q", ErrProtocolViolation, envelope.Type)
	}
}

func (b *Bridge) dispatchAgentCommand(ctx context.Context, t MessageType, id rpc.AgentID) error {
	switch t {
	case TypeCancel:
		return b.controller.Cancel(ctx, id)
	case TypeAccept:
		return b.controller.Accept(ctx, id)
	case TypeReject:
		return b.controller.Reject(ctx, id)
	default:
		return fmt.Errorf("%w: %q is not an agent command", ErrProtocolViolation, t)
	}
}
