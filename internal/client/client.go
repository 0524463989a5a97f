// ABOUTME: Client is the typed RPC dispatch layer between editor actions and the engine.
// ABOUTME: Routes inbound progress notifications into the registry and the chat handler slot.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.lsp.dev/jsonrpc2"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// ErrNoChatHandler indicates a chat progress notification arrived with no
// registered chat handler. Surfaced as an error, not swallowed: the handler
// is attached before the runChat request is issued, so this means the engine
// and client disagree about an active chat.
var ErrNoChatHandler = errors.New("chat progress with no registered handler")

// Transport supplies the current engine Session. Implemented by
// rpc.Supervisor.
type Transport interface {
	Current() (*rpc.Session, error)
	EnsureConnected(ctx context.Context) (*rpc.Session, error)
}

// Journal persists progress events for later inspection. Optional; a nil
// Journal disables persistence.
type Journal interface {
	RecordProgress(ctx context.Context, p rpc.AgentProgress) error
	RecordChat(ctx context.Context, p rpc.ChatProgress) error
}

// ChatHandler receives streamed chat progress for the active chat turn.
type ChatHandler func(p rpc.ChatProgress)

// Client exposes one typed method per engine operation and owns the inbound
// notification routing. All state lives in the Registry and the single chat
// handler slot.
type Client struct {
	transport Transport
	registry  *agent.Registry
	journal   Journal
	logger    *slog.Logger

	chat *chatSlot
}

// New creates a Client. journal may be nil.
func New(transport Transport, registry *agent.Registry, journal Journal, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		registry:  registry,
		journal:   journal,
		logger:    logger.With("component", "client"),
		chat:      newChatSlot(),
	}
}

// Registry returns the agent registry this client feeds.
func (c *Client) Registry() *agent.Registry {
	return c.registry
}

// Handle implements rpc.Handler: it receives every engine-originated
// notification and routes it by method. Wire it into the supervisor with
// SetHandler before Run.
func (c *Client) Handle(ctx context.Context, method string, params []byte) error {
	switch method {
	case rpc.MethodProgress:
		var p rpc.AgentProgress
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("decoding %s: %w", method, err)
		}
		return c.handleProgress(ctx, p)

	case rpc.MethodChatProgress:
		var p rpc.ChatProgress
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("decoding %s: %w", method, err)
		}
		return c.handleChatProgress(ctx, p)

	case rpc.MethodLogMessage:
		var p rpc.LogMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("decoding %s: %w", method, err)
		}
		c.logEngineMessage(p)
		return nil

	default:
		return jsonrpc2.ErrMethodNotFound
	}
}

// handleProgress journals the event and folds it into the registry. A
// routing error (unknown id) propagates to the engine: it indicates a
// desync and must not be silently dropped.
func (c *Client) handleProgress(ctx context.Context, p rpc.AgentProgress) error {
	if c.journal != nil {
		if err := c.journal.RecordProgress(ctx, p); err != nil {
			c.logger.Error("journaling progress failed",
				"agent_id", int64(p.ID),
				"error", err,
			)
		}
	}

	if err := c.registry.ApplyProgress(p); err != nil {
		c.logger.Error("progress routing failed",
			"agent_id", int64(p.ID),
			"status", p.Status,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Client) handleChatProgress(ctx context.Context, p rpc.ChatProgress) error {
	if c.journal != nil {
		if err := c.journal.RecordChat(ctx, p); err != nil {
			c.logger.Error("journaling chat progress failed",
				"chat_id", int64(p.ID),
				"error", err,
			)
		}
	}

	fn := c.chat.handler()
	if fn == nil {
		c.logger.Error("chat progress with no handler", "chat_id", int64(p.ID))
		return fmt.Errorf("%w: chat id %d", ErrNoChatHandler, p.ID)
	}
	fn(p)
	if p.Done {
		c.chat.clear()
	}
	return nil
}

// logEngineMessage maps LSP MessageType numbering onto slog levels.
func (c *Client) logEngineMessage(p rpc.LogMessageParams) {
	log := c.logger.With("source", "engine")
	switch p.Type {
	case 1:
		log.Error(p.Message)
	case 2:
		log.Warn(p.Message)
	case 3:
		log.Info(p.Message)
	default:
		log.Debug(p.Message)
	}
}
