// ABOUTME: RunAgent / RunAgentSync / Restart — request wrappers that create registry entries.
// ABOUTME: Each returned id registers a running session anchored at the given position.

package client

import (
	"context"
	"fmt"

	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// RunAgent asks the engine to start an agent on task, anchored at position
// in document. On success the registry gains a new running session; its
// progress streams in through engine/progress notifications.
func (c *Client) RunAgent(ctx context.Context, task string, position protocol.Position, document protocol.TextDocumentIdentifier) (rpc.AgentID, error) {
	sess, err := c.transport.Current()
	if err != nil {
		return 0, err
	}

	params := rpc.RunAgentParams{Task: task, Position: position, TextDocument: document}
	var result rpc.RunAgentResult
	if err := sess.Request(ctx, rpc.MethodRunAgent, params, &result); err != nil {
		return 0, err
	}

	if _, err := c.registry.Create(result.ID, task, document, position); err != nil {
		return 0, fmt.Errorf("registering agent: %w", err)
	}
	c.logger.Info("agent started", "agent_id", int64(result.ID), "task", task)
	return result.ID, nil
}

// RunAgentSync runs an agent and suspends the caller until the engine
// returns the final text in the response itself. A registry entry is still
// created for bookkeeping (later accept/reject); no change-signal
// subscription is wired here since nothing streams.
func (c *Client) RunAgentSync(ctx context.Context, task string, position protocol.Position, document protocol.TextDocumentIdentifier) (rpc.AgentID, string, error) {
	sess, err := c.transport.Current()
	if err != nil {
		return 0, "", err
	}

	params := rpc.RunAgentParams{Task: task, Position: position, TextDocument: document}
	var result rpc.RunAgentSyncResult
	if err := sess.Request(ctx, rpc.MethodRunAgentSync, params, &result); err != nil {
		return 0, "", err
	}

	if _, err := c.registry.Create(result.ID, task, document, position); err != nil {
		return 0, "", fmt.Errorf("registering agent: %w", err)
	}
	c.logger.Info("agent ran synchronously", "agent_id", int64(result.ID), "task", task)
	return result.ID, result.Text, nil
}

// Restart re-runs a finished or failed agent with its original parameters.
// The engine usually answers with the same id and drives the session back
// to running through a progress notification; if it hands out a fresh id, a
// new entry is registered carrying over the original task and anchor.
func (c *Client) Restart(ctx context.Context, id rpc.AgentID) (rpc.AgentID, error) {
	prior, ok := c.registry.Get(id)
	if !ok {
		return 0, fmt.Errorf("restart: %w: %d", agent.ErrUnknownAgent, id)
	}

	sess, err := c.transport.Current()
	if err != nil {
		return 0, err
	}

	var result rpc.RestartAgentResult
	if err := sess.Request(ctx, rpc.MethodRestartAgent, rpc.AgentIDParams{ID: id}, &result); err != nil {
		return 0, err
	}

	if result.ID != id {
		if _, err := c.registry.Create(result.ID, prior.Task, prior.Document, prior.Anchor); err != nil {
			return 0, fmt.Errorf("registering restarted agent: %w", err)
		}
	}
	c.logger.Info("agent restarted", "agent_id", int64(id), "new_id", int64(result.ID))
	return result.ID, nil
}
