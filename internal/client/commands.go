// ABOUTME: Fire-and-forget agent commands (cancel/accept/reject) and the remaining requests.
// ABOUTME: Commands mutate no local state — the terminal progress notification does that.

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// Cancel asks the engine to stop an agent. Advisory only: nothing is
// aborted locally; the cancellation shows up as a later status change.
func (c *Client) Cancel(ctx context.Context, id rpc.AgentID) error {
	return c.command(ctx, rpc.MethodCancel, id)
}

// Accept approves a completed agent's changes. The local transition to
// accepted happens when the engine's terminal progress notification lands.
func (c *Client) Accept(ctx context.Context, id rpc.AgentID) error {
	return c.command(ctx, rpc.MethodAccept, id)
}

// Reject discards a completed agent's changes. See Accept for the state
// transition path.
func (c *Client) Reject(ctx context.Context, id rpc.AgentID) error {
	return c.command(ctx, rpc.MethodReject, id)
}

func (c *Client) command(ctx context.Context, method string, id rpc.AgentID) error {
	if _, ok := c.registry.Get(id); !ok {
		return fmt.Errorf("%s: %w: %d", method, agent.ErrUnknownAgent, id)
	}
	sess, err := c.transport.Current()
	if err != nil {
		return err
	}
	if err := sess.Notify(ctx, method, rpc.AgentIDParams{ID: id}); err != nil {
		return err
	}
	c.logger.Debug("command sent", "method", method, "agent_id", int64(id))
	return nil
}

// ListAgents fetches the engine's view of all agents. Read-only; fails with
// rpc.ErrNotConnected when no connection exists.
func (c *Client) ListAgents(ctx context.Context) ([]rpc.AgentSummary, error) {
	sess, err := c.transport.Current()
	if err != nil {
		return nil, err
	}
	var result []rpc.AgentSummary
	if err := sess.Request(ctx, rpc.MethodListAgents, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ConfigChanged forwards an opaque configuration blob to the engine. Fired
// on editor configuration-change events.
func (c *Client) ConfigChanged(ctx context.Context, config json.RawMessage) error {
	sess, err := c.transport.Current()
	if err != nil {
		return err
	}
	var ack struct{}
	if err := sess.Request(ctx, rpc.MethodConfigChanged, config, &ack); err != nil {
		return err
	}
	c.logger.Debug("configuration forwarded to engine")
	return nil
}
