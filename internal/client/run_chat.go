// ABOUTME: RunChat — chat turn request plus the single active chat handler slot.
// ABOUTME: The handler is attached before the request is issued to close the arrival race.

package client

import (
	"context"
	"sync"

	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/rpc"
)

// chatSlot holds the one active chat handler. Only one chat stream is
// supported at a time; starting a new chat replaces the previous handler.
// Each set bumps a generation counter so a failed request can undo only its
// own installation, never a handler a later call installed.
type chatSlot struct {
	mu  sync.Mutex
	fn  ChatHandler
	gen uint64
}

func newChatSlot() *chatSlot {
	return &chatSlot{}
}

func (s *chatSlot) set(fn ChatHandler) (replaced bool, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced = s.fn != nil
	s.fn = fn
	s.gen++
	return replaced, s.gen
}

func (s *chatSlot) handler() ChatHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn
}

// clearIf empties the slot only when the given token still owns it.
func (s *chatSlot) clearIf(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == token {
		s.fn = nil
	}
}

func (s *chatSlot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = nil
}

// RunChat starts a chat turn. The engine acknowledges with a chat id and
// streams the reply through engine/chatProgress notifications delivered to
// fn until one arrives with Done set.
//
// fn is registered before the request goes out, so progress arriving ahead
// of the acknowledgement still finds its handler. A second RunChat while
// one is streaming replaces the previous handler; the replaced stream's
// remaining progress goes to the new handler.
func (c *Client) RunChat(ctx context.Context, message string, history []rpc.ChatMessage, position *protocol.Position, document *protocol.TextDocumentIdentifier, fn ChatHandler) (rpc.AgentID, error) {
	sess, err := c.transport.Current()
	if err != nil {
		return 0, err
	}

	replaced, token := c.chat.set(fn)
	if replaced {
		c.logger.Warn("replacing active chat handler")
	}

	params := rpc.RunChatParams{
		Message:      message,
		Messages:     history,
		Position:     position,
		TextDocument: document,
	}
	var result rpc.RunChatResult
	if err := sess.Request(ctx, rpc.MethodRunChat, params, &result); err != nil {
		c.chat.clearIf(token)
		return 0, err
	}

	c.logger.Debug("chat started", "chat_id", int64(result.ID))
	return result.ID, nil
}
