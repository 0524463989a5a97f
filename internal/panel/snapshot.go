// ABOUTME: UI state snapshot — serializable projection of agents and chat for the panel.
// ABOUTME: Built fresh on every relevant event; chat markdown is rendered to HTML with goldmark.

package panel

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// State is the full snapshot delivered to the panel. It is a value type:
// produced fresh each time, replaced wholesale on the panel side, never
// patched incrementally.
type State struct {
	Connected bool         `json:"connected"`
	Agents    []AgentState `json:"agents"`
	Chat      []ChatEntry  `json:"chat"`
}

// AgentState is the panel-facing view of one agent session.
type AgentState struct {
	ID       rpc.AgentID `json:"id"`
	Task     string      `json:"task"`
	Document string      `json:"document"`
	Line     uint32      `json:"line"`
	Status   string      `json:"status"`
	Ranges   int         `json:"ranges"`
}

// ChatEntry is one rendered chat transcript line.
type ChatEntry struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// BuildState projects registry views and a chat transcript into a State.
func BuildState(connected bool, views []agent.View, chat []ChatEntry) State {
	agents := make([]AgentState, len(views))
	for i, v := range views {
		agents[i] = AgentState{
			ID:       v.ID,
			Task:     v.Task,
			Document: string(v.Document.URI),
			Line:     v.Anchor.Line,
			Status:   string(v.Status),
			Ranges:   len(v.Ranges),
		}
	}
	entries := make([]ChatEntry, len(chat))
	copy(entries, chat)
	return State{Connected: connected, Agents: agents, Chat: entries}
}

// NewChatEntry builds a transcript entry, rendering markdown to HTML when
// requested. Render failures fall back to the raw content.
func NewChatEntry(role, content string, renderMarkdown bool) ChatEntry {
	entry := ChatEntry{
		ID:      uuid.New().String(),
		Role:    role,
		Content: content,
	}
	if renderMarkdown {
		html, err := RenderMarkdown(content)
		if err == nil {
			entry.HTML = html
		}
	}
	return entry
}

// RenderMarkdown converts markdown to HTML for the panel's webview.
func RenderMarkdown(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}
