// ABOUTME: Wire contract for the Skiff engine: method names and JSON payload shapes.
// ABOUTME: Positions, ranges and document identifiers use LSP protocol types.

package rpc

import (
	"go.lsp.dev/protocol"
)

// Default endpoint for a locally running engine. The engine binds the TCP
// loopback interface; the port can be overridden in configuration.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 7797
)

// Outbound request and notification methods (client → engine).
const (
	MethodRunAgent      = "engine/runAgent"
	MethodRunAgentSync  = "engine/runAgentSync"
	MethodRunChat       = "engine/runChat"
	MethodRestartAgent  = "engine/restartAgent"
	MethodCancel        = "engine/cancel"
	MethodAccept        = "engine/accept"
	MethodReject        = "engine/reject"
	MethodListAgents    = "engine/listAgents"
	MethodConfigChanged = "engine/configChanged"
)

// Inbound notification methods (engine → client).
const (
	MethodProgress     = "engine/progress"
	MethodChatProgress = "engine/chatProgress"
	MethodLogMessage   = "window/logMessage"
)

// AgentID identifies one engine-tracked agent. Assigned by the engine,
// unique for the lifetime of the engine process, opaque to the client.
type AgentID int64

// RunAgentParams starts an agent on a task anchored at a document position.
type RunAgentParams struct {
	Task         string                          `json:"task"`
	Position     protocol.Position               `json:"position"`
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
}

// RunAgentResult is the engine's reply to engine/runAgent.
type RunAgentResult struct {
	ID AgentID `json:"id"`
}

// RunAgentSyncResult is the engine's reply to engine/runAgentSync: the agent
// ran to completion and the final text is returned in the response instead of
// streaming through progress notifications.
type RunAgentSyncResult struct {
	ID   AgentID `json:"id"`
	Text string  `json:"text"`
}

// ChatMessage is one prior turn in a chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunChatParams starts a chat turn. Position and document are optional
// context for code-aware answers.
type RunChatParams struct {
	Message      string                           `json:"message"`
	Messages     []ChatMessage                    `json:"messages"`
	Position     *protocol.Position               `json:"position,omitempty"`
	TextDocument *protocol.TextDocumentIdentifier `json:"textDocument,omitempty"`
}

// RunChatResult acknowledges a chat turn. The reply content streams
// afterwards via engine/chatProgress notifications carrying the same id.
type RunChatResult struct {
	ID AgentID `json:"id"`
}

// AgentIDParams addresses a single agent, used by cancel/accept/reject/restart.
type AgentIDParams struct {
	ID AgentID `json:"id"`
}

// RestartAgentResult is the engine's reply to engine/restartAgent.
type RestartAgentResult struct {
	ID AgentID `json:"id"`
}

// AgentSummary is one entry in the engine/listAgents result.
type AgentSummary struct {
	ID           AgentID                         `json:"id"`
	Status       string                          `json:"status"`
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Position     protocol.Position               `json:"position"`
}

// LogEntry is an engine-side log line attached to a progress notification.
type LogEntry struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// AgentProgress is the engine/progress notification payload. Status and
// Ranges are optional; when Ranges is present it replaces the agent's
// highlighted ranges wholesale, it is never merged.
type AgentProgress struct {
	ID           AgentID                         `json:"id"`
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Status       string                          `json:"status,omitempty"`
	Ranges       *[]protocol.Range               `json:"ranges,omitempty"`
	Log          *LogEntry                       `json:"log,omitempty"`
}

// ChatProgress is the engine/chatProgress notification payload. Response
// carries the accumulated reply so far; Done marks the final notification
// for this chat turn.
type ChatProgress struct {
	ID       AgentID `json:"id"`
	Response string  `json:"response"`
	Done     bool    `json:"done"`
}

// LogMessageParams is the window/logMessage notification payload, forwarding
// engine-side log records. Type follows the LSP MessageType numbering
// (1=error, 2=warning, 3=info, 4=log).
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}
