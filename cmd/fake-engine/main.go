// ABOUTME: Minimal fake engine for E2E testing — listens on TCP, speaks the wire protocol.
// ABOUTME: Usage: fake-engine [-addr 127.0.0.1:7797] [-delay 50ms]

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/rpc"
)

func main() {
	addr := flag.String("addr", fmt.Sprintf("%s:%d", rpc.DefaultHost, rpc.DefaultPort), "listen address")
	delay := flag.Duration("delay", 50*time.Millisecond, "pause between streamed notifications")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *addr, *delay); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, addr string, delay time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	fmt.Fprintf(os.Stderr, "fake-engine listening on %s\n", addr)

	eng := &engine{delay: delay, agents: make(map[rpc.AgentID]*fakeAgent)}
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		conn := jsonrpc2.NewConn(jsonrpc2.NewStream(netConn))
		conn.Go(ctx, eng.handler(conn))
		go func() {
			<-conn.Done()
			log.Printf("client disconnected: %v", conn.Err())
		}()
	}
}

// engine holds the fake agent table shared across client connections.
type engine struct {
	mu     sync.Mutex
	nextID rpc.AgentID
	agents map[rpc.AgentID]*fakeAgent
	delay  time.Duration
}

type fakeAgent struct {
	task     string
	document protocol.TextDocumentIdentifier
	position protocol.Position
	status   string
}

func (e *engine) allocate(task string, document protocol.TextDocumentIdentifier, position protocol.Position) rpc.AgentID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.agents[id] = &fakeAgent{task: task, document: document, position: position, status: "running"}
	return id
}

func (e *engine) setStatus(id rpc.AgentID, status string) (*fakeAgent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.agents[id]
	if !ok {
		return nil, false
	}
	a.status = status
	return a, true
}

func (e *engine) handler(conn jsonrpc2.Conn) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		log.Printf("received %s", req.Method())

		switch req.Method() {
		case rpc.MethodRunAgent:
			var params rpc.RunAgentParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err))
			}
			id := e.allocate(params.Task, params.TextDocument, params.Position)
			if err := reply(ctx, rpc.RunAgentResult{ID: id}, nil); err != nil {
				return err
			}
			go e.streamAgent(ctx, conn, id, params)
			return nil

		case rpc.MethodRunAgentSync:
			var params rpc.RunAgentParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err))
			}
			id := e.allocate(params.Task, params.TextDocument, params.Position)
			e.setStatus(id, "done")
			text := fmt.Sprintf("Completed task: **%s**", params.Task)
			return reply(ctx, rpc.RunAgentSyncResult{ID: id, Text: text}, nil)

		case rpc.MethodRunChat:
			var params rpc.RunChatParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err))
			}
			var document protocol.TextDocumentIdentifier
			var position protocol.Position
			if params.TextDocument != nil {
				document = *params.TextDocument
			}
			if params.Position != nil {
				position = *params.Position
			}
			id := e.allocate("chat", document, position)
			if err := reply(ctx, rpc.RunChatResult{ID: id}, nil); err != nil {
				return err
			}
			go e.streamChat(ctx, conn, id, params.Message)
			return nil

		case rpc.MethodRestartAgent:
			var params rpc.AgentIDParams
			if err := json.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err))
			}
			// Restart reuses the id: the agent goes back to running and
			// streams a fresh progress sequence.
			prior, ok := e.setStatus(params.ID, "running")
			if !ok {
				return reply(ctx, nil, fmt.Errorf("unknown agent %d", int64(params.ID)))
			}
			if err := reply(ctx, rpc.RestartAgentResult{ID: params.ID}, nil); err != nil {
				return err
			}
			go func() {
				if err := conn.Notify(ctx, rpc.MethodProgress, rpc.AgentProgress{
					ID: params.ID, TextDocument: prior.document, Status: "running",
				}); err != nil {
					log.Printf("notify progress: %v", err)
					return
				}
				e.streamAgent(ctx, conn, params.ID, rpc.RunAgentParams{
					Task: prior.task, TextDocument: prior.document, Position: prior.position,
				})
			}()
			return nil

		case rpc.MethodCancel:
			return e.finishAgent(ctx, conn, reply, req.Params(), "error")

		case rpc.MethodAccept:
			return e.finishAgent(ctx, conn, reply, req.Params(), "accepted")

		case rpc.MethodReject:
			return e.finishAgent(ctx, conn, reply, req.Params(), "rejected")

		case rpc.MethodListAgents:
			e.mu.Lock()
			summaries := make([]rpc.AgentSummary, 0, len(e.agents))
			for id, a := range e.agents {
				summaries = append(summaries, rpc.AgentSummary{
					ID: id, Status: a.status, TextDocument: a.document, Position: a.position,
				})
			}
			e.mu.Unlock()
			return reply(ctx, summaries, nil)

		case rpc.MethodConfigChanged:
			log.Printf("config changed: %s", string(req.Params()))
			return reply(ctx, struct{}{}, nil)

		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}

// finishAgent moves one agent to a final status and notifies the client.
// Cancel/accept/reject arrive as notifications, so reply is a no-op for them.
func (e *engine) finishAgent(ctx context.Context, conn jsonrpc2.Conn, reply jsonrpc2.Replier, raw json.RawMessage, status string) error {
	var params rpc.AgentIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return reply(ctx, nil, fmt.Errorf("%w: %v", jsonrpc2.ErrParse, err))
	}
	a, ok := e.setStatus(params.ID, status)
	if !ok {
		return reply(ctx, nil, fmt.Errorf("unknown agent %d", int64(params.ID)))
	}
	if err := conn.Notify(ctx, rpc.MethodProgress, rpc.AgentProgress{
		ID: params.ID, TextDocument: a.document, Status: status,
	}); err != nil {
		log.Printf("notify progress: %v", err)
	}
	return reply(ctx, struct{}{}, nil)
}

// streamAgent emits the canonical progress sequence for a started agent:
// a log line, a ranges update, then the done status.
func (e *engine) streamAgent(ctx context.Context, conn jsonrpc2.Conn, id rpc.AgentID, params rpc.RunAgentParams) {
	notify := func(p rpc.AgentProgress) bool {
		if err := conn.Notify(ctx, rpc.MethodProgress, p); err != nil {
			log.Printf("notify progress: %v", err)
			return false
		}
		return true
	}

	time.Sleep(e.delay)
	if !notify(rpc.AgentProgress{
		ID:           id,
		TextDocument: params.TextDocument,
		Log:          &rpc.LogEntry{Severity: "info", Message: "analyzing " + params.Task},
	}) {
		return
	}

	time.Sleep(e.delay)
	ranges := []protocol.Range{{
		Start: protocol.Position{Line: params.Position.Line},
		End:   protocol.Position{Line: params.Position.Line + 3},
	}}
	if !notify(rpc.AgentProgress{ID: id, TextDocument: params.TextDocument, Ranges: &ranges}) {
		return
	}

	time.Sleep(e.delay)
	if _, ok := e.setStatus(id, "done"); !ok {
		return
	}
	notify(rpc.AgentProgress{ID: id, TextDocument: params.TextDocument, Status: "done", Ranges: &ranges})
}

// streamChat emits an accumulating echo reply word by word, then the done
// notification carrying the full text.
func (e *engine) streamChat(ctx context.Context, conn jsonrpc2.Conn, id rpc.AgentID, message string) {
	reply := chatReply(message)
	words := strings.SplitAfter(reply, " ")

	var accumulated strings.Builder
	for _, w := range words {
		accumulated.WriteString(w)
		time.Sleep(e.delay)
		if err := conn.Notify(ctx, rpc.MethodChatProgress, rpc.ChatProgress{
			ID: id, Response: accumulated.String(),
		}); err != nil {
			log.Printf("notify chatProgress: %v", err)
			return
		}
	}

	e.setStatus(id, "done")
	if err := conn.Notify(ctx, rpc.MethodChatProgress, rpc.ChatProgress{
		ID: id, Response: reply, Done: true,
	}); err != nil {
		log.Printf("notify chatProgress: %v", err)
	}
}

func chatReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
