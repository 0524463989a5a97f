// ABOUTME: CLI command implementations — run/chat/agents/cancel/accept/reject/restart.
// ABOUTME: Streams agent progress and chat replies to the terminal with color output.

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// runAgent starts an agent on a task. In streaming mode it follows registry
// change events until the agent completes; in sync mode it prints the final
// text the engine returned.
func runAgent(ctx context.Context, args []string, sync bool) error {
	fs, doc, line := parseDocFlags(args)
	if *doc == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: skiff run -doc FILE [-line N] TASK")
	}
	task := strings.Join(fs.Args(), " ")

	absPath, err := filepath.Abs(*doc)
	if err != nil {
		return fmt.Errorf("resolving document path: %w", err)
	}
	document := protocol.TextDocumentIdentifier{URI: uri.File(absPath)}
	position := protocol.Position{Line: uint32(*line)}

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	if sync {
		id, text, err := app.client.RunAgentSync(ctx, task, position, document)
		if err != nil {
			return err
		}
		fmt.Printf("%s agent %d finished\n", color.GreenString("✓"), int64(id))
		fmt.Println(text)
		return nil
	}

	// Subscribe before starting the agent so the first progress event is
	// never missed.
	events, _ := app.client.Registry().Subscribe(ctx)

	id, err := app.client.RunAgent(ctx, task, position, document)
	if err != nil {
		return err
	}
	fmt.Printf("agent %s started on %s\n", color.CyanString(strconv.FormatInt(int64(id), 10)), *doc)

	printedLogs := 0
	for {
		select {
		case <-ctx.Done():
			// Advisory cancel; the engine reflects it in a later status.
			app.client.Cancel(context.Background(), id)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if ev.AgentID != id {
				continue
			}
			printedLogs = printAgentEvent(app, ev, printedLogs)
			if ev.Status.Completed() || ev.Status.Terminal() {
				return nil
			}
		}
	}
}

// printAgentEvent reports one change event, printing only the log entries
// that arrived since the previous event. Returns the new printed count.
func printAgentEvent(app *app, ev agent.Event, printedLogs int) int {
	view, ok := app.client.Registry().Get(ev.AgentID)
	if !ok {
		return printedLogs
	}
	for _, entry := range view.Logs[min(printedLogs, len(view.Logs)):] {
		fmt.Printf("  %s %s\n", color.HiBlackString("["+entry.Severity+"]"), entry.Message)
	}
	switch {
	case ev.Status == agent.StatusError:
		fmt.Printf("%s agent %d failed\n", color.RedString("✗"), int64(ev.AgentID))
	case ev.Status.Completed():
		fmt.Printf("%s agent %d done, %d highlighted range(s)\n",
			color.GreenString("✓"), int64(ev.AgentID), len(view.Ranges))
	}
	return len(view.Logs)
}

// runChat sends one chat turn and streams the reply to stdout.
func runChat(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: skiff chat MESSAGE")
	}
	message := strings.Join(args, " ")

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	done := make(chan struct{})
	var lastLen int
	_, err = app.client.RunChat(ctx, message, nil, nil, nil, func(p rpc.ChatProgress) {
		// Response carries the accumulated reply; print only the delta.
		if len(p.Response) > lastLen {
			fmt.Print(p.Response[lastLen:])
			lastLen = len(p.Response)
		}
		if p.Done {
			fmt.Println()
			close(done)
		}
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// runAgents lists the engine's agents.
func runAgents(ctx context.Context) error {
	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	summaries, err := app.client.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("no agents")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%6d  %-9s %s:%d\n",
			int64(s.ID), s.Status, string(s.TextDocument.URI), s.Position.Line)
	}
	return nil
}

// runCommand handles cancel/accept/reject/restart, which all address one
// agent by id.
func runCommand(ctx context.Context, command string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: skiff %s ID", command)
	}
	rawID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid agent id %q", args[0])
	}
	id := rpc.AgentID(rawID)

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	// The CLI process has a fresh registry; seed it from the engine so the
	// command's known-agent check reflects engine state.
	if err := seedRegistry(ctx, app); err != nil {
		return err
	}

	switch command {
	case "cancel":
		err = app.client.Cancel(ctx, id)
	case "accept":
		err = app.client.Accept(ctx, id)
	case "reject":
		err = app.client.Reject(ctx, id)
	case "restart":
		var newID rpc.AgentID
		newID, err = app.client.Restart(ctx, id)
		if err == nil {
			fmt.Printf("agent %d restarted as %d\n", int64(id), int64(newID))
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s sent to agent %d\n", command, int64(id))
	return nil
}

// seedRegistry mirrors the engine's agent list into the local registry.
func seedRegistry(ctx context.Context, app *app) error {
	summaries, err := app.client.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		if _, err := app.client.Registry().Create(s.ID, "", s.TextDocument, s.Position); err != nil {
			return err
		}
		status, err := agent.ParseStatus(s.Status)
		if err != nil {
			return fmt.Errorf("agent %d: %w", int64(s.ID), err)
		}
		// Walk the fresh entry through the state machine to the reported
		// status. Terminal states pass through done first.
		steps := []agent.Status{}
		if status.Completed() {
			steps = append(steps, status)
		} else if status.Terminal() {
			steps = append(steps, agent.StatusDone, status)
		}
		for _, step := range steps {
			progress := rpc.AgentProgress{ID: s.ID, TextDocument: s.TextDocument, Status: string(step)}
			if err := app.client.Registry().ApplyProgress(progress); err != nil {
				return err
			}
		}
	}
	return nil
}
