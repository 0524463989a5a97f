// Package agent tracks the lifecycle of every engine agent the client has
// started.
//
// # Registry
//
// The Registry maps engine-assigned ids to Sessions and is the single
// source of truth for what agents exist:
//
//	reg := agent.NewRegistry(logger)
//	view, err := reg.Create(id, task, document, anchor)
//	err = reg.ApplyProgress(progress)
//
// There is no ambient singleton; the Registry is constructed once and passed
// by reference to every component that needs it. Entries are never deleted
// while the client runs — completed agents stay around so accept and reject
// can be replayed against them.
//
// # State Machine
//
//	running → {done, error} → {accepted, rejected}
//
// Transitions are driven exclusively by engine/progress notifications.
// accepted and rejected are terminal; a late notification after a terminal
// state is logged and otherwise ignored. A ranges field replaces the
// session's highlighted ranges wholesale; entering a terminal state clears
// them.
//
// # Change Events
//
// Every observable change publishes one Event on the Broadcaster. The
// presentation layer recomputes lens actions on these events, and the panel
// bridge pushes fresh state snapshots.
package agent
