// Package rpc owns the transport layer between the editor client and the
// Skiff engine.
//
// # Wire Contract
//
// The engine speaks JSON-RPC 2.0 with LSP-style Content-Length framing over
// TCP loopback (default port 7797). wire.go defines every method name and
// payload shape; positions and ranges use go.lsp.dev/protocol types.
//
// # Session
//
// A Session wraps one live connection:
//
//	sess, err := rpc.Dial(ctx, "127.0.0.1:7797", handler, logger)
//	err = sess.Request(ctx, rpc.MethodRunAgent, params, &result)
//	err = sess.Notify(ctx, rpc.MethodCancel, rpc.AgentIDParams{ID: id})
//
// State moves Starting → Running → Stopped, never backwards. Inbound
// notifications are dispatched to the Handler synchronously in arrival
// order, so registry mutations triggered by consecutive notifications never
// interleave.
//
// # Supervisor
//
// The Supervisor is the sole owner of the current Session. It polls the
// Locator until the engine listens, dials, and on connection loss disposes
// the dead Session fully before building the next one:
//
//	sup := rpc.NewSupervisor(rpc.NewLocator(endpoint), interval, logger)
//	sup.SetHandler(client.Handle)
//	go sup.Run(ctx)
//	sess, err := sup.EnsureConnected(ctx)
//
// Connection errors are recovered here and never bubble past Run; callers
// that need a connection right now use Current and receive ErrNotConnected
// when there is none.
package rpc
