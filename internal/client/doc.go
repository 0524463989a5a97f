// Package client is the typed dispatch layer between editor actions and the
// Skiff engine's RPC surface.
//
// Outbound, one method per engine operation:
//
//   - RunAgent / RunAgentSync / Restart: requests that register agent
//     sessions in the registry
//   - RunChat: request acknowledged immediately; the reply streams through
//     the single active ChatHandler
//   - Cancel / Accept / Reject: fire-and-forget notifications; local state
//     changes only when the engine's terminal progress notification arrives
//   - ListAgents / ConfigChanged: plain requests
//
// Inbound, Client.Handle implements rpc.Handler and routes:
//
//   - engine/progress → Registry.ApplyProgress (unknown ids are routing
//     errors and propagate back to the engine)
//   - engine/chatProgress → the registered ChatHandler (an empty slot is an
//     error, not a silent drop)
//   - window/logMessage → slog at the mapped level
//
// Requests made without a live connection fail fast with
// rpc.ErrNotConnected; nothing queues behind a reconnect.
package client
