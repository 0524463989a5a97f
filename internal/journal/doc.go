// Package journal persists every progress and chat notification to a local
// SQLite database. The journal is additive and off the hot path: the client
// never reads it while handling notifications, it exists for later
// inspection and per-agent replay.
package journal
