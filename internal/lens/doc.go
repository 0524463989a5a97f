// Package lens computes the per-line editor actions for agents anchored in a
// document. It is a pure projection of a registry snapshot: running agents
// offer cancel, completed agents offer accept and reject, terminal agents
// disappear from the lens set.
package lens
