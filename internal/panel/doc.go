// Package panel bridges core state to the UI panel process.
//
// Outbound: on every relevant event the Bridge serializes a full State
// snapshot into a {type: "stateUpdate", data: ...} envelope and hands it to
// the Sender. The panel replaces its local copy wholesale; there is no
// incremental patching.
//
// Inbound: the panel may request a resend ({type: "refreshState"}) or issue
// the fixed command set (runChat, cancel, accept, reject). Anything else is
// ErrProtocolViolation — both sides fail loudly on unknown message types.
//
// The panel's rendering itself lives outside this module; this package only
// defines the wire contract and the snapshot projection.
package panel
