// ABOUTME: Presentation adapter — computes per-line lens actions from a registry snapshot.
// ABOUTME: Pure given the snapshot; recomputed on every registry change event.

package lens

import (
	"sort"

	"go.lsp.dev/protocol"

	"github.com/skiffworks/skiff/internal/agent"
	"github.com/skiffworks/skiff/internal/rpc"
)

// Action is one editor-invokable command attached to an agent's anchor line.
type Action string

const (
	ActionCancel Action = "cancel"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Lens is the action set for one agent, anchored at a line in a document.
type Lens struct {
	AgentID rpc.AgentID
	Line    uint32
	Actions []Action
}

// ForDocument computes the lenses for one open document from a registry
// snapshot. Running agents offer cancel; completed ones offer accept and
// reject; terminal ones offer nothing and produce no lens. The function
// holds no state between calls.
func ForDocument(views []agent.View, document protocol.TextDocumentIdentifier) []Lens {
	var lenses []Lens
	for _, v := range views {
		if v.Document.URI != document.URI {
			continue
		}
		actions := actionsFor(v.Status)
		if len(actions) == 0 {
			continue
		}
		lenses = append(lenses, Lens{
			AgentID: v.ID,
			Line:    v.Anchor.Line,
			Actions: actions,
		})
	}

	sort.Slice(lenses, func(i, j int) bool {
		if lenses[i].Line != lenses[j].Line {
			return lenses[i].Line < lenses[j].Line
		}
		return lenses[i].AgentID < lenses[j].AgentID
	})
	return lenses
}

func actionsFor(status agent.Status) []Action {
	switch {
	case status == agent.StatusRunning:
		return []Action{ActionCancel}
	case status.Completed():
		return []Action{ActionAccept, ActionReject}
	default:
		return nil
	}
}
