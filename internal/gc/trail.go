package gc

import (
	"fmt"
	"strings"
)

// Action classifies a trail entry.
type Action string

const (
	ActionHeader  Action = "HEADER"
	ActionDropped Action = "DROPPED"
	ActionMissing Action = "NOT_EXISTS"
	ActionPruned  Action = "PRUNED"
	ActionFailed  Action = "ERROR"
)

// Entry is one line of the execution trail.
type Entry struct {
	Action  Action
	Path    string // filesystem URI for ActionHeader
	Message string // set for ActionFailed
}

func (e Entry) String() string {
	switch e.Action {
	case ActionHeader:
		return fmt.Sprintf("Drop path on filesystem: %q", e.Path)
	case ActionDropped:
		return fmt.Sprintf("path %s is dropped.", e.Path)
	case ActionMissing:
		return fmt.Sprintf("path %s not exists.", e.Path)
	case ActionPruned:
		return fmt.Sprintf("path %s is empty and dropped.", e.Path)
	default:
		return e.Message
	}
}

// Trail is the ordered, append-only record of a run. Append never mutates
// the receiver, so a trail handed out stays frozen.
type Trail []Entry

// Append returns a new trail ending with e.
func (t Trail) Append(e Entry) Trail {
	out := make(Trail, len(t), len(t)+1)
	copy(out, t)
	return append(out, e)
}

// Count returns the number of entries with action a.
func (t Trail) Count(a Action) int {
	n := 0
	for _, e := range t {
		if e.Action == a {
			n++
		}
	}
	return n
}

// String renders one line per entry, each terminated by a newline.
func (t Trail) String() string {
	var b strings.Builder
	for _, e := range t {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
