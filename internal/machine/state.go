package machine

import "fmt"

type StateKind int

const (
	// StateAwaiting accepts plan/create/select/discard/commit commands.
	StateAwaiting StateKind = iota
	// StateEditing scopes field-level commands to the selected target.
	StateEditing
	// StateCompleted is terminal; no command leaves it.
	StateCompleted
)

// State is the machine state sum type. Editing carries the selected target
// and is meaningful only when Kind == StateEditing.
type State struct {
	Kind    StateKind
	Editing Target
}

func awaiting() State          { return State{Kind: StateAwaiting} }
func editing(t Target) State   { return State{Kind: StateEditing, Editing: t} }
func completed() State         { return State{Kind: StateCompleted} }
func (s State) Terminal() bool { return s.Kind == StateCompleted }

// Serialize renders the state for snapshots: "awaiting_command",
// "editing_task:existing:123" or "completed".
func (s State) Serialize() string {
	switch s.Kind {
	case StateEditing:
		return fmt.Sprintf("editing_task:%s", s.Editing)
	case StateCompleted:
		return "completed"
	default:
		return "awaiting_command"
	}
}

// AvailableCommands is a pure projection of the current state onto the
// command kinds it accepts. It drives the LLM's choice set and rejects
// out-of-state commands before any handler runs.
func AvailableCommands(s State) []CommandKind {
	switch s.Kind {
	case StateAwaiting:
		return []CommandKind{CmdRecordPlan, CmdSelectTask, CmdCreateTask, CmdDiscardAll, CmdCompleteSession}
	case StateEditing:
		return []CommandKind{CmdRecordPlan, CmdCreateTask, CmdUpdateTaskFields, CmdCompleteTask, CmdDeleteTask, CmdExitEditing, CmdDiscardAll, CmdCompleteSession}
	default:
		return nil
	}
}

// Allows reports whether the state accepts the command kind.
func Allows(s State, kind CommandKind) bool {
	for _, allowed := range AvailableCommands(s) {
		if allowed == kind {
			return true
		}
	}
	return false
}

// CommandNames renders AvailableCommands as wire names.
func CommandNames(s State) []string {
	kinds := AvailableCommands(s)
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, kind.String())
	}
	return out
}
