package machine

import (
	"encoding/json"

	"smarttodo/internal/apperr"
)

// CommandKind is the closed set of commands the machine accepts. Adding a
// command means extending this enum and the dispatcher's switch.
type CommandKind int

const (
	CmdRecordPlan CommandKind = iota
	CmdSelectTask
	CmdCreateTask
	CmdUpdateTaskFields
	CmdCompleteTask
	CmdDeleteTask
	CmdExitEditing
	CmdDiscardAll
	CmdCompleteSession
)

var commandNames = map[CommandKind]string{
	CmdRecordPlan:       "record_plan",
	CmdSelectTask:       "select_task",
	CmdCreateTask:       "create_task",
	CmdUpdateTaskFields: "update_task_fields",
	CmdCompleteTask:     "complete_task",
	CmdDeleteTask:       "delete_task",
	CmdExitEditing:      "exit_editing",
	CmdDiscardAll:       "discard_all",
	CmdCompleteSession:  "complete_session",
}

var commandKinds = func() map[string]CommandKind {
	out := make(map[string]CommandKind, len(commandNames))
	for kind, name := range commandNames {
		out[name] = kind
	}
	return out
}()

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Attrs carries the task attributes a command may stage, exactly as they
// arrive from the LLM. Date fields stay ISO strings until normalization.
type Attrs struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Status          *string `json:"status,omitempty"`
	Urgency         *string `json:"urgency,omitempty"`
	DueDate         *string `json:"due_date,omitempty"`
	DeferredUntil   *string `json:"deferred_until,omitempty"`
	Recurrence      *string `json:"recurrence,omitempty"`
	AssigneeID      *int64  `json:"assignee_id,omitempty"`
	AssignedGroupID *int64  `json:"assigned_group_id,omitempty"`
	PrerequisiteIDs []int64 `json:"prerequisite_ids,omitempty"`
}

// Command is one decoded LLM command invocation.
type Command struct {
	Kind   CommandKind
	Plan   string
	Target string
	Attrs  Attrs
}

type commandArgs struct {
	Plan   string `json:"plan"`
	Target string `json:"target"`
	Attrs
}

// DecodeCommand turns a (name, raw JSON arguments) invocation into a typed
// Command. Unknown names and malformed argument JSON are validation errors.
func DecodeCommand(name string, raw json.RawMessage) (Command, error) {
	kind, ok := commandKinds[name]
	if !ok {
		return Command{}, apperr.Validation("unknown command: %s", name)
	}
	var args commandArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Command{}, apperr.Validation("invalid arguments for %s: %v", name, err)
		}
	}
	return Command{Kind: kind, Plan: args.Plan, Target: args.Target, Attrs: args.Attrs}, nil
}
