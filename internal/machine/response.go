package machine

import (
	"context"
	"encoding/json"
)

// openTaskLimit caps the task context echoed back to the LLM each round.
const openTaskLimit = 20

// TaskSnapshot is the per-task slice of context included in every response.
type TaskSnapshot struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Urgency string `json:"urgency"`
	DueDate string `json:"due_date,omitempty"`
}

type PendingOpView struct {
	Kind   string `json:"type"`
	Target string `json:"target"`
	Attrs  Attrs  `json:"attrs"`
}

type Echo struct {
	PendingRef int64  `json:"pending_ref"`
	Title      string `json:"title"`
}

type OpResult struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type CommitSummary struct {
	Created   []OpResult `json:"created"`
	Updated   []OpResult `json:"updated"`
	Completed []OpResult `json:"completed"`
	Deleted   []OpResult `json:"deleted"`
}

// Response is the state snapshot returned after every command; the driver
// feeds it back to the LLM as the tool output for the round.
type Response struct {
	State             string          `json:"state"`
	Message           string          `json:"message"`
	Error             bool            `json:"error,omitempty"`
	OpenTasks         []TaskSnapshot  `json:"open_tasks"`
	PendingOperations []PendingOpView `json:"pending_operations"`
	AvailableCommands []string        `json:"available_commands"`
	Echo              *Echo           `json:"echo,omitempty"`
	CommitSummary     *CommitSummary  `json:"commit_summary,omitempty"`
}

func (r Response) JSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return `{"error":true,"message":"response marshal failed"}`
	}
	return string(raw)
}

func (s *Session) success(message string) Response {
	return s.snapshot(message, false)
}

func (s *Session) failure(message string) Response {
	return s.snapshot(message, true)
}

func (s *Session) snapshot(message string, isErr bool) Response {
	return Response{
		State:             s.state.Serialize(),
		Message:           message,
		Error:             isErr,
		OpenTasks:         s.openTasks(),
		PendingOperations: s.pendingViews(),
		AvailableCommands: CommandNames(s.state),
	}
}

// Snapshot builds the initial-context response before any command runs.
func (s *Session) Snapshot(message string) Response {
	return s.snapshot(message, false)
}

// Reject builds an error snapshot for a call that never reached dispatch,
// such as an undecodable function call.
func (s *Session) Reject(message string) Response {
	return s.snapshot(message, true)
}

func (s *Session) openTasks() []TaskSnapshot {
	if s.store == nil {
		return nil
	}
	tasks, err := s.store.List(context.Background(), s.sc, "")
	if err != nil {
		s.log.Warn("open task snapshot failed", "session_id", s.id, "error", err)
		return nil
	}
	out := make([]TaskSnapshot, 0, openTaskLimit)
	for _, task := range tasks {
		if len(out) == openTaskLimit {
			break
		}
		out = append(out, TaskSnapshot{
			ID:      task.ID,
			Title:   task.Title,
			Status:  task.Status,
			Urgency: task.Urgency,
			DueDate: task.DueDate,
		})
	}
	return out
}

func (s *Session) pendingViews() []PendingOpView {
	out := make([]PendingOpView, 0, len(s.pendingOps))
	for _, op := range s.pendingOps {
		out = append(out, PendingOpView{
			Kind:   op.Kind.String(),
			Target: op.Target.String(),
			Attrs:  op.Attrs,
		})
	}
	return out
}
