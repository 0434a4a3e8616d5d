// Package machine implements the session-scoped command state machine that
// mediates between the conversation driver and the task store. Commands are
// validated against the current state, staged without touching the store,
// and committed (or wholly discarded) as an ordered batch.
package machine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"smarttodo/internal/apperr"
	"smarttodo/internal/db"
	"smarttodo/internal/scope"
	"smarttodo/internal/taskstore"
)

type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpComplete
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpComplete:
		return "complete"
	default:
		return "delete"
	}
}

// PendingOperation is one staged effect, recorded but not yet applied.
type PendingOperation struct {
	Kind   OpKind
	Target Target
	Attrs  Attrs
}

// TaskAPI is the slice of the task store the machine depends on.
type TaskAPI interface {
	Create(ctx context.Context, sc scope.Scope, fields taskstore.Fields) (*db.Task, error)
	Get(ctx context.Context, sc scope.Scope, id int64) (*db.Task, error)
	List(ctx context.Context, sc scope.Scope, statusFilter string) ([]db.Task, error)
	Update(ctx context.Context, sc scope.Scope, id int64, fields taskstore.Fields) (*db.Task, error)
	Delete(ctx context.Context, sc scope.Scope, id int64) error
	Complete(ctx context.Context, sc scope.Scope, id int64) (*db.Task, error)
}

// Session is one state machine instance: ephemeral, in-memory, single
// caller. Never shared across requests.
type Session struct {
	id    string
	sc    scope.Scope
	store TaskAPI
	log   *slog.Logger

	state          State
	pendingOps     []PendingOperation
	nextPendingRef int64
	planNotes      []string
	errorCount     int
}

func NewSession(sc scope.Scope, store TaskAPI, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:             uuid.NewString(),
		sc:             sc,
		store:          store,
		log:            log,
		state:          awaiting(),
		nextPendingRef: 1,
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) State() State          { return s.state }
func (s *Session) ErrorCount() int       { return s.errorCount }
func (s *Session) PendingCount() int     { return len(s.pendingOps) }
func (s *Session) RecordFailure()        { s.errorCount++ }

// Handle dispatches one command. It never returns an error: failures become
// failed responses so the session stays alive and the caller may retry,
// select a different target, or discard.
func (s *Session) Handle(ctx context.Context, cmd Command) (bool, Response) {
	if s.state.Terminal() {
		return false, s.failure("Session already completed")
	}
	if !Allows(s.state, cmd.Kind) {
		s.errorCount++
		return false, s.failure(apperr.State("command %s is not valid in state %s", cmd.Kind, s.state.Serialize()).Error())
	}

	ok, resp, err := s.dispatch(ctx, cmd)
	if err != nil {
		s.log.Error("command failed", "session_id", s.id, "command", cmd.Kind.String(), "error", err)
		s.errorCount++
		return false, s.failure(err.Error())
	}
	return ok, resp
}

func (s *Session) dispatch(ctx context.Context, cmd Command) (bool, Response, error) {
	switch cmd.Kind {
	case CmdRecordPlan:
		return s.recordPlan(cmd)
	case CmdSelectTask:
		return s.selectTask(ctx, cmd)
	case CmdCreateTask:
		return s.createTask(cmd)
	case CmdUpdateTaskFields:
		return s.updateTaskFields(cmd)
	case CmdCompleteTask:
		return s.stageEditOp(OpComplete, "Completion staged for %s")
	case CmdDeleteTask:
		return s.stageEditOp(OpDelete, "Deletion staged for %s")
	case CmdExitEditing:
		return s.exitEditing()
	case CmdDiscardAll:
		return s.discardAll()
	case CmdCompleteSession:
		return s.completeSession(ctx)
	default:
		return false, Response{}, apperr.Validation("unknown command kind %d", cmd.Kind)
	}
}

func (s *Session) recordPlan(cmd Command) (bool, Response, error) {
	if cmd.Plan == "" {
		return false, Response{}, apperr.Validation("plan is required")
	}
	s.planNotes = append(s.planNotes, cmd.Plan)
	return true, s.success("Plan recorded: " + cmd.Plan), nil
}

func (s *Session) selectTask(ctx context.Context, cmd Command) (bool, Response, error) {
	if cmd.Target == "" {
		return false, Response{}, apperr.Validation("target is required")
	}
	target, err := ParseTarget(cmd.Target)
	if err != nil {
		return false, Response{}, err
	}
	switch target.Kind {
	case TargetExisting:
		if _, err := s.store.Get(ctx, s.sc, target.Ref); err != nil {
			return false, Response{}, err
		}
	case TargetPending:
		if !s.hasPendingCreate(target.Ref) {
			return false, Response{}, apperr.NotFound("pending task %d not found", target.Ref)
		}
	}
	s.state = editing(target)
	return true, s.success("Selected task: " + target.String()), nil
}

func (s *Session) createTask(cmd Command) (bool, Response, error) {
	if cmd.Attrs.Title == nil || *cmd.Attrs.Title == "" {
		return false, Response{}, apperr.Validation("title is required")
	}
	ref := s.nextPendingRef
	s.nextPendingRef++
	s.pendingOps = append(s.pendingOps, PendingOperation{
		Kind:   OpCreate,
		Target: Target{Kind: TargetPending, Ref: ref},
		Attrs:  cmd.Attrs,
	})
	resp := s.success(fmt.Sprintf("Task creation staged with pending_ref %d", ref))
	resp.Echo = &Echo{PendingRef: ref, Title: *cmd.Attrs.Title}
	return true, resp, nil
}

func (s *Session) updateTaskFields(cmd Command) (bool, Response, error) {
	target := s.state.Editing
	s.pendingOps = append(s.pendingOps, PendingOperation{Kind: OpUpdate, Target: target, Attrs: cmd.Attrs})
	return true, s.success("Update staged for " + target.String()), nil
}

func (s *Session) stageEditOp(kind OpKind, format string) (bool, Response, error) {
	target := s.state.Editing
	s.pendingOps = append(s.pendingOps, PendingOperation{Kind: kind, Target: target})
	return true, s.success(fmt.Sprintf(format, target)), nil
}

func (s *Session) exitEditing() (bool, Response, error) {
	s.state = awaiting()
	return true, s.success("Exited editing mode"), nil
}

func (s *Session) discardAll() (bool, Response, error) {
	s.pendingOps = nil
	s.planNotes = nil
	s.nextPendingRef = 1
	s.state = awaiting()
	return true, s.success("All operations discarded"), nil
}

func (s *Session) completeSession(ctx context.Context) (bool, Response, error) {
	summary, err := s.commit(ctx)
	if err != nil {
		// State is unchanged on failure so the caller can inspect,
		// discard, or retry. Operations already applied stay applied.
		return false, Response{}, apperr.Wrap(apperr.KindOf(err), err, "failed to commit operations")
	}
	s.state = completed()
	resp := s.success("Session completed successfully")
	resp.CommitSummary = summary
	return true, resp, nil
}

// commit applies staged operations in order, one store call each. A create
// records its real id under its pending ref so later operations in the same
// batch resolve against it. There is no cross-operation transaction: a
// failure aborts the rest of the batch but does not roll back what already
// landed.
func (s *Session) commit(ctx context.Context) (*CommitSummary, error) {
	pendingMap := map[int64]int64{}
	summary := &CommitSummary{}

	for _, op := range s.pendingOps {
		switch op.Kind {
		case OpCreate:
			task, err := s.store.Create(ctx, s.sc, normalizeAttrs(op.Attrs))
			if err != nil {
				return nil, err
			}
			pendingMap[op.Target.Ref] = task.ID
			summary.Created = append(summary.Created, OpResult{ID: task.ID, Title: task.Title})

		case OpUpdate:
			id, err := resolveTarget(op.Target, pendingMap)
			if err != nil {
				return nil, err
			}
			task, err := s.store.Update(ctx, s.sc, id, normalizeAttrs(op.Attrs))
			if err != nil {
				return nil, err
			}
			summary.Updated = append(summary.Updated, OpResult{ID: task.ID, Title: task.Title})

		case OpComplete:
			id, err := resolveTarget(op.Target, pendingMap)
			if err != nil {
				return nil, err
			}
			task, err := s.store.Complete(ctx, s.sc, id)
			if err != nil {
				return nil, err
			}
			summary.Completed = append(summary.Completed, OpResult{ID: task.ID, Title: task.Title})

		case OpDelete:
			id, err := resolveTarget(op.Target, pendingMap)
			if err != nil {
				return nil, err
			}
			task, err := s.store.Get(ctx, s.sc, id)
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue // already gone; deleting nothing is not a failure
			}
			if err != nil {
				return nil, err
			}
			if err := s.store.Delete(ctx, s.sc, id); err != nil {
				return nil, err
			}
			summary.Deleted = append(summary.Deleted, OpResult{ID: id, Title: task.Title})
		}
	}
	return summary, nil
}

func resolveTarget(target Target, pendingMap map[int64]int64) (int64, error) {
	if target.Kind == TargetExisting {
		return target.Ref, nil
	}
	id, ok := pendingMap[target.Ref]
	if !ok {
		return 0, apperr.NotFound("pending task %d not yet created", target.Ref)
	}
	return id, nil
}

func (s *Session) hasPendingCreate(ref int64) bool {
	for _, op := range s.pendingOps {
		if op.Kind == OpCreate && op.Target.Kind == TargetPending && op.Target.Ref == ref {
			return true
		}
	}
	return false
}
