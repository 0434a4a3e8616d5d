// Package taskstore owns task persistence: CRUD, the dependency graph and
// completion with recurrence. Every operation runs inside its own
// transaction; callers staging multi-operation batches get no cross-call
// atomicity from this package.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smarttodo/internal/apperr"
	"smarttodo/internal/authz"
	"smarttodo/internal/db"
	"smarttodo/internal/scope"
)

// Fields carries create/update attributes. Nil pointers are untouched;
// PrerequisiteIDs nil means leave the edge set alone, non-nil replaces it.
type Fields struct {
	Title           *string
	Description     *string
	Notes           *string
	Status          *string
	Urgency         *string
	DueDate         *string
	DeferredUntil   *string
	Recurrence      *string
	AssigneeID      *int64
	AssignedGroupID *int64
	PrerequisiteIDs []int64
}

type Store struct {
	gdb     *gorm.DB
	checker *authz.Checker
}

func NewStore(gdb *gorm.DB, checker *authz.Checker) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	if checker == nil {
		return nil, errors.New("authz checker is required")
	}
	return &Store{gdb: gdb, checker: checker}, nil
}

// Create inserts a task owned by the scope user, plus its prerequisite
// edges, in one transaction.
func (s *Store) Create(ctx context.Context, sc scope.Scope, fields Fields) (*db.Task, error) {
	if fields.Title == nil || *fields.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if isSet(fields.AssigneeID) && isSet(fields.AssignedGroupID) {
		return nil, apperr.Validation("cannot assign to both user and group")
	}
	if err := validateEnums(fields); err != nil {
		return nil, err
	}

	task := db.Task{
		UserID:     sc.UserID(),
		Title:      *fields.Title,
		Status:     db.StatusTodo,
		Urgency:    db.UrgencyNormal,
		Recurrence: db.RecurrenceNone,
	}
	applyFields(&task, fields)

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return s.replaceDependencies(ctx, tx, sc, task.ID, fields.PrerequisiteIDs)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Get loads a task the scope user may read. Missing and unreadable tasks
// are indistinguishable to the caller.
func (s *Store) Get(ctx context.Context, sc scope.Scope, id int64) (*db.Task, error) {
	var task db.Task
	err := s.gdb.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("task %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}
	readable, err := s.checker.CanRead(sc, task)
	if err != nil {
		return nil, err
	}
	if !readable {
		return nil, apperr.NotFound("task %d not found", id)
	}
	return &task, nil
}

// List returns tasks visible to the scope user: owned, directly assigned,
// or assigned to a reachable group. statusFilter is optional.
func (s *Store) List(ctx context.Context, sc scope.Scope, statusFilter string) ([]db.Task, error) {
	groups, err := s.checker.AccessibleGroupIDs(sc.UserID())
	if err != nil {
		return nil, err
	}
	groupIDs := make([]int64, 0, len(groups))
	for id := range groups {
		groupIDs = append(groupIDs, id)
	}

	q := s.gdb.WithContext(ctx).Model(&db.Task{})
	if len(groupIDs) > 0 {
		q = q.Where("user_id = ? OR assignee_id = ? OR assigned_group_id IN ?", sc.UserID(), sc.UserID(), groupIDs)
	} else {
		q = q.Where("user_id = ? OR assignee_id = ?", sc.UserID(), sc.UserID())
	}
	if statusFilter != "" {
		if !db.ValidStatus(statusFilter) {
			return nil, apperr.Validation("invalid status filter %q", statusFilter)
		}
		q = q.Where("status = ?", statusFilter)
	}
	var tasks []db.Task
	if err := q.Order("id").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Update applies a partial field update. Owner only.
func (s *Store) Update(ctx context.Context, sc scope.Scope, id int64, fields Fields) (*db.Task, error) {
	task, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if !s.checker.CanWrite(sc, *task) {
		return nil, apperr.Forbidden("not authorized to modify task %d", id)
	}
	if err := validateEnums(fields); err != nil {
		return nil, err
	}

	applyFields(task, fields)
	if isSet(task.AssigneeID) && isSet(task.AssignedGroupID) {
		return nil, apperr.Validation("cannot assign to both user and group")
	}
	task.UpdatedAt = time.Now().UTC()

	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return fmt.Errorf("save task %d: %w", id, err)
		}
		if fields.PrerequisiteIDs == nil {
			return nil
		}
		if err := tx.Where("blocked_task_id = ?", id).Delete(&db.TaskDependency{}).Error; err != nil {
			return fmt.Errorf("clear dependencies of task %d: %w", id, err)
		}
		return s.replaceDependencies(ctx, tx, sc, id, fields.PrerequisiteIDs)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes a task and its dependency edges. Owner only.
func (s *Store) Delete(ctx context.Context, sc scope.Scope, id int64) error {
	task, err := s.Get(ctx, sc, id)
	if err != nil {
		return err
	}
	if !s.checker.CanWrite(sc, *task) {
		return apperr.Forbidden("not authorized to delete task %d", id)
	}
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("blocked_task_id = ? OR prereq_task_id = ?", id, id).Delete(&db.TaskDependency{}).Error; err != nil {
			return fmt.Errorf("delete dependency edges of task %d: %w", id, err)
		}
		if err := tx.Delete(&db.Task{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete task %d: %w", id, err)
		}
		return nil
	})
}

// Complete marks a task done once every prerequisite is done. A task with
// active recurrence spawns a successor copying title, description, notes,
// urgency, assignment, recurrence and prerequisite edges, with the due date
// advanced one interval. Returns the successor when one is spawned,
// otherwise the completed task.
func (s *Store) Complete(ctx context.Context, sc scope.Scope, id int64) (*db.Task, error) {
	task, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if !s.checker.CanWrite(sc, *task) {
		return nil, apperr.Forbidden("not authorized to complete task %d", id)
	}

	prereqs, err := s.Prerequisites(ctx, id)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, p := range prereqs {
		if p.Status != db.StatusDone {
			open++
		}
	}
	if open > 0 {
		return nil, apperr.Precondition("cannot complete: %d incomplete prerequisites", open)
	}

	var result *db.Task
	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task.Status = db.StatusDone
		task.UpdatedAt = time.Now().UTC()
		if err := tx.Save(task).Error; err != nil {
			return fmt.Errorf("save task %d: %w", id, err)
		}
		result = task
		if task.Recurrence == db.RecurrenceNone {
			return nil
		}
		successor, err := spawnSuccessor(tx, *task)
		if err != nil {
			return err
		}
		result = successor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Prerequisites returns the tasks id depends on.
func (s *Store) Prerequisites(ctx context.Context, id int64) ([]db.Task, error) {
	var tasks []db.Task
	err := s.gdb.WithContext(ctx).
		Joins("JOIN task_dependencies ON task_dependencies.prereq_task_id = tasks.id").
		Where("task_dependencies.blocked_task_id = ?", id).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("load prerequisites of task %d: %w", id, err)
	}
	return tasks, nil
}

func spawnSuccessor(tx *gorm.DB, done db.Task) (*db.Task, error) {
	successor := db.Task{
		UserID:          done.UserID,
		AssigneeID:      done.AssigneeID,
		AssignedGroupID: done.AssignedGroupID,
		Title:           done.Title,
		Description:     done.Description,
		Notes:           done.Notes,
		Status:          db.StatusTodo,
		Urgency:         done.Urgency,
		DueDate:         NextDueDate(done.DueDate, done.Recurrence),
		Recurrence:      done.Recurrence,
	}
	if err := tx.Create(&successor).Error; err != nil {
		return nil, fmt.Errorf("insert recurring successor: %w", err)
	}
	var edges []db.TaskDependency
	if err := tx.Where("blocked_task_id = ?", done.ID).Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("load dependency edges of task %d: %w", done.ID, err)
	}
	for _, edge := range edges {
		if err := tx.Create(&db.TaskDependency{BlockedTaskID: successor.ID, PrereqTaskID: edge.PrereqTaskID}).Error; err != nil {
			return nil, fmt.Errorf("copy dependency edge: %w", err)
		}
	}
	return &successor, nil
}

func (s *Store) replaceDependencies(ctx context.Context, tx *gorm.DB, sc scope.Scope, taskID int64, prereqIDs []int64) error {
	seen := map[int64]bool{}
	for _, prereqID := range prereqIDs {
		if prereqID == taskID {
			return apperr.Validation("task %d cannot depend on itself", taskID)
		}
		if seen[prereqID] {
			continue
		}
		seen[prereqID] = true
		if _, err := s.Get(ctx, sc, prereqID); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return apperr.NotFound("prerequisite task %d not found", prereqID)
			}
			return err
		}
		if err := tx.Create(&db.TaskDependency{BlockedTaskID: taskID, PrereqTaskID: prereqID}).Error; err != nil {
			return fmt.Errorf("insert dependency edge: %w", err)
		}
	}
	return nil
}

func applyFields(task *db.Task, fields Fields) {
	if fields.Title != nil && *fields.Title != "" {
		task.Title = *fields.Title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Notes != nil {
		task.Notes = *fields.Notes
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.Urgency != nil {
		task.Urgency = *fields.Urgency
	}
	if fields.DueDate != nil {
		task.DueDate = *fields.DueDate
	}
	if fields.DeferredUntil != nil {
		task.DeferredUntil = *fields.DeferredUntil
	}
	if fields.Recurrence != nil {
		task.Recurrence = *fields.Recurrence
	}
	if fields.AssigneeID != nil {
		task.AssigneeID = normalizeRef(fields.AssigneeID)
	}
	if fields.AssignedGroupID != nil {
		task.AssignedGroupID = normalizeRef(fields.AssignedGroupID)
	}
}

func validateEnums(fields Fields) error {
	if fields.Status != nil && !db.ValidStatus(*fields.Status) {
		return apperr.Validation("invalid status %q", *fields.Status)
	}
	if fields.Urgency != nil && !db.ValidUrgency(*fields.Urgency) {
		return apperr.Validation("invalid urgency %q", *fields.Urgency)
	}
	if fields.Recurrence != nil && !db.ValidRecurrence(*fields.Recurrence) {
		return apperr.Validation("invalid recurrence %q", *fields.Recurrence)
	}
	return nil
}

func isSet(ref *int64) bool {
	return ref != nil && *ref != 0
}

// normalizeRef maps an explicit zero to nil so "assignee_id": 0 clears the
// assignment instead of pointing at a nonexistent row.
func normalizeRef(ref *int64) *int64 {
	if ref == nil || *ref == 0 {
		return nil
	}
	v := *ref
	return &v
}
