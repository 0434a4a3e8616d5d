package taskstore

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"smarttodo/internal/apperr"
	"smarttodo/internal/authz"
	"smarttodo/internal/db"
	"smarttodo/internal/scope"
)

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

type storeFixture struct {
	gdb   *gorm.DB
	store *Store
}

func newFixture(t *testing.T) *storeFixture {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	checker, err := authz.NewChecker(gdb)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	store, err := NewStore(gdb, checker)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return &storeFixture{gdb: gdb, store: store}
}

func (f *storeFixture) user(t *testing.T, email string) scope.Scope {
	t.Helper()
	user := db.User{Email: email}
	if err := f.gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return scope.Scope{User: user}
}

func (f *storeFixture) create(t *testing.T, sc scope.Scope, title string, fields Fields) *db.Task {
	t.Helper()
	fields.Title = strPtr(title)
	task, err := f.store.Create(context.Background(), sc, fields)
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return task
}

func TestCreate_RequiresTitle(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	_, err := f.store.Create(context.Background(), sc, Fields{})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_DualAssignmentRejected(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	_, err := f.store.Create(context.Background(), sc, Fields{
		Title:           strPtr("dual"),
		AssigneeID:      intPtr(7),
		AssignedGroupID: intPtr(9),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	task := f.create(t, sc, "plain", Fields{})
	if task.Status != db.StatusTodo || task.Urgency != db.UrgencyNormal || task.Recurrence != db.RecurrenceNone {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	if task.UserID != sc.UserID() {
		t.Fatalf("owner must be scope user, got %d", task.UserID)
	}
}

func TestCreate_MissingPrerequisiteRejected(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	_, err := f.store.Create(context.Background(), sc, Fields{
		Title:           strPtr("blocked"),
		PrerequisiteIDs: []int64{999},
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// The failed transaction must not leave the task behind.
	var count int64
	f.gdb.Model(&db.Task{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected rollback, found %d tasks", count)
	}
}

func TestGet_InaccessibleLooksMissing(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	stranger := f.user(t, "stranger@example.com")
	task := f.create(t, owner, "private", Fields{})

	_, err := f.store.Get(context.Background(), stranger, task.ID)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
}

func TestList_VisibilityAndStatusFilter(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	other := f.user(t, "other@example.com")

	f.create(t, owner, "mine", Fields{})
	assigned := f.create(t, other, "assigned to owner", Fields{AssigneeID: intPtr(owner.UserID())})
	f.create(t, other, "not visible", Fields{})
	done := f.create(t, owner, "done one", Fields{Status: strPtr(db.StatusDone)})

	tasks, err := f.store.List(context.Background(), owner, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 visible tasks, got %d", len(tasks))
	}
	found := false
	for _, task := range tasks {
		if task.ID == assigned.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("directly assigned task must be visible")
	}

	doneTasks, err := f.store.List(context.Background(), owner, db.StatusDone)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(doneTasks) != 1 || doneTasks[0].ID != done.ID {
		t.Fatalf("status filter wrong: %+v", doneTasks)
	}
}

func TestList_GroupAssignedVisible(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	member := f.user(t, "member@example.com")

	group := db.Group{Name: "team", CreatedByUserID: owner.UserID()}
	if err := f.gdb.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	memberID := member.UserID()
	if err := f.gdb.Create(&db.GroupMembership{GroupID: group.ID, UserID: &memberID}).Error; err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	f.create(t, owner, "for the team", Fields{AssignedGroupID: intPtr(group.ID)})

	tasks, err := f.store.List(context.Background(), member, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("group member must see group-assigned task, got %d", len(tasks))
	}
}

func TestUpdate_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	assignee := f.user(t, "assignee@example.com")
	task := f.create(t, owner, "shared", Fields{AssigneeID: intPtr(assignee.UserID())})

	_, err := f.store.Update(context.Background(), assignee, task.ID, Fields{Title: strPtr("hijacked")})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for assignee, got %v", err)
	}

	updated, err := f.store.Update(context.Background(), owner, task.ID, Fields{Title: strPtr("renamed")})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("title not applied: %+v", updated)
	}
}

func TestUpdate_ConflictingAssignmentRejected(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	task := f.create(t, sc, "assigned", Fields{AssigneeID: intPtr(42)})

	_, err := f.store.Update(context.Background(), sc, task.ID, Fields{AssignedGroupID: intPtr(7)})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdate_ReplacesPrerequisites(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	a := f.create(t, sc, "a", Fields{})
	b := f.create(t, sc, "b", Fields{})
	blocked := f.create(t, sc, "blocked", Fields{PrerequisiteIDs: []int64{a.ID}})

	_, err := f.store.Update(context.Background(), sc, blocked.ID, Fields{PrerequisiteIDs: []int64{b.ID}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	prereqs, err := f.store.Prerequisites(context.Background(), blocked.ID)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if len(prereqs) != 1 || prereqs[0].ID != b.ID {
		t.Fatalf("edge set not replaced: %+v", prereqs)
	}
}

func TestDelete_RemovesEdges(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	prereq := f.create(t, sc, "prereq", Fields{})
	blocked := f.create(t, sc, "blocked", Fields{PrerequisiteIDs: []int64{prereq.ID}})

	if err := f.store.Delete(context.Background(), sc, prereq.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var edges int64
	f.gdb.Model(&db.TaskDependency{}).Where("blocked_task_id = ?", blocked.ID).Count(&edges)
	if edges != 0 {
		t.Fatalf("dangling dependency edges after delete: %d", edges)
	}
}

func TestComplete_OpenPrerequisiteBlocks(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	prereq := f.create(t, sc, "prereq", Fields{})
	blocked := f.create(t, sc, "blocked", Fields{PrerequisiteIDs: []int64{prereq.ID}})

	_, err := f.store.Complete(context.Background(), sc, blocked.ID)
	if !apperr.IsKind(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	current, err := f.store.Get(context.Background(), sc, blocked.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if current.Status != db.StatusTodo {
		t.Fatalf("status must be unchanged, got %q", current.Status)
	}

	if _, err := f.store.Complete(context.Background(), sc, prereq.ID); err != nil {
		t.Fatalf("complete prereq: %v", err)
	}
	if _, err := f.store.Complete(context.Background(), sc, blocked.ID); err != nil {
		t.Fatalf("complete after prereq done: %v", err)
	}
}

func TestComplete_WeeklyRecurrenceSpawnsSuccessor(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	prereq := f.create(t, sc, "prereq", Fields{Status: strPtr(db.StatusDone)})
	task := f.create(t, sc, "weekly report", Fields{
		Recurrence:      strPtr(db.RecurrenceWeekly),
		DueDate:         strPtr("2024-01-01"),
		Urgency:         strPtr(db.UrgencyHigh),
		PrerequisiteIDs: []int64{prereq.ID},
	})

	successor, err := f.store.Complete(context.Background(), sc, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if successor.ID == task.ID {
		t.Fatal("expected a new successor task")
	}
	if successor.DueDate != "2024-01-08" {
		t.Fatalf("due date not advanced a week: %q", successor.DueDate)
	}
	if successor.Status != db.StatusTodo {
		t.Fatalf("successor must start as todo, got %q", successor.Status)
	}
	if successor.Title != task.Title || successor.Urgency != db.UrgencyHigh || successor.Recurrence != db.RecurrenceWeekly {
		t.Fatalf("successor fields not copied: %+v", successor)
	}

	// Edges copied, not moved.
	originalEdges, err := f.store.Prerequisites(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("original prerequisites: %v", err)
	}
	successorEdges, err := f.store.Prerequisites(context.Background(), successor.ID)
	if err != nil {
		t.Fatalf("successor prerequisites: %v", err)
	}
	if len(originalEdges) != 1 || len(successorEdges) != 1 {
		t.Fatalf("edges must be copied, not moved: original=%d successor=%d", len(originalEdges), len(successorEdges))
	}
	if successorEdges[0].ID != prereq.ID {
		t.Fatalf("successor edge points at %d, want %d", successorEdges[0].ID, prereq.ID)
	}
}

func TestComplete_NoRecurrenceReturnsCompletedTask(t *testing.T) {
	f := newFixture(t)
	sc := f.user(t, "u@example.com")
	task := f.create(t, sc, "one-shot", Fields{})

	got, err := f.store.Complete(context.Background(), sc, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.ID != task.ID || got.Status != db.StatusDone {
		t.Fatalf("unexpected result: %+v", got)
	}
	var count int64
	f.gdb.Model(&db.Task{}).Count(&count)
	if count != 1 {
		t.Fatalf("no successor expected, found %d tasks", count)
	}
}
