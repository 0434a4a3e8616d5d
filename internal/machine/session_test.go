package machine

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"smarttodo/internal/authz"
	"smarttodo/internal/db"
	"smarttodo/internal/scope"
	"smarttodo/internal/taskstore"
)

func strPtr(s string) *string { return &s }

type fixture struct {
	gdb   *gorm.DB
	store *taskstore.Store
	sc    scope.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "machine.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	checker, err := authz.NewChecker(gdb)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	store, err := taskstore.NewStore(gdb, checker)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	user := db.User{Email: "u@example.com"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &fixture{gdb: gdb, store: store, sc: scope.Scope{User: user}}
}

func (f *fixture) session() *Session {
	return NewSession(f.sc, f.store, nil)
}

func mustHandle(t *testing.T, s *Session, cmd Command) Response {
	t.Helper()
	ok, resp := s.Handle(context.Background(), cmd)
	if !ok {
		t.Fatalf("command %s failed: %s", cmd.Kind, resp.Message)
	}
	return resp
}

func mustFail(t *testing.T, s *Session, cmd Command) Response {
	t.Helper()
	ok, resp := s.Handle(context.Background(), cmd)
	if ok {
		t.Fatalf("command %s unexpectedly succeeded", cmd.Kind)
	}
	if !resp.Error {
		t.Fatalf("failed command must set the error flag: %+v", resp)
	}
	return resp
}

func createCmd(title string) Command {
	return Command{Kind: CmdCreateTask, Attrs: Attrs{Title: strPtr(title)}}
}

func TestPendingRefs_StrictlyIncreasingFromOne(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	for i := 1; i <= 3; i++ {
		resp := mustHandle(t, s, createCmd("task"))
		if resp.Echo == nil || resp.Echo.PendingRef != int64(i) {
			t.Fatalf("create %d: expected pending_ref %d, got %+v", i, i, resp.Echo)
		}
	}

	mustHandle(t, s, Command{Kind: CmdDiscardAll})
	resp := mustHandle(t, s, createCmd("after discard"))
	if resp.Echo.PendingRef != 1 {
		t.Fatalf("discard_all must reset the counter, got %d", resp.Echo.PendingRef)
	}
}

func TestPendingRefs_NotSharedAcrossSessions(t *testing.T) {
	f := newFixture(t)
	s1 := f.session()
	s2 := f.session()

	if s1.ID() == s2.ID() {
		t.Fatal("sessions must have distinct ids")
	}
	mustHandle(t, s1, createCmd("a"))
	mustHandle(t, s1, createCmd("b"))
	resp := mustHandle(t, s2, createCmd("c"))
	if resp.Echo.PendingRef != 1 {
		t.Fatalf("fresh session must start at pending_ref 1, got %d", resp.Echo.PendingRef)
	}
	if s2.PendingCount() != 1 || s1.PendingCount() != 2 {
		t.Fatal("sessions must not share staged operations")
	}
}

func TestSelectTask_PendingRefMustExist(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	mustFail(t, s, Command{Kind: CmdSelectTask, Target: "pending:1"})

	mustHandle(t, s, createCmd("staged"))
	resp := mustHandle(t, s, Command{Kind: CmdSelectTask, Target: "pending:1"})
	if resp.State != "editing_task:pending:1" {
		t.Fatalf("unexpected state after select: %q", resp.State)
	}
}

func TestSelectTask_ExistingValidatedForAccess(t *testing.T) {
	f := newFixture(t)
	stranger := db.User{Email: "stranger@example.com"}
	if err := f.gdb.Create(&stranger).Error; err != nil {
		t.Fatalf("seed stranger: %v", err)
	}
	task, err := f.store.Create(context.Background(), scope.Scope{User: stranger}, taskstore.Fields{Title: strPtr("theirs")})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}

	s := f.session()
	mustFail(t, s, Command{Kind: CmdSelectTask, Target: Target{Kind: TargetExisting, Ref: task.ID}.String()})
	if s.State().Kind != StateAwaiting {
		t.Fatal("failed select must not change state")
	}
}

func TestStateErrors_OutOfStateCommands(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	// editing-only commands in awaiting_command
	for _, kind := range []CommandKind{CmdUpdateTaskFields, CmdCompleteTask, CmdDeleteTask, CmdExitEditing} {
		mustFail(t, s, Command{Kind: kind})
	}

	// select_task while editing
	mustHandle(t, s, createCmd("staged"))
	mustHandle(t, s, Command{Kind: CmdSelectTask, Target: "pending:1"})
	mustFail(t, s, Command{Kind: CmdSelectTask, Target: "pending:1"})
}

func TestTerminalState_RejectsEverything(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	mustHandle(t, s, Command{Kind: CmdCompleteSession})
	if s.State().Kind != StateCompleted {
		t.Fatal("session must be completed")
	}
	resp := mustFail(t, s, createCmd("too late"))
	if resp.Message != "Session already completed" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestRecordPlan_RequiresPlanAndKeepsState(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	mustFail(t, s, Command{Kind: CmdRecordPlan})
	resp := mustHandle(t, s, Command{Kind: CmdRecordPlan, Plan: "create then commit"})
	if resp.State != "awaiting_command" {
		t.Fatalf("record_plan must not change state, got %q", resp.State)
	}
}

func TestExitEditing_ClearsEditContext(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	mustHandle(t, s, createCmd("staged"))
	mustHandle(t, s, Command{Kind: CmdSelectTask, Target: "pending:1"})
	resp := mustHandle(t, s, Command{Kind: CmdExitEditing})
	if resp.State != "awaiting_command" {
		t.Fatalf("unexpected state: %q", resp.State)
	}
}

func TestHandle_FailureIncrementsErrorCount(t *testing.T) {
	f := newFixture(t)
	s := f.session()

	mustFail(t, s, Command{Kind: CmdUpdateTaskFields})
	mustFail(t, s, Command{Kind: CmdSelectTask, Target: "bogus"})
	if s.ErrorCount() != 2 {
		t.Fatalf("expected 2 recorded errors, got %d", s.ErrorCount())
	}
}
