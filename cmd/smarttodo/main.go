package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"smarttodo/internal/authz"
	"smarttodo/internal/command"
	"smarttodo/internal/config"
	"smarttodo/internal/conversation"
	"smarttodo/internal/db"
	"smarttodo/internal/groupstore"
	"smarttodo/internal/logging"
	"smarttodo/internal/scope"
	"smarttodo/internal/taskstore"
)

var version = "dev"
var buildTime = "unknown"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := io.Writer(os.Stdout)
	app := command.BuildApp(command.Deps{
		LoadConfig: config.LoadConfig,
		RunProcess: func(ctx context.Context, cfg config.Config, args command.ProcessArgs) error {
			return runProcess(ctx, out, cfg, args)
		},
		RunTaskList: func(ctx context.Context, cfg config.Config, args command.TaskListArgs) error {
			return runTaskList(ctx, out, cfg, args)
		},
		RunTaskComplete: func(ctx context.Context, cfg config.Config, args command.TaskCompleteArgs) error {
			return runTaskComplete(ctx, out, cfg, args)
		},
		RunGroupCreate: func(ctx context.Context, cfg config.Config, args command.GroupCreateArgs) error {
			return runGroupCreate(ctx, out, cfg, args)
		},
		RunGroupAddMember: func(ctx context.Context, cfg config.Config, args command.GroupAddMemberArgs) error {
			return runGroupAddMember(ctx, out, cfg, args)
		},
		RunMigrateUp: func(_ context.Context, cfg config.Config) error {
			return runMigrateUp(out, cfg)
		},
	})
	app.Version = version + " (" + buildTime + ")"

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type runtime struct {
	gdb    *gorm.DB
	scopes *scope.Provider
	tasks  *taskstore.Store
	groups *groupstore.Store
	log    *slog.Logger
}

func buildRuntime(cfg config.Config) (*runtime, error) {
	log := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "smarttodo"})
	slog.SetDefault(log)

	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	scopes, err := scope.NewProvider(gdb)
	if err != nil {
		return nil, err
	}
	checker, err := authz.NewChecker(gdb)
	if err != nil {
		return nil, err
	}
	tasks, err := taskstore.NewStore(gdb, checker)
	if err != nil {
		return nil, err
	}
	groups, err := groupstore.NewStore(gdb, checker)
	if err != nil {
		return nil, err
	}
	return &runtime{gdb: gdb, scopes: scopes, tasks: tasks, groups: groups, log: log}, nil
}

func runProcess(ctx context.Context, out io.Writer, cfg config.Config, args command.ProcessArgs) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	sc, err := rt.scopes.ForEmail(args.UserEmail)
	if err != nil {
		return err
	}

	client := conversation.NewResponsesClient(conversation.ClientConfig{
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		APIKey:  cfg.OpenAIAPIKey,
	}, &http.Client{Timeout: time.Duration(cfg.LLMTimeoutSeconds) * time.Second})
	svc := conversation.NewService(client, rt.tasks, rt.log, conversation.Options{
		MaxRounds: cfg.MaxConversationRounds,
		MaxErrors: cfg.MaxCommandErrors,
	})

	actions, summary, sessionID, err := svc.Process(ctx, sc, args.Text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s\n", sessionID)
	for _, action := range actions {
		mark := "ok"
		if !action.OK {
			mark = "failed"
		}
		fmt.Fprintf(out, "  %-20s %-6s %s\n", action.Command, mark, action.Result)
	}
	fmt.Fprintln(out, summary)
	return nil
}

func runTaskList(ctx context.Context, out io.Writer, cfg config.Config, args command.TaskListArgs) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	sc, err := rt.scopes.ForEmail(args.UserEmail)
	if err != nil {
		return err
	}
	tasks, err := rt.tasks.List(ctx, sc, args.Status)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "no tasks")
		return nil
	}
	for _, task := range tasks {
		line := fmt.Sprintf("[%d] %s (status: %s, urgency: %s)", task.ID, task.Title, task.Status, task.Urgency)
		if task.DueDate != "" {
			line += " [due: " + task.DueDate + "]"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runTaskComplete(ctx context.Context, out io.Writer, cfg config.Config, args command.TaskCompleteArgs) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	sc, err := rt.scopes.ForEmail(args.UserEmail)
	if err != nil {
		return err
	}
	task, err := rt.tasks.Complete(ctx, sc, args.TaskID)
	if err != nil {
		return err
	}
	if task.ID != args.TaskID {
		fmt.Fprintf(out, "completed task %d, next occurrence [%d] due %s\n", args.TaskID, task.ID, task.DueDate)
		return nil
	}
	fmt.Fprintf(out, "completed task %d\n", task.ID)
	return nil
}

func runGroupCreate(ctx context.Context, out io.Writer, cfg config.Config, args command.GroupCreateArgs) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	sc, err := rt.scopes.ForEmail(args.UserEmail)
	if err != nil {
		return err
	}
	group, err := rt.groups.Create(ctx, sc, args.Name, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created group [%d] %s\n", group.ID, group.Name)
	return nil
}

func runGroupAddMember(ctx context.Context, out io.Writer, cfg config.Config, args command.GroupAddMemberArgs) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	sc, err := rt.scopes.ForEmail(args.UserEmail)
	if err != nil {
		return err
	}
	switch {
	case args.MemberEmail != "" && args.MemberGroup != 0:
		return fmt.Errorf("pass either --member-user or --member-group, not both")
	case args.MemberEmail != "":
		member, err := rt.scopes.ForEmail(args.MemberEmail)
		if err != nil {
			return err
		}
		if _, err := rt.groups.AddUserMember(ctx, sc, args.GroupID, member.UserID()); err != nil {
			return err
		}
		fmt.Fprintf(out, "added user %s to group %d\n", args.MemberEmail, args.GroupID)
	case args.MemberGroup != 0:
		if _, err := rt.groups.AddGroupMember(ctx, sc, args.GroupID, args.MemberGroup); err != nil {
			return err
		}
		fmt.Fprintf(out, "added group %d to group %d\n", args.MemberGroup, args.GroupID)
	default:
		return fmt.Errorf("--member-user or --member-group is required")
	}
	return nil
}

func runMigrateUp(out io.Writer, cfg config.Config) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	if err := db.SyncSchema(rt.gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "schema ready at %s\n", cfg.DatabasePath)
	return nil
}
