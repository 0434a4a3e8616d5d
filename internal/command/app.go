// Package command builds the CLI surface. Runners are injected so the app
// wiring can be exercised without a database or model endpoint.
package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"smarttodo/internal/config"
)

type ProcessArgs struct {
	UserEmail string
	Text      string
}

type TaskListArgs struct {
	UserEmail string
	Status    string
}

type TaskCompleteArgs struct {
	UserEmail string
	TaskID    int64
}

type GroupCreateArgs struct {
	UserEmail string
	Name      string
}

type GroupAddMemberArgs struct {
	UserEmail   string
	GroupID     int64
	MemberEmail string
	MemberGroup int64
}

type Deps struct {
	LoadConfig        func() config.Config
	RunProcess        func(context.Context, config.Config, ProcessArgs) error
	RunTaskList       func(context.Context, config.Config, TaskListArgs) error
	RunTaskComplete   func(context.Context, config.Config, TaskCompleteArgs) error
	RunGroupCreate    func(context.Context, config.Config, GroupCreateArgs) error
	RunGroupAddMember func(context.Context, config.Config, GroupAddMemberArgs) error
	RunMigrateUp      func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	userFlag := &cli.StringFlag{
		Name:     "user",
		Usage:    "acting user email",
		Required: true,
	}
	return &cli.App{
		Name:  "smarttodo",
		Usage: "LLM-driven task management",
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "run a natural-language request through the agent",
				Flags:     []cli.Flag{userFlag},
				ArgsUsage: "<request text>",
				Action: func(ctx *cli.Context) error {
					text := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
					if text == "" {
						return errors.New("request text is required")
					}
					if deps.RunProcess == nil {
						return errors.New("process runner is not configured")
					}
					return deps.RunProcess(ctx.Context, loadConfig(deps), ProcessArgs{
						UserEmail: ctx.String("user"),
						Text:      text,
					})
				},
			},
			{
				Name:  "tasks",
				Usage: "work with tasks directly",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list visible tasks",
						Flags: []cli.Flag{
							userFlag,
							&cli.StringFlag{Name: "status", Usage: "filter by status"},
						},
						Action: func(ctx *cli.Context) error {
							if deps.RunTaskList == nil {
								return errors.New("task list runner is not configured")
							}
							return deps.RunTaskList(ctx.Context, loadConfig(deps), TaskListArgs{
								UserEmail: ctx.String("user"),
								Status:    ctx.String("status"),
							})
						},
					},
					{
						Name:  "complete",
						Usage: "complete a task by id",
						Flags: []cli.Flag{
							userFlag,
							&cli.Int64Flag{Name: "id", Usage: "task id", Required: true},
						},
						Action: func(ctx *cli.Context) error {
							if deps.RunTaskComplete == nil {
								return errors.New("task complete runner is not configured")
							}
							return deps.RunTaskComplete(ctx.Context, loadConfig(deps), TaskCompleteArgs{
								UserEmail: ctx.String("user"),
								TaskID:    ctx.Int64("id"),
							})
						},
					},
				},
			},
			{
				Name:  "groups",
				Usage: "work with groups",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create a group",
						Flags: []cli.Flag{
							userFlag,
							&cli.StringFlag{Name: "name", Usage: "group name", Required: true},
						},
						Action: func(ctx *cli.Context) error {
							if deps.RunGroupCreate == nil {
								return errors.New("group create runner is not configured")
							}
							return deps.RunGroupCreate(ctx.Context, loadConfig(deps), GroupCreateArgs{
								UserEmail: ctx.String("user"),
								Name:      ctx.String("name"),
							})
						},
					},
					{
						Name:  "add-member",
						Usage: "add a user or a child group to a group",
						Flags: []cli.Flag{
							userFlag,
							&cli.Int64Flag{Name: "group", Usage: "group id", Required: true},
							&cli.StringFlag{Name: "member-user", Usage: "member user email"},
							&cli.Int64Flag{Name: "member-group", Usage: "member group id"},
						},
						Action: func(ctx *cli.Context) error {
							if deps.RunGroupAddMember == nil {
								return errors.New("group add-member runner is not configured")
							}
							return deps.RunGroupAddMember(ctx.Context, loadConfig(deps), GroupAddMemberArgs{
								UserEmail:   ctx.String("user"),
								GroupID:     ctx.Int64("group"),
								MemberEmail: ctx.String("member-user"),
								MemberGroup: ctx.Int64("member-group"),
							})
						},
					},
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "create or update the schema",
						Action: func(ctx *cli.Context) error {
							if deps.RunMigrateUp == nil {
								return errors.New("migrate up runner is not configured")
							}
							return deps.RunMigrateUp(ctx.Context, loadConfig(deps))
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.LoadConfig()
}
