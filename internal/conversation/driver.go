package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"smarttodo/internal/apperr"
	"smarttodo/internal/machine"
	"smarttodo/internal/scope"
)

type Options struct {
	// MaxRounds bounds the model round trips per request.
	MaxRounds int
	// MaxErrors terminates the session after this many failed commands.
	MaxErrors int
}

const (
	defaultMaxRounds = 20
	defaultMaxErrors = 3
)

// ActionResult records one executed command for the caller.
type ActionResult struct {
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	OK        bool            `json:"ok"`
	Result    string          `json:"result"`
}

// Service runs natural-language requests through the state machine.
type Service struct {
	client CommandAPI
	store  machine.TaskAPI
	log    *slog.Logger
	opts   Options
}

func NewService(client CommandAPI, store machine.TaskAPI, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = defaultMaxErrors
	}
	return &Service{client: client, store: store, log: log, opts: opts}
}

// Process runs one request: a fresh session, a bounded conversation loop,
// and a final summary. A transport failure aborts the whole request; the
// model call is never retried.
func (s *Service) Process(ctx context.Context, sc scope.Scope, text string) ([]ActionResult, string, string, error) {
	session := machine.NewSession(sc, s.store, s.log)
	tools := CommandSchemas()
	transcript := []map[string]any{
		userMessageItem(initialMessage(text, session.Snapshot("Initial state"))),
	}
	var actions []ActionResult

	for round := 1; round <= s.opts.MaxRounds; round++ {
		s.log.Info("conversation round",
			"session_id", session.ID(), "round", round, "max_rounds", s.opts.MaxRounds)

		inv, err := s.client.NextCommand(ctx, Round{
			Instructions: session.SystemPrompt(),
			Input:        transcript,
			Tools:        tools,
		})
		if err != nil {
			s.log.Error("model call failed", "session_id", session.ID(), "round", round, "error", err)
			return actions, "", session.ID(), err
		}
		if inv == nil {
			s.log.Warn("no command in model reply", "session_id", session.ID(), "round", round)
			break
		}
		if inv.CallID == "" {
			inv.CallID = fmt.Sprintf("call_%d", round)
		}

		result := s.execute(ctx, session, inv)
		actions = append(actions, ActionResult{
			Command:   inv.Name,
			Arguments: inv.Arguments,
			OK:        result.ok,
			Result:    result.resp.Message,
		})
		transcript = append(transcript,
			functionCallItem(inv),
			functionOutputItem(inv.CallID, result.resp.JSON()),
		)

		if session.State().Terminal() {
			s.log.Info("session completed", "session_id", session.ID(), "rounds", round)
			break
		}
		if !result.ok && session.ErrorCount() >= s.opts.MaxErrors {
			s.log.Error("too many command errors, terminating session",
				"session_id", session.ID(), "errors", session.ErrorCount())
			break
		}
	}

	return actions, finalMessage(actions, session), session.ID(), nil
}

type commandResult struct {
	ok   bool
	resp machine.Response
}

func (s *Service) execute(ctx context.Context, session *machine.Session, inv *Invocation) commandResult {
	cmd, err := machine.DecodeCommand(inv.Name, inv.Arguments)
	if err != nil {
		// Malformed calls count toward the error budget like any
		// rejected command, and the model sees why.
		session.RecordFailure()
		s.log.Warn("undecodable command",
			"session_id", session.ID(), "command", inv.Name, "error", err)
		return commandResult{ok: false, resp: session.Reject(
			apperr.Validation("invalid command call %q: %s", inv.Name, err.Error()).Error(),
		)}
	}
	ok, resp := session.Handle(ctx, cmd)
	return commandResult{ok: ok, resp: resp}
}

func initialMessage(text string, snap machine.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n\n", strings.TrimSpace(text))
	fmt.Fprintf(&b, "Available commands: %s\n\n", strings.Join(snap.AvailableCommands, ", "))
	b.WriteString("Open tasks (max 20):\n")
	if len(snap.OpenTasks) == 0 {
		b.WriteString("No open tasks\n")
	}
	for _, task := range snap.OpenTasks {
		fmt.Fprintf(&b, "- [%d] %s (status: %s, urgency: %s)", task.ID, task.Title, task.Status, task.Urgency)
		if task.DueDate != "" {
			fmt.Fprintf(&b, " [due: %s]", task.DueDate)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCurrent state: %s\nPending operations: %d\n", snap.State, len(snap.PendingOperations))
	return b.String()
}

func finalMessage(actions []ActionResult, session *machine.Session) string {
	if len(actions) == 0 {
		return "No actions performed"
	}
	plural := "s"
	if len(actions) == 1 {
		plural = ""
	}
	if session.State().Terminal() {
		return fmt.Sprintf("Successfully performed %d action%s and committed changes", len(actions), plural)
	}
	return fmt.Sprintf("Performed %d action%s but did not complete session", len(actions), plural)
}

func userMessageItem(text string) map[string]any {
	return map[string]any{
		"type": "message",
		"role": "user",
		"content": []map[string]any{
			{"type": "input_text", "text": text},
		},
	}
}

func functionCallItem(inv *Invocation) map[string]any {
	arguments := strings.TrimSpace(string(inv.Arguments))
	if arguments == "" {
		arguments = "{}"
	}
	return map[string]any{
		"type":      "function_call",
		"call_id":   inv.CallID,
		"name":      inv.Name,
		"arguments": arguments,
	}
}

func functionOutputItem(callID, output string) map[string]any {
	return map[string]any{
		"type":    "function_call_output",
		"call_id": callID,
		"output":  output,
	}
}
