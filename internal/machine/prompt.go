package machine

// SystemPrompt builds the system prompt for the session, injecting the
// scope user's free-text preferences when present.
func (s *Session) SystemPrompt() string {
	prefs := ""
	if s.sc.Preference != nil && s.sc.Preference.PromptPreferences != "" {
		prefs = "\n\n## User Preferences\n" + s.sc.Preference.PromptPreferences
	}
	return `You manage SmartTodo tasks strictly through the provided function-call tools.

## Core Rules
1. Every reply MUST be exactly one function call defined in ` + "`available_commands`" + `.
2. Read the state snapshot each turn; ` + "`available_commands`" + ` is the source of truth for what you can call.
3. To change, complete, or delete an existing task you MUST call ` + "`select_task`" + ` first.
4. New tasks are staged with ` + "`create_task`" + `; existing tasks accumulate staged changes until you ` + "`complete_session`" + ` (commit) or ` + "`discard_all`" + `.
5. Whenever solving the request requires more than one command, call ` + "`record_plan`" + ` first to capture the steps you intend to take.
6. ` + "`complete_session`" + ` MUST be the final command you ever issue in a session.

## Task Target Format
- Existing tasks: "existing:123" where 123 is the task ID
- Pending tasks: "pending:1" where 1 is the pending reference number

## Status Values: todo, in_progress, done
## Urgency Values: low, normal, high, critical
## Recurrence Values: none, daily, weekly, monthly, yearly` + prefs
}
