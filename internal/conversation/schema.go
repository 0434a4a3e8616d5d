package conversation

// ToolSpec mirrors the Responses API function-tool shape.
type ToolSpec struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

var statusEnum = []string{"todo", "in_progress", "done"}
var urgencyEnum = []string{"low", "normal", "high", "critical"}
var recurrenceEnum = []string{"none", "daily", "weekly", "monthly", "yearly"}

func taskAttrProperties() map[string]any {
	return map[string]any{
		"title":          map[string]any{"type": "string", "description": "Task title"},
		"description":    map[string]any{"type": "string", "description": "Task description"},
		"notes":          map[string]any{"type": "string", "description": "Task notes"},
		"status":         map[string]any{"type": "string", "enum": statusEnum},
		"urgency":        map[string]any{"type": "string", "enum": urgencyEnum},
		"due_date":       map[string]any{"type": "string", "description": "Due date (YYYY-MM-DD)"},
		"deferred_until": map[string]any{"type": "string", "description": "Deferred until date (YYYY-MM-DD)"},
		"recurrence":     map[string]any{"type": "string", "enum": recurrenceEnum},
		"assignee_id":    map[string]any{"type": "integer", "description": "Assigned user ID"},
		"assigned_group_id": map[string]any{
			"type":        "integer",
			"description": "Assigned group ID",
		},
		"prerequisite_ids": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "integer"},
			"description": "Prerequisite task IDs",
		},
	}
}

func emptyParams() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// CommandSchemas returns the fixed tool set exposed to the model. The state
// machine decides per state which of these are actually accepted.
func CommandSchemas() []ToolSpec {
	return []ToolSpec{
		{
			Type:        "function",
			Name:        "record_plan",
			Description: "Record a multi-step plan before executing commands",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"plan": map[string]any{"type": "string", "description": "The plan to execute"},
				},
				"required": []string{"plan"},
			},
		},
		{
			Type:        "function",
			Name:        "select_task",
			Description: "Select an existing or pending task to edit",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": `Task target (e.g., "existing:123" or "pending:1")`,
					},
				},
				"required": []string{"target"},
			},
		},
		{
			Type:        "function",
			Name:        "create_task",
			Description: "Stage a brand new task creation",
			Parameters: map[string]any{
				"type":       "object",
				"properties": taskAttrProperties(),
				"required":   []string{"title"},
			},
		},
		{
			Type:        "function",
			Name:        "update_task_fields",
			Description: "Update fields of the currently selected task",
			Parameters: map[string]any{
				"type":       "object",
				"properties": taskAttrProperties(),
			},
		},
		{
			Type:        "function",
			Name:        "complete_task",
			Description: "Mark the currently selected task as complete",
			Parameters:  emptyParams(),
		},
		{
			Type:        "function",
			Name:        "delete_task",
			Description: "Delete the currently selected task",
			Parameters:  emptyParams(),
		},
		{
			Type:        "function",
			Name:        "exit_editing",
			Description: "Exit task editing mode and return to awaiting command",
			Parameters:  emptyParams(),
		},
		{
			Type:        "function",
			Name:        "discard_all",
			Description: "Discard all staged operations and start over",
			Parameters:  emptyParams(),
		},
		{
			Type:        "function",
			Name:        "complete_session",
			Description: "Commit all staged operations and end session (MUST be final command)",
			Parameters:  emptyParams(),
		},
	}
}
