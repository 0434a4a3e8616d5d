package db

import "time"

// Task status values.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task urgency values.
const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// Task recurrence values.
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
	RecurrenceYearly  = "yearly"
)

func ValidStatus(s string) bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

func ValidUrgency(s string) bool {
	return s == UrgencyLow || s == UrgencyNormal || s == UrgencyHigh || s == UrgencyCritical
}

func ValidRecurrence(s string) bool {
	switch s {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

type User struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }

type UserPreference struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID            int64     `gorm:"column:user_id;not null;uniqueIndex"`
	PromptPreferences string    `gorm:"column:prompt_preferences;not null;default:''"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (UserPreference) TableName() string { return "user_preferences" }

type Group struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name            string    `gorm:"column:name;not null;uniqueIndex"`
	Description     string    `gorm:"column:description;not null;default:''"`
	CreatedByUserID int64     `gorm:"column:created_by_user_id;not null;index"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Group) TableName() string { return "groups" }

// GroupMembership references exactly one of a user or a nested group.
type GroupMembership struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID       int64     `gorm:"column:group_id;not null;index"`
	UserID        *int64    `gorm:"column:user_id;index"`
	MemberGroupID *int64    `gorm:"column:member_group_id;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (GroupMembership) TableName() string { return "group_memberships" }

// Task is owned by UserID; AssigneeID and AssignedGroupID are mutually
// exclusive. Dates are calendar dates stored as YYYY-MM-DD strings so SQLite
// comparisons stay lexicographic.
type Task struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          int64     `gorm:"column:user_id;not null;index"`
	AssigneeID      *int64    `gorm:"column:assignee_id;index"`
	AssignedGroupID *int64    `gorm:"column:assigned_group_id;index"`
	Title           string    `gorm:"column:title;not null"`
	Description     string    `gorm:"column:description;not null;default:''"`
	Notes           string    `gorm:"column:notes;not null;default:''"`
	Status          string    `gorm:"column:status;not null;default:'todo';index"`
	Urgency         string    `gorm:"column:urgency;not null;default:'normal'"`
	DueDate         string    `gorm:"column:due_date;not null;default:'';index"`
	DeferredUntil   string    `gorm:"column:deferred_until;not null;default:''"`
	Recurrence      string    `gorm:"column:recurrence;not null;default:'none'"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Task) TableName() string { return "tasks" }

// TaskDependency is a directed edge: BlockedTaskID depends on PrereqTaskID.
type TaskDependency struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	BlockedTaskID int64     `gorm:"column:blocked_task_id;not null;index"`
	PrereqTaskID  int64     `gorm:"column:prereq_task_id;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (TaskDependency) TableName() string { return "task_dependencies" }
