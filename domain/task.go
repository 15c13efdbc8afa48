package domain

import (
	"fmt"
	"time"
)

// Status is the board column a task lives in.
type Status string

const (
	StatusPermanent  Status = "permanent"
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every board column in display order.
var Statuses = []Status{StatusPermanent, StatusBacklog, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusPermanent, StatusBacklog, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TaskType classifies what kind of agent work a task represents.
type TaskType string

const (
	TypeHealthCheck TaskType = "health_check"
	TypeBackup      TaskType = "backup"
	TypeMonitoring  TaskType = "monitoring"
	TypeCustom      TaskType = "custom"
)

func (t TaskType) Valid() bool {
	switch t {
	case TypeHealthCheck, TypeBackup, TypeMonitoring, TypeCustom:
		return true
	}
	return false
}

// Task represents a single board item. The backend is authoritative; clients
// hold a possibly stale copy.
type Task struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	TaskType    TaskType  `json:"task_type"`
	IsRecurring int       `json:"is_recurring"` // 0 = one-off, >0 = interval in days
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the enum fields and recurrence interval.
func (t Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, t.Priority)
	}
	if !t.TaskType.Valid() {
		return fmt.Errorf("%w: invalid task type %q", ErrValidation, t.TaskType)
	}
	if t.IsRecurring < 0 {
		return fmt.Errorf("%w: is_recurring must not be negative", ErrValidation)
	}
	return nil
}

// TaskUpdate carries a partial update for a task. Nil fields are untouched.
type TaskUpdate struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *Status   `json:"status"`
	Priority    *Priority `json:"priority"`
	TaskType    *TaskType `json:"task_type"`
	IsRecurring *int      `json:"is_recurring"`
}

// Empty reports whether the update would change nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.TaskType == nil && u.IsRecurring == nil
}

func (u TaskUpdate) Validate() error {
	if u.Title != nil && *u.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, *u.Status)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, *u.Priority)
	}
	if u.TaskType != nil && !u.TaskType.Valid() {
		return fmt.Errorf("%w: invalid task type %q", ErrValidation, *u.TaskType)
	}
	if u.IsRecurring != nil && *u.IsRecurring < 0 {
		return fmt.Errorf("%w: is_recurring must not be negative", ErrValidation)
	}
	return nil
}

// ApplyTo merges the update into the given task.
func (u TaskUpdate) ApplyTo(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.TaskType != nil {
		t.TaskType = *u.TaskType
	}
	if u.IsRecurring != nil {
		t.IsRecurring = *u.IsRecurring
	}
}
