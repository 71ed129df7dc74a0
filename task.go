package taskdeck

import (
	"errors"
	"time"
)

// TaskStatus is the workflow status a task moves through once it has been
// ended and handed over for review.
type TaskStatus string

const (
	TaskStatusActive          TaskStatus = "active"
	TaskStatusPendingApproval TaskStatus = "pending_approval"
	TaskStatusApproved        TaskStatus = "approved"
)

type Task struct {
	ID            uint64     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	UserID        uint64     `json:"user_id"`
	Status        TaskStatus `json:"status"`
	IsComplete    bool       `json:"is_complete"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Recurrence    string     `json:"recurrence,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	PauseReason   string     `json:"pause_reason,omitempty"`
	ResumedAt     *time.Time `json:"resumed_at,omitempty"`
}

// TaskDraft holds the caller-supplied fields of a new task. Schedule and
// recurrence are fixed at creation time and cannot be edited afterwards.
type TaskDraft struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Recurrence    string     `json:"recurrence,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
}

// TaskState is the running condition of a task, derived from its
// timestamps. It is independent of IsComplete, which may be toggled from
// any state.
type TaskState int

const (
	NotStarted TaskState = iota
	Running
	Paused
	Ended
)

func (s TaskState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	}
	return "not_started"
}

// State derives the running condition from the lifecycle timestamps. A task
// is paused when its last pause is more recent than its last resume.
func (t Task) State() TaskState {
	if t.EndTime != nil {
		return Ended
	}
	if t.PausedAt != nil && (t.ResumedAt == nil || t.PausedAt.After(*t.ResumedAt)) {
		return Paused
	}
	if t.StartTime != nil {
		return Running
	}
	return NotStarted
}

// Action is a lifecycle transition requested against a task.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionEnd      Action = "end"
	ActionComplete Action = "complete"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStart, ActionPause, ActionResume, ActionEnd, ActionComplete, ActionApprove, ActionReject:
		return Action(s), nil
	}
	return "", ErrInvalidArgument
}

// DueFilter selects tasks by due-date bucket relative to the current time.
type DueFilter string

const (
	DueAny      DueFilter = ""
	DueOverdue  DueFilter = "overdue"
	DueToday    DueFilter = "today"
	DueUpcoming DueFilter = "upcoming"
)

func ParseDueFilter(s string) (DueFilter, error) {
	switch DueFilter(s) {
	case DueAny, DueOverdue, DueToday, DueUpcoming:
		return DueFilter(s), nil
	}
	return DueAny, ErrInvalidArgument
}

// Match reports whether the task falls into the filter's bucket at the
// given instant. Every bucket except DueAny requires a due date; "today"
// compares calendar dates in now's location.
func (f DueFilter) Match(t Task, now time.Time) bool {
	if f == DueAny {
		return true
	}
	if t.DueDate == nil {
		return false
	}
	due := t.DueDate.In(now.Location())

	switch f {
	case DueOverdue:
		return due.Before(now)
	case DueToday:
		y1, m1, d1 := due.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case DueUpcoming:
		return due.After(now)
	}
	return false
}

type TaskRepository interface {
	Create(task Task) (Task, error)
	FindAll() ([]Task, error)
	FindByStatus(status TaskStatus) ([]Task, error)
	Find(taskID uint64) (Task, error)
	Update(task Task) (Task, error)
	Delete(taskID uint64) (bool, error)
}

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
