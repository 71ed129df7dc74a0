package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taskdeck-io/taskdeck"
)

// ErrIdentityUnresolved is returned by role-gated operations when the
// session has no resolved identity to decide against.
var ErrIdentityUnresolved = errors.New("identity unresolved")

// Workflow drives the task lifecycle over an authenticated session. It keeps
// a local copy of the last task listing and folds every mutation's server
// response back into it verbatim, so the copy never drifts from what the
// server confirmed. Like Session, it is driven from a single goroutine.
type Workflow struct {
	client  *Client
	session *Session

	tasks  []taskdeck.Task
	filter taskdeck.DueFilter
}

func NewWorkflow(c *Client, s *Session) *Workflow {
	return &Workflow{client: c, session: s}
}

// Tasks fetches the task listing, optionally narrowed to a due-date bucket,
// and replaces the local copy wholesale.
func (w *Workflow) Tasks(ctx context.Context, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	tasks, err := w.client.Tasks.Tasks(w.session.bind(ctx), w.session.auth(), filter)
	if err != nil {
		return nil, w.session.fail(err)
	}

	w.tasks = tasks
	w.filter = filter
	return tasks, nil
}

// Cached returns the local copy of the last listing without a network call.
func (w *Workflow) Cached() []taskdeck.Task {
	return w.tasks
}

func (w *Workflow) Create(ctx context.Context, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}
	if err := w.require(taskdeck.Role.CanCreateTask); err != nil {
		return taskdeck.Task{}, err
	}

	t, err := w.client.Tasks.CreateTask(w.session.bind(ctx), w.session.auth(), draft)
	if err != nil {
		return taskdeck.Task{}, w.session.fail(err)
	}

	// The cache mirrors the last-requested listing; a new task only joins
	// it when it belongs to that listing's bucket.
	if w.filter.Match(t, time.Now()) {
		w.tasks = append(w.tasks, t)
	}
	return t, nil
}

func (w *Workflow) Update(ctx context.Context, taskID uint64, title, description string) (taskdeck.Task, error) {
	if strings.TrimSpace(title) == "" || taskID == 0 {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}
	if err := w.require(taskdeck.Role.CanEditTask); err != nil {
		return taskdeck.Task{}, err
	}

	t, err := w.client.Tasks.UpdateTask(w.session.bind(ctx), w.session.auth(), taskID, title, description)
	if err != nil {
		return taskdeck.Task{}, w.session.fail(err)
	}

	w.replace(t)
	return t, nil
}

// Transition requests a lifecycle action. Pause is the only action carrying
// extra input, and an empty reason is refused before any network traffic.
func (w *Workflow) Transition(ctx context.Context, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	if taskID == 0 {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}
	if action == taskdeck.ActionPause && strings.TrimSpace(reason) == "" {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}
	if action == taskdeck.ActionApprove || action == taskdeck.ActionReject {
		if err := w.require(taskdeck.Role.CanReviewTasks); err != nil {
			return taskdeck.Task{}, err
		}
	}

	t, err := w.client.Tasks.Transition(w.session.bind(ctx), w.session.auth(), taskID, action, reason)
	if err != nil {
		return taskdeck.Task{}, w.session.fail(err)
	}

	w.replace(t)
	return t, nil
}

// Delete removes a task, dropping it from the local copy only after the
// server confirms the deletion.
func (w *Workflow) Delete(ctx context.Context, taskID uint64) error {
	if taskID == 0 {
		return taskdeck.ErrInvalidArgument
	}
	if err := w.require(taskdeck.Role.CanDeleteTask); err != nil {
		return err
	}

	if _, err := w.client.Tasks.DeleteTask(w.session.bind(ctx), w.session.auth(), taskID); err != nil {
		return w.session.fail(err)
	}

	w.remove(taskID)
	return nil
}

func (w *Workflow) Pending(ctx context.Context) ([]taskdeck.Task, error) {
	if err := w.require(taskdeck.Role.CanReviewTasks); err != nil {
		return nil, err
	}

	tasks, err := w.client.Tasks.PendingTasks(w.session.bind(ctx), w.session.auth())
	if err != nil {
		return nil, w.session.fail(err)
	}
	return tasks, nil
}

func (w *Workflow) AuditLogs(ctx context.Context) ([]taskdeck.AuditLog, error) {
	if err := w.require(taskdeck.Role.CanViewAdminArea); err != nil {
		return nil, err
	}

	logs, err := w.client.Tasks.AuditLogs(w.session.bind(ctx), w.session.auth())
	if err != nil {
		return nil, w.session.fail(err)
	}
	return logs, nil
}

func (w *Workflow) AdminDashboard(ctx context.Context) (string, error) {
	if err := w.require(taskdeck.Role.CanViewAdminArea); err != nil {
		return "", err
	}

	msg, err := w.client.Tasks.AdminDashboard(w.session.bind(ctx), w.session.auth())
	if err != nil {
		return "", w.session.fail(err)
	}
	return msg, nil
}

func (w *Workflow) ManagerDashboard(ctx context.Context) (string, error) {
	if err := w.require(taskdeck.Role.CanReviewTasks); err != nil {
		return "", err
	}

	msg, err := w.client.Tasks.ManagerDashboard(w.session.bind(ctx), w.session.auth())
	if err != nil {
		return "", w.session.fail(err)
	}
	return msg, nil
}

// require checks a role predicate against the resolved identity before any
// network traffic. The server still enforces its own gate.
func (w *Workflow) require(allowed func(taskdeck.Role) bool) error {
	u, ok := w.session.Identity()
	if !ok {
		return ErrIdentityUnresolved
	}
	if !allowed(u.Role) {
		return taskdeck.ErrNotAuthorized
	}
	return nil
}

func (w *Workflow) replace(t taskdeck.Task) {
	for i := range w.tasks {
		if w.tasks[i].ID == t.ID {
			w.tasks[i] = t
			return
		}
	}
}

func (w *Workflow) remove(taskID uint64) {
	for i := range w.tasks {
		if w.tasks[i].ID == taskID {
			w.tasks = append(w.tasks[:i], w.tasks[i+1:]...)
			return
		}
	}
}

// ParseDueDate reads a due date from the caller, accepting either a full
// RFC 3339 timestamp or a bare calendar date, which is taken as midnight in
// the local time zone.
func ParseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, taskdeck.ErrInvalidArgument
	}
	return &t, nil
}
