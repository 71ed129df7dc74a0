package taskservice

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
)

type Service interface {
	Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error)
	CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error)
	UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error)
	Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error)
	DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (bool, error)
	PendingTasks(ctx context.Context, a taskdeck.Auth) ([]taskdeck.Task, error)
	AuditLogs(ctx context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error)
	AdminDashboard(ctx context.Context, a taskdeck.Auth) (string, error)
	ManagerDashboard(ctx context.Context, a taskdeck.Auth) (string, error)
}

func New(t taskdeck.TaskRepository, al taskdeck.AuditLogRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t, al)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	tasks  taskdeck.TaskRepository
	audits taskdeck.AuditLogRepository
}

func NewBasicService(t taskdeck.TaskRepository, al taskdeck.AuditLogRepository) Service {
	return basicService{tasks: t, audits: al}
}

// Tasks lists the team-wide task collection, narrowed to a due-date bucket
// when a filter is given. The bucket is evaluated here, against the clock,
// so the filter semantics have exactly one home.
func (s basicService) Tasks(_ context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	if a.UserID == 0 {
		return nil, taskdeck.ErrInvalidArgument
	}

	all, err := s.tasks.FindAll()
	if err != nil {
		return nil, err
	}
	if filter == taskdeck.DueAny {
		return all, nil
	}

	now := time.Now()
	matched := make([]taskdeck.Task, 0, len(all))
	for _, t := range all {
		if filter.Match(t, now) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func (s basicService) CreateTask(_ context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	if strings.TrimSpace(draft.Title) == "" || a.UserID == 0 {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}

	return s.tasks.Create(taskdeck.Task{
		Title:         draft.Title,
		Description:   draft.Description,
		UserID:        a.UserID,
		Status:        taskdeck.TaskStatusActive,
		DueDate:       draft.DueDate,
		Recurrence:    draft.Recurrence,
		RecurrenceEnd: draft.RecurrenceEnd,
	})
}

// UpdateTask edits title and description only; schedule and recurrence are
// immutable after creation.
func (s basicService) UpdateTask(_ context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error) {
	if strings.TrimSpace(title) == "" || taskID == 0 {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}

	t, err := s.tasks.Find(taskID)
	if err != nil {
		return taskdeck.Task{}, err
	}

	t.Title = title
	t.Description = description

	return s.tasks.Update(t)
}

func (s basicService) Transition(_ context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	if taskID == 0 {
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}

	t, err := s.tasks.Find(taskID)
	if err != nil {
		return taskdeck.Task{}, err
	}

	now := time.Now().UTC()

	switch action {
	case taskdeck.ActionStart:
		if t.State() != taskdeck.NotStarted {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.StartTime = &now

	case taskdeck.ActionPause:
		if strings.TrimSpace(reason) == "" {
			return taskdeck.Task{}, taskdeck.ErrInvalidArgument
		}
		if t.State() != taskdeck.Running {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.PausedAt = &now
		t.PauseReason = reason

	case taskdeck.ActionResume:
		if t.State() != taskdeck.Paused {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.ResumedAt = &now

	case taskdeck.ActionEnd:
		if s := t.State(); s != taskdeck.Running && s != taskdeck.Paused {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.EndTime = &now
		t.Status = taskdeck.TaskStatusPendingApproval

	case taskdeck.ActionComplete:
		// Deliberately unguarded: completion is a toggle, orthogonal to
		// the running condition.
		t.IsComplete = !t.IsComplete
		if t.IsComplete {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}

	case taskdeck.ActionApprove:
		if t.Status != taskdeck.TaskStatusPendingApproval {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.Status = taskdeck.TaskStatusApproved

	case taskdeck.ActionReject:
		if t.Status != taskdeck.TaskStatusPendingApproval {
			return taskdeck.Task{}, taskdeck.ErrInvalidTransition
		}
		t.Status = taskdeck.TaskStatusActive
		t.EndTime = nil

	default:
		return taskdeck.Task{}, taskdeck.ErrInvalidArgument
	}

	return s.tasks.Update(t)
}

func (s basicService) DeleteTask(_ context.Context, a taskdeck.Auth, taskID uint64) (bool, error) {
	if taskID == 0 {
		return false, taskdeck.ErrInvalidArgument
	}

	if _, err := s.tasks.Find(taskID); err != nil {
		return false, err
	}

	return s.tasks.Delete(taskID)
}

func (s basicService) PendingTasks(_ context.Context, a taskdeck.Auth) ([]taskdeck.Task, error) {
	return s.tasks.FindByStatus(taskdeck.TaskStatusPendingApproval)
}

func (s basicService) AuditLogs(_ context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error) {
	return s.audits.FindAll()
}

func (s basicService) AdminDashboard(_ context.Context, a taskdeck.Auth) (string, error) {
	return "Welcome to the Admin Dashboard", nil
}

func (s basicService) ManagerDashboard(_ context.Context, a taskdeck.Auth) (string, error) {
	return "Welcome to the Manager Dashboard", nil
}
