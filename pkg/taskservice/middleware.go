package taskservice

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/taskdeck-io/taskdeck"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) (t []taskdeck.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Tasks",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"filter", string(filter),
			"err", err,
		)
	}()
	return mw.next.Tasks(ctx, a, filter)
}

func (mw loggingMiddleware) CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (t taskdeck.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateTask",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"title", draft.Title,
			"err", err,
		)
	}()
	return mw.next.CreateTask(ctx, a, draft)
}

func (mw loggingMiddleware) UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (t taskdeck.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "UpdateTask",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"task_id", taskID,
			"title", title,
			"err", err,
		)
	}()
	return mw.next.UpdateTask(ctx, a, taskID, title, description)
}

func (mw loggingMiddleware) Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (t taskdeck.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Transition",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"task_id", taskID,
			"action", string(action),
			"err", err,
		)
	}()
	return mw.next.Transition(ctx, a, taskID, action, reason)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (result bool, err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteTask",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"task_id", taskID,
			"result", result,
			"err", err,
		)
	}()
	return mw.next.DeleteTask(ctx, a, taskID)
}

func (mw loggingMiddleware) PendingTasks(ctx context.Context, a taskdeck.Auth) (t []taskdeck.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "PendingTasks",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"err", err,
		)
	}()
	return mw.next.PendingTasks(ctx, a)
}

func (mw loggingMiddleware) AuditLogs(ctx context.Context, a taskdeck.Auth) (l []taskdeck.AuditLog, err error) {
	defer func() {
		mw.logger.Log(
			"method", "AuditLogs",
			"access_uuid", a.AccessUUID,
			"user_id", a.UserID,
			"err", err,
		)
	}()
	return mw.next.AuditLogs(ctx, a)
}

func (mw loggingMiddleware) AdminDashboard(ctx context.Context, a taskdeck.Auth) (msg string, err error) {
	defer func() {
		mw.logger.Log(
			"method", "AdminDashboard",
			"user_id", a.UserID,
			"err", err,
		)
	}()
	return mw.next.AdminDashboard(ctx, a)
}

func (mw loggingMiddleware) ManagerDashboard(ctx context.Context, a taskdeck.Auth) (msg string, err error) {
	defer func() {
		mw.logger.Log(
			"method", "ManagerDashboard",
			"user_id", a.UserID,
			"err", err,
		)
	}()
	return mw.next.ManagerDashboard(ctx, a)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) instrument(method string, begin time.Time) {
	mw.requestCount.With("method", method).Add(1)
	mw.requestLatency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	defer mw.instrument("tasks", time.Now())
	return mw.next.Tasks(ctx, a, filter)
}

func (mw instrumentingMiddleware) CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	defer mw.instrument("create_task", time.Now())
	return mw.next.CreateTask(ctx, a, draft)
}

func (mw instrumentingMiddleware) UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error) {
	defer mw.instrument("update_task", time.Now())
	return mw.next.UpdateTask(ctx, a, taskID, title, description)
}

func (mw instrumentingMiddleware) Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	defer mw.instrument("transition", time.Now())
	return mw.next.Transition(ctx, a, taskID, action, reason)
}

func (mw instrumentingMiddleware) DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (bool, error) {
	defer mw.instrument("delete_task", time.Now())
	return mw.next.DeleteTask(ctx, a, taskID)
}

func (mw instrumentingMiddleware) PendingTasks(ctx context.Context, a taskdeck.Auth) ([]taskdeck.Task, error) {
	defer mw.instrument("pending_tasks", time.Now())
	return mw.next.PendingTasks(ctx, a)
}

func (mw instrumentingMiddleware) AuditLogs(ctx context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error) {
	defer mw.instrument("audit_logs", time.Now())
	return mw.next.AuditLogs(ctx, a)
}

func (mw instrumentingMiddleware) AdminDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	defer mw.instrument("admin_dashboard", time.Now())
	return mw.next.AdminDashboard(ctx, a)
}

func (mw instrumentingMiddleware) ManagerDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	defer mw.instrument("manager_dashboard", time.Now())
	return mw.next.ManagerDashboard(ctx, a)
}

// AuthorizingMiddleware enforces the role predicates against the caller's
// stored user record, not the token claim, so a role change takes effect on
// the next request. Refused calls are written to the audit trail.
func AuthorizingMiddleware(users taskdeck.UserRepository, audits taskdeck.AuditLogRepository) Middleware {
	return func(next Service) Service {
		return authorizingMiddleware{users, audits, next}
	}
}

type authorizingMiddleware struct {
	users  taskdeck.UserRepository
	audits taskdeck.AuditLogRepository
	next   Service
}

func (mw authorizingMiddleware) authorize(a taskdeck.Auth, allowed func(taskdeck.Role) bool, target string) (taskdeck.User, error) {
	u, err := mw.users.Find(a.UserID)
	if err != nil {
		return taskdeck.User{}, err
	}

	if allowed != nil && !allowed(u.Role) {
		mw.audits.Append(taskdeck.AuditLog{
			UserID:    u.ID,
			UserEmail: u.Email,
			Action:    "Unauthorized access attempt",
			Target:    target,
			Timestamp: time.Now().UTC(),
		})
		return taskdeck.User{}, taskdeck.ErrNotAuthorized
	}

	return u, nil
}

func (mw authorizingMiddleware) Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	if _, err := mw.authorize(a, nil, ""); err != nil {
		return nil, err
	}
	return mw.next.Tasks(ctx, a, filter)
}

func (mw authorizingMiddleware) CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanCreateTask, "tasks"); err != nil {
		return taskdeck.Task{}, err
	}
	return mw.next.CreateTask(ctx, a, draft)
}

func (mw authorizingMiddleware) UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanEditTask, fmt.Sprintf("#%d", taskID)); err != nil {
		return taskdeck.Task{}, err
	}
	return mw.next.UpdateTask(ctx, a, taskID, title, description)
}

func (mw authorizingMiddleware) Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	var allowed func(taskdeck.Role) bool
	if action == taskdeck.ActionApprove || action == taskdeck.ActionReject {
		allowed = taskdeck.Role.CanReviewTasks
	}
	if _, err := mw.authorize(a, allowed, fmt.Sprintf("#%d", taskID)); err != nil {
		return taskdeck.Task{}, err
	}
	return mw.next.Transition(ctx, a, taskID, action, reason)
}

func (mw authorizingMiddleware) DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (bool, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanDeleteTask, fmt.Sprintf("#%d", taskID)); err != nil {
		return false, err
	}
	return mw.next.DeleteTask(ctx, a, taskID)
}

func (mw authorizingMiddleware) PendingTasks(ctx context.Context, a taskdeck.Auth) ([]taskdeck.Task, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanReviewTasks, "tasks/pending"); err != nil {
		return nil, err
	}
	return mw.next.PendingTasks(ctx, a)
}

func (mw authorizingMiddleware) AuditLogs(ctx context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanViewAdminArea, "admin/logs"); err != nil {
		return nil, err
	}
	return mw.next.AuditLogs(ctx, a)
}

func (mw authorizingMiddleware) AdminDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanViewAdminArea, "admin/dashboard"); err != nil {
		return "", err
	}
	return mw.next.AdminDashboard(ctx, a)
}

func (mw authorizingMiddleware) ManagerDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	if _, err := mw.authorize(a, taskdeck.Role.CanReviewTasks, "manager/dashboard"); err != nil {
		return "", err
	}
	return mw.next.ManagerDashboard(ctx, a)
}

// AuditingMiddleware records successful mutations in the audit trail. Reads
// and the plain lifecycle transitions pass through unrecorded, matching the
// actions the admin log viewer reports on.
func AuditingMiddleware(users taskdeck.UserRepository, audits taskdeck.AuditLogRepository) Middleware {
	return func(next Service) Service {
		return auditingMiddleware{users, audits, next}
	}
}

type auditingMiddleware struct {
	users  taskdeck.UserRepository
	audits taskdeck.AuditLogRepository
	next   Service
}

func (mw auditingMiddleware) record(a taskdeck.Auth, action, target string) {
	entry := taskdeck.AuditLog{
		UserID:    a.UserID,
		Action:    action,
		Target:    target,
		Timestamp: time.Now().UTC(),
	}
	if u, err := mw.users.Find(a.UserID); err == nil {
		entry.UserEmail = u.Email
	}
	mw.audits.Append(entry)
}

func (mw auditingMiddleware) Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	return mw.next.Tasks(ctx, a, filter)
}

func (mw auditingMiddleware) CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	t, err := mw.next.CreateTask(ctx, a, draft)
	if err == nil {
		mw.record(a, "Created Task", t.Title)
	}
	return t, err
}

func (mw auditingMiddleware) UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error) {
	t, err := mw.next.UpdateTask(ctx, a, taskID, title, description)
	if err == nil {
		mw.record(a, "Edited Task", fmt.Sprintf("#%d", taskID))
	}
	return t, err
}

func (mw auditingMiddleware) Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	t, err := mw.next.Transition(ctx, a, taskID, action, reason)
	if err == nil {
		switch action {
		case taskdeck.ActionEnd:
			mw.record(a, "Ended (pending)", fmt.Sprintf("#%d", taskID))
		case taskdeck.ActionApprove:
			mw.record(a, "Approved Task", fmt.Sprintf("#%d", taskID))
		case taskdeck.ActionReject:
			mw.record(a, "Rejected Task", fmt.Sprintf("#%d", taskID))
		}
	}
	return t, err
}

func (mw auditingMiddleware) DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (bool, error) {
	result, err := mw.next.DeleteTask(ctx, a, taskID)
	if err == nil {
		mw.record(a, "Deleted Task", fmt.Sprintf("#%d", taskID))
	}
	return result, err
}

func (mw auditingMiddleware) PendingTasks(ctx context.Context, a taskdeck.Auth) ([]taskdeck.Task, error) {
	return mw.next.PendingTasks(ctx, a)
}

func (mw auditingMiddleware) AuditLogs(ctx context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error) {
	return mw.next.AuditLogs(ctx, a)
}

func (mw auditingMiddleware) AdminDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	return mw.next.AdminDashboard(ctx, a)
}

func (mw auditingMiddleware) ManagerDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	return mw.next.ManagerDashboard(ctx, a)
}
