package taskendpoint

import (
	"context"
	"fmt"
	"strconv"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/pkg/taskservice"
)

type Set struct {
	TasksEndpoint            endpoint.Endpoint
	CreateTaskEndpoint       endpoint.Endpoint
	UpdateTaskEndpoint       endpoint.Endpoint
	TransitionEndpoint       endpoint.Endpoint
	DeleteTaskEndpoint       endpoint.Endpoint
	PendingTasksEndpoint     endpoint.Endpoint
	AuditLogsEndpoint        endpoint.Endpoint
	AdminDashboardEndpoint   endpoint.Endpoint
	ManagerDashboardEndpoint endpoint.Endpoint
}

func New(svc taskservice.Service, logger log.Logger) Set {
	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = MakeTasksEndpoint(svc)
		tasksEndpoint = LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint)
	}
	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = MakeCreateTaskEndpoint(svc)
		createTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint)
	}
	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = MakeUpdateTaskEndpoint(svc)
		updateTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateTask"))(updateTaskEndpoint)
	}
	var transitionEndpoint endpoint.Endpoint
	{
		transitionEndpoint = MakeTransitionEndpoint(svc)
		transitionEndpoint = LoggingMiddleware(log.With(logger, "method", "Transition"))(transitionEndpoint)
	}
	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = MakeDeleteTaskEndpoint(svc)
		deleteTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint)
	}
	var pendingTasksEndpoint endpoint.Endpoint
	{
		pendingTasksEndpoint = MakePendingTasksEndpoint(svc)
		pendingTasksEndpoint = LoggingMiddleware(log.With(logger, "method", "PendingTasks"))(pendingTasksEndpoint)
	}
	var auditLogsEndpoint endpoint.Endpoint
	{
		auditLogsEndpoint = MakeAuditLogsEndpoint(svc)
		auditLogsEndpoint = LoggingMiddleware(log.With(logger, "method", "AuditLogs"))(auditLogsEndpoint)
	}
	var adminDashboardEndpoint endpoint.Endpoint
	{
		adminDashboardEndpoint = MakeAdminDashboardEndpoint(svc)
		adminDashboardEndpoint = LoggingMiddleware(log.With(logger, "method", "AdminDashboard"))(adminDashboardEndpoint)
	}
	var managerDashboardEndpoint endpoint.Endpoint
	{
		managerDashboardEndpoint = MakeManagerDashboardEndpoint(svc)
		managerDashboardEndpoint = LoggingMiddleware(log.With(logger, "method", "ManagerDashboard"))(managerDashboardEndpoint)
	}

	return Set{
		TasksEndpoint:            tasksEndpoint,
		CreateTaskEndpoint:       createTaskEndpoint,
		UpdateTaskEndpoint:       updateTaskEndpoint,
		TransitionEndpoint:       transitionEndpoint,
		DeleteTaskEndpoint:       deleteTaskEndpoint,
		PendingTasksEndpoint:     pendingTasksEndpoint,
		AuditLogsEndpoint:        auditLogsEndpoint,
		AdminDashboardEndpoint:   adminDashboardEndpoint,
		ManagerDashboardEndpoint: managerDashboardEndpoint,
	}
}

func (s Set) Tasks(ctx context.Context, a taskdeck.Auth, filter taskdeck.DueFilter) ([]taskdeck.Task, error) {
	resp, err := s.TasksEndpoint(ctx, TasksRequest{Filter: filter})
	if err != nil {
		return nil, err
	}
	response := resp.(TasksResponse)
	return response.Tasks, response.Err
}

func (s Set) CreateTask(ctx context.Context, a taskdeck.Auth, draft taskdeck.TaskDraft) (taskdeck.Task, error) {
	resp, err := s.CreateTaskEndpoint(ctx, CreateTaskRequest{Draft: draft})
	if err != nil {
		return taskdeck.Task{}, err
	}
	response := resp.(CreateTaskResponse)
	return response.Task, response.Err
}

func (s Set) UpdateTask(ctx context.Context, a taskdeck.Auth, taskID uint64, title, description string) (taskdeck.Task, error) {
	resp, err := s.UpdateTaskEndpoint(
		ctx,
		UpdateTaskRequest{
			TaskID:      taskID,
			Title:       title,
			Description: description,
		},
	)
	if err != nil {
		return taskdeck.Task{}, err
	}
	response := resp.(UpdateTaskResponse)
	return response.Task, response.Err
}

func (s Set) Transition(ctx context.Context, a taskdeck.Auth, taskID uint64, action taskdeck.Action, reason string) (taskdeck.Task, error) {
	resp, err := s.TransitionEndpoint(
		ctx,
		TransitionRequest{
			TaskID: taskID,
			Action: action,
			Reason: reason,
		},
	)
	if err != nil {
		return taskdeck.Task{}, err
	}
	response := resp.(TransitionResponse)
	return response.Task, response.Err
}

func (s Set) DeleteTask(ctx context.Context, a taskdeck.Auth, taskID uint64) (bool, error) {
	resp, err := s.DeleteTaskEndpoint(ctx, DeleteTaskRequest{TaskID: taskID})
	if err != nil {
		return false, err
	}
	response := resp.(DeleteTaskResponse)
	return response.Result, response.Err
}

func (s Set) PendingTasks(ctx context.Context, a taskdeck.Auth) ([]taskdeck.Task, error) {
	resp, err := s.PendingTasksEndpoint(ctx, PendingTasksRequest{})
	if err != nil {
		return nil, err
	}
	response := resp.(PendingTasksResponse)
	return response.Tasks, response.Err
}

func (s Set) AuditLogs(ctx context.Context, a taskdeck.Auth) ([]taskdeck.AuditLog, error) {
	resp, err := s.AuditLogsEndpoint(ctx, AuditLogsRequest{})
	if err != nil {
		return nil, err
	}
	response := resp.(AuditLogsResponse)
	return response.Logs, response.Err
}

func (s Set) AdminDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	resp, err := s.AdminDashboardEndpoint(ctx, DashboardRequest{})
	if err != nil {
		return "", err
	}
	response := resp.(DashboardResponse)
	return response.Message, response.Err
}

func (s Set) ManagerDashboard(ctx context.Context, a taskdeck.Auth) (string, error) {
	resp, err := s.ManagerDashboardEndpoint(ctx, DashboardRequest{})
	if err != nil {
		return "", err
	}
	response := resp.(DashboardResponse)
	return response.Message, response.Err
}

func MakeTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return TasksResponse{Err: err}, nil
		}

		req := request.(TasksRequest)
		t, err := s.Tasks(ctx, auth, req.Filter)
		return TasksResponse{Tasks: t, Err: err}, nil
	}
}

func MakeCreateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return CreateTaskResponse{Err: err}, nil
		}

		req := request.(CreateTaskRequest)
		t, err := s.CreateTask(ctx, auth, req.Draft)
		return CreateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeUpdateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return UpdateTaskResponse{Err: err}, nil
		}

		req := request.(UpdateTaskRequest)
		t, err := s.UpdateTask(ctx, auth, req.TaskID, req.Title, req.Description)
		return UpdateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeTransitionEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return TransitionResponse{Err: err}, nil
		}

		req := request.(TransitionRequest)
		t, err := s.Transition(ctx, auth, req.TaskID, req.Action, req.Reason)
		return TransitionResponse{Task: t, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return DeleteTaskResponse{Err: err}, nil
		}

		req := request.(DeleteTaskRequest)
		r, err := s.DeleteTask(ctx, auth, req.TaskID)
		return DeleteTaskResponse{Result: r, Err: err}, nil
	}
}

func MakePendingTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return PendingTasksResponse{Err: err}, nil
		}

		_ = request.(PendingTasksRequest)
		t, err := s.PendingTasks(ctx, auth)
		return PendingTasksResponse{Tasks: t, Err: err}, nil
	}
}

func MakeAuditLogsEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return AuditLogsResponse{Err: err}, nil
		}

		_ = request.(AuditLogsRequest)
		l, err := s.AuditLogs(ctx, auth)
		return AuditLogsResponse{Logs: l, Err: err}, nil
	}
}

func MakeAdminDashboardEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return DashboardResponse{Err: err}, nil
		}

		_ = request.(DashboardRequest)
		msg, err := s.AdminDashboard(ctx, auth)
		return DashboardResponse{Message: msg, Err: err}, nil
	}
}

func MakeManagerDashboardEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		auth, err := claims(ctx)
		if err != nil {
			return DashboardResponse{Err: err}, nil
		}

		_ = request.(DashboardRequest)
		msg, err := s.ManagerDashboard(ctx, auth)
		return DashboardResponse{Message: msg, Err: err}, nil
	}
}

func claims(ctx context.Context) (taskdeck.Auth, error) {
	claims, ok := ctx.Value(kitjwt.JWTClaimsContextKey).(stdjwt.MapClaims)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	uuid, ok := claims["uuid"].(string)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	userID, err := strconv.ParseUint(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
	if err != nil {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	role, ok := claims["role"].(string)
	if !ok {
		return taskdeck.Auth{}, taskdeck.ErrClaimsMissing
	}

	return taskdeck.Auth{AccessUUID: uuid, UserID: userID, Role: taskdeck.Role(role)}, nil
}

var (
	_ endpoint.Failer = TasksResponse{}
	_ endpoint.Failer = CreateTaskResponse{}
	_ endpoint.Failer = UpdateTaskResponse{}
	_ endpoint.Failer = TransitionResponse{}
	_ endpoint.Failer = DeleteTaskResponse{}
	_ endpoint.Failer = PendingTasksResponse{}
	_ endpoint.Failer = AuditLogsResponse{}
	_ endpoint.Failer = DashboardResponse{}
)

type TasksRequest struct {
	Filter taskdeck.DueFilter
}

type TasksResponse struct {
	Tasks []taskdeck.Task `json:"tasks"`
	Err   error           `json:"-"`
}

func (r TasksResponse) Failed() error { return r.Err }

type CreateTaskRequest struct {
	Draft taskdeck.TaskDraft
}

type CreateTaskResponse struct {
	Task taskdeck.Task `json:"task"`
	Err  error         `json:"-"`
}

func (r CreateTaskResponse) Failed() error { return r.Err }

type UpdateTaskRequest struct {
	TaskID      uint64
	Title       string
	Description string
}

type UpdateTaskResponse struct {
	Task taskdeck.Task `json:"task"`
	Err  error         `json:"-"`
}

func (r UpdateTaskResponse) Failed() error { return r.Err }

type TransitionRequest struct {
	TaskID uint64
	Action taskdeck.Action
	Reason string
}

type TransitionResponse struct {
	Task taskdeck.Task `json:"task"`
	Err  error         `json:"-"`
}

func (r TransitionResponse) Failed() error { return r.Err }

type DeleteTaskRequest struct {
	TaskID uint64
}

type DeleteTaskResponse struct {
	Result bool  `json:"result"`
	Err    error `json:"-"`
}

func (r DeleteTaskResponse) Failed() error { return r.Err }

type PendingTasksRequest struct{}

type PendingTasksResponse struct {
	Tasks []taskdeck.Task `json:"tasks"`
	Err   error           `json:"-"`
}

func (r PendingTasksResponse) Failed() error { return r.Err }

type AuditLogsRequest struct{}

type AuditLogsResponse struct {
	Logs []taskdeck.AuditLog `json:"logs"`
	Err  error               `json:"-"`
}

func (r AuditLogsResponse) Failed() error { return r.Err }

type DashboardRequest struct{}

type DashboardResponse struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (r DashboardResponse) Failed() error { return r.Err }
