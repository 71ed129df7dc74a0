package tasktransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
	"github.com/taskdeck-io/taskdeck/pkg/authtransport"
	"github.com/taskdeck-io/taskdeck/pkg/taskendpoint"
)

func accessKeyFunc(token *stdjwt.Token) (interface{}, error) {
	return []byte(taskdeck.AccessSecret), nil
}

// NewHTTPHandler mounts the task routes on a gorilla router. Every route is
// behind the JWT parser and the token-registry check, so a revoked access
// token is refused before any endpoint logic runs.
func NewHTTPHandler(endpoints taskendpoint.Set, client inmem.Client, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(kitjwt.HTTPToContext()),
	}

	authenticate := func(e endpoint.Endpoint) endpoint.Endpoint {
		e = authtransport.NewAuthenticater(client)(e)
		e = kitjwt.NewParser(
			accessKeyFunc,
			stdjwt.SigningMethodHS256,
			kitjwt.MapClaimsFactory,
		)(e)
		return e
	}

	r := mux.NewRouter()

	r.Handle("/tasks", httptransport.NewServer(
		authenticate(endpoints.TasksEndpoint),
		decodeHTTPTasksRequest,
		encodeHTTPTasksResponse,
		options...,
	)).Methods("GET")

	r.Handle("/tasks", httptransport.NewServer(
		authenticate(endpoints.CreateTaskEndpoint),
		decodeHTTPCreateTaskRequest,
		encodeHTTPCreateTaskResponse,
		options...,
	)).Methods("POST")

	r.Handle("/tasks/pending", httptransport.NewServer(
		authenticate(endpoints.PendingTasksEndpoint),
		decodeHTTPPendingTasksRequest,
		encodeHTTPTasksResponse,
		options...,
	)).Methods("GET")

	r.Handle("/tasks/{task_id:[0-9]+}", httptransport.NewServer(
		authenticate(endpoints.UpdateTaskEndpoint),
		decodeHTTPUpdateTaskRequest,
		encodeHTTPTaskResponse,
		options...,
	)).Methods("PUT")

	r.Handle("/tasks/{task_id:[0-9]+}", httptransport.NewServer(
		authenticate(endpoints.DeleteTaskEndpoint),
		decodeHTTPDeleteTaskRequest,
		encodeHTTPDeleteTaskResponse,
		options...,
	)).Methods("DELETE")

	r.Handle("/tasks/{task_id:[0-9]+}/{action}", httptransport.NewServer(
		authenticate(endpoints.TransitionEndpoint),
		decodeHTTPTransitionRequest,
		encodeHTTPTaskResponse,
		options...,
	)).Methods("PATCH")

	r.Handle("/admin/logs", httptransport.NewServer(
		authenticate(endpoints.AuditLogsEndpoint),
		decodeHTTPAuditLogsRequest,
		encodeHTTPAuditLogsResponse,
		options...,
	)).Methods("GET")

	r.Handle("/admin/dashboard", httptransport.NewServer(
		authenticate(endpoints.AdminDashboardEndpoint),
		decodeHTTPDashboardRequest,
		encodeHTTPGenericResponse,
		options...,
	)).Methods("GET")

	r.Handle("/manager/dashboard", httptransport.NewServer(
		authenticate(endpoints.ManagerDashboardEndpoint),
		decodeHTTPDashboardRequest,
		encodeHTTPGenericResponse,
		options...,
	)).Methods("GET")

	return r
}

// NewHTTPClient builds the client-side endpoint set. Each endpoint is
// decorated with a rate limiter and a circuit breaker.
func NewHTTPClient(instance string, logger log.Logger) (taskendpoint.Set, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return taskendpoint.Set{}, err
	}

	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Every(time.Second), 100))

	options := []httptransport.ClientOption{
		httptransport.ClientBefore(kitjwt.ContextToHTTP()),
	}

	wrap := func(name string, e endpoint.Endpoint) endpoint.Endpoint {
		e = limiter(e)
		e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
		}))(e)
		return e
	}

	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/tasks"),
			encodeHTTPTasksRequest,
			decodeHTTPTasksResponse,
			options...,
		).Endpoint()
		tasksEndpoint = wrap("Tasks", tasksEndpoint)
	}

	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/tasks"),
			encodeHTTPCreateTaskRequest,
			decodeHTTPTaskResponse(func(t taskdeck.Task) interface{} {
				return taskendpoint.CreateTaskResponse{Task: t}
			}),
			options...,
		).Endpoint()
		createTaskEndpoint = wrap("CreateTask", createTaskEndpoint)
	}

	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = httptransport.NewClient(
			"PUT",
			copyURL(u, "/tasks"),
			encodeHTTPUpdateTaskRequest,
			decodeHTTPTaskResponse(func(t taskdeck.Task) interface{} {
				return taskendpoint.UpdateTaskResponse{Task: t}
			}),
			options...,
		).Endpoint()
		updateTaskEndpoint = wrap("UpdateTask", updateTaskEndpoint)
	}

	var transitionEndpoint endpoint.Endpoint
	{
		transitionEndpoint = httptransport.NewClient(
			"PATCH",
			copyURL(u, "/tasks"),
			encodeHTTPTransitionRequest,
			decodeHTTPTaskResponse(func(t taskdeck.Task) interface{} {
				return taskendpoint.TransitionResponse{Task: t}
			}),
			options...,
		).Endpoint()
		transitionEndpoint = wrap("Transition", transitionEndpoint)
	}

	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = httptransport.NewClient(
			"DELETE",
			copyURL(u, "/tasks"),
			encodeHTTPDeleteTaskRequest,
			decodeHTTPDeleteTaskResponse,
			options...,
		).Endpoint()
		deleteTaskEndpoint = wrap("DeleteTask", deleteTaskEndpoint)
	}

	var pendingTasksEndpoint endpoint.Endpoint
	{
		pendingTasksEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/tasks/pending"),
			encodeHTTPGenericRequest,
			decodeHTTPPendingTasksResponse,
			options...,
		).Endpoint()
		pendingTasksEndpoint = wrap("PendingTasks", pendingTasksEndpoint)
	}

	var auditLogsEndpoint endpoint.Endpoint
	{
		auditLogsEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/admin/logs"),
			encodeHTTPGenericRequest,
			decodeHTTPAuditLogsResponse,
			options...,
		).Endpoint()
		auditLogsEndpoint = wrap("AuditLogs", auditLogsEndpoint)
	}

	var adminDashboardEndpoint endpoint.Endpoint
	{
		adminDashboardEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/admin/dashboard"),
			encodeHTTPGenericRequest,
			decodeHTTPDashboardResponse,
			options...,
		).Endpoint()
		adminDashboardEndpoint = wrap("AdminDashboard", adminDashboardEndpoint)
	}

	var managerDashboardEndpoint endpoint.Endpoint
	{
		managerDashboardEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/manager/dashboard"),
			encodeHTTPGenericRequest,
			decodeHTTPDashboardResponse,
			options...,
		).Endpoint()
		managerDashboardEndpoint = wrap("ManagerDashboard", managerDashboardEndpoint)
	}

	return taskendpoint.Set{
		TasksEndpoint:            tasksEndpoint,
		CreateTaskEndpoint:       createTaskEndpoint,
		UpdateTaskEndpoint:       updateTaskEndpoint,
		TransitionEndpoint:       transitionEndpoint,
		DeleteTaskEndpoint:       deleteTaskEndpoint,
		PendingTasksEndpoint:     pendingTasksEndpoint,
		AuditLogsEndpoint:        auditLogsEndpoint,
		AdminDashboardEndpoint:   adminDashboardEndpoint,
		ManagerDashboardEndpoint: managerDashboardEndpoint,
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = path
	return &next
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	w.WriteHeader(err2code(err))
	json.NewEncoder(w).Encode(errorWrapper{Error: err.Error()})
}

type errorWrapper struct {
	Error string `json:"error"`
}

func err2code(err error) int {
	switch err {
	case taskdeck.ErrInvalidArgument:
		return http.StatusBadRequest
	case taskdeck.ErrNotAuthorized:
		return http.StatusForbidden
	case taskdeck.ErrTaskNotFound:
		return http.StatusNotFound
	case taskdeck.ErrInvalidTransition:
		return http.StatusConflict
	case taskdeck.ErrUserNotFound, taskdeck.ErrClaimsMissing, taskdeck.ErrClaimsInvalid,
		inmem.ErrKeyNotFound,
		kitjwt.ErrTokenExpired, kitjwt.ErrTokenInvalid, kitjwt.ErrTokenMalformed,
		kitjwt.ErrTokenContextMissing, kitjwt.ErrUnexpectedSigningMethod:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// code2err maps a client-observed HTTP status back onto the sentinel errors
// the Workflow acts upon.
func code2err(r *http.Response) error {
	var w errorWrapper
	json.NewDecoder(r.Body).Decode(&w)

	switch r.StatusCode {
	case http.StatusBadRequest:
		return taskdeck.ErrInvalidArgument
	case http.StatusUnauthorized:
		return taskdeck.ErrUnauthorized
	case http.StatusForbidden:
		return taskdeck.ErrNotAuthorized
	case http.StatusNotFound:
		return taskdeck.ErrTaskNotFound
	case http.StatusConflict:
		return taskdeck.ErrInvalidTransition
	}
	return errors.New(r.Status)
}

func taskID(r *http.Request) (uint64, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["task_id"], 10, 64)
	if err != nil || id == 0 {
		return 0, taskdeck.ErrInvalidArgument
	}
	return id, nil
}

func decodeHTTPTasksRequest(_ context.Context, r *http.Request) (interface{}, error) {
	filter, err := taskdeck.ParseDueFilter(r.URL.Query().Get("due"))
	if err != nil {
		return nil, err
	}
	return taskendpoint.TasksRequest{Filter: filter}, nil
}

func encodeHTTPTasksRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TasksRequest)
	if req.Filter != taskdeck.DueAny {
		r.URL.RawQuery = url.Values{"due": {string(req.Filter)}}.Encode()
	}
	return nil
}

// The task collection goes over the wire as a bare JSON array.
func encodeHTTPTasksResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}

	var tasks []taskdeck.Task
	switch resp := response.(type) {
	case taskendpoint.TasksResponse:
		tasks = resp.Tasks
	case taskendpoint.PendingTasksResponse:
		tasks = resp.Tasks
	}
	if tasks == nil {
		tasks = []taskdeck.Task{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(tasks)
}

func decodeHTTPTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var tasks []taskdeck.Task
	err := json.NewDecoder(r.Body).Decode(&tasks)
	return taskendpoint.TasksResponse{Tasks: tasks}, err
}

func decodeHTTPCreateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var draft taskdeck.TaskDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		return nil, taskdeck.ErrInvalidArgument
	}
	return taskendpoint.CreateTaskRequest{Draft: draft}, nil
}

func encodeHTTPCreateTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.CreateTaskRequest)
	return encodeJSONBody(r, req.Draft)
}

func encodeHTTPCreateTaskResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(taskendpoint.CreateTaskResponse)
	if resp.Failed() != nil {
		errorEncoder(ctx, resp.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(resp.Task)
}

func decodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}

	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, taskdeck.ErrInvalidArgument
	}

	return taskendpoint.UpdateTaskRequest{
		TaskID:      id,
		Title:       body.Title,
		Description: body.Description,
	}, nil
}

func encodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.UpdateTaskRequest)
	r.URL.Path = fmt.Sprintf("/tasks/%d", req.TaskID)

	body := struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}{Title: req.Title, Description: req.Description}
	return encodeJSONBody(r, body)
}

// A task object goes over the wire flat, without a wrapper.
func encodeHTTPTaskResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}

	var task taskdeck.Task
	switch resp := response.(type) {
	case taskendpoint.UpdateTaskResponse:
		task = resp.Task
	case taskendpoint.TransitionResponse:
		task = resp.Task
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(task)
}

func decodeHTTPTaskResponse(wrap func(taskdeck.Task) interface{}) httptransport.DecodeResponseFunc {
	return func(_ context.Context, r *http.Response) (interface{}, error) {
		if r.StatusCode != http.StatusOK && r.StatusCode != http.StatusCreated {
			return nil, code2err(r)
		}
		var task taskdeck.Task
		err := json.NewDecoder(r.Body).Decode(&task)
		return wrap(task), err
	}
}

func decodeHTTPTransitionRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}

	action, err := taskdeck.ParseAction(mux.Vars(r)["action"])
	if err != nil {
		return nil, err
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// Only pause carries a body; everything else sends none.
	json.NewDecoder(r.Body).Decode(&body)

	return taskendpoint.TransitionRequest{
		TaskID: id,
		Action: action,
		Reason: body.Reason,
	}, nil
}

func encodeHTTPTransitionRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TransitionRequest)
	r.URL.Path = fmt.Sprintf("/tasks/%d/%s", req.TaskID, req.Action)

	if req.Action != taskdeck.ActionPause {
		return nil
	}
	body := struct {
		Reason string `json:"reason"`
	}{Reason: req.Reason}
	return encodeJSONBody(r, body)
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.DeleteTaskRequest{TaskID: id}, nil
}

func encodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.DeleteTaskRequest)
	r.URL.Path = fmt.Sprintf("/tasks/%d", req.TaskID)
	return nil
}

func encodeHTTPDeleteTaskResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(taskendpoint.DeleteTaskResponse)
	if resp.Failed() != nil {
		errorEncoder(ctx, resp.Failed(), w)
		return nil
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func decodeHTTPDeleteTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusNoContent {
		return nil, code2err(r)
	}
	return taskendpoint.DeleteTaskResponse{Result: true}, nil
}

func decodeHTTPPendingTasksRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return taskendpoint.PendingTasksRequest{}, nil
}

func decodeHTTPPendingTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var tasks []taskdeck.Task
	err := json.NewDecoder(r.Body).Decode(&tasks)
	return taskendpoint.PendingTasksResponse{Tasks: tasks}, err
}

func decodeHTTPAuditLogsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return taskendpoint.AuditLogsRequest{}, nil
}

// The audit trail goes over the wire as a bare JSON array, newest first.
func encodeHTTPAuditLogsResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(taskendpoint.AuditLogsResponse)
	if resp.Failed() != nil {
		errorEncoder(ctx, resp.Failed(), w)
		return nil
	}

	logs := resp.Logs
	if logs == nil {
		logs = []taskdeck.AuditLog{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(logs)
}

func decodeHTTPAuditLogsResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var logs []taskdeck.AuditLog
	err := json.NewDecoder(r.Body).Decode(&logs)
	return taskendpoint.AuditLogsResponse{Logs: logs}, err
}

func decodeHTTPDashboardRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return taskendpoint.DashboardRequest{}, nil
}

func decodeHTTPDashboardResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, code2err(r)
	}
	var resp taskendpoint.DashboardResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func encodeJSONBody(r *http.Request, body interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body. Primarily useful in a client.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}
