package client

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
)

func newWorkflow(t *testing.T, ts *testServer, email string, role taskdeck.Role) *Workflow {
	t.Helper()
	c, s := newClientSession(t, ts, email, role)
	return NewWorkflow(c, s)
}

func TestWorkflowCreateAndList(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	var (
		past   = time.Now().Add(-48 * time.Hour)
		future = time.Now().Add(72 * time.Hour)
	)

	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "late", DueDate: &past}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "later", DueDate: &future}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := w.Tasks(ctx, taskdeck.DueAny)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d tasks, want 2", len(all))
	}
	if len(w.Cached()) != 2 {
		t.Errorf("cache holds %d tasks, want 2", len(w.Cached()))
	}

	overdue, err := w.Tasks(ctx, taskdeck.DueOverdue)
	if err != nil {
		t.Fatalf("Tasks(overdue): %v", err)
	}
	if len(overdue) != 1 || overdue[0].Title != "late" {
		t.Errorf("overdue = %v, want just the late task", overdue)
	}
	if len(w.Cached()) != 1 {
		t.Errorf("a filtered listing must replace the cache wholesale")
	}
}

func TestWorkflowCreateOutsideFilteredCache(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	var (
		past   = time.Now().Add(-48 * time.Hour)
		future = time.Now().Add(72 * time.Hour)
	)

	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "late", DueDate: &past}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Tasks(ctx, taskdeck.DueOverdue); err != nil {
		t.Fatalf("Tasks(overdue): %v", err)
	}
	if len(w.Cached()) != 1 {
		t.Fatalf("cache holds %d tasks, want 1", len(w.Cached()))
	}

	// A task outside the listing's bucket must not leak into the cache.
	created, err := w.Create(ctx, taskdeck.TaskDraft{Title: "later", DueDate: &future})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, cached := range w.Cached() {
		if cached.ID == created.ID {
			t.Error("future-due task cached under an overdue listing")
		}
	}

	// One inside the bucket still joins it.
	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "also late", DueDate: &past}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(w.Cached()) != 2 {
		t.Errorf("cache holds %d tasks, want 2", len(w.Cached()))
	}

	// After an unfiltered listing the cache accepts everything again.
	if _, err := w.Tasks(ctx, taskdeck.DueAny); err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "no due date"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(w.Cached()) != 4 {
		t.Errorf("cache holds %d tasks, want 4", len(w.Cached()))
	}
}

func TestWorkflowCreateCarriesRecurrence(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)

	until, err := ParseDueDate("2026-12-31")
	if err != nil {
		t.Fatalf("ParseDueDate: %v", err)
	}
	created, err := w.Create(context.Background(), taskdeck.TaskDraft{
		Title:         "standup",
		Recurrence:    "weekly",
		RecurrenceEnd: until,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Recurrence != "weekly" {
		t.Errorf("Recurrence = %q, want weekly", created.Recurrence)
	}
	if created.RecurrenceEnd == nil || !created.RecurrenceEnd.Equal(*until) {
		t.Errorf("RecurrenceEnd = %v, want %v", created.RecurrenceEnd, until)
	}
}

func TestWorkflowValidationSkipsNetwork(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	created, err := w.Create(ctx, taskdeck.TaskDraft{Title: "target"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Transition(ctx, created.ID, taskdeck.ActionStart, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	before := ts.requestCount()

	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "   "}); err != taskdeck.ErrInvalidArgument {
		t.Errorf("blank title: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := w.Update(ctx, created.ID, "", "desc"); err != taskdeck.ErrInvalidArgument {
		t.Errorf("blank title on update: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := w.Transition(ctx, created.ID, taskdeck.ActionPause, "  "); err != taskdeck.ErrInvalidArgument {
		t.Errorf("empty pause reason: err = %v, want ErrInvalidArgument", err)
	}

	if got := ts.requestCount(); got != before {
		t.Errorf("local validation made %d network calls", got-before)
	}
}

func TestWorkflowRoleGateSkipsNetwork(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "member@example.com", taskdeck.RoleMember)
	ctx := context.Background()

	before := ts.requestCount()

	if _, err := w.Create(ctx, taskdeck.TaskDraft{Title: "x"}); err != taskdeck.ErrNotAuthorized {
		t.Errorf("create: err = %v, want ErrNotAuthorized", err)
	}
	if err := w.Delete(ctx, 1); err != taskdeck.ErrNotAuthorized {
		t.Errorf("delete: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := w.AuditLogs(ctx); err != taskdeck.ErrNotAuthorized {
		t.Errorf("logs: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := w.Pending(ctx); err != taskdeck.ErrNotAuthorized {
		t.Errorf("pending: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := w.AdminDashboard(ctx); err != taskdeck.ErrNotAuthorized {
		t.Errorf("admin dashboard: err = %v, want ErrNotAuthorized", err)
	}

	if got := ts.requestCount(); got != before {
		t.Errorf("role pre-checks made %d network calls", got-before)
	}
}

func TestWorkflowManagerCannotDelete(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "manager@example.com", taskdeck.RoleManager)
	ctx := context.Background()

	created, err := w.Create(ctx, taskdeck.TaskDraft{Title: "keep"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Delete(ctx, created.ID); err != taskdeck.ErrNotAuthorized {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestWorkflowIdentityUnresolved(t *testing.T) {
	ts := newTestServer(t)

	c, err := New(ts.URL, log.NewNopLogger())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	w := NewWorkflow(c, NewSession(c))

	if _, err := w.Create(context.Background(), taskdeck.TaskDraft{Title: "x"}); err != ErrIdentityUnresolved {
		t.Errorf("err = %v, want ErrIdentityUnresolved", err)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	created, err := w.Create(ctx, taskdeck.TaskDraft{Title: "cycle"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.ID

	if _, err := w.Transition(ctx, id, taskdeck.ActionStart, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := w.Transition(ctx, id, taskdeck.ActionPause, "meeting"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := w.Transition(ctx, id, taskdeck.ActionResume, ""); err != nil {
		t.Fatalf("resume: %v", err)
	}
	ended, err := w.Transition(ctx, id, taskdeck.ActionEnd, "")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != taskdeck.TaskStatusPendingApproval {
		t.Errorf("Status = %q, want pending_approval", ended.Status)
	}

	pending, err := w.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Errorf("pending = %v, want the ended task", pending)
	}

	approved, err := w.Transition(ctx, id, taskdeck.ActionApprove, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != taskdeck.TaskStatusApproved {
		t.Errorf("Status = %q, want approved", approved.Status)
	}
}

func TestWorkflowGuardViolation(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	created, _ := w.Create(ctx, taskdeck.TaskDraft{Title: "once"})
	if _, err := w.Transition(ctx, created.ID, taskdeck.ActionStart, ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := w.Transition(ctx, created.ID, taskdeck.ActionStart, ""); err != taskdeck.ErrInvalidTransition {
		t.Errorf("second start: err = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowCacheFollowsServer(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	created, _ := w.Create(ctx, taskdeck.TaskDraft{Title: "old name"})
	w.Tasks(ctx, taskdeck.DueAny)

	updated, err := w.Update(ctx, created.ID, "new name", "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "new name" {
		t.Errorf("Title = %q", updated.Title)
	}

	found := false
	for _, cached := range w.Cached() {
		if cached.ID == created.ID {
			found = true
			if cached.Title != "new name" {
				t.Errorf("cached title = %q, want the server's copy", cached.Title)
			}
		}
	}
	if !found {
		t.Fatal("updated task missing from cache")
	}

	if err := w.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, cached := range w.Cached() {
		if cached.ID == created.ID {
			t.Error("deleted task still cached")
		}
	}
}

func TestWorkflowDeleteMissingTask(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)

	if err := w.Delete(context.Background(), 999); err != taskdeck.ErrTaskNotFound {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestWorkflowAuditLogs(t *testing.T) {
	ts := newTestServer(t)
	w := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	ctx := context.Background()

	w.Create(ctx, taskdeck.TaskDraft{Title: "first"})
	w.Create(ctx, taskdeck.TaskDraft{Title: "second"})

	logs, err := w.AuditLogs(ctx)
	if err != nil {
		t.Fatalf("AuditLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d log entries, want 2", len(logs))
	}
	// Newest first.
	if logs[0].Target != "second" || logs[1].Target != "first" {
		t.Errorf("log order = [%s, %s], want newest first", logs[0].Target, logs[1].Target)
	}
	if logs[0].UserEmail != "admin@example.com" {
		t.Errorf("UserEmail = %q", logs[0].UserEmail)
	}
}

func TestWorkflowDashboards(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	admin := newWorkflow(t, ts, "admin@example.com", taskdeck.RoleAdmin)
	if msg, err := admin.AdminDashboard(ctx); err != nil || msg == "" {
		t.Errorf("AdminDashboard = %q, %v", msg, err)
	}

	manager := newWorkflow(t, ts, "manager@example.com", taskdeck.RoleManager)
	if msg, err := manager.ManagerDashboard(ctx); err != nil || msg == "" {
		t.Errorf("ManagerDashboard = %q, %v", msg, err)
	}
	if _, err := manager.AdminDashboard(ctx); err != taskdeck.ErrNotAuthorized {
		t.Errorf("manager on admin dashboard: err = %v, want ErrNotAuthorized", err)
	}
}

func TestParseDueDate(t *testing.T) {
	got, err := ParseDueDate("2026-04-01")
	if err != nil {
		t.Fatalf("ParseDueDate: %v", err)
	}
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want local midnight %v", got, want)
	}

	got, err = ParseDueDate("2026-04-01T15:04:05Z")
	if err != nil {
		t.Fatalf("ParseDueDate: %v", err)
	}
	if got.Hour() != 15 {
		t.Errorf("hour = %d, want 15", got.Hour())
	}

	if got, err := ParseDueDate(""); err != nil || got != nil {
		t.Errorf("empty input: got %v, %v", got, err)
	}
	if _, err := ParseDueDate("April 1st"); err != taskdeck.ErrInvalidArgument {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
