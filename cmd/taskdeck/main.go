package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/client"
)

func main() {
	fs := flag.NewFlagSet("taskdeck", flag.ExitOnError)
	var (
		serverURL = fs.String(
			"server.url",
			getEnv("TASKDECK_URL", "localhost:8080"),
			"Server base URL",
		)
		token = fs.String(
			"token",
			getEnv("TASKDECK_TOKEN", ""),
			"Access token of an existing session",
		)
		email         = fs.String("email", "", "Account email")
		password      = fs.String("password", "", "Account password")
		title         = fs.String("title", "", "Task title")
		description   = fs.String("description", "", "Task description")
		due           = fs.String("due", "", "Due date (2006-01-02 or RFC 3339)")
		recurrence    = fs.String("recurrence", "", "Recurrence rule (daily, weekly, monthly)")
		recurrenceEnd = fs.String("recurrence.end", "", "Last day of the recurrence (2006-01-02 or RFC 3339)")
		reason        = fs.String("reason", "", "Reason for pausing a task")
		filter        = fs.String("filter", "", "Due filter for listings (overdue, today, upcoming)")
		resetToken    = fs.String("reset.token", "", "Password reset token")
	)

	fs.Usage = usageFor(fs, os.Args[0]+" [flags] <command> [task id]")
	fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	command := fs.Arg(0)

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	}

	c, err := client.New(*serverURL, logger)
	if err != nil {
		fatal(err)
	}

	var (
		ctx      = context.Background()
		session  = client.NewSession(c)
		workflow = client.NewWorkflow(c, session)
	)

	// Everything past the account commands runs against a restored session,
	// so role gates are decided from a freshly resolved identity.
	switch command {
	case "register", "login", "forgot-password", "reset-password":
	default:
		if *token == "" {
			fatal(fmt.Errorf("no access token; login first and export TASKDECK_TOKEN"))
		}
		if _, err := session.Restore(ctx, *token); err != nil {
			fatal(err)
		}
	}

	switch command {
	case "register":
		u, err := c.Auth.Register(ctx, *email, *password)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "registered %s (%s)\n", u.Email, u.Role)

	case "login":
		u, err := session.Login(ctx, *email, *password)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "logged in as %s (%s)\n", u.Email, u.Role)
		fmt.Fprintf(os.Stdout, "export TASKDECK_TOKEN=%s\n", session.Token())

	case "logout":
		session.Logout(ctx)
		fmt.Fprintln(os.Stdout, "logged out")

	case "me":
		u, _ := session.Identity()
		fmt.Fprintf(os.Stdout, "%d\t%s\t%s\n", u.ID, u.Email, u.Role)

	case "forgot-password":
		msg, err := c.Auth.ForgotPassword(ctx, *email)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stdout, msg)

	case "reset-password":
		if err := c.Auth.ResetPassword(ctx, *resetToken, *password); err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stdout, "password has been reset")

	case "tasks":
		f, err := taskdeck.ParseDueFilter(*filter)
		if err != nil {
			fatal(err)
		}
		tasks, err := workflow.Tasks(ctx, f)
		if err != nil {
			fatal(err)
		}
		printTasks(tasks)

	case "create":
		dueDate, err := client.ParseDueDate(*due)
		if err != nil {
			fatal(err)
		}
		recurrenceUntil, err := client.ParseDueDate(*recurrenceEnd)
		if err != nil {
			fatal(err)
		}
		t, err := workflow.Create(ctx, taskdeck.TaskDraft{
			Title:         *title,
			Description:   *description,
			DueDate:       dueDate,
			Recurrence:    *recurrence,
			RecurrenceEnd: recurrenceUntil,
		})
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "created #%d %s\n", t.ID, t.Title)

	case "edit":
		t, err := workflow.Update(ctx, argTaskID(fs), *title, *description)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "edited #%d %s\n", t.ID, t.Title)

	case "start", "pause", "resume", "end", "complete", "approve", "reject":
		action, err := taskdeck.ParseAction(command)
		if err != nil {
			fatal(err)
		}
		t, err := workflow.Transition(ctx, argTaskID(fs), action, *reason)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "#%d %s state=%s status=%s complete=%t\n",
			t.ID, t.Title, t.State(), t.Status, t.IsComplete)

	case "delete":
		id := argTaskID(fs)
		if err := workflow.Delete(ctx, id); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "deleted #%d\n", id)

	case "pending":
		tasks, err := workflow.Pending(ctx)
		if err != nil {
			fatal(err)
		}
		printTasks(tasks)

	case "logs":
		logs, err := workflow.AuditLogs(ctx)
		if err != nil {
			fatal(err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tWHO\tACTION\tTARGET")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				l.Timestamp.Format(time.RFC3339), l.UserEmail, l.Action, l.Target)
		}
		w.Flush()

	case "admin-dashboard":
		msg, err := workflow.AdminDashboard(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stdout, msg)

	case "manager-dashboard":
		msg, err := workflow.ManagerDashboard(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stdout, msg)

	default:
		fs.Usage()
		os.Exit(1)
	}
}

func argTaskID(fs *flag.FlagSet) uint64 {
	if fs.NArg() < 2 {
		fatal(fmt.Errorf("missing task id"))
	}
	id, err := strconv.ParseUint(fs.Arg(1), 10, 64)
	if err != nil {
		fatal(taskdeck.ErrInvalidArgument)
	}
	return id
}

func printTasks(tasks []taskdeck.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATE\tSTATUS\tCOMPLETE\tDUE")
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n",
			t.ID, t.Title, t.State(), t.Status, t.IsComplete, due)
	}
	w.Flush()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "COMMANDS\n")
		fmt.Fprintf(os.Stderr, "  register login logout me forgot-password reset-password\n")
		fmt.Fprintf(os.Stderr, "  tasks create edit delete pending logs\n")
		fmt.Fprintf(os.Stderr, "  start pause resume end complete approve reject\n")
		fmt.Fprintf(os.Stderr, "  admin-dashboard manager-dashboard\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}
