package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twinj/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"

	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/db/gorm"
	"github.com/taskdeck-io/taskdeck/inmem"
	"github.com/taskdeck-io/taskdeck/pkg/authendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/authservice"
	"github.com/taskdeck-io/taskdeck/pkg/authtransport"
	"github.com/taskdeck-io/taskdeck/pkg/taskendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/taskservice"
	"github.com/taskdeck-io/taskdeck/pkg/tasktransport"
)

func main() {
	fs := flag.NewFlagSet("taskdeckd", flag.ExitOnError)
	var (
		httpAddr = fs.String(
			"http.addr",
			getEnv("HTTP_ADDR", ":8080"),
			"HTTP listen address",
		)
		consulAddr = fs.String(
			"consul.addr",
			getEnv("CONSUL_ADDR", ""),
			"Consul agent address",
		)
		databaseURL = fs.String(
			"database.url",
			getEnv("DATABASE_URL", ""),
			"Database URL",
		)
		resetBaseURL = fs.String(
			"reset.base-url",
			getEnv("RESET_BASE_URL", "http://localhost:8080/reset-password"),
			"Base URL embedded in password reset links",
		)
	)

	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	var db *libgorm.DB
	var err error
	{
		if *databaseURL != "" {
			db, err = libgorm.Open(postgres.Open(*databaseURL), &libgorm.Config{})
		} else {
			db, err = libgorm.Open(sqlite.Open("gorm.db"), &libgorm.Config{})
		}
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
	}

	var (
		kvClient  inmem.Client
		registrar *consulsd.Registrar
	)
	{
		consulConfig := api.DefaultConfig()
		if len(*consulAddr) > 0 {
			consulConfig.Address = *consulAddr
		}
		consulClient, err := api.NewClient(consulConfig)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}

		host, port, err := net.SplitHostPort(*httpAddr)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		if host == "" {
			host = "localhost"
		}

		p, _ := strconv.Atoi(port)
		asr := &api.AgentServiceRegistration{
			ID:      uuid.NewV4().String(),
			Name:    "taskdeck",
			Address: host,
			Port:    p,
		}

		registrar = consulsd.NewRegistrar(consulsd.NewClient(consulClient), asr, logger)
		registrar.Register()
		defer registrar.Deregister()

		kvClient = inmem.NewClient(consulClient)
	}

	db.AutoMigrate(
		&taskdeck.User{},
		&taskdeck.Task{},
		&taskdeck.AuditLog{},
		&taskdeck.PasswordReset{},
	)

	var (
		users  = gorm.NewUserRepository(db)
		tasks  = gorm.NewTaskRepository(db)
		audits = gorm.NewAuditLogRepository(db)
		resets = gorm.NewPasswordResetRepository(db)
	)

	var authService authservice.Service
	{
		authService = authservice.New(
			users,
			resets,
			authservice.NewTokenizer(),
			kvClient,
			authservice.NewLogMailer(logger, *resetBaseURL),
			logger,
		)
	}

	var taskService taskservice.Service
	{
		requestCount := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "taskdeck",
			Subsystem: "taskservice",
			Name:      "request_count",
			Help:      "Number of requests received.",
		}, []string{"method"})
		requestLatency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: "taskdeck",
			Subsystem: "taskservice",
			Name:      "request_latency_seconds",
			Help:      "Total duration of requests in seconds.",
		}, []string{"method"})

		taskService = taskservice.New(tasks, audits, logger)
		taskService = taskservice.AuditingMiddleware(users, audits)(taskService)
		taskService = taskservice.AuthorizingMiddleware(users, audits)(taskService)
		taskService = taskservice.InstrumentingMiddleware(requestCount, requestLatency)(taskService)
	}

	var (
		authEndpoints = authendpoint.New(authService, logger)
		taskEndpoints = taskendpoint.New(taskService, logger)
		authHandler   = authtransport.NewHTTPHandler(authEndpoints, kvClient, logger)
		taskHandler   = tasktransport.NewHTTPHandler(taskEndpoints, kvClient, logger)
	)

	m := http.NewServeMux()
	m.Handle("/tasks", taskHandler)
	m.Handle("/tasks/", taskHandler)
	m.Handle("/admin/", taskHandler)
	m.Handle("/manager/", taskHandler)
	m.Handle("/metrics", promhttp.Handler())
	m.Handle("/", authHandler)

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", *httpAddr)
		if err != nil {
			logger.Log("transport", "HTTP", "during", "Listen", "err", err)
			registrar.Deregister()
			os.Exit(1)
		}
		g.Add(func() error {
			logger.Log("transport", "HTTP", "addr", *httpAddr)
			return http.Serve(httpListener, m)
		}, func(error) {
			httpListener.Close()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	logger.Log("exit", g.Run())
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
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
