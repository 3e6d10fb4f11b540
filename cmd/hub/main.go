package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/benchhub/hub/internal/api"
	"github.com/benchhub/hub/internal/bus"
	"github.com/benchhub/hub/internal/config"
	"github.com/benchhub/hub/internal/containerdriver"
	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/federation"
	"github.com/benchhub/hub/internal/projectorchestrator"
	"github.com/benchhub/hub/internal/portregistry"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/store"
	"github.com/benchhub/hub/internal/workflow"
	"github.com/benchhub/hub/internal/wsbus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "hub",
		Short: "Hub — control plane for containerized project stacks and agent workflows",
		Long: `Hub orchestrates containerized application stacks, schedules and executes
DAG workflows of containerized agents, persists and replays bus events, and
tracks the liveness of federated child Hubs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	fromEnv, err := config.FromEnv()
	if err != nil {
		fromEnv = config.Config{}
	}
	cfg.HTTPAddr = fromEnv.HTTPAddr
	cfg.DatabaseURL = fromEnv.DatabaseURL
	cfg.BusURL = fromEnv.BusURL
	cfg.BackendPorts = fromEnv.BackendPorts
	cfg.FrontendPorts = fromEnv.FrontendPorts
	cfg.DBPorts = fromEnv.DBPorts
	cfg.CachePorts = fromEnv.CachePorts
	cfg.WorkerTokens = fromEnv.WorkerTokens
	cfg.StaleThreshold = fromEnv.StaleThreshold
	cfg.StaleCheckInterval = fromEnv.StaleCheckInterval
	cfg.APIKeys = fromEnv.APIKeys
	cfg.LogLevel = fromEnv.LogLevel
	cfg.ContainerDriver = fromEnv.ContainerDriver
	cfg.DataDir = fromEnv.DataDir
	cfg.EncryptionKey = fromEnv.EncryptionKey

	root.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "Control-Plane API listen address")
	root.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Database DSN or SQLite file path")
	root.PersistentFlags().StringVar(&cfg.BusURL, "bus-url", cfg.BusURL, "Message bus (NATS) URL")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.ContainerDriver, "container-driver", cfg.ContainerDriver, "Container driver (docker, fake)")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for local Hub state")
	root.PersistentFlags().IntVar(&cfg.WorkerTokens, "worker-tokens", cfg.WorkerTokens, "Max concurrent node executions across all workflow runs")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hub %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting hub",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("bus_url", cfg.BusURL),
		zap.String("container_driver", cfg.ContainerDriver),
		zap.String("log_level", cfg.LogLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// Only enabled when HUB_ENCRYPTION_KEY is set — without it, saving a
	// project with a non-empty Project.RegistryAuth fails.
	if cfg.EncryptionKey != "" {
		key, err := store.DeriveEncryptionKey(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to derive encryption key: %w", err)
		}
		if err := store.InitEncryption(key); err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
	} else {
		logger.Warn("HUB_ENCRYPTION_KEY not set — projects with registry credentials cannot be saved")
	}

	// --- 2. Database ---
	gormDB, err := store.New(store.Config{
		DSN:      cfg.DatabaseURL,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	projectRepo := repositories.NewProjectRepository(gormDB)
	agentRepo := repositories.NewAgentRepository(gormDB)
	workflowRepo := repositories.NewWorkflowRepository(gormDB)
	runRepo := repositories.NewWorkflowRunRepository(gormDB)
	approvalRepo := repositories.NewApprovalRepository(gormDB)
	eventRepo := repositories.NewEventRepository(gormDB)
	federationRepo := repositories.NewFederationRepository(gormDB)
	idempotencyRepo := repositories.NewIdempotencyRepository(gormDB)
	notificationRepo := repositories.NewNotificationRepository(gormDB)

	// --- 4. Message bus ---
	b, err := bus.Connect(cfg.BusURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to message bus: %w", err)
	}
	defer b.Close()

	// --- 5. Event service ---
	events := eventservice.New(eventRepo, b, logger)
	go events.Run(ctx)

	// --- 6. Container driver ---
	driver, err := buildDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build container driver: %w", err)
	}

	// --- 7. Port registry ---
	ports := portregistry.New(*cfg, logger)

	// --- 8. Project orchestrator ---
	orch := projectorchestrator.New(projectRepo, ports, driver, events, logger)
	if err := orch.Reconcile(ctx); err != nil {
		logger.Warn("project reconcile on startup reported errors", zap.Error(err))
	}

	// --- 9. Workflow engine ---
	engine := workflow.New(projectRepo, workflowRepo, runRepo, agentRepo, approvalRepo, notificationRepo, driver, events, cfg.WorkerTokens, logger)

	// --- 10. Federation catalog ---
	catalog, err := federation.New(federationRepo, events, cfg.StaleThreshold, cfg.StaleCheckInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to create federation catalog: %w", err)
	}
	if err := catalog.Start(ctx); err != nil {
		return fmt.Errorf("failed to start federation catalog: %w", err)
	}
	defer func() {
		if err := catalog.Stop(); err != nil {
			logger.Warn("federation catalog shutdown error", zap.Error(err))
		}
	}()

	// --- 11. WebSocket hub ---
	wsHub := wsbus.NewHub()
	go wsHub.Run(ctx)

	// --- 12. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Logger:        logger,
		Projects:      projectRepo,
		Agents:        agentRepo,
		Workflows:     workflowRepo,
		Runs:          runRepo,
		Idempotency:   idempotencyRepo,
		Notifications: notificationRepo,
		Orchestrator:  orch,
		Engine:        engine,
		Events:        events,
		Catalog:       catalog,
		Bus:           b,
		WSHub:         wsHub,
		APIKeys:       cfg.APIKeys,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down hub")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("hub stopped")
	return nil
}

// buildDriver selects and constructs the configured containerdriver.Driver.
// The docker driver is wrapped in a BreakerDriver so transient daemon
// failures degrade to fast failures instead of hanging callers; the fake
// driver is returned unwrapped.
func buildDriver(cfg *config.Config, logger *zap.Logger) (containerdriver.Driver, error) {
	switch cfg.ContainerDriver {
	case "docker", "":
		docker, err := containerdriver.NewDockerDriver("", logger)
		if err != nil {
			return nil, fmt.Errorf("docker driver: %w", err)
		}
		return containerdriver.NewBreakerDriver(docker), nil
	case "fake":
		return containerdriver.NewFakeDriver(), nil
	default:
		return nil, fmt.Errorf("unknown container driver %q", cfg.ContainerDriver)
	}
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zcfg zap.Config

	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zcfg.Build()
}
