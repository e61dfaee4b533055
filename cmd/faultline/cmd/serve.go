package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/database"
	internalhttp "github.com/faultlinehq/faultline/internal/http"
	"github.com/faultlinehq/faultline/internal/http/handlers"
	"github.com/faultlinehq/faultline/internal/lock"
	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/pipeline"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/faultlinehq/faultline/internal/scheduler"
	"github.com/faultlinehq/faultline/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the faultline server",
	Long: `Start the faultline HTTP server, queue workers, and maintenance scheduler.

The server provides:
- REST API for submitting events and reading stacks
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("dsn", "faultline.db", "Database DSN")
	serveCmd.Flags().Int("workers", 2, "Queue worker goroutines")

	mustBindPFlag("server.host", serveCmd, "host")
	mustBindPFlag("server.port", serveCmd, "port")
	mustBindPFlag("database.dsn", serveCmd, "dsn")
	mustBindPFlag("queue.workers", serveCmd, "workers")
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, cmd *cobra.Command, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %q to key %q: %v", flag, key, err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Cache, distributed locks, and entity change publishing share one
	// provider choice: memory for single-node, redis for multi-node.
	var (
		cacheClient cache.Client
		locks       lock.Provider
		publisher   messaging.Publisher
	)
	switch cfg.Cache.Provider {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err := client.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		cacheClient = cache.NewRedis(client, cfg.Cache.TTL)
		locks = lock.NewRedis(client)
		publisher = messaging.NewRedisPublisher(client)
	default:
		cacheClient = cache.NewMemory(cfg.Cache.TTL)
		locks = lock.NewMemory()
		publisher = messaging.NewLogPublisher(logger)
	}

	orgs := repository.NewOrganizationRepository(db.DB, cacheClient)
	projects := repository.NewProjectRepository(db.DB, cacheClient)
	events := repository.NewEventRepository(db.DB)
	stacks := repository.NewStackRepository(db.DB, cacheClient)
	webhooks := repository.NewWebhookRepository(db.DB)
	workItems := repository.NewWorkItemRepository(db.DB)

	q := queue.New(workItems, logger, cfg.Queue.MaxAttempts)

	p := pipeline.NewDefault(pipeline.Dependencies{
		Logger:           logger,
		Projects:         projects,
		Orgs:             orgs,
		Events:           events,
		Stacks:           stacks,
		Webhooks:         webhooks,
		Locks:            locks,
		Publisher:        publisher,
		Queue:            q,
		Metrics:          metrics.NewSlog(logger),
		Processor:        plugins.NoopProcessor{},
		Formatter:        plugins.DefaultFormatter{},
		RetentionDays:    cfg.Pipeline.RetentionDays,
		MaxFieldLength:   cfg.Pipeline.MaxFieldLength,
		StackLockHold:    cfg.Pipeline.StackLockHold,
		StackLockAcquire: cfg.Pipeline.StackLockAcquire,
	})

	worker := queue.NewWorker(workItems, logger, cfg.Queue.Workers, cfg.Queue.PollInterval)
	queueHandlers := queue.NewHandlers(
		logger, orgs, projects, events, stacks, webhooks,
		publisher, plugins.DefaultWebhookData{}, cfg.Pipeline.WebhookTimeout,
	)
	queueHandlers.DefaultRetentionDays = cfg.Pipeline.RetentionDays
	queueHandlers.WebhookConcurrency = cfg.Pipeline.WebhookConcurrency
	queueHandlers.RegisterAll(worker)

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Version)

	handlers.NewEventsHandler(logger, p).Register(server.API())
	handlers.NewStacksHandler(logger, stacks, events).Register(server.API())
	handlers.NewHealthHandler(version.Version).WithDB(db.DB).Register(server.API())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var maint *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		maint = scheduler.New(logger, orgs, workItems, q,
			scheduler.WithRetentionSweepSpec(cfg.Scheduler.RetentionSweepCron),
			scheduler.WithQueueCleanupSpec(cfg.Scheduler.QueueCleanupCron),
			scheduler.WithQueueCleanupAge(cfg.Scheduler.QueueCleanupAge),
		)
		if err := maint.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer maint.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	logger.Info("faultline started",
		slog.String("version", version.Version),
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		slog.Int("queue_workers", cfg.Queue.Workers),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
