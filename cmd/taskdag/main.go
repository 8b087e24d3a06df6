package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/taskdag/internal/application/executor"
	"github.com/aescanero/taskdag/internal/application/isolation"
	"github.com/aescanero/taskdag/internal/application/orchestrator"
	"github.com/aescanero/taskdag/internal/application/workers"
	"github.com/aescanero/taskdag/internal/config"
	memoryevents "github.com/aescanero/taskdag/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/taskdag/pkg/adapters/events/redis"
	"github.com/aescanero/taskdag/pkg/adapters/metrics/prometheus"
	memorystorage "github.com/aescanero/taskdag/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/taskdag/pkg/adapters/storage/redis"
	"github.com/aescanero/taskdag/pkg/api/http"
	"github.com/aescanero/taskdag/pkg/api/websocket"
	"github.com/aescanero/taskdag/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting taskdag orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Redis-backed adapters when enabled, in-memory otherwise.
	var (
		eventBus    ports.EventBus
		runStore    ports.RunStore
		redisClient *goredis.Client
	)

	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		eventBus = redisevents.NewStreamsEventBus(
			redisClient,
			"taskdag-consumers",
			fmt.Sprintf("taskdag-%d", os.Getpid()),
			logger,
		)
		runStore = redisstorage.NewRunStore(redisClient, cfg.Redis.StateTTL, logger)
	} else {
		logger.Info("redis disabled, using in-memory adapters")
		eventBus = memoryevents.NewEventBus(logger)
		runStore = memorystorage.NewRunStore()
	}

	metricsCollector := prometheus.NewCollector()

	workerPool := workers.NewPool(
		cfg.Executor.MaxConcurrent,
		metricsCollector,
		logger,
		30*time.Second,
	)
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	taskExecutor := executor.New(executor.Config{
		DefaultTimeout: cfg.Executor.DefaultTaskTimeout,
		FailFast:       cfg.Executor.FailFast,
	}, workerPool, metricsCollector, logger)

	snapshotBuilder := isolation.NewBuilder(
		cfg.Context.MaxTokens,
		cfg.Context.CharsPerToken,
		logger,
	)

	orchestratorMgr := orchestrator.NewManager(
		orchestrator.Config{
			GraphTimeout: cfg.Timeouts.GraphExecutionTimeout,
			EventLogCap:  cfg.EventLogCap,
			EffectiveConfig: map[string]string{
				"max_concurrent":       fmt.Sprintf("%d", cfg.Executor.MaxConcurrent),
				"default_task_timeout": cfg.Executor.DefaultTaskTimeout.String(),
				"fail_fast":            fmt.Sprintf("%t", cfg.Executor.FailFast),
			},
		},
		orchestrator.NewValidator(),
		orchestrator.NewScheduler(),
		taskExecutor,
		snapshotBuilder,
		eventBus,
		runStore,
		metricsCollector,
		logger,
	)

	httpServer := http.NewServer(&http.Config{
		Addr:         cfg.GetHTTPAddr(),
		Orchestrator: orchestratorMgr,
		Logger:       logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("taskdag orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("max_concurrent", cfg.Executor.MaxConcurrent))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if cancelled := orchestratorMgr.CancelAll(); cancelled > 0 {
		logger.Info("cancelled running tasks", zap.Int("count", cancelled))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("taskdag orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
