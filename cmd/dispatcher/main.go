// Command dispatcher is the outbox dispatcher's single binary. With no
// arguments (or "supervise") it is the supervisor: it re-execs itself as N
// "worker" child processes and serves the admin HTTP surface. With
// "worker" it is one worker process, driven by --worker-id.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dispatchbox/internal/adminhttp"
	"dispatchbox/internal/config"
	"dispatchbox/internal/heartbeat"
	"dispatchbox/internal/logging"
	"dispatchbox/internal/registry"
	"dispatchbox/internal/replayguard"
	"dispatchbox/internal/repository"
	"dispatchbox/internal/supervisor"
	"dispatchbox/internal/worker"
)

func main() {
	personality := "supervise"
	if len(os.Args) > 1 && !isFlag(os.Args[1]) {
		personality = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	workerID := flag.Int("worker-id", 0, "worker ordinal, assigned by the supervisor")
	flag.Parse()

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Printf("cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	switch personality {
	case "worker":
		if err := runWorker(cfg, logger, *workerID); err != nil {
			logger.Fatal("worker exited with error", zap.Error(err))
		}
	case "supervise":
		if err := runSupervisor(cfg, logger); err != nil {
			logger.Fatal("supervisor exited with error", zap.Error(err))
		}
	default:
		fmt.Printf("unknown personality %q (want \"supervise\" or \"worker\")\n", personality)
		os.Exit(1)
	}
}

func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

// runWorker drives a single worker process: it connects its own database
// pool and, if configured, its own Redis heartbeat client, registers the
// demonstration handlers, and blocks in the poll loop until a shutdown
// signal arrives.
func runWorker(cfg config.Config, logger *zap.Logger, workerID int) error {
	name := fmt.Sprintf("worker-%02d", workerID)
	workerLogger := logging.ForWorker(logger, name, os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := newRepository(ctx, cfg, workerLogger)
	if err != nil {
		return fmt.Errorf("connect repository: %w", err)
	}
	defer repo.Close()

	reg := registry.New()
	registerDemoHandlers(reg, workerLogger)

	metrics := worker.NewMetrics(prometheus.NewRegistry(), "dispatchbox")
	w := worker.New(repo, reg, workerLogger, metrics, worker.Config{
		Name:           name,
		PollInterval:   cfg.GetPollInterval(workerLogger),
		BatchSize:      cfg.GetBatchSize(workerLogger),
		MaxParallel:    cfg.GetMaxParallel(workerLogger),
		HandlerTimeout: cfg.GetHandlerTimeout(),
	})

	var beats *heartbeat.Registry
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		beats = heartbeat.New(client)
		go beatLoop(ctx, beats, name, os.Getpid())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		workerLogger.Info("received shutdown signal", zap.String("signal", sig.String()))
		w.Stop()
		cancel()
	}()

	w.Start(ctx)
	return nil
}

// beatLoop records liveness on a fixed cadence, comfortably inside
// heartbeat.DefaultTTL so a healthy worker never flickers to "not seen."
func beatLoop(ctx context.Context, reg *heartbeat.Registry, name string, pid int) {
	ticker := time.NewTicker(heartbeat.DefaultTTL / 3)
	defer ticker.Stop()
	for {
		if err := reg.Beat(ctx, name, pid); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runSupervisor spawns the worker process fleet and serves the admin HTTP
// surface until a shutdown signal arrives.
func runSupervisor(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adminRepo, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect repository: %w", err)
	}
	defer adminRepo.Close()

	var beats *heartbeat.Registry
	var replay *replayguard.Guard
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		beats = heartbeat.New(client)
		replay = replayguard.New(client)
	}

	registerer := prometheus.NewRegistry()

	var httpServer *http.Server
	if !cfg.DisableHTTP {
		engine := adminhttp.New(adminhttp.Config{
			Repo:       adminRepo,
			Registerer: registerer,
			Heartbeats: beats,
			Replay:     replay,
			Logger:     logger,
		})
		httpServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.GetHTTPHost(), cfg.GetHTTPPort(logger)),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting admin HTTP server", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin HTTP server error", zap.Error(err))
			}
		}()
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	sup, err := supervisor.New(supervisor.Config{
		NumProcesses: cfg.GetProcesses(logger),
		BinPath:      exe,
		BaseArgs:     []string{"worker"},
		Env:          os.Environ(),
		OnExit: func(workerName string, pid int, exitCode int, exitedAt time.Time) {
			if beats == nil {
				return
			}
			if err := beats.RecordExit(context.Background(), workerName, pid, exitCode, exitedAt); err != nil {
				logger.Warn("failed to record worker exit in heartbeat registry", zap.String("worker", workerName), zap.Error(err))
			}
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	runErr := sup.Run(ctx)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin HTTP server shutdown error", zap.Error(err))
		}
	}

	return runErr
}

func newRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (*repository.Repository, error) {
	return repository.New(ctx, repository.Config{
		DSN:           cfg.GetDSN(),
		RetryBackoff:  cfg.GetRetryBackoff(logger),
		MaxAttempts:   cfg.GetMaxAttempts(logger),
		QueryTimeout:  cfg.GetQueryTimeout(logger),
		DBMaxConns:    cfg.GetDBMaxConns(),
		DBMinConns:    cfg.GetDBMinConns(),
		DBMaxConnLife: cfg.GetDBMaxConnLifetime(),
		DBMaxConnIdle: cfg.GetDBMaxConnIdleTime(),
	}, logger)
}
