// Command kernel runs the orchestration kernel as an HTTP service:
// loads configuration, wires the checkpoint backend, registers agents,
// and serves the gin API until an interrupt asks it to drain and exit.
// Grounded on cmd/tarsy/main.go's load-env → build-server → serve →
// graceful-shutdown shape.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quaycorner/swarmkernel/pkg/agent"
	"github.com/quaycorner/swarmkernel/pkg/api"
	"github.com/quaycorner/swarmkernel/pkg/checkpoint"
	"github.com/quaycorner/swarmkernel/pkg/config"
	"github.com/quaycorner/swarmkernel/pkg/retry"
	"github.com/quaycorner/swarmkernel/pkg/run"
	"github.com/quaycorner/swarmkernel/pkg/state"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("kernel: .env load failed", "error", err)
	}

	cfgPath := os.Getenv("KERNEL_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("kernel: invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ckpt, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		slog.Error("kernel: checkpoint backend init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := ckpt.Close(context.Background()); err != nil {
			slog.Warn("kernel: checkpoint store close failed", "error", err)
		}
	}()

	registry := agent.NewRegistry()
	registerBuiltinAgents(registry)

	breakers := retry.NewBreakerRegistry(cfg.BreakerThreshold, cfg.BreakerTimeout())
	ctrl := run.New(registry, ckpt, breakers, cfg.RetryConfig(), run.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		RunDeadline:   cfg.RunDeadline(),
	})
	pool := run.NewPool(ctrl, cfg.MaxConcurrent)

	server := api.New(pool, ckpt)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Engine(),
	}

	go func() {
		slog.Info("kernel: listening", "addr", cfg.ListenAddr, "checkpoint_store", cfg.CheckpointStore)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("kernel: server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("kernel: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pool.Shutdown(shutdownCtx); err != nil {
		slog.Warn("kernel: run pool drain timed out", "error", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("kernel: http shutdown error", "error", err)
	}
}

func buildCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, error) {
	switch cfg.CheckpointStore {
	case config.CheckpointLocalDurable:
		return checkpoint.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return checkpoint.NewMemoryStore(), nil
	}
}

// registerBuiltinAgents wires the kernel's reference agents — enough to
// run end to end out of the box. Real deployments register their own
// domain agents against the same agent.Registry before serving.
func registerBuiltinAgents(registry *agent.Registry) {
	registry.Register("search", referenceAgent("search", "gathered source material"))
	registry.Register("analytics", referenceAgent("analytics", "computed summary statistics"))
	registry.Register("document", referenceAgent("document", "drafted report"))
	registry.Register("compliance", referenceAgent("compliance", "checked draft against policy"))
}

func referenceAgent(name, message string) agent.Agent {
	return agent.Func(func(ctx context.Context, invokedAs string, snapshot *state.RunState) (state.Patch, error) {
		return state.Patch{
			Results: map[string]state.Result{
				invokedAs: {
					Status:    state.ResultSuccess,
					Message:   message,
					Timestamp: time.Now(),
				},
			},
		}, nil
	})
}
