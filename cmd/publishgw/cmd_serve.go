package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduba/publishgw/internal/api"
	"github.com/eduba/publishgw/internal/config"
	"github.com/eduba/publishgw/internal/events"
	"github.com/eduba/publishgw/internal/gateway"
	"github.com/eduba/publishgw/internal/janitor"
	"github.com/eduba/publishgw/internal/lock"
	"github.com/eduba/publishgw/internal/log"
	"github.com/eduba/publishgw/internal/runlog"
	"github.com/eduba/publishgw/internal/runner"
	"github.com/eduba/publishgw/internal/storage"
	"github.com/eduba/publishgw/internal/workspace"
)

// writeTimeoutMargin covers staging and response encoding on top of the
// agent's own time budget.
const writeTimeoutMargin = 30 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Override api.listen")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		logger.Warn("failed to fingerprint config", "path", cfg.SourceFile, "error", err)
	}
	logger.Info("publishgw starting", "version", version, "config", cfg.SourceFile, "fingerprint", fingerprint)

	pidLock, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return err
	}
	defer func() { _ = pidLock.Release() }()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	runs := runlog.New(db)
	hub := events.NewHub(events.DefaultCapacity)

	workspaces, err := workspace.NewFSManager(cfg.Workspace.Root, cfg.Workspace.Prefix)
	if err != nil {
		logger.Error("failed to initialize workspace manager", "root", cfg.Workspace.Root, "error", err)
		return err
	}

	agent, err := runner.New(runner.Config{
		Executable:     cfg.Agent.Executable,
		Env:            cfg.AgentEnv(),
		Dir:            cfg.Agent.Workdir,
		Timeout:        cfg.AgentTimeout(),
		GracePeriod:    cfg.Agent.GracePeriod,
		MaxOutputBytes: int(cfg.Agent.MaxOutput),
		StopOnCancel:   cfg.Agent.StopOnCancel,
	})
	if err != nil {
		return fmt.Errorf("invalid agent configuration: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Selector:      cfg.Selector(),
		MaxConcurrent: cfg.ConcurrencyLimit(),
	}, workspaces, agent, runs, hub)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	sweepInterval := cfg.Workspace.SweepInterval
	if cfg.AgentTimeout() == 0 {
		// Without a run limit no age proves a workspace is dead, so only the
		// startup pass sweeps.
		logger.Warn("agent.timeout disabled; periodic workspace sweep turned off")
		sweepInterval = 0
	}
	jan := janitor.New(janitor.Config{
		SweepInterval: sweepInterval,
		StaleAfter:    cfg.Workspace.StaleAfter,
		Retention:     cfg.State.Retention,
	}, workspaces, runs, hub, log.Get())
	if err := jan.Start(ctx); err != nil {
		return err
	}
	defer jan.Stop()

	server := api.New(api.Config{
		Listen:        cfg.API.Listen,
		MaxUploadSize: int64(cfg.API.MaxUploadSize),
		CORSOrigins:   cfg.API.CORSOrigins,
		Tokens:        cfg.API.Auth.Tokens,
		WriteTimeout:  writeTimeout(cfg),
	}, gw, runs, hub, log.WithComponent("api"))

	logger.Info("gateway ready",
		"listen", cfg.API.Listen,
		"agent", agent.Executable(),
		"workspace_root", workspaces.Root(),
		"max_concurrent", cfg.ConcurrencyLimit(),
		"operator_api", len(cfg.API.Auth.Tokens) > 0,
	)

	err = server.Start(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("publishgw stopped")
		return nil
	}
	if err != nil {
		logger.Error("server failed", "error", err)
	}
	return err
}


// writeTimeout is the HTTP write budget for one submission; 0 when agent
// runs are unbounded.
func writeTimeout(cfg *config.Config) time.Duration {
	if cfg.AgentTimeout() == 0 {
		return 0
	}
	return cfg.AgentTimeout() + cfg.Agent.GracePeriod + writeTimeoutMargin
}
