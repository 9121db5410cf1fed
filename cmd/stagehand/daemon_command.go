package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stagehand/internal/daemon"
	"stagehand/internal/deps"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/notifications"
	"stagehand/internal/pipeline"
	"stagehand/internal/preflight"
	"stagehand/internal/staging"
	"stagehand/internal/textutil"
)

// workspaceRetention bounds how long an abandoned job workspace survives.
// Finalization removes its own workspace; this sweep only catches jobs that
// crashed or were never finished.
const workspaceRetention = 14 * 24 * time.Hour

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon operations",
	}

	runCmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the stagehand daemon in the foreground",
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonProcess(ctx, cmd)
		},
	}

	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}

func runDaemonProcess(ctx *commandContext, cmd *cobra.Command) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("stagehand-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "stagehand-*.log", Exclude: []string{logPath}},
	)

	for _, check := range preflight.RunAll(signalCtx, cfg) {
		if check.Passed {
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail))
	}
	if missing := deps.MissingRequired(preflight.CheckTools(cfg)); len(missing) > 0 {
		for _, tool := range missing {
			logger.Error("required tool unavailable",
				logging.String("tool", tool.Name),
				logging.String("detail", tool.Detail))
		}
		return fmt.Errorf("missing required tools; run `stagehand status` for details")
	}

	sweep := staging.CleanStale(cfg.Paths.StagingDir, workspaceRetention, logger)
	if len(sweep.Removed) > 0 {
		logger.Info("removed stale workspaces", logging.Int("count", len(sweep.Removed)))
	}

	registry, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job registry", logging.Error(err))
		return err
	}

	orch := pipeline.New(cfg, registry, jobLogStore(cfg), notifications.NewService(cfg), logger)

	// Pin the hardware answer now so the first job does not pay the probe.
	hardware := orch.Encoder().HardwareEnabled(signalCtx)
	logger.Info("encode capability resolved",
		logging.String("mode", textutil.Ternary(hardware, "nvenc", "software")))

	d, err := daemon.New(cfg, registry, orch, logger)
	if err != nil {
		_ = registry.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return err
	}
	fmt.Fprintf(os.Stderr, "stagehand daemon running (log: %s)\n", logPath)

	<-signalCtx.Done()
	logger.Info("stagehand daemon shutting down")
	return nil
}
