package daemon_test

import (
	"context"
	"path/filepath"
	"testing"

	"stagehand/internal/daemon"
	"stagehand/internal/joblog"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/notifications"
	"stagehand/internal/pipeline"
	"stagehand/internal/testsupport"
)

type noopRunner struct{}

func (noopRunner) Run(context.Context, *jobs.Job) (map[string]string, error) {
	return nil, nil
}

func (noopRunner) ApplyCorrections(context.Context, *jobs.Job) (map[string]string, error) {
	return nil, nil
}

func (noopRunner) RenderPreview(context.Context, *jobs.Job) (map[string]string, error) {
	return nil, nil
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, jobs.Registry) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	registry := testsupport.MustOpenRegistry(t, cfg)
	orch := pipeline.NewWithRunners(cfg, registry, joblog.NewMemoryStore(), notifications.NewService(cfg),
		noopRunner{}, noopRunner{}, noopRunner{}, logging.NewNop())

	d, err := daemon.New(cfg, registry, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d, registry
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Store == "" {
		t.Fatal("expected store description")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	registry := testsupport.MustOpenRegistry(t, cfg)
	log := joblog.NewMemoryStore()
	notifier := notifications.NewService(cfg)

	first, err := daemon.New(cfg, registry,
		pipeline.NewWithRunners(cfg, registry, log, notifier, noopRunner{}, noopRunner{}, noopRunner{}, logging.NewNop()),
		logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New first: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, registry,
		pipeline.NewWithRunners(cfg, registry, log, notifier, noopRunner{}, noopRunner{}, noopRunner{}, logging.NewNop()),
		logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	defer second.Stop()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be rejected while the lock is held")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestProbeSeesRunningDaemon(t *testing.T) {
	d, _ := newTestDaemon(t)

	cfg := testsupport.NewConfig(t)
	if running, _ := daemon.Probe(cfg); running {
		t.Fatal("expected no daemon for a fresh lock dir")
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Probe must not require daemon internals, only the shared lock dir.
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	probeCfg := testsupport.NewConfig(t)
	probeCfg.Paths.LockDir = filepath.Dir(status.LockFilePath)
	running, pid := daemon.Probe(probeCfg)
	if !running {
		t.Fatal("expected probe to see the running daemon")
	}
	if pid == 0 {
		t.Fatal("expected probe to read the daemon pid")
	}

	d.Stop()
	if running, _ := daemon.Probe(probeCfg); running {
		t.Fatal("expected probe to see the daemon stopped")
	}
}
