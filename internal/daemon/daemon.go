package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stagehand/internal/config"
	"stagehand/internal/jobs"
	"stagehand/internal/logging"
	"stagehand/internal/pipeline"
)

const (
	lockFileName = "stagehand.lock"
	pidFileName  = "stagehand.pid"
)

// Daemon runs the pipeline poll loop behind a single-instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry jobs.Registry
	pipeline *pipeline.Orchestrator

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Jobs         jobs.HealthSummary
	LockFilePath string
	Store        string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, registry jobs.Registry, orch *pipeline.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || registry == nil || orch == nil {
		return nil, errors.New("daemon requires config, registry, and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := LockPath(cfg)
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		registry: registry,
		pipeline: orch,
		lockPath: lockPath,
		pidPath:  PIDPath(cfg),
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, records the PID, and launches the poll loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stagehand instance is already running")
	}

	if err := writePID(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.pipeline.Start(runCtx); err != nil {
		cancel()
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("stagehand daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the poll loop, waits for in-flight phases, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("stagehand daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.registry != nil {
		return d.registry.Close()
	}
	return nil
}

// Status returns the current daemon status with registry counts.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	list, err := d.registry.List(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Jobs:         jobs.Summarize(list),
		LockFilePath: d.lockPath,
		Store:        StoreDescription(d.cfg),
	}, nil
}

// LockPath returns the daemon instance lock location for the config.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LockDir, lockFileName)
}

// PIDPath returns the daemon PID file location for the config.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LockDir, pidFileName)
}

// Probe reports whether a daemon holds the instance lock, and its PID when the
// PID file is readable. It works from any process sharing the lock directory.
func Probe(cfg *config.Config) (bool, int) {
	if cfg == nil {
		return false, 0
	}
	lock := flock.New(LockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil {
		return false, 0
	}
	if ok {
		_ = lock.Unlock()
		return false, 0
	}
	return true, readPID(PIDPath(cfg))
}

// StoreDescription renders the configured registry backend for status output.
func StoreDescription(cfg *config.Config) string {
	if cfg == nil {
		return "unknown"
	}
	switch cfg.Store.Backend {
	case "sqlite":
		return fmt.Sprintf("sqlite (%s)", cfg.Store.SQLitePath)
	case "redis":
		return fmt.Sprintf("redis (%s)", cfg.Store.RedisAddr)
	default:
		return cfg.Store.Backend
	}
}

func writePID(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
