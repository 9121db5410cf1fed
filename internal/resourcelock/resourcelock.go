package resourcelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"stagehand/internal/logging"
	"stagehand/internal/services"
)

// retryDelay is how long Acquire waits before rescanning when every slot is
// held by a live owner.
const retryDelay = 30 * time.Second

// LockRecord identifies the holder of a slot so contenders can tell a live
// owner from a crashed one.
type LockRecord struct {
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquired_at"`
	Description string    `json:"description"`
}

// SlotLock hands out exclusive slots for a shared resource. Slot ownership is
// a record file under dir; the claim protocol itself is serialized across
// processes with a flock so inspect-remove-create cannot interleave.
type SlotLock struct {
	dir      string
	resource string
	slots    int
	logger   *slog.Logger
	retry    time.Duration

	// mu serializes claims between goroutines; claim serializes them
	// between processes. flock grants reentrant success to the same
	// Flock instance, so mu must be held first.
	mu    sync.Mutex
	claim *flock.Flock
}

// Option customizes SlotLock construction.
type Option func(*SlotLock)

// WithRetryDelay overrides the wait between scans when all slots are busy.
func WithRetryDelay(d time.Duration) Option {
	return func(l *SlotLock) {
		if d > 0 {
			l.retry = d
		}
	}
}

// New builds a SlotLock for the named resource with the given slot count.
func New(dir, resource string, slots int, logger *slog.Logger, opts ...Option) *SlotLock {
	if slots <= 0 {
		slots = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lock := &SlotLock{
		dir:      dir,
		resource: resource,
		slots:    slots,
		logger:   logging.NewComponentLogger(logger, "resourcelock"),
		claim:    flock.New(filepath.Join(dir, resource+".claim.lock")),
		retry:    retryDelay,
	}
	for _, opt := range opts {
		opt(lock)
	}
	return lock
}

// Lease represents a held slot. Release returns the slot to the pool.
type Lease struct {
	lock   *SlotLock
	slot   int
	record LockRecord
}

// Slot returns the zero-based slot index held by this lease.
func (l *Lease) Slot() int {
	return l.slot
}

// Release removes the slot record. Safe to call once per lease.
func (l *Lease) Release() error {
	return l.lock.release(l.slot)
}

// Acquire claims a free slot, blocking until one opens or ctx is done.
// Records left by crashed processes are removed and reclaimed immediately;
// slots held by live owners trigger a fixed backoff before the next scan.
func (l *SlotLock) Acquire(ctx context.Context, description string) (*Lease, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "resourcelock", "acquire",
			fmt.Sprintf("create lock dir %s", l.dir), err)
	}

	for {
		lease, holders, err := l.scan(ctx, description)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		for _, rec := range holders {
			l.logger.Info("waiting for slot",
				logging.String("resource", l.resource),
				logging.Int("holder_pid", rec.PID),
				logging.String("holder_host", rec.Hostname),
				logging.String("holder_task", rec.Description),
				logging.Duration("held_for", time.Since(rec.AcquiredAt)),
			)
		}

		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrContention, "resourcelock", "acquire",
				fmt.Sprintf("gave up waiting for %s slot", l.resource), ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

// scan tries every slot once under the claim lock. On failure it reports the
// live holders seen so the caller can log before backing off.
func (l *SlotLock) scan(ctx context.Context, description string) (*Lease, []LockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	locked, err := l.claim.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrContention, "resourcelock", "claim", "flock claim section", err)
	}
	if !locked {
		return nil, nil, services.Wrap(services.ErrContention, "resourcelock", "claim", "flock claim section", nil)
	}
	defer func() { _ = l.claim.Unlock() }()

	var holders []LockRecord
	for slot := 0; slot < l.slots; slot++ {
		held, rec := l.tryClaim(slot, description)
		if held {
			lease := &Lease{lock: l, slot: slot, record: rec}
			l.logger.Info("slot acquired",
				logging.String("resource", l.resource),
				logging.Int("slot", slot),
				logging.String("task", description),
			)
			return lease, nil, nil
		}
		holders = append(holders, rec)
	}
	return nil, holders, nil
}

// tryClaim inspects one slot record and claims it when free or stale.
func (l *SlotLock) tryClaim(slot int, description string) (bool, LockRecord) {
	path := l.slotPath(slot)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return l.writeRecord(slot, description)
	case err != nil:
		l.logger.Warn("unreadable slot record; removing",
			logging.String("path", path), logging.Error(err))
		_ = os.Remove(path)
		return l.writeRecord(slot, description)
	}

	var rec LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn("corrupt slot record; removing",
			logging.String("path", path), logging.Error(err))
		_ = os.Remove(path)
		return l.writeRecord(slot, description)
	}

	if l.isStale(rec) {
		l.logger.Warn("stale slot record from dead process; removing",
			logging.String("path", path),
			logging.Int("pid", rec.PID),
			logging.Duration("age", time.Since(rec.AcquiredAt)),
		)
		_ = os.Remove(path)
		return l.writeRecord(slot, description)
	}

	return false, rec
}

// isStale reports whether the record's owner is provably gone. Records from
// other hosts are never considered stale; we cannot probe their PIDs.
func (l *SlotLock) isStale(rec LockRecord) bool {
	hostname, err := os.Hostname()
	if err != nil || rec.Hostname != hostname {
		return false
	}
	if rec.PID <= 0 {
		return true
	}
	if err := unix.Kill(rec.PID, 0); err != nil {
		return errors.Is(err, unix.ESRCH)
	}
	return false
}

func (l *SlotLock) writeRecord(slot int, description string) (bool, LockRecord) {
	hostname, _ := os.Hostname()
	rec := LockRecord{
		PID:         os.Getpid(),
		Hostname:    hostname,
		AcquiredAt:  time.Now().UTC(),
		Description: description,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, rec
	}
	if err := os.WriteFile(l.slotPath(slot), data, 0o644); err != nil {
		l.logger.Warn("write slot record failed",
			logging.String("path", l.slotPath(slot)), logging.Error(err))
		return false, rec
	}
	return true, rec
}

func (l *SlotLock) release(slot int) error {
	path := l.slotPath(slot)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "resourcelock", "release",
			fmt.Sprintf("remove slot record %s", path), err)
	}
	l.logger.Info("slot released",
		logging.String("resource", l.resource),
		logging.Int("slot", slot),
	)
	return nil
}

func (l *SlotLock) slotPath(slot int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%d.slot", l.resource, slot))
}

// Holders reads current slot records for status display. Missing or corrupt
// records are skipped.
func (l *SlotLock) Holders() []LockRecord {
	var holders []LockRecord
	for slot := 0; slot < l.slots; slot++ {
		data, err := os.ReadFile(l.slotPath(slot))
		if err != nil {
			continue
		}
		var rec LockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		holders = append(holders, rec)
	}
	return holders
}
