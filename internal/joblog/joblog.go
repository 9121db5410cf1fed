package joblog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store records per-job log lines and reads them back for the CLI.
// Lines are append-only; there is no rotation, a job's log lives and dies
// with its staging directory.
type Store interface {
	// Append writes one line to the job's log, prefixing a UTC timestamp.
	Append(jobID, line string) error
	// ReadLast returns up to limit lines from the end of the job's log.
	// A missing log yields an empty slice, not an error.
	ReadLast(jobID string, limit int) ([]string, error)
	// Path returns the log location for display, or empty when the store
	// has no file backing.
	Path(jobID string) string
}

// FileStore keeps one log file per job under a base directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the log file location for a job.
func (s *FileStore) Path(jobID string) string {
	return filepath.Join(s.dir, jobID, "job.log")
}

// Append writes one timestamped line to the job's log file.
func (s *FileStore) Append(jobID, line string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is empty")
	}
	path := s.Path(jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create job log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open job log: %w", err)
	}
	defer file.Close()

	stamped := time.Now().UTC().Format(time.RFC3339) + " " + strings.TrimRight(line, "\n") + "\n"
	if _, err := file.WriteString(stamped); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// ReadLast returns up to limit lines from the end of the job's log file.
func (s *FileStore) ReadLast(jobID string, limit int) ([]string, error) {
	file, err := os.Open(s.Path(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open job log: %w", err)
	}
	defer file.Close()
	return lastLines(file, limit)
}

// lastLines scans the reader keeping a ring of the final limit lines.
func lastLines(r io.Reader, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, limit)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job log: %w", err)
	}

	lines := make([]string, count)
	if count == limit {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// MemoryStore keeps log lines in memory for tests.
type MemoryStore struct {
	mu    sync.Mutex
	lines map[string][]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lines: make(map[string][]string)}
}

// Append records one line for the job.
func (s *MemoryStore) Append(jobID, line string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[jobID] = append(s.lines[jobID], strings.TrimRight(line, "\n"))
	return nil
}

// ReadLast returns up to limit lines from the end of the job's recorded lines.
func (s *MemoryStore) ReadLast(jobID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recorded := s.lines[jobID]
	if len(recorded) > limit {
		recorded = recorded[len(recorded)-limit:]
	}
	out := make([]string, len(recorded))
	copy(out, recorded)
	return out, nil
}

// Path reports no file backing for the memory store.
func (s *MemoryStore) Path(string) string {
	return ""
}

// Lines returns everything recorded for a job, oldest first. Test helper.
func (s *MemoryStore) Lines(jobID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines[jobID]))
	copy(out, s.lines[jobID])
	return out
}
