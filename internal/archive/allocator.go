package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"log/slog"

	"stagehand/internal/logging"
	"stagehand/internal/services/rclone"
)

// Source lists the names an allocator scans for existing brand codes.
type Source interface {
	Names(ctx context.Context) ([]string, error)
}

// LocalSource lists the entries of a directory on the local filesystem. A
// missing directory reads as an empty series rather than an error.
type LocalSource struct {
	dir string
}

// NewLocalSource creates a source backed by the given directory.
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

func (s *LocalSource) Names(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

// RemoteSource lists the entries under a remote path via rclone lsjson.
type RemoteSource struct {
	svc    *rclone.Service
	remote string
}

// NewRemoteSource creates a source backed by the given rclone remote path.
func NewRemoteSource(svc *rclone.Service, remote string) *RemoteSource {
	return &RemoteSource{svc: svc, remote: remote}
}

func (s *RemoteSource) Names(ctx context.Context) ([]string, error) {
	entries, err := s.svc.List(ctx, s.remote)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

// Allocator hands out the next serial in a PREFIX-NNNN code series. It scans
// every configured source and never reuses gaps, so codes stay unique even
// when earlier entries have been renamed or removed.
type Allocator struct {
	prefix  string
	sources []Source
	logger  *slog.Logger
}

// NewAllocator creates an allocator for the given prefix over the given
// sources.
func NewAllocator(prefix string, logger *slog.Logger, sources ...Source) *Allocator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Allocator{
		prefix:  strings.TrimSpace(prefix),
		sources: sources,
		logger:  logging.NewComponentLogger(logger, "archive"),
	}
}

// Next returns the next unused code in the series. An empty series starts at
// PREFIX-0001. A source listing failure aborts allocation; guessing a serial
// without the full listing risks handing out a duplicate.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	if a.prefix == "" {
		return "", fmt.Errorf("allocate brand code: prefix required")
	}
	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(a.prefix) + `-(\d{4})`)
	if err != nil {
		return "", fmt.Errorf("allocate brand code: %w", err)
	}
	max := 0
	seen := 0
	for _, source := range a.sources {
		names, err := source.Names(ctx)
		if err != nil {
			return "", fmt.Errorf("allocate brand code: %w", err)
		}
		for _, name := range names {
			match := pattern.FindStringSubmatch(name)
			if match == nil {
				continue
			}
			seen++
			serial, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if serial > max {
				max = serial
			}
		}
	}
	code := fmt.Sprintf("%s-%04d", a.prefix, max+1)
	a.logger.Info("allocated brand code",
		logging.String("brand_code", code),
		logging.Int("existing_entries", seen),
	)
	return code, nil
}
