package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"stagehand/internal/config"
	"stagehand/internal/fileutil"
	"stagehand/internal/logging"
	"stagehand/internal/services"
	"stagehand/internal/services/rclone"
	"stagehand/internal/textutil"
)

// DeliverRequest names the finished artifacts to place under a branded
// library folder.
type DeliverRequest struct {
	BrandCode string
	Artist    string
	Title     string
	Artifacts []string
}

// DeliverResult reports where the artifacts landed.
type DeliverResult struct {
	FolderName string
	FolderPath string
	Delivered  []string
	ShareLink  string
}

// Organizer moves finished artifacts into the library and, when a remote is
// configured, publishes them and requests a shareable link.
type Organizer struct {
	libraryDir string
	remote     string
	settle     time.Duration
	rclone     *rclone.Service
	logger     *slog.Logger
}

// NewOrganizer constructs the organizer from configuration.
func NewOrganizer(cfg *config.Config, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Organizer{
		libraryDir: cfg.Paths.LibraryDir,
		remote:     strings.TrimSpace(cfg.Archive.Remote),
		settle:     time.Duration(cfg.Archive.SettleSeconds) * time.Second,
		rclone:     rclone.NewService(cfg.RcloneBinary()),
		logger:     logging.NewComponentLogger(logger, "archive"),
	}
}

// Rclone exposes the rclone service so tests can stub its command runner.
func (o *Organizer) Rclone() *rclone.Service { return o.rclone }

// WithSettleDelay overrides the post-upload settle delay (used in tests).
func (o *Organizer) WithSettleDelay(d time.Duration) { o.settle = d }

// Deliver moves the request's artifacts into `<library>/<CODE - Artist -
// Title>/`. Artifacts already present at the target are left untouched, so a
// retried finalization does not redo or clobber completed moves. With a
// remote configured, every file in the folder is uploaded, the settle delay
// passes, and a share link for the folder is requested; a failed link request
// is logged and leaves the result without one.
func (o *Organizer) Deliver(ctx context.Context, req DeliverRequest) (*DeliverResult, error) {
	logger := logging.WithContext(ctx, o.logger)
	if strings.TrimSpace(req.BrandCode) == "" {
		return nil, services.Wrap(services.ErrValidation, "archiving", "validate inputs",
			"Brand code required for delivery", nil)
	}
	if len(req.Artifacts) == 0 {
		return nil, services.Wrap(services.ErrValidation, "archiving", "validate inputs",
			"No artifacts to deliver", nil)
	}
	if strings.TrimSpace(o.libraryDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archiving", "resolve library dir",
			"Library directory not configured; set paths.library_dir in stagehand.toml", nil)
	}

	folderName := BrandedName(req.BrandCode, req.Artist, req.Title)
	folderPath := filepath.Join(o.libraryDir, folderName)
	if err := os.MkdirAll(folderPath, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archiving", "ensure library folder",
			"Failed to create library folder", err)
	}

	result := &DeliverResult{FolderName: folderName, FolderPath: folderPath}
	for _, artifact := range req.Artifacts {
		source := strings.TrimSpace(artifact)
		if source == "" {
			continue
		}
		target := filepath.Join(folderPath, filepath.Base(source))
		if _, err := os.Stat(target); err == nil {
			logger.Info("artifact already delivered; skipping",
				logging.String("target", target))
			result.Delivered = append(result.Delivered, target)
			continue
		}
		if err := moveOrCopyFile(source, target, logger); err != nil {
			return nil, services.Wrap(services.ErrTransient, "archiving", "move artifact",
				fmt.Sprintf("Failed to move %s into library", filepath.Base(source)), err)
		}
		logger.Info("artifact delivered",
			logging.String("source", source),
			logging.String("target", target),
		)
		result.Delivered = append(result.Delivered, target)
	}

	if o.remote == "" {
		return result, nil
	}
	remoteFolder := remoteJoin(o.remote, folderName)
	for _, local := range result.Delivered {
		remotePath := remoteJoin(remoteFolder, filepath.Base(local))
		if err := o.rclone.CopyTo(ctx, local, remotePath); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "archiving", "upload artifact",
				fmt.Sprintf("Failed to upload %s", filepath.Base(local)), err)
		}
	}
	logger.Info("artifacts uploaded",
		logging.String("remote_folder", remoteFolder),
		logging.Int("count", len(result.Delivered)),
	)
	if err := o.waitSettle(ctx); err != nil {
		return nil, err
	}
	link, err := o.rclone.Link(ctx, remoteFolder)
	if err != nil {
		logger.Warn("share link request failed", logging.Error(err))
		return result, nil
	}
	result.ShareLink = link
	logger.Info("share link ready", logging.String("share_link", link))
	return result, nil
}

// waitSettle pauses before the link request so the remote listing catches up
// with the uploads.
func (o *Organizer) waitSettle(ctx context.Context) error {
	if o.settle <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return services.Wrap(services.ErrTransient, "archiving", "settle",
			"Interrupted while waiting for remote to settle", ctx.Err())
	case <-time.After(o.settle):
		return nil
	}
}

// BrandedName builds the "CODE - Artist - Title" display name used for both
// the library folder and the deliverable file stems, dropping empty parts and
// sanitizing for the filesystem.
func BrandedName(code, artist, title string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{code, artist, title} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return textutil.SanitizeFileName(strings.Join(parts, " - "))
}

func remoteJoin(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}

// moveOrCopyFile renames src onto dst, falling back to a verified copy plus
// source removal when the rename crosses filesystems.
func moveOrCopyFile(src, dst string, logger *slog.Logger) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := fileutil.CopyVerified(src, dst); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			logger.Warn("failed to remove source file after copy", logging.Error(err))
		}
		return nil
	}
	return renameErr
}
