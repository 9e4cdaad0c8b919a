// Package convert remuxes downloaded streams into their final container.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "ffmpeg"

// ErrNotInstalled is returned when the ffmpeg binary cannot be found.
var ErrNotInstalled = errors.New("ffmpeg not found")

// FFmpeg remuxes with stream copy; nothing is re-encoded.
type FFmpeg struct {
	binary string
	log    *slog.Logger
}

// NewFFmpeg creates a converter. An empty binary means DefaultBinary.
func NewFFmpeg(binary string, log *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	if log == nil {
		log = slog.Default()
	}
	return &FFmpeg{binary: binary, log: log.With("component", "convert")}
}

// Available reports whether the binary can be executed.
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotInstalled, f.binary, err)
	}
	return nil
}

// Convert remuxes path into format ("mp4", "flac") next to the input,
// removes the input and returns the new path. A file already in format is
// returned unchanged.
func (f *FFmpeg) Convert(ctx context.Context, path, format string) (string, error) {
	format = strings.TrimPrefix(format, ".")
	if strings.EqualFold(filepath.Ext(path), "."+format) {
		return path, nil
	}
	if err := f.Available(); err != nil {
		return "", err
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", path,
		"-map", "0",
		"-c", "copy",
		out,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("ffmpeg %s -> %s: %w: %s", filepath.Base(path), format, err, strings.TrimSpace(stderr.String()))
	}

	if err := os.Remove(path); err != nil {
		f.log.Warn("remove converted input", "path", path, "error", err)
	}
	f.log.Debug("converted", "from", filepath.Base(path), "to", filepath.Base(out))
	return out, nil
}
