package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/vmunix/streamgrab/internal/atomicfile"
	"github.com/vmunix/streamgrab/internal/metadata"
)

// Finalize moves the finished temp file to dst, creating parent
// directories. Readers of dst see either nothing, the previous file, or the
// complete new one.
func Finalize(tmp, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	err := os.Rename(tmp, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("move into place: %w", err)
	}
	if err := copyReplace(tmp, dst); err != nil {
		return fmt.Errorf("copy into place: %w", err)
	}
	_ = os.Remove(tmp)
	return nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

// copyReplace copies src into a pending file beside dst and atomically
// replaces dst with it.
func copyReplace(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	return atomicfile.Replace(dst, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// sidecarPath places a sidecar next to dst: the cover keeps its name in
// dst's directory, everything else takes dst's stem.
func sidecarPath(sidecar, dst string) string {
	if filepath.Base(sidecar) == metadata.CoverFileName {
		return filepath.Join(filepath.Dir(dst), metadata.CoverFileName)
	}
	return stem(dst) + filepath.Ext(sidecar)
}

// moveSidecars finalizes each sidecar next to dst and returns the new paths.
func moveSidecars(sidecars []string, dst string) ([]string, error) {
	moved := make([]string, 0, len(sidecars))
	for _, s := range sidecars {
		target := sidecarPath(s, dst)
		if err := Finalize(s, target); err != nil {
			return moved, fmt.Errorf("sidecar %s: %w", filepath.Base(s), err)
		}
		moved = append(moved, target)
	}
	return moved, nil
}
