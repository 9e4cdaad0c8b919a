//go:build windows

package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Replace writes path through fill into a temp file in the same directory,
// then renames it over path. The target is removed first because rename
// does not replace existing files on every Windows filesystem.
func Replace(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync pending file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pending file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod pending file: %w", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	committed = true
	return nil
}
