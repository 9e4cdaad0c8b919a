//go:build !windows

package atomicfile

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// Replace writes path through fill into a pending file in the same
// directory, fsyncs it and renames it over path. The pending file is removed
// if anything fails before the rename.
func Replace(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := fill(pending); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
