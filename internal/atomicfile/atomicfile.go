// Package atomicfile replaces files so that readers only ever observe the old
// or the new content, never a partial write.
package atomicfile

import (
	"bytes"
	"io"
	"os"
)

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Replace(path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}
