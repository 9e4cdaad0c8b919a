package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmunix/streamgrab/internal/atomicfile"
)

// Credentials holds both profiles as persisted on disk.
type Credentials struct {
	Normal    Profile `json:"normal"`
	Alternate Profile `json:"alternate"`
}

// CredentialStore loads and saves credentials.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// FileStore keeps credentials in a JSON file readable only by the owner.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed credential store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the credentials file. A missing file yields empty credentials.
func (s *FileStore) Load() (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	return c, nil
}

// Save atomically replaces the credentials file.
func (s *FileStore) Save(c Credentials) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	return atomicfile.WriteFile(s.path, data, 0o600)
}
