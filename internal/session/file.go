// internal/session/file.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"marketapp/internal/models"
)

// FileStore keeps the credential as one JSON blob on disk. Writes go
// through a temp file and rename so a crash never leaves a half-written
// blob behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (models.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Credential{}, false, nil
	}
	if err != nil {
		return models.Credential{}, false, err
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil || cred.Token == "" {
		// Corrupt or empty blob: purge it and report no session.
		_ = os.Remove(s.path)
		return models.Credential{}, false, nil
	}
	if _, err := DecodeClaims(cred.Token); err != nil {
		_ = os.Remove(s.path)
		return models.Credential{}, false, nil
	}
	return cred, true, nil
}

func (s *FileStore) Save(_ context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
