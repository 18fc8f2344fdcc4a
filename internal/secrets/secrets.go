// Package secrets keeps provider credentials out of the shared database.
package secrets

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the minimal secret-store contract the pipeline needs.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// FileStore persists secrets as a JSON object in a 0600 file. It stands in
// for the platform keychain; the SQLite database never sees credentials.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewFileStore loads (or lazily creates) the secret file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: map[string]string{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the stored value for key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and rewrites the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Delete removes a key and rewrites the file.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.save()
}

func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(s.path, b, 0o600)
}

// Lookup reads key from the store, falling back to the environment variable
// FAREWATCH_<KEY>. Environment wins so deployments can inject credentials
// without touching the secret file.
func Lookup(s Store, key string) (string, bool) {
	env := "FAREWATCH_" + strings.ToUpper(key)
	if v := os.Getenv(env); v != "" {
		return v, true
	}
	if s == nil {
		return "", false
	}
	return s.Get(key)
}

// Secret key names used by the providers.
const (
	KeySkyQueryAPIKey      = "skyquery_api_key"
	KeyAirDistClientID     = "airdist_client_id"
	KeyAirDistClientSecret = "airdist_client_secret"
)

var _ Store = (*FileStore)(nil)
