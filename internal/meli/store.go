package meli

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// TokenStore persists the access token between runs. The store holds at most
// one token, scoped to the configured credential pair.
type TokenStore interface {
	// Get returns the stored token, or nil when none is stored. A corrupt
	// or unreadable record is reported as absent, never as an error that
	// would abort a run.
	Get() (*AccessToken, error)
	// Put replaces the stored token wholesale.
	Put(AccessToken) error
}

// FileStore keeps the token in a small JSON cache file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (*AccessToken, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil
	}

	var tok AccessToken
	if err := json.Unmarshal(data, &tok); err != nil {
		// Corrupt cache is treated as absent; the next Put overwrites it.
		return nil, nil
	}
	return &tok, nil
}

func (s *FileStore) Put(tok AccessToken) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a half-written cache.
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore is an in-memory TokenStore for tests.
type MemoryStore struct {
	token *AccessToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (*AccessToken, error) {
	return s.token, nil
}

func (s *MemoryStore) Put(tok AccessToken) error {
	s.token = &tok
	return nil
}
