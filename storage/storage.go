// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package storage is the narrow secret storage capability used by the
// clients: get, set and delete a named secret blob. The package ships an
// in-memory store and a file store; platform keychains can be plugged in by
// implementing SecretStore.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/authkit/authflow/sdk/id"
)

var (
	// ErrNotFound is returned by Get when no secret exists for the key.
	ErrNotFound = errors.New("secret not found")

	// ErrInvalidKey is returned for an empty secret key.
	ErrInvalidKey = errors.New("invalid secret key")
)

// DeviceIdentifierKey is the key under which the persisted device identifier
// is stored.
const DeviceIdentifierKey = "authflow.device-identifier"

// SecretStore stores named secret blobs.
type SecretStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// MemoryStore is a SecretStore which keeps secrets in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: map[string][]byte{}}
}

// Get implements SecretStore.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	const op = "MemoryStore.Get"
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.secrets[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Set implements SecretStore.
func (s *MemoryStore) Set(key string, value []byte) error {
	const op = "MemoryStore.Set"
	if key == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements SecretStore. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, key)
	return nil
}

// FileStore is a SecretStore which writes each secret to its own file with
// owner-only permissions.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it with 0700
// permissions when needed.
func NewFileStore(dir string) (*FileStore, error) {
	const op = "storage.NewFileStore"
	if dir == "" {
		return nil, fmt.Errorf("%s: missing directory: %w", op, ErrInvalidKey)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: unable to create storage directory: %w", op, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".secret")
}

// Get implements SecretStore.
func (s *FileStore) Get(key string) ([]byte, error) {
	const op = "FileStore.Get"
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Set implements SecretStore. The secret is written to a temporary file and
// renamed into place.
func (s *FileStore) Set(key string, value []byte) error {
	const op = "FileStore.Set"
	if key == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.CreateTemp(s.dir, ".secret-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements SecretStore. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	const op = "FileStore.Delete"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeviceIdentifier returns the device identifier persisted in store, creating
// and storing a new one on first use.
func DeviceIdentifier(store SecretStore) (string, error) {
	const op = "storage.DeviceIdentifier"
	if store == nil {
		return "", fmt.Errorf("%s: missing secret store: %w", op, ErrInvalidKey)
	}
	b, err := store.Get(DeviceIdentifierKey)
	switch {
	case err == nil && len(b) > 0:
		return string(b), nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := id.UUID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := store.Set(DeviceIdentifierKey, []byte(u)); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
