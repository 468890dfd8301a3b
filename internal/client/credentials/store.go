// Package credentials persists the bearer credential for each backend origin.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// FileName is the credentials file inside the client config directory.
	FileName = "credentials.json"
	// FilePermissions for the credentials file (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for the config directory.
	DirPermissions = 0700

	// TokenKey holds the bearer credential.
	TokenKey = "token"
	// UserKey is a cached-user entry written by older clients. It is never
	// read or written here, only removed on Clear.
	UserKey = "user"
)

// Store holds at most one credential. Implementations must make Clear
// idempotent and safe to call concurrently from the session resolver and the
// identity query.
type Store interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

type fileData struct {
	Origins map[string]map[string]string `json:"origins"`
}

// FileStore keeps one entry per origin in a JSON file. Every Get re-reads the
// file so a credential written or cleared by another process is observed on
// the next read.
type FileStore struct {
	path   string
	origin string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore returns a store for origin under dir. The file is created on
// the first Set.
func NewFileStore(dir, origin string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   filepath.Join(dir, FileName),
		origin: origin,
		logger: logger,
	}
}

// Path returns the credentials file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		// An unreadable file is treated as no credential.
		s.logger.Warn().Err(err).Str("path", s.path).Msg("read credentials")
		return "", false
	}
	token := data.Origins[s.origin][TokenKey]
	return token, token != ""
}

func (s *FileStore) Set(token string) error {
	if token == "" {
		return errors.New("credentials: empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("discarding unreadable credentials file")
		data = &fileData{Origins: map[string]map[string]string{}}
	}
	entry := data.Origins[s.origin]
	if entry == nil {
		entry = map[string]string{}
		data.Origins[s.origin] = entry
	}
	entry[TokenKey] = token
	return s.save(data)
}

// Clear removes the token and legacy user keys for this origin. Clearing an
// empty store does not touch the file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("removing unreadable credentials file")
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("remove credentials: %w", rmErr)
		}
		return nil
	}
	entry, ok := data.Origins[s.origin]
	if !ok {
		return nil
	}
	delete(entry, TokenKey)
	delete(entry, UserKey)
	if len(entry) == 0 {
		delete(data.Origins, s.origin)
	}
	return s.save(data)
}

// load returns an empty set when the file does not exist yet.
func (s *FileStore) load() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileData{Origins: map[string]map[string]string{}}, nil
		}
		return nil, err
	}
	data := &fileData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if data.Origins == nil {
		data.Origins = map[string]map[string]string{}
	}
	return data, nil
}

// save writes through a temp file and rename so readers in other processes
// never see a partial file.
func (s *FileStore) save(data *fileData) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(FilePermissions); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) Set(token string) error {
	if token == "" {
		return errors.New("credentials: empty token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
