package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore implements Store on top of a YAML state file. Every mutation
// rewrites the file through a temporary file and a rename, so readers see
// either the old or the new content.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store persisting to path. The file is created on
// the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, _, err := s.loadForWrite(ctx)
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Remove implements Store.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, discarded, err := s.loadForWrite(ctx)
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok && !discarded {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, ErrStorage.MsgErr("unable to read session file", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, ErrCorrupt.MsgErr("unable to parse session file", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// loadForWrite is load for mutations: a file that no longer parses is
// replaced rather than blocking every later write.
func (s *FileStore) loadForWrite(ctx context.Context) (map[string]string, bool, error) {
	values, err := s.load()
	if errors.Is(err, ErrCorrupt) {
		log.Ctx(ctx).Warn().Err(err).Str("path", s.path).Msg("discarding corrupt session file")
		return map[string]string{}, true, nil
	}
	return values, false, err
}

func (s *FileStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return ErrStorage.MsgErr("unable to create session directory", err)
	}
	raw, err := yaml.Marshal(values)
	if err != nil {
		return ErrStorage.MsgErr("unable to encode session file", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return ErrStorage.MsgErr("unable to write session file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return ErrStorage.MsgErr("unable to write session file", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return ErrStorage.MsgErr("unable to write session file", err)
	}
	if err := tmp.Close(); err != nil {
		return ErrStorage.MsgErr("unable to write session file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return ErrStorage.MsgErr(fmt.Sprintf("unable to replace %s", s.path), err)
	}
	return nil
}
