package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps one file per artifact under a root directory.
// The directory is created by any write that finds it missing.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir. Nothing is touched on disk yet.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the configured root directory
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid artifact id %q", id)
	}
	return filepath.Join(s.root, ObjectName(id)), nil
}

// ensureRoot runs on every write since the root may be swept while we run
func (s *FileStore) ensureRoot() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create transitions directory: %w", err)
	}
	return nil
}

func (s *FileStore) Exists(_ context.Context, id string) bool {
	p, err := s.path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Write stores data atomically via a temp file and rename
func (s *FileStore) Write(_ context.Context, id string, data []byte) (string, error) {
	p, err := s.path(id)
	if err != nil {
		return "", err
	}
	if err := s.ensureRoot(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.root, "."+id+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	log.Debugf("%s Wrote %s (%d bytes)", logcolors.LogStorage, p, len(data))
	return p, nil
}

func (s *FileStore) Read(_ context.Context, id string) ([]byte, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

func (s *FileStore) Delete(_ context.Context, id string) {
	p, err := s.path(id)
	if err != nil {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("%s Failed to delete %s: %v", logcolors.LogStorage, p, err)
	}
}
