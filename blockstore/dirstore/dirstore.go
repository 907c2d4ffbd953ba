// Package dirstore is a directory-backed rstore.Store, used as a test
// fixture to exercise the repository engine against real filesystem
// I/O rather than an in-memory map. It is not a deliverable backend
// (spec.md §1 places concrete block-store backends out of scope).
package dirstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"objectrepo/internal/rstore"
)

// kindDirs names the subdirectory holding each listable block kind.
// Super and Version are singleton files at the store root instead.
var kindDirs = map[rstore.Kind]string{
	rstore.KindData:   "data",
	rstore.KindLock:   "lock",
	rstore.KindHeader: "header",
}

const (
	superFileName   = "super"
	versionFileName = "version"
)

// Store is a directory-backed rstore.Store. Each Data, Lock, and
// Header block is one file named by its id inside a kind subdirectory;
// Super and Version are single well-known files at the root. Writes go
// through a temp-file-then-rename so a reader never observes a torn
// write, the same pattern the teacher's file chunk manager uses for
// its log files.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating dir and its kind
// subdirectories if they do not already exist.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("dirstore: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("dirstore: create root: %w", err)
	}
	for _, sub := range kindDirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("dirstore: create %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key rstore.Key) (string, error) {
	switch key.Kind {
	case rstore.KindSuper:
		return filepath.Join(s.dir, superFileName), nil
	case rstore.KindVersion:
		return filepath.Join(s.dir, versionFileName), nil
	default:
		sub, ok := kindDirs[key.Kind]
		if !ok {
			return "", fmt.Errorf("dirstore: unknown kind %s", key.Kind)
		}
		return filepath.Join(s.dir, sub, key.ID.String()), nil
	}
}

// Write stores data under key via a temp file and atomic rename.
func (s *Store) Write(key rstore.Key, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("dirstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("dirstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("dirstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("dirstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("dirstore: rename temp file: %w", err)
	}
	return nil
}

// Read returns the bytes stored under key, or (nil, false, nil) if
// absent.
func (s *Store) Read(key rstore.Key) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dirstore: read: %w", err)
	}
	return data, true, nil
}

// Remove deletes the block at key. It is not an error if key is
// already absent.
func (s *Store) Remove(key rstore.Key) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("dirstore: remove: %w", err)
	}
	return nil
}

// List returns every id present under kind's subdirectory. Entries
// whose name does not parse as a UUID (e.g. a leftover temp file from
// an interrupted Write) are skipped.
func (s *Store) List(kind rstore.Kind) ([]uuid.UUID, error) {
	sub, ok := kindDirs[kind]
	if !ok {
		return nil, fmt.Errorf("dirstore: kind %s is not listable", kind)
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, sub))
	if err != nil {
		return nil, fmt.Errorf("dirstore: list: %w", err)
	}
	var out []uuid.UUID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

var _ rstore.Store = (*Store)(nil)
