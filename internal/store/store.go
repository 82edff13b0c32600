package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"felloe/internal/paths"
)

var (
	// ErrCacheMissing is returned when the cache root does not exist.
	ErrCacheMissing = errors.New("cache directory missing")
	// ErrNotInstalled is returned for versions without a complete cache entry.
	ErrNotInstalled = errors.New("version not installed")
)

// Entry is one directory under the cache root.
type Entry struct {
	Version  string
	Complete bool
}

// Store enumerates and addresses cached versions.
type Store struct {
	layout paths.Layout
}

// New returns a Store over layout.CacheDir.
func New(layout paths.Layout) *Store {
	return &Store{layout: layout}
}

// Entries lists every version directory, complete or not, ascending.
func (s *Store) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(s.layout.CacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCacheMissing, s.layout.CacheDir)
		}
		return nil, fmt.Errorf("read cache %s: %w", s.layout.CacheDir, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if !d.IsDir() || paths.CheckVersion(d.Name()) != nil {
			continue
		}
		entries = append(entries, Entry{Version: d.Name(), Complete: s.Has(d.Name())})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

// List returns the completely installed versions, ascending.
func (s *Store) List() ([]string, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Complete {
			versions = append(versions, e.Version)
		}
	}
	return versions, nil
}

// PathFor returns the cache directory of version. No existence check.
func (s *Store) PathFor(version string) string {
	return s.layout.VersionDir(version)
}

// Has reports whether version finished extracting.
func (s *Store) Has(version string) bool {
	if paths.CheckVersion(version) != nil {
		return false
	}
	ok, err := paths.FileExists(s.layout.MarkerPath(version))
	return err == nil && ok
}

// Require fails with ErrNotInstalled unless version is complete and its
// primary executable is present.
func (s *Store) Require(version string) error {
	if !s.Has(version) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	ok, err := paths.FileExists(s.layout.PrimaryPath(version))
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.layout.PrimaryPath(version), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrNotInstalled, version, s.layout.Primary)
	}
	return nil
}
