package activation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"felloe/internal/logx"
	"felloe/internal/paths"
	"felloe/internal/store"
)

var (
	// ErrLink covers filesystem failures while creating or removing links.
	ErrLink = errors.New("link operation failed")
	// ErrNoActiveVersion is returned when the primary link does not exist.
	ErrNoActiveVersion = errors.New("no active version")
	// ErrBrokenLink is returned when the primary link cannot be traced back
	// to a cached version.
	ErrBrokenLink = errors.New("broken active link")
	// ErrForeignLink is returned alongside ErrBrokenLink when the primary
	// link points outside the cache. Such links are left alone.
	ErrForeignLink = errors.New("link not managed by felloe")
	// ErrActiveVersion is returned when removing the active version without
	// force.
	ErrActiveVersion = errors.New("version is active")
)

// RemoveResult describes what Remove did for one version.
type RemoveResult struct {
	Version     string
	Deactivated bool
	// NothingToDo is set when the version had no cache directory.
	NothingToDo bool
}

// Manager owns the active links in the bin directory.
type Manager struct {
	layout    paths.Layout
	store     *store.Store
	auxFamily string
}

// NewManager returns a Manager. Versions whose tag contains auxFamily are
// expected to ship the auxiliary executable.
func NewManager(layout paths.Layout, s *store.Store, auxFamily string) *Manager {
	return &Manager{layout: layout, store: s, auxFamily: auxFamily}
}

// Activate points the primary link (symlink) and auxiliary link (hard link)
// at version. Each link is created under a temporary name and renamed over
// the old one, so a link is never missing.
func (m *Manager) Activate(ctx context.Context, version string) error {
	if err := m.store.Require(version); err != nil {
		return err
	}
	if err := os.MkdirAll(m.layout.BinDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrLink, m.layout.BinDir, err)
	}

	log := logx.FromContext(ctx)

	if err := replaceLink(m.layout.PrimaryPath(version), m.layout.PrimaryLink(), os.Symlink); err != nil {
		return err
	}
	log.Debugw("linked primary", "version", version, "path", m.layout.PrimaryLink())

	if m.layout.Auxiliary == "" {
		return nil
	}
	aux := m.layout.AuxiliaryPath(version)
	ok, err := paths.FileExists(aux)
	if err != nil {
		return fmt.Errorf("stat %s: %w", aux, err)
	}
	if ok {
		if err := replaceLink(aux, m.layout.AuxiliaryLink(), os.Link); err != nil {
			return err
		}
		log.Debugw("linked auxiliary", "version", version, "path", m.layout.AuxiliaryLink())
		return nil
	}

	// A leftover auxiliary link belongs to another version.
	if err := removeLink(m.layout.AuxiliaryLink()); err != nil {
		return err
	}
	if m.auxFamily != "" && strings.Contains(version, m.auxFamily) {
		log.Warnw("auxiliary executable not found in cached version",
			"version", version, "executable", m.layout.Auxiliary, "path", aux)
	}
	return nil
}

// Active resolves the version the primary link points at.
func (m *Manager) Active() (string, error) {
	link := m.layout.PrimaryLink()
	target, err := os.Readlink(link)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoActiveVersion
		}
		return "", fmt.Errorf("%w: %s: %v", ErrBrokenLink, link, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}

	target = filepath.Clean(target)

	// <cache>/<version>/<os-arch>/<executable>
	versionDir := filepath.Dir(filepath.Dir(target))
	version := filepath.Base(versionDir)
	if filepath.Dir(versionDir) != filepath.Clean(m.layout.CacheDir) || paths.CheckVersion(version) != nil {
		return "", fmt.Errorf("%w: %w: %s -> %s", ErrBrokenLink, ErrForeignLink, link, target)
	}
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("%w: %s -> %s: %v", ErrBrokenLink, link, target, err)
	}
	if !m.store.Has(version) {
		return "", fmt.Errorf("%w: %s is not a complete cached version", ErrBrokenLink, version)
	}
	return version, nil
}

// Deactivate removes both links. Missing links are not an error.
func (m *Manager) Deactivate() error {
	if err := removeLink(m.layout.PrimaryLink()); err != nil {
		return err
	}
	if m.layout.Auxiliary == "" {
		return nil
	}
	return removeLink(m.layout.AuxiliaryLink())
}

// Remove deletes the cache directory of version. Removing the active version
// requires force and deletes both links first.
func (m *Manager) Remove(ctx context.Context, version string, force bool) (RemoveResult, error) {
	if err := paths.CheckVersion(version); err != nil {
		return RemoveResult{}, err
	}
	active := m.activeForRemoval(ctx)
	return m.remove(ctx, version, active, force)
}

// RemoveAll removes each version in order. Without force the whole batch is
// rejected before anything is deleted if it contains the active version.
// report is called after every version.
func (m *Manager) RemoveAll(ctx context.Context, versions []string, force bool, report func(RemoveResult)) error {
	for _, v := range versions {
		if err := paths.CheckVersion(v); err != nil {
			return err
		}
	}

	active := m.activeForRemoval(ctx)
	if !force && active != "" {
		for _, v := range versions {
			if v == active {
				return fmt.Errorf("%w: %s (use --force to remove it)", ErrActiveVersion, v)
			}
		}
	}

	for _, v := range versions {
		res, err := m.remove(ctx, v, active, force)
		if err != nil {
			return err
		}
		if res.Deactivated {
			active = ""
		}
		if report != nil {
			report(res)
		}
	}
	return nil
}

func (m *Manager) remove(ctx context.Context, version, active string, force bool) (RemoveResult, error) {
	res := RemoveResult{Version: version}
	log := logx.FromContext(ctx)

	if version == active {
		if !force {
			return res, fmt.Errorf("%w: %s (use --force to remove it)", ErrActiveVersion, version)
		}
		if err := m.Deactivate(); err != nil {
			return res, err
		}
		res.Deactivated = true
		log.Infow("deactivated", "version", version)
	}

	dir := m.store.PathFor(version)
	exists, err := paths.DirExists(dir)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !exists {
		res.NothingToDo = true
		return res, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return res, fmt.Errorf("remove %s: %w", dir, err)
	}
	log.Infow("removed cached version", "version", version, "path", dir)
	return res, nil
}

// activeForRemoval treats a broken link as no active version so stale
// caches can still be cleaned up.
func (m *Manager) activeForRemoval(ctx context.Context) string {
	active, err := m.Active()
	if err != nil {
		if errors.Is(err, ErrBrokenLink) {
			logx.FromContext(ctx).Warnw("ignoring broken active link", "error", err)
		}
		return ""
	}
	return active
}

func replaceLink(target, link string, create func(oldname, newname string) error) error {
	dir := filepath.Dir(link)
	tmp := filepath.Join(dir, "."+filepath.Base(link)+"-"+uuid.NewString()+".tmp")

	if err := create(target, tmp); err != nil {
		return fmt.Errorf("%w: link %s -> %s: %v", ErrLink, link, target, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: replace %s: %v", ErrLink, link, err)
	}
	// rename is a no-op when tmp and link are already the same hard link.
	if _, err := os.Lstat(tmp); err == nil {
		_ = os.Remove(tmp)
	}
	return nil
}

func removeLink(link string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrLink, link, err)
	}
	return nil
}
