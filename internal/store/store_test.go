package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"felloe/internal/config"
	"felloe/internal/paths"
)

func testLayout(t *testing.T) paths.Layout {
	t.Helper()
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.BinDir = t.TempDir()
	layout, err := paths.ResolveFor(cfg, "linux", "amd64")
	require.NoError(t, err)
	return layout
}

func seed(t *testing.T, layout paths.Layout, version string, complete bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(layout.ExecutableDir(version), 0o755))
	require.NoError(t, os.WriteFile(layout.PrimaryPath(version), []byte("helm"), 0o755))
	if complete {
		require.NoError(t, os.WriteFile(layout.MarkerPath(version), nil, 0o644))
	}
}

func TestListMissingCacheRoot(t *testing.T) {
	_, err := New(testLayout(t)).List()
	require.ErrorIs(t, err, ErrCacheMissing)
}

func TestListReturnsCompleteVersionsAscending(t *testing.T) {
	layout := testLayout(t)
	seed(t, layout, "v3.2.1", true)
	seed(t, layout, "v2.16.7", true)
	seed(t, layout, "v3.0.0", false)
	require.NoError(t, os.WriteFile(filepath.Join(layout.CacheDir, "stray.txt"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(layout.CacheDir, ".tmp"), 0o755))

	s := New(layout)
	versions, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"v2.16.7", "v3.2.1"}, versions)

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Version: "v2.16.7", Complete: true},
		{Version: "v3.0.0", Complete: false},
		{Version: "v3.2.1", Complete: true},
	}, entries)
}

func TestListEmptyCache(t *testing.T) {
	layout := testLayout(t)
	require.NoError(t, os.MkdirAll(layout.CacheDir, 0o755))

	versions, err := New(layout).List()
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestPathForDoesNotTouchDisk(t *testing.T) {
	layout := testLayout(t)
	s := New(layout)
	require.Equal(t, filepath.Join(layout.CacheDir, "v9.9.9"), s.PathFor("v9.9.9"))
	require.NoDirExists(t, s.PathFor("v9.9.9"))
}

func TestRequire(t *testing.T) {
	layout := testLayout(t)
	seed(t, layout, "v3.2.1", true)
	seed(t, layout, "v3.0.0", false)
	require.NoError(t, os.MkdirAll(layout.ExecutableDir("v3.1.0"), 0o755))
	require.NoError(t, os.WriteFile(layout.MarkerPath("v3.1.0"), nil, 0o644))

	s := New(layout)
	require.NoError(t, s.Require("v3.2.1"))
	require.ErrorIs(t, s.Require("v3.0.0"), ErrNotInstalled)
	require.ErrorIs(t, s.Require("v3.1.0"), ErrNotInstalled)
	require.ErrorIs(t, s.Require("v4.0.0"), ErrNotInstalled)
	require.ErrorIs(t, s.Require("../v3.2.1"), ErrNotInstalled)
}
