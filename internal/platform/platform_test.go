package platform

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/require"
)

func stubDisk(t *testing.T, free uint64) *string {
	t.Helper()
	var probed string
	orig := diskUsage
	diskUsage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		probed = path
		return &disk.UsageStat{Path: path, Free: free}, nil
	}
	t.Cleanup(func() { diskUsage = orig })
	return &probed
}

func TestCheckSupported(t *testing.T) {
	require.NoError(t, CheckSupported("linux", "amd64"))
	require.NoError(t, CheckSupported("darwin", "arm64"))
	require.NoError(t, CheckSupported("windows", "amd64"))

	require.ErrorIs(t, CheckSupported("plan9", "amd64"), ErrUnsupported)
	require.ErrorIs(t, CheckSupported("darwin", "386"), ErrUnsupported)
}

func TestDetectFallsBackWithoutDistribution(t *testing.T) {
	orig := platformInformation
	platformInformation = func(context.Context) (string, string, string, error) {
		return "", "", "", errors.New("no os-release")
	}
	t.Cleanup(func() { platformInformation = orig })

	info, err := detect(context.Background(), "linux", "arm64")
	require.NoError(t, err)
	require.Equal(t, "linux-arm64", info.Key())
	require.Empty(t, info.Platform)
	require.Equal(t, "linux-arm64", info.String())
}

func TestDetectNormalisesDistribution(t *testing.T) {
	orig := platformInformation
	platformInformation = func(context.Context) (string, string, string, error) {
		return " Ubuntu ", "Debian", "22.04 ", nil
	}
	t.Cleanup(func() { platformInformation = orig })

	info, err := detect(context.Background(), "linux", "amd64")
	require.NoError(t, err)
	require.Equal(t, "ubuntu", info.Platform)
	require.Equal(t, "debian", info.Family)
	require.Equal(t, "22.04", info.Version)
	require.Equal(t, "linux-amd64 (ubuntu 22.04)", info.String())
}

func TestEnsureFreeSpace(t *testing.T) {
	dir := t.TempDir()
	probed := stubDisk(t, 1000)

	require.NoError(t, EnsureFreeSpace(context.Background(), dir, 1000))
	require.Equal(t, dir, *probed)

	err := EnsureFreeSpace(context.Background(), dir, 1001)
	require.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestEnsureFreeSpaceMeasuresExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	probed := stubDisk(t, 1<<30)

	require.NoError(t, EnsureFreeSpace(context.Background(), filepath.Join(dir, "cache", "v3.0.0"), 10))
	require.Equal(t, dir, *probed)
}

func TestEnsureFreeSpaceZeroNeedSkipsProbe(t *testing.T) {
	probed := stubDisk(t, 0)
	require.NoError(t, EnsureFreeSpace(context.Background(), t.TempDir(), 0))
	require.Empty(t, *probed)
}

func TestFreeSpaceMeasuresExistingAncestor(t *testing.T) {
	probed := stubDisk(t, 4096)
	dir := t.TempDir()

	free, probe, err := FreeSpace(context.Background(), filepath.Join(dir, "cache", "v3.0.0"))
	require.NoError(t, err)
	require.Equal(t, uint64(4096), free)
	require.Equal(t, dir, probe)
	require.Equal(t, dir, *probed)
}
