package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
)

var (
	// ErrUnsupported is returned for os/arch pairs with no published archives.
	ErrUnsupported = errors.New("unsupported platform")
	// ErrInsufficientSpace is returned when the cache filesystem is too full
	// to unpack an archive.
	ErrInsufficientSpace = errors.New("insufficient disk space")
)

// Info describes the machine felloe runs on.
type Info struct {
	OS       string
	Arch     string
	Platform string
	Family   string
	Version  string
}

// Key is the "<os>-<arch>" identifier used in archive names.
func (i Info) Key() string {
	return i.OS + "-" + i.Arch
}

// String is a human readable summary used in diagnostics.
func (i Info) String() string {
	if i.Platform == "" {
		return i.Key()
	}
	return fmt.Sprintf("%s (%s %s)", i.Key(), i.Platform, i.Version)
}

var supported = map[string][]string{
	"linux":   {"386", "amd64", "arm", "arm64", "ppc64le", "s390x", "riscv64"},
	"darwin":  {"amd64", "arm64"},
	"windows": {"amd64", "arm64"},
}

// Stubbed in tests.
var (
	platformInformation = host.PlatformInformationWithContext
	diskUsage           = disk.UsageWithContext
)

// Detect returns the running os/arch together with distribution details when
// gopsutil can provide them. Distribution lookup failures are not fatal.
func Detect(ctx context.Context) (Info, error) {
	return detect(ctx, runtime.GOOS, runtime.GOARCH)
}

func detect(ctx context.Context, goos, goarch string) (Info, error) {
	if err := CheckSupported(goos, goarch); err != nil {
		return Info{}, err
	}
	info := Info{OS: goos, Arch: goarch}

	name, family, version, err := platformInformation(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}
	info.Platform = strings.ToLower(strings.TrimSpace(name))
	info.Family = strings.ToLower(strings.TrimSpace(family))
	info.Version = strings.TrimSpace(version)
	return info, nil
}

// CheckSupported fails with ErrUnsupported for pairs without release archives.
func CheckSupported(goos, goarch string) error {
	arches, ok := supported[goos]
	if !ok {
		return fmt.Errorf("%w: operating system %s", ErrUnsupported, goos)
	}
	for _, a := range arches {
		if a == goarch {
			return nil
		}
	}
	return fmt.Errorf("%w: architecture %s on %s", ErrUnsupported, goarch, goos)
}

// FreeSpace reports the bytes available on the filesystem holding path, along
// with the existing ancestor that was measured.
func FreeSpace(ctx context.Context, path string) (uint64, string, error) {
	probe, err := nearestExisting(path)
	if err != nil {
		return 0, "", err
	}
	usage, err := diskUsage(ctx, probe)
	if err != nil {
		return 0, probe, fmt.Errorf("disk usage for %s: %w", probe, err)
	}
	return usage.Free, probe, nil
}

// EnsureFreeSpace fails with ErrInsufficientSpace when the filesystem holding
// path has less than need bytes available. path does not have to exist yet;
// the nearest existing ancestor is measured.
func EnsureFreeSpace(ctx context.Context, path string, need uint64) error {
	if need == 0 {
		return nil
	}
	free, probe, err := FreeSpace(ctx, path)
	if err != nil {
		return err
	}
	if free < need {
		return fmt.Errorf("%w: %s has %d bytes free, %d required", ErrInsufficientSpace, probe, free, need)
	}
	return nil
}

func nearestExisting(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(current); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current, nil
		}
		current = parent
	}
}
