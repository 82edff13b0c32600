package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"felloe/internal/config"
)

const (
	homeDirName = ".felloe"
	cacheDir    = "cache"
	logsDir     = "logs"

	// CompleteMarker is written inside a cached version directory once its
	// archive has been fully extracted.
	CompleteMarker = ".complete"
)

// ErrInvalidVersion is returned for tags that cannot name a cache directory.
var ErrInvalidVersion = errors.New("invalid version")

// CheckVersion rejects tags that would escape or alias the cache root.
func CheckVersion(version string) error {
	switch {
	case version == "", version == ".", version == "..":
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	case strings.ContainsAny(version, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidVersion, version)
	case strings.HasPrefix(version, "."):
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// Layout captures every filesystem location the version manager touches.
// It is built once from configuration and handed to each component, so tests
// can point the whole tool at a temporary directory.
type Layout struct {
	Home       string
	CacheDir   string
	LogsDir    string
	ConfigFile string
	BinDir     string

	OS   string
	Arch string

	Primary   string
	Auxiliary string
}

// Resolve builds the layout for the running platform.
func Resolve(cfg config.Config) (Layout, error) {
	return ResolveFor(cfg, runtime.GOOS, runtime.GOARCH)
}

// ResolveFor builds the layout for an explicit os/arch pair.
func ResolveFor(cfg config.Config, goos, goarch string) (Layout, error) {
	home := strings.TrimSpace(cfg.Home)
	if home == "" {
		var err error
		home, err = DefaultHome()
		if err != nil {
			return Layout{}, err
		}
	}
	home, err := filepath.Abs(home)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve home: %w", err)
	}

	bin := strings.TrimSpace(cfg.BinDir)
	if bin == "" {
		bin = DefaultBinDir(goos, goarch)
	}

	return Layout{
		Home:       home,
		CacheDir:   filepath.Join(home, cacheDir),
		LogsDir:    filepath.Join(home, logsDir),
		ConfigFile: filepath.Join(home, config.FileName),
		BinDir:     filepath.Clean(bin),
		OS:         goos,
		Arch:       goarch,
		Primary:    ExecutableName(goos, cfg.PrimaryExecutable),
		Auxiliary:  ExecutableName(goos, cfg.AuxiliaryExecutable),
	}, nil
}

// DefaultHome returns the per-user felloe directory (~/.felloe).
func DefaultHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	return filepath.Join(home, homeDirName), nil
}

// DefaultConfigFile returns the config path used when --config is not given.
func DefaultConfigFile() (string, error) {
	home, err := DefaultHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, config.FileName), nil
}

// DefaultBinDir returns the system directory holding the active links.
func DefaultBinDir(goos, goarch string) string {
	if goos != "windows" {
		return "/usr/local/bin"
	}
	env := "ProgramFiles"
	if goarch == "amd64" {
		env = "ProgramFiles(x86)"
	}
	base := os.Getenv(env)
	if base == "" {
		base = `C:\Program Files`
	}
	return filepath.Join(base, "helm")
}

// ExecutableName appends the platform executable suffix.
func ExecutableName(goos, name string) string {
	if name == "" {
		return ""
	}
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// Platform is the "<os>-<arch>" key used by release archives and cache
// subdirectories.
func (l Layout) Platform() string {
	return l.OS + "-" + l.Arch
}

// VersionDir is the cache directory for one release tag. No existence check.
func (l Layout) VersionDir(version string) string {
	return filepath.Join(l.CacheDir, version)
}

// ExecutableDir holds the executables of a cached version.
func (l Layout) ExecutableDir(version string) string {
	return filepath.Join(l.VersionDir(version), l.Platform())
}

// PrimaryPath is the cached primary executable of a version.
func (l Layout) PrimaryPath(version string) string {
	return filepath.Join(l.ExecutableDir(version), l.Primary)
}

// AuxiliaryPath is the cached auxiliary executable of a version.
func (l Layout) AuxiliaryPath(version string) string {
	return filepath.Join(l.ExecutableDir(version), l.Auxiliary)
}

// MarkerPath is the completion marker of a version.
func (l Layout) MarkerPath(version string) string {
	return filepath.Join(l.VersionDir(version), CompleteMarker)
}

// PrimaryLink is the active link for the primary executable.
func (l Layout) PrimaryLink() string {
	return filepath.Join(l.BinDir, l.Primary)
}

// AuxiliaryLink is the active link for the auxiliary executable.
func (l Layout) AuxiliaryLink() string {
	return filepath.Join(l.BinDir, l.Auxiliary)
}

// LogFile is the rotating log file.
func (l Layout) LogFile() string {
	return filepath.Join(l.LogsDir, "felloe.log")
}

// EnsureDirs creates the home, cache and logs directories.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Home, l.CacheDir, l.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
