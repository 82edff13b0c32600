package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"felloe/internal/logx"
	"felloe/internal/paths"
)

// ErrExtract is returned for archives that cannot be unpacked.
var ErrExtract = errors.New("extract failed")

// Installer unpacks release archives into the version cache.
type Installer struct {
	layout paths.Layout
}

// NewInstaller returns an Installer writing below layout.CacheDir.
func NewInstaller(layout paths.Layout) *Installer {
	return &Installer{layout: layout}
}

// Install extracts a tar.gz archive into the cache directory of version and
// returns that directory. An existing directory is replaced. The completion
// marker is written last; a failure part way leaves a directory without it.
func (i *Installer) Install(ctx context.Context, data []byte, version string) (string, error) {
	if err := paths.CheckVersion(version); err != nil {
		return "", err
	}
	dest := i.layout.VersionDir(version)

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtract, err)
	}
	defer gz.Close()

	files, err := untar(gz, dest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtract, err)
	}

	if err := writeMarker(i.layout.MarkerPath(version)); err != nil {
		return "", err
	}

	logx.FromContext(ctx).Infow("extracted archive", "version", version, "path", dest, "files", files)
	return dest, nil
}

// IsComplete reports whether version has a completion marker.
func (i *Installer) IsComplete(version string) bool {
	ok, err := paths.FileExists(i.layout.MarkerPath(version))
	return err == nil && ok
}

func untar(r io.Reader, dest string) (int, error) {
	clean := filepath.Clean(dest)
	root := clean + string(os.PathSeparator)
	tr := tar.NewReader(r)
	files := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read tar header: %w", err)
		}

		target := filepath.Join(dest, filepath.FromSlash(header.Name))
		if target != clean && !strings.HasPrefix(target, root) {
			return files, fmt.Errorf("illegal file path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode).Perm()|0o700); err != nil {
				return files, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return files, err
			}
			files++
		default:
			// Links and devices are not part of release archives.
		}
	}
	if files == 0 {
		return 0, errors.New("archive contains no files")
	}
	return files, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare file %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

func writeMarker(path string) error {
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(path, stamp, 0o644); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}
