package install

import (
	"context"
	"fmt"
	"strings"

	"felloe/internal/fetch"
	"felloe/internal/logx"
	"felloe/internal/paths"
	"felloe/internal/platform"
	"felloe/internal/release"
	"felloe/internal/verify"
)

// Stage names one step of an install.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageDownload Stage = "download"
	StageVerify   Stage = "verify"
	StageExtract  Stage = "extract"
	StageActivate Stage = "activate"
)

// Registry resolves a selector ("latest" or a tag) to a release.
type Registry interface {
	Get(ctx context.Context, selector string) (release.Release, error)
}

// Downloader fetches an archive together with its digest sidecar.
type Downloader interface {
	FetchArtifact(ctx context.Context, archiveURL, digestURL string, observe fetch.Observer) (fetch.Artifact, error)
}

// Extractor unpacks an archive into the cache.
type Extractor interface {
	Install(ctx context.Context, data []byte, version string) (string, error)
}

// Cache answers whether a version is completely installed.
type Cache interface {
	Has(version string) bool
}

// Activator makes a cached version active.
type Activator interface {
	Activate(ctx context.Context, version string) error
}

// Observer is told about stage transitions and download progress. Calls
// are made synchronously from Install.
type Observer interface {
	StageStarted(stage Stage, version string)
	StageFinished(stage Stage, version string)
	Progress(received, total int64)
}

// Result describes a finished install.
type Result struct {
	Version string
	// Cached is set when download, verification and extraction were skipped.
	Cached bool
}

// Options wires an Orchestrator.
type Options struct {
	Registry   Registry
	Downloader Downloader
	Extractor  Extractor
	Cache      Cache
	Activator  Activator
	Observer   Observer

	Layout      paths.Layout
	DownloadURL string
	ToolName    string
	// SpaceFactor is the multiple of the archive size that must be free on
	// the cache filesystem before extraction. Zero disables the check.
	SpaceFactor float64
}

// Orchestrator runs resolve, download, verify, extract and activate in order.
// The first failing stage aborts the run; nothing is retried.
type Orchestrator struct {
	opts Options
}

// NewOrchestrator returns an Orchestrator. A nil Observer is allowed.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	opts.DownloadURL = strings.TrimRight(opts.DownloadURL, "/")
	return &Orchestrator{opts: opts}
}

// Install resolves selector and makes it the active version, downloading it
// first unless it is already cached.
func (o *Orchestrator) Install(ctx context.Context, selector string) (Result, error) {
	log := logx.FromContext(ctx)
	obs := o.opts.Observer

	obs.StageStarted(StageResolve, selector)
	rel, err := o.opts.Registry.Get(ctx, selector)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", selector, err)
	}
	version := rel.Tag
	if err := paths.CheckVersion(version); err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", selector, err)
	}
	obs.StageFinished(StageResolve, version)

	res := Result{Version: version}
	if o.opts.Cache.Has(version) {
		log.Infow("version already cached", "version", version)
		res.Cached = true
	} else if err := o.download(ctx, version); err != nil {
		return Result{}, err
	}

	obs.StageStarted(StageActivate, version)
	if err := o.opts.Activator.Activate(ctx, version); err != nil {
		return Result{}, fmt.Errorf("activate %s: %w", version, err)
	}
	obs.StageFinished(StageActivate, version)

	log.Infow("installed", "version", version, "cached", res.Cached)
	return res, nil
}

func (o *Orchestrator) download(ctx context.Context, version string) error {
	obs := o.opts.Observer
	archiveURL := o.ArchiveURL(version)

	obs.StageStarted(StageDownload, version)
	artifact, err := o.opts.Downloader.FetchArtifact(ctx, archiveURL, archiveURL+".sha256", obs.Progress)
	if err != nil {
		return fmt.Errorf("download %s: %w", version, err)
	}
	obs.StageFinished(StageDownload, version)

	obs.StageStarted(StageVerify, version)
	if err := verify.Verify(artifact.Archive, artifact.Digest); err != nil {
		return fmt.Errorf("verify %s: %w", version, err)
	}
	obs.StageFinished(StageVerify, version)

	obs.StageStarted(StageExtract, version)
	if o.opts.SpaceFactor > 0 {
		need := uint64(float64(len(artifact.Archive)) * o.opts.SpaceFactor)
		if err := platform.EnsureFreeSpace(ctx, o.opts.Layout.CacheDir, need); err != nil {
			return fmt.Errorf("extract %s: %w", version, err)
		}
	}
	if _, err := o.opts.Extractor.Install(ctx, artifact.Archive, version); err != nil {
		return fmt.Errorf("extract %s: %w", version, err)
	}
	obs.StageFinished(StageExtract, version)
	return nil
}

// ArchiveName is the release archive file name for version on this layout's
// platform, e.g. helm-v3.2.1-linux-amd64.tar.gz.
func (o *Orchestrator) ArchiveName(version string) string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", o.opts.ToolName, version, o.opts.Layout.Platform())
}

// ArchiveURL is the download URL of version's archive.
func (o *Orchestrator) ArchiveURL(version string) string {
	return o.opts.DownloadURL + "/" + o.ArchiveName(version)
}

type nopObserver struct{}

func (nopObserver) StageStarted(Stage, string)  {}
func (nopObserver) StageFinished(Stage, string) {}
func (nopObserver) Progress(int64, int64)       {}
