package install

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"felloe/internal/activation"
	"felloe/internal/archive"
	"felloe/internal/config"
	"felloe/internal/fetch"
	"felloe/internal/paths"
	"felloe/internal/release"
	"felloe/internal/store"
	"felloe/internal/verify"
)

func helmTarGz(t *testing.T, platform string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range map[string]string{
		platform + "/helm":   "#!/bin/sh\necho helm\n",
		platform + "/tiller": "#!/bin/sh\necho tiller\n",
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type upstream struct {
	srv       *httptest.Server
	downloads atomic.Int32
	digest    string
}

func newUpstream(t *testing.T, archiveBytes []byte) *upstream {
	t.Helper()
	u := &upstream{digest: verify.Digest(archiveBytes) + "\n"}
	mux := http.NewServeMux()
	mux.HandleFunc("/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name": "v3.2.1"}`)
	})
	mux.HandleFunc("/releases/tags/v2.16.7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tag_name": "v2.16.7"}`)
	})
	mux.HandleFunc("/releases/tags/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	serve := func(body func() []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			data := body()
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			if r.Method == http.MethodGet {
				_, _ = w.Write(data)
			}
		}
	}
	for _, v := range []string{"v3.2.1", "v2.16.7"} {
		name := "/get/helm-" + v + "-linux-amd64.tar.gz"
		mux.HandleFunc(name, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				u.downloads.Add(1)
			}
			serve(func() []byte { return archiveBytes })(w, r)
		})
		mux.HandleFunc(name+".sha256", serve(func() []byte { return []byte(u.digest) }))
	}
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

type env struct {
	layout paths.Layout
	store  *store.Store
	mgr    *activation.Manager
	orch   *Orchestrator
}

func newEnv(t *testing.T, u *upstream, obs Observer) env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.BinDir = filepath.Join(t.TempDir(), "bin")
	layout, err := paths.ResolveFor(cfg, "linux", "amd64")
	require.NoError(t, err)

	s := store.New(layout)
	mgr := activation.NewManager(layout, s, cfg.AuxiliaryFamily)
	orch := NewOrchestrator(Options{
		Registry:    release.NewClient(u.srv.URL+"/releases", u.srv.Client(), "felloe-test"),
		Downloader:  fetch.New(u.srv.Client(), "felloe-test"),
		Extractor:   archive.NewInstaller(layout),
		Cache:       s,
		Activator:   mgr,
		Observer:    obs,
		Layout:      layout,
		DownloadURL: u.srv.URL + "/get/",
		ToolName:    "helm",
		SpaceFactor: 4,
	})
	return env{layout: layout, store: s, mgr: mgr, orch: orch}
}

type recorder struct {
	events   []string
	progress []int64
}

func (r *recorder) StageStarted(s Stage, v string)  { r.events = append(r.events, "start "+string(s)) }
func (r *recorder) StageFinished(s Stage, v string) { r.events = append(r.events, "done "+string(s)) }
func (r *recorder) Progress(received, total int64)  { r.progress = append(r.progress, received) }

func TestInstallLatestRunsEveryStage(t *testing.T) {
	u := newUpstream(t, helmTarGz(t, "linux-amd64"))
	rec := &recorder{}
	e := newEnv(t, u, rec)

	res, err := e.orch.Install(context.Background(), release.Latest)
	require.NoError(t, err)
	require.Equal(t, Result{Version: "v3.2.1"}, res)

	require.Equal(t, []string{
		"start resolve", "done resolve",
		"start download", "done download",
		"start verify", "done verify",
		"start extract", "done extract",
		"start activate", "done activate",
	}, rec.events)
	require.NotEmpty(t, rec.progress)

	active, err := e.mgr.Active()
	require.NoError(t, err)
	require.Equal(t, "v3.2.1", active)
	require.True(t, e.store.Has("v3.2.1"))
}

func TestInstallTwiceSkipsDownload(t *testing.T) {
	u := newUpstream(t, helmTarGz(t, "linux-amd64"))
	e := newEnv(t, u, nil)

	_, err := e.orch.Install(context.Background(), "v2.16.7")
	require.NoError(t, err)

	rec := &recorder{}
	e.orch.opts.Observer = rec
	res, err := e.orch.Install(context.Background(), "v2.16.7")
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, int32(1), u.downloads.Load())
	require.Equal(t, []string{"start resolve", "done resolve", "start activate", "done activate"}, rec.events)

	active, err := e.mgr.Active()
	require.NoError(t, err)
	require.Equal(t, "v2.16.7", active)
	require.FileExists(t, e.layout.AuxiliaryLink())
}

func TestInstallRedownloadsIncompleteVersion(t *testing.T) {
	u := newUpstream(t, helmTarGz(t, "linux-amd64"))
	e := newEnv(t, u, nil)

	require.NoError(t, os.MkdirAll(e.layout.ExecutableDir("v3.2.1"), 0o755))
	require.NoError(t, os.WriteFile(e.layout.PrimaryPath("v3.2.1"), []byte("half"), 0o755))

	res, err := e.orch.Install(context.Background(), "latest")
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, int32(1), u.downloads.Load())

	data, err := os.ReadFile(e.layout.PrimaryPath("v3.2.1"))
	require.NoError(t, err)
	require.Contains(t, string(data), "echo helm")
}

func TestInstallDigestMismatchNeverExtracts(t *testing.T) {
	u := newUpstream(t, helmTarGz(t, "linux-amd64"))
	u.digest = verify.Digest([]byte("something else"))
	e := newEnv(t, u, nil)

	_, err := e.orch.Install(context.Background(), "latest")
	require.ErrorIs(t, err, verify.ErrIntegrity)

	require.NoDirExists(t, e.layout.VersionDir("v3.2.1"))
	_, err = e.mgr.Active()
	require.ErrorIs(t, err, activation.ErrNoActiveVersion)
}

func TestInstallUnknownTag(t *testing.T) {
	u := newUpstream(t, helmTarGz(t, "linux-amd64"))
	e := newEnv(t, u, nil)

	_, err := e.orch.Install(context.Background(), "v9.9.9")
	require.ErrorIs(t, err, release.ErrNotFound)
	require.Zero(t, u.downloads.Load())
}

func TestArchiveURL(t *testing.T) {
	layout := paths.Layout{OS: "darwin", Arch: "arm64"}
	o := NewOrchestrator(Options{Layout: layout, DownloadURL: "https://get.helm.sh/", ToolName: "helm"})
	require.Equal(t, "https://get.helm.sh/helm-v3.2.1-darwin-arm64.tar.gz", o.ArchiveURL("v3.2.1"))
}

type stubRegistry struct{ tag string }

func (s stubRegistry) Get(context.Context, string) (release.Release, error) {
	return release.Release{Tag: s.tag}, nil
}

type stubDownloader struct{ artifact fetch.Artifact }

func (s stubDownloader) FetchArtifact(_ context.Context, _, _ string, observe fetch.Observer) (fetch.Artifact, error) {
	observe(int64(len(s.artifact.Archive)), int64(len(s.artifact.Archive)))
	return s.artifact, nil
}

type stubExtractor struct{ calls int }

func (s *stubExtractor) Install(context.Context, []byte, string) (string, error) {
	s.calls++
	return "", nil
}

type stubCache map[string]bool

func (s stubCache) Has(v string) bool { return s[v] }

type stubActivator struct{ err error }

func (s stubActivator) Activate(context.Context, string) error { return s.err }

func TestInstallStopsBeforeExtractOnMismatch(t *testing.T) {
	ext := &stubExtractor{}
	o := NewOrchestrator(Options{
		Registry:   stubRegistry{tag: "v3.2.1"},
		Downloader: stubDownloader{artifact: fetch.Artifact{Archive: []byte("a"), Digest: "bad"}},
		Extractor:  ext,
		Cache:      stubCache{},
		Activator:  stubActivator{},
		Layout:     paths.Layout{OS: "linux", Arch: "amd64"},
	})

	_, err := o.Install(context.Background(), "latest")
	require.ErrorIs(t, err, verify.ErrIntegrity)
	require.Zero(t, ext.calls)
}

func TestInstallActivationFailureLeavesCachedVersion(t *testing.T) {
	boom := errors.New("permission denied")
	ext := &stubExtractor{}
	o := NewOrchestrator(Options{
		Registry:   stubRegistry{tag: "v3.2.1"},
		Downloader: stubDownloader{artifact: fetch.Artifact{Archive: []byte("a"), Digest: verify.Digest([]byte("a"))}},
		Extractor:  ext,
		Cache:      stubCache{},
		Activator:  stubActivator{err: boom},
		Layout:     paths.Layout{OS: "linux", Arch: "amd64"},
	})

	_, err := o.Install(context.Background(), "latest")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, ext.calls)
}

func TestInstallRejectsUnsafeTag(t *testing.T) {
	o := NewOrchestrator(Options{
		Registry: stubRegistry{tag: "../../etc"},
		Cache:    stubCache{},
		Layout:   paths.Layout{OS: "linux", Arch: "amd64"},
	})

	_, err := o.Install(context.Background(), "latest")
	require.ErrorIs(t, err, paths.ErrInvalidVersion)
}
