package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"felloe/internal/activation"
	"felloe/internal/archive"
	"felloe/internal/config"
	"felloe/internal/fetch"
	"felloe/internal/install"
	"felloe/internal/logx"
	"felloe/internal/paths"
	"felloe/internal/release"
	"felloe/internal/store"
	"felloe/internal/version"
)

// app holds the components shared by every command.
type app struct {
	cfg    config.Config
	layout paths.Layout
	log    *zap.SugaredLogger
	closer io.Closer

	registry *release.Client
	fetcher  *fetch.Fetcher
	store    *store.Store
	manager  *activation.Manager
}

func loadApp(cmd *cobra.Command) (*app, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfgFile := configPath
	if cfgFile == "" {
		var err error
		cfgFile, err = paths.DefaultConfigFile()
		if err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	layout, err := paths.Resolve(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := layout.EnsureDirs(); err != nil {
		return nil, nil, err
	}

	logger, closer, err := logx.New(logx.Options{
		Level:      cfg.LogLevel,
		Console:    cmd.ErrOrStderr(),
		File:       layout.LogFile(),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		return nil, nil, err
	}
	ctx = logx.WithLogger(ctx, logger.With("command", cmd.Name()))

	userAgent := version.UserAgent(cfg.UserAgent)
	s := store.New(layout)
	a := &app{
		cfg:      cfg,
		layout:   layout,
		log:      logger,
		closer:   closer,
		registry: release.NewClient(cfg.ReleasesURL, fetch.NewAPIClient(cfg.Timeout), userAgent),
		fetcher:  fetch.New(fetch.NewHTTPClient(cfg.Timeout), userAgent),
		store:    s,
		manager:  activation.NewManager(layout, s, cfg.AuxiliaryFamily),
	}
	logger.Debugw("loaded configuration", "config", cfgFile, "home", layout.Home, "bin", layout.BinDir)
	return a, ctx, nil
}

func (a *app) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) orchestrator(obs install.Observer) *install.Orchestrator {
	return install.NewOrchestrator(install.Options{
		Registry:    a.registry,
		Downloader:  a.fetcher,
		Extractor:   archive.NewInstaller(a.layout),
		Cache:       a.store,
		Activator:   a.manager,
		Observer:    obs,
		Layout:      a.layout,
		DownloadURL: a.cfg.DownloadURL,
		ToolName:    a.cfg.ToolName,
		SpaceFactor: a.cfg.MinFreeSpaceFactor,
	})
}

// activeVersion returns the active version, or "" when none is set. A broken
// link is logged and treated as no active version.
func (a *app) activeVersion(ctx context.Context) (string, error) {
	active, err := a.manager.Active()
	switch {
	case err == nil:
		return active, nil
	case errors.Is(err, activation.ErrNoActiveVersion):
		return "", nil
	case errors.Is(err, activation.ErrBrokenLink):
		logx.FromContext(ctx).Warnw("active link is broken", "error", err)
		return "", nil
	default:
		return "", fmt.Errorf("resolve active version: %w", err)
	}
}

// cachedVersions lists complete versions; a missing cache is empty.
func (a *app) cachedVersions() ([]string, error) {
	versions, err := a.store.List()
	if errors.Is(err, store.ErrCacheMissing) {
		return nil, nil
	}
	return versions, err
}
