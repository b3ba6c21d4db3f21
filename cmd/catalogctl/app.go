// cmd/catalogctl/app.go - wires the engine and its collaborators.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aviutl2catalog/catalog/pkg/blocking"
	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/download"
	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/installer"
	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/process"
	"github.com/aviutl2catalog/catalog/pkg/session"
	"github.com/aviutl2catalog/catalog/pkg/state"
	"github.com/aviutl2catalog/catalog/pkg/status"
	"github.com/aviutl2catalog/catalog/pkg/telemetry"
	"github.com/aviutl2catalog/catalog/pkg/utils"
	"github.com/aviutl2catalog/catalog/pkg/version"
)

// CookieFileName is where the login window leaves the storefront cookies.
const CookieFileName = "booth-cookies.txt"

type app struct {
	cfg       *config.Configuration
	items     []catalog.Item
	store     *state.Store
	cache     *status.HashCache
	detector  *status.Detector
	telemetry *telemetry.Client
	fetcher   *byteFetcher
	engine    *installer.Engine
}

// newApp loads settings and the catalog index and builds the engine.
func newApp(o globalOptions) (*app, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.catalog != "" {
		cfg.CatalogPath = o.catalog
	}
	if o.root != "" {
		cfg.AviUtl2Root = o.root
	}
	if o.portable {
		cfg.PortableMode = true
	}
	if o.dev {
		cfg.DevMode = true
	}
	switch {
	case o.verbose >= 2:
		cfg.LogLevel = "DEBUG"
	case o.verbose == 1 && cfg.LogLevel == "":
		cfg.LogLevel = "INFO"
	}
	if err := logging.InitFromConfig(cfg, o.verbose > 0); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logging.Info("catalogctl starting", "version", version.ClientVersion(), "config", cfg.Path)

	a := &app{cfg: cfg, store: state.Open(cfg.ConfigDir)}

	if cfg.CatalogPath != "" {
		a.items, err = catalog.LoadIndex(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
	}

	a.cache, err = status.OpenHashCache(filepath.Join(cfg.ConfigDir, status.HashCacheFile))
	if err != nil {
		logging.Warn("Hash cache unavailable", "error", err)
		a.cache = nil
	}
	a.detector = &status.Detector{Dirs: cfg.Directories, Cache: a.cache}

	a.telemetry = telemetry.New(telemetry.Options{
		Dir:           cfg.ConfigDir,
		Endpoint:      cfg.TelemetryEndpoint,
		OptOut:        cfg.TelemetryOptOut,
		ClientVersion: version.ClientVersion(),
	})
	a.telemetry.Start()

	bus := events.NewBus()
	var sess *session.WindowSession
	sess = session.NewWindowSession(bus, func() (session.Window, error) {
		return session.NewCookieFileWindow(filepath.Join(cfg.ConfigDir, CookieFileName), sess.Navigated), nil
	})
	client := &http.Client{Timeout: 30 * time.Minute}
	a.fetcher = &byteFetcher{next: download.NewManager(cfg, client, bus, sess)}

	a.engine = &installer.Engine{
		Dirs:      cfg.Directories,
		TempRoot:  cfg.ConfigDir,
		DevMode:   cfg.DevMode,
		Guard:     blocking.NewProbe(cfg.HostProcessName),
		Fetcher:   a.fetcher,
		FS:        installer.OSFileOps{BaseDir: cfg.ConfigDir},
		Runner:    installer.ProcessRunner{Config: cfg, State: a.store},
		State:     a.store,
		Detector:  a.detector,
		Telemetry: a.telemetry,
		Session:   sess,
	}

	if !cfg.DevMode {
		process.CleanUp(cfg.ConfigDir, process.StaleAge, time.Now())
	}
	return a, nil
}

func (a *app) close() {
	if err := a.telemetry.Close(); err != nil {
		logging.Warn("Failed to close telemetry", "error", err)
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logging.Warn("Failed to close hash cache", "error", err)
		}
	}
	logging.CloseLogger()
}

// find resolves catalog ids, failing on the first unknown one.
func (a *app) find(ids []string) ([]catalog.Item, error) {
	if len(a.items) == 0 {
		return nil, fmt.Errorf("no catalog loaded; set CatalogPath or pass --catalog")
	}
	out := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := catalog.Find(a.items, id)
		if !ok {
			return nil, fmt.Errorf("package %s is not in the catalog", id)
		}
		out = append(out, it)
	}
	return out, nil
}

// byteFetcher passes downloads through and reports byte counts to label.
type byteFetcher struct {
	next  installer.Fetcher
	label func(string)
}

func (f *byteFetcher) Fetch(ctx context.Context, src catalog.Source, destDir string, onProgress download.ProgressFunc) (string, error) {
	return f.next.Fetch(ctx, src, destDir, func(read int64, total *int64) {
		if f.label != nil {
			if total != nil {
				f.label(fmt.Sprintf("%s / %s", utils.FormatBytes(read), utils.FormatBytes(*total)))
			} else {
				f.label(utils.FormatBytes(read))
			}
		}
		if onProgress != nil {
			onProgress(read, total)
		}
	})
}
