// pkg/installer/engine.go - runs the install and uninstall steps of a package.

// Package installer interprets the declarative step lists of catalog
// packages. Steps run strictly one after another; a step starts only after
// the previous one has returned. The first failing step ends the run with a
// StepError naming the package, the step position and the action.
package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/download"
	"github.com/aviutl2catalog/catalog/pkg/extract"
	"github.com/aviutl2catalog/catalog/pkg/fsops"
	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/macro"
	"github.com/aviutl2catalog/catalog/pkg/progress"
)

const (
	modeInstall   = "installer"
	modeUninstall = "uninstall"

	eventInstall   = "install"
	eventUninstall = "uninstall"
)

// Engine executes installer runs. FS and Runner are required; any other nil
// collaborator is skipped.
type Engine struct {
	// Dirs is consulted at the start of every step so settings changes
	// between runs are picked up.
	Dirs     func() (config.Directories, error)
	TempRoot string
	DevMode  bool // keep working directories after a run

	Guard     HostGuard
	Fetcher   Fetcher
	FS        FileOps
	Runner    Runner
	State     StateRecorder
	Detector  VersionDetector
	Telemetry Telemetry
	Session   Closer
}

// RunOptions are per-run callbacks.
type RunOptions struct {
	OnProgress progress.Func
	// OnDetected receives the freshly detected version of the package after
	// a successful run.
	OnDetected func(id, version string)
}

// Install runs the install steps of item and records it as installed at its
// latest version.
func (e *Engine) Install(ctx context.Context, item catalog.Item, opts RunOptions) error {
	if err := e.checkHost(); err != nil {
		return err
	}
	if !item.HasInstaller() {
		return errors.Errorf("[installer %s] package has no installer", item.ID)
	}
	version := item.LatestVersionOf()
	if version == "" {
		return errors.Errorf("[installer %s] package declares no version", item.ID)
	}

	tmp, err := ensureDir(TempDirFor(e.TempRoot, item.ID, version))
	if err != nil {
		return errors.WithStack(err)
	}
	defer e.cleanup(item.ID, tmp)
	if e.Session != nil {
		defer func() {
			if cerr := e.Session.Close(); cerr != nil {
				logging.Warn("Failed to close login window", "error", cerr)
			}
		}()
	}

	steps := item.InstallSteps()
	tracker := progress.NewTracker(len(steps), opts.OnProgress)
	tracker.Init()
	start := time.Now()
	logging.LogInstallStart(item.ID, version, len(steps))

	mctx := macro.Context{Tmp: tmp}
	for idx, step := range steps {
		tracker.Running(idx, step.Action())
		mctx, err = e.installStep(ctx, item, idx, step, mctx, tracker)
		if err != nil {
			tracker.Error(idx, step.Action())
			return e.stepFailed(modeInstall, item.ID, idx, len(steps), step, err)
		}
		tracker.StepComplete(idx, step.Action())
	}

	if e.State != nil {
		if err := e.State.RecordInstalled(item.ID, version); err != nil {
			logging.Error("[installer "+item.ID+"] failed to record install", "error", err)
			return errors.Wrapf(err, "[installer %s] recording install", item.ID)
		}
	}
	e.redetect(item, opts)
	e.record(eventInstall, item.ID)
	logging.LogInstallComplete(item.ID, version, time.Since(start))
	tracker.Done()
	return nil
}

// Uninstall runs the uninstall steps of item and drops its install state.
// Only delete and run are honoured; other actions are logged and skipped.
func (e *Engine) Uninstall(ctx context.Context, item catalog.Item, opts RunOptions) error {
	if err := e.checkHost(); err != nil {
		return err
	}
	tmp, err := ensureDir(TempDirFor(e.TempRoot, item.ID, item.LatestVersionOf()))
	if err != nil {
		return errors.WithStack(err)
	}
	defer e.cleanup(item.ID, tmp)

	steps := item.UninstallSteps()
	tracker := progress.NewTracker(len(steps), opts.OnProgress)
	tracker.Init()
	start := time.Now()
	logging.LogUninstallStart(item.ID, len(steps))

	mctx := macro.Context{Tmp: tmp}
	for idx, step := range steps {
		tracker.Running(idx, step.Action())
		mctx, err = e.uninstallStep(ctx, item, step, mctx)
		if err != nil {
			tracker.Error(idx, step.Action())
			return e.stepFailed(modeUninstall, item.ID, idx, len(steps), step, err)
		}
		tracker.StepComplete(idx, step.Action())
	}

	if err := e.forget(item, opts); err != nil {
		return err
	}
	logging.LogUninstallComplete(item.ID, time.Since(start))
	tracker.Done()
	return nil
}

// RemoveWithoutUninstaller is the path for packages that declare no
// uninstall steps: the install-state entry is dropped and nothing on disk is
// touched.
func (e *Engine) RemoveWithoutUninstaller(item catalog.Item, opts RunOptions) error {
	logging.Info("[uninstall "+item.ID+"] no uninstaller, removing install state only")
	return e.forget(item, opts)
}

// Remove uninstalls item with its steps when it has any, otherwise it falls
// back to RemoveWithoutUninstaller.
func (e *Engine) Remove(ctx context.Context, item catalog.Item, opts RunOptions) error {
	if item.HasUninstaller() {
		return e.Uninstall(ctx, item, opts)
	}
	return e.RemoveWithoutUninstaller(item, opts)
}

func (e *Engine) forget(item catalog.Item, opts RunOptions) error {
	if e.State != nil {
		if err := e.State.RecordRemoved(item.ID); err != nil {
			logging.Error("[uninstall "+item.ID+"] failed to remove install state", "error", err)
			return errors.Wrapf(err, "[uninstall %s] removing install state", item.ID)
		}
	}
	e.redetect(item, opts)
	e.record(eventUninstall, item.ID)
	return nil
}

func (e *Engine) checkHost() error {
	if e.Guard == nil {
		return nil
	}
	if err := e.Guard.Check(); err != nil {
		logging.Error("[process-check] refusing to run", "error", err)
		return errors.WithStack(err)
	}
	return nil
}

// stepContext rebuilds the macro context from the current directories,
// carrying over tmp and the last download.
func (e *Engine) stepContext(prev macro.Context) (macro.Context, error) {
	if e.Dirs == nil {
		return prev, nil
	}
	dirs, err := e.Dirs()
	if err != nil {
		return prev, fmt.Errorf("resolving host directories: %w", err)
	}
	return macro.Context{
		Tmp:          prev.Tmp,
		AppDir:       dirs.InstallRoot,
		PluginsDir:   dirs.PluginDir,
		ScriptsDir:   dirs.ScriptDir,
		DataDir:      dirs.DataDir,
		DownloadPath: prev.DownloadPath,
	}, nil
}

// installStep runs one install step and returns the context for the next.
func (e *Engine) installStep(ctx context.Context, item catalog.Item, idx int, step catalog.Step, prev macro.Context, tracker *progress.Tracker) (macro.Context, error) {
	if err := step.Validate(); err != nil {
		return prev, err
	}
	mctx, err := e.stepContext(prev)
	if err != nil {
		return prev, err
	}
	tag := "[installer " + item.ID + "]"

	switch s := step.(type) {
	case catalog.DownloadStep:
		if item.Installer == nil || item.Installer.Source.Kind() == catalog.SourceNone {
			return prev, fmt.Errorf("download source is not specified")
		}
		if e.Fetcher == nil {
			return prev, fmt.Errorf("no fetcher configured")
		}
		src := item.Installer.Source
		logging.Info(tag+" downloading", "source", download.Describe(src), "dest", mctx.Tmp)
		path, err := e.Fetcher.Fetch(ctx, src, mctx.Tmp, func(read int64, total *int64) {
			tracker.Download(idx, s.Action(), read, total)
		})
		if err != nil {
			return prev, err
		}
		if path == "" {
			return prev, fmt.Errorf("download produced no file")
		}
		return mctx.WithDownload(path), nil

	case catalog.ExtractStep:
		from := s.From
		if from == "" {
			if mctx.DownloadPath == "" {
				return prev, fmt.Errorf("nothing to extract: no download yet and no from given")
			}
			from = macro.TokenDownload
		}
		to := s.To
		if to == "" {
			to = macro.TokenTmp
		}
		src, dest := macro.Expand(from, mctx), macro.Expand(to, mctx)
		kind := extract.KindZip
		if s.SFX {
			kind = extract.KindSevenZipSFX
		}
		logging.Info(tag+" extracting", "kind", kind, "from", src, "to", dest)
		return mctx, e.FS.Extract(kind, src, dest)

	case catalog.CopyStep:
		from, to := macro.Expand(s.From, mctx), macro.Expand(s.To, mctx)
		count, err := e.FS.CopyPattern(from, to)
		if err != nil {
			return prev, err
		}
		logging.Info(fmt.Sprintf("%s copy matched %d files", tag, count), "from", from, "to", to)
		if count == 0 {
			return prev, &ZeroMatchCopyError{From: from, To: to}
		}
		return mctx, nil

	case catalog.DeleteStep:
		return mctx, e.delete(tag, s, mctx)

	case catalog.RunStep:
		return mctx, e.run(ctx, s, mctx)

	case catalog.RunAuoSetupStep:
		exe := macro.Expand(s.Path, mctx)
		logging.Info(tag+" running auo_setup", "exe", exe)
		return mctx, e.Runner.RunVendorSetup(ctx, exe)

	default:
		return prev, &UnsupportedActionError{Action: step.Action()}
	}
}

// uninstallStep runs one uninstall step. Unsupported actions are skipped.
func (e *Engine) uninstallStep(ctx context.Context, item catalog.Item, step catalog.Step, prev macro.Context) (macro.Context, error) {
	tag := "[uninstall " + item.ID + "]"
	switch s := step.(type) {
	case catalog.DeleteStep, catalog.RunStep:
		if err := step.Validate(); err != nil {
			return prev, err
		}
		mctx, err := e.stepContext(prev)
		if err != nil {
			return prev, err
		}
		if d, ok := s.(catalog.DeleteStep); ok {
			return mctx, e.delete(tag, d, mctx)
		}
		return mctx, e.run(ctx, s.(catalog.RunStep), mctx)
	default:
		logging.Info(tag + " skip unsupported action=" + string(step.Action()))
		return prev, nil
	}
}

func (e *Engine) delete(tag string, s catalog.DeleteStep, mctx macro.Context) error {
	path := macro.Expand(s.Path, mctx)
	if !fsops.IsAbs(path) {
		return &RelativePathError{Action: s.Action(), Path: path}
	}
	removed, err := e.FS.DeletePath(path)
	if err != nil {
		return fmt.Errorf("delete failed path=%s: %w", path, err)
	}
	if removed {
		logging.Info(tag+" delete ok", "path", path)
	} else {
		logging.Info(tag+" delete skip (not found)", "path", path)
	}
	return nil
}

func (e *Engine) run(ctx context.Context, s catalog.RunStep, mctx macro.Context) error {
	exe := macro.Expand(s.Path, mctx)
	args := macro.ExpandAll(s.Args, mctx)
	return e.Runner.Run(ctx, exe, args, s.Elevate, mctx.Tmp)
}

func (e *Engine) stepFailed(mode, id string, idx, total int, step catalog.Step, err error) error {
	wrapped := errors.WithStack(&StepError{
		Mode:      mode,
		PackageID: id,
		Index:     idx + 1,
		Total:     total,
		Action:    step.Action(),
		Err:       err,
	})
	logging.LogStepFailed(wrapped)
	return wrapped
}

func (e *Engine) redetect(item catalog.Item, opts RunOptions) {
	if opts.OnDetected == nil || e.Detector == nil {
		return
	}
	detected := e.Detector.DetectVersions([]catalog.Item{item})
	opts.OnDetected(item.ID, detected[item.ID])
}

// record sends a telemetry event; failures never reach the caller.
func (e *Engine) record(typ, id string) {
	if e.Telemetry == nil {
		return
	}
	if err := e.Telemetry.Record(typ, id); err != nil {
		logging.Warn("[package-state] record failed", "type", typ, "id", id, "error", err)
	}
}

func (e *Engine) cleanup(id, tmp string) {
	if e.DevMode {
		logging.Debug("Keeping working directory", "id", id, "dir", tmp)
		return
	}
	if _, err := e.FS.DeletePath(tmp); err != nil {
		logging.Warn("Failed to remove working directory", "id", id, "dir", tmp, "error", err)
	}
}
