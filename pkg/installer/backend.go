// pkg/installer/backend.go - the collaborators an Engine drives.

package installer

import (
	"context"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/download"
	"github.com/aviutl2catalog/catalog/pkg/extract"
	"github.com/aviutl2catalog/catalog/pkg/fsops"
	"github.com/aviutl2catalog/catalog/pkg/runner"
)

// Fetcher materializes an installer source into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, src catalog.Source, destDir string, onProgress download.ProgressFunc) (string, error)
}

// FileOps are the filesystem operations steps perform.
type FileOps interface {
	Extract(kind extract.Kind, src, dest string) error
	CopyPattern(from, toDir string) (int, error)
	DeletePath(path string) (bool, error)
}

// Runner starts installer programs.
type Runner interface {
	Run(ctx context.Context, exe string, args []string, elevate bool, dir string) error
	RunVendorSetup(ctx context.Context, exe string) error
}

// HostGuard refuses to proceed while the host application is running.
type HostGuard interface {
	Check() error
}

// StateRecorder persists install state.
type StateRecorder interface {
	RecordInstalled(id, version string) error
	RecordRemoved(id string) error
}

// VersionDetector probes the filesystem for installed versions.
type VersionDetector interface {
	DetectVersions(items []catalog.Item) map[string]string
}

// Telemetry receives best-effort package events.
type Telemetry interface {
	Record(typ, packageID string) error
}

// Closer is closed after every install run; the storefront session uses it
// to hide its login window.
type Closer interface {
	Close() error
}

// OSFileOps performs file operations on the local disk. Relative archive
// paths resolve against BaseDir.
type OSFileOps struct {
	BaseDir string
}

func (o OSFileOps) Extract(kind extract.Kind, src, dest string) error {
	return extract.Archive(kind, fsops.ResolveRel(o.BaseDir, src), fsops.ResolveRel(o.BaseDir, dest))
}

func (o OSFileOps) CopyPattern(from, toDir string) (int, error) {
	return fsops.CopyPattern(from, toDir)
}

func (o OSFileOps) DeletePath(path string) (bool, error) {
	return fsops.DeletePath(path)
}

// InstalledChecker tells whether a package has an install-state entry.
type InstalledChecker interface {
	IsInstalled(id string) bool
}

// ProcessRunner runs programs hidden, and the vendor setup tool with
// arguments derived from the current settings.
type ProcessRunner struct {
	Config *config.Configuration
	State  InstalledChecker
}

func (p ProcessRunner) Run(ctx context.Context, exe string, args []string, elevate bool, dir string) error {
	return runner.RunIn(ctx, dir, exe, args, elevate)
}

func (p ProcessRunner) RunVendorSetup(ctx context.Context, exe string) error {
	opts := runner.VendorOptions{}
	if p.Config != nil {
		opts.PortableMode = p.Config.PortableMode
		opts.AviUtl2Root = p.Config.AviUtl2Root
		opts.WindowTimeout = p.Config.VendorSetupTimeout()
	}
	if p.State != nil {
		opts.CoreInstalled = p.State.IsInstalled(runner.CorePackageID)
	}
	return runner.RunVendorSetup(ctx, exe, opts)
}
