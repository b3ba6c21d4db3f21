package installer

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aviutl2catalog/catalog/pkg/blocking"
	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/download"
	"github.com/aviutl2catalog/catalog/pkg/extract"
	"github.com/aviutl2catalog/catalog/pkg/progress"
)

// journal records what the fakes were asked to do, in order. Every operation
// also checks that no other operation is in flight.
type journal struct {
	mu      sync.Mutex
	entries []string
	active  int32
	overlap int32
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// op brackets an operation with start/end entries and a short pause so that
// overlapping operations would be caught.
func (j *journal) op(name string) func() {
	if atomic.AddInt32(&j.active, 1) > 1 {
		atomic.StoreInt32(&j.overlap, 1)
	}
	j.add("start:" + name)
	time.Sleep(2 * time.Millisecond)
	return func() {
		j.add("end:" + name)
		atomic.AddInt32(&j.active, -1)
	}
}

type fakeGuard struct {
	running bool
	err     error
}

func (g *fakeGuard) Check() error {
	if g.err != nil {
		return &blocking.PreconditionError{App: "aviutl2.exe", Err: g.err}
	}
	if g.running {
		return &blocking.PreconditionError{App: "aviutl2.exe"}
	}
	return nil
}

type fakeFetcher struct {
	j     *journal
	ticks []int64
	total *int64
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, src catalog.Source, destDir string, onProgress download.ProgressFunc) (string, error) {
	defer f.j.op("download")()
	if f.err != nil {
		return "", f.err
	}
	for _, n := range f.ticks {
		if onProgress != nil {
			onProgress(n, f.total)
		}
	}
	path := filepath.Join(destDir, "artifact.zip")
	if err := os.WriteFile(path, []byte("zip"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeFS struct {
	j          *journal
	copyCount  int
	extractErr error
	extracts   [][2]string
	copies     [][2]string
	deletes    []string
}

func (f *fakeFS) Extract(kind extract.Kind, src, dest string) error {
	defer f.j.op("extract:" + string(kind))()
	f.extracts = append(f.extracts, [2]string{src, dest})
	return f.extractErr
}

func (f *fakeFS) CopyPattern(from, toDir string) (int, error) {
	defer f.j.op("copy")()
	f.copies = append(f.copies, [2]string{from, toDir})
	return f.copyCount, nil
}

// DeletePath journals deletes of step paths; removing the working directory
// really removes it.
func (f *fakeFS) DeletePath(path string) (bool, error) {
	if filepath.Base(filepath.Dir(path)) == TempDirName {
		err := os.RemoveAll(path)
		return err == nil, err
	}
	defer f.j.op("delete")()
	f.deletes = append(f.deletes, path)
	return false, nil
}

type runCall struct {
	Exe     string
	Args    []string
	Elevate bool
	Dir     string
}

type fakeRunner struct {
	j      *journal
	err    error
	runs   []runCall
	vendor []string
}

func (r *fakeRunner) Run(_ context.Context, exe string, args []string, elevate bool, dir string) error {
	defer r.j.op("run")()
	r.runs = append(r.runs, runCall{exe, args, elevate, dir})
	return r.err
}

func (r *fakeRunner) RunVendorSetup(_ context.Context, exe string) error {
	defer r.j.op("run_auo_setup")()
	r.vendor = append(r.vendor, exe)
	return r.err
}

type memState struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemState() *memState { return &memState{m: map[string]string{}} }

func (s *memState) RecordInstalled(id, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = version
	return nil
}

func (s *memState) RecordRemoved(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *memState) get(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	return v, ok
}

type fakeDetector struct {
	versions map[string]string
	calls    int
}

func (d *fakeDetector) DetectVersions(items []catalog.Item) map[string]string {
	d.calls++
	out := map[string]string{}
	for _, it := range items {
		out[it.ID] = d.versions[it.ID]
	}
	return out
}

type fakeTelemetry struct {
	err    error
	events []string
}

func (t *fakeTelemetry) Record(typ, id string) error {
	t.events = append(t.events, typ+":"+id)
	return t.err
}

// fakeSession is a storefront session whose window appears on the first
// EnsureAuthenticated call.
type fakeSession struct {
	j        *journal
	mu       sync.Mutex
	loggedIn bool
	ensured  int
	closed   int
}

func (s *fakeSession) Cookies(context.Context, *url.URL) ([]*http.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return nil, download.ErrAuthWindowMissing
	}
	return []*http.Cookie{{Name: "_plaza_session", Value: "ok"}}, nil
}

func (s *fakeSession) EnsureAuthenticated(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured++
	s.loggedIn = true
	s.j.add("login")
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	s.j.add("session-close")
	return nil
}

type harness struct {
	j       *journal
	dirs    config.Directories
	guard   *fakeGuard
	fetcher *fakeFetcher
	fs      *fakeFS
	runner  *fakeRunner
	state   *memState
	detect  *fakeDetector
	tele    *fakeTelemetry
	engine  *Engine
	records []progress.Record
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	h := &harness{
		j: &journal{},
		dirs: config.Directories{
			InstallRoot: root,
			DataDir:     data,
			PluginDir:   filepath.Join(data, "Plugin"),
			ScriptDir:   filepath.Join(data, "Script"),
		},
		guard:  &fakeGuard{},
		state:  newMemState(),
		detect: &fakeDetector{versions: map[string]string{}},
		tele:   &fakeTelemetry{},
	}
	h.fetcher = &fakeFetcher{j: h.j}
	h.fs = &fakeFS{j: h.j, copyCount: 1}
	h.runner = &fakeRunner{j: h.j}
	h.engine = &Engine{
		Dirs:      func() (config.Directories, error) { return h.dirs, nil },
		TempRoot:  t.TempDir(),
		Guard:     h.guard,
		Fetcher:   h.fetcher,
		FS:        h.fs,
		Runner:    h.runner,
		State:     h.state,
		Detector:  h.detect,
		Telemetry: h.tele,
	}
	return h
}

func (h *harness) opts() RunOptions {
	return RunOptions{OnProgress: func(r progress.Record) { h.records = append(h.records, r) }}
}

func (h *harness) tmp(item catalog.Item) string {
	return TempDirFor(h.engine.TempRoot, item.ID, item.LatestVersionOf())
}

func pkg(id, version string, install catalog.Steps, uninstall catalog.Steps) catalog.Item {
	return catalog.Item{
		ID:            id,
		LatestVersion: version,
		Installer: &catalog.Installer{
			Source:    catalog.Source{Direct: "https://example.com/file.zip"},
			Install:   install,
			Uninstall: uninstall,
		},
	}
}

func starts(entries []string) []string {
	var out []string
	for _, e := range entries {
		if len(e) > 6 && e[:6] == "start:" {
			out = append(out, e[6:])
		}
	}
	return out
}
