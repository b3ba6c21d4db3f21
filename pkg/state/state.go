// pkg/state/state.go - installed package ids and versions.

// Package state persists which catalog packages the engine installed and at
// which version. The store is a single JSON object {id: version} and all
// writes go through one mutex so concurrent installer runs never interleave
// their read-modify-write cycles.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dchest/safefile"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// FileName is the store file inside the config dir.
const FileName = "installed.json"

// ErrEmptyVersion is returned when recording an install without a version.
var ErrEmptyVersion = errors.New("installed version must not be empty")

// Store is the install-state store.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store backed by <dir>/installed.json. The file is created
// on first write.
func Open(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// RecordInstalled sets id to version.
func (s *Store) RecordInstalled(id, version string) error {
	version = strings.TrimSpace(version)
	if version == "" {
		return fmt.Errorf("recording %s: %w", id, ErrEmptyVersion)
	}
	return s.update(func(m map[string]string) bool {
		if m[id] == version {
			return false
		}
		m[id] = version
		return true
	})
}

// RecordRemoved drops id. Removing an unknown id is not an error.
func (s *Store) RecordRemoved(id string) error {
	return s.update(func(m map[string]string) bool {
		if _, ok := m[id]; !ok {
			return false
		}
		delete(m, id)
		return true
	})
}

// Version returns the recorded version of id, or "" when not installed.
func (s *Store) Version(id string) (string, error) {
	m, err := s.All()
	if err != nil {
		return "", err
	}
	return m[id], nil
}

// IsInstalled reports whether id has a non-empty recorded version.
func (s *Store) IsInstalled(id string) bool {
	v, err := s.Version(id)
	return err == nil && strings.TrimSpace(v) != ""
}

// All returns a copy of the store.
func (s *Store) All() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// IDs returns the installed ids in sorted order.
func (s *Store) IDs() ([]string, error) {
	m, err := s.All()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) update(mutate func(map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}
	if !mutate(m) {
		return nil
	}
	return s.write(m)
}

// read loads the file. A missing or corrupt file reads as empty, matching how
// a fresh profile behaves; corruption is logged.
func (s *Store) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	m := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		logging.Warn("Install-state file is corrupt, starting empty", "path", s.path, "error", err)
		return map[string]string{}, nil
	}
	for id, v := range m {
		if strings.TrimSpace(v) == "" {
			delete(m, id)
		}
	}
	return m, nil
}

func (s *Store) write(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := safefile.Create(path, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Annotated pairs a recorded install with its detected version.
type Annotated struct {
	ID        string
	Installed string
	Detected  string
}

// Annotate joins the store with a detection map for every recorded id.
func Annotate(installed, detected map[string]string) []Annotated {
	out := make([]Annotated, 0, len(installed))
	for id, v := range installed {
		out = append(out, Annotated{ID: id, Installed: v, Detected: detected[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
