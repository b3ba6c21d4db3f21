// pkg/catalog/catalog.go - package descriptors as published in the catalog index.

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Item contains an individual entry from the catalog.
type Item struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Author        string     `json:"author,omitempty"`
	Type          string     `json:"type,omitempty"`
	LatestVersion string     `json:"latest-version,omitempty"`
	Versions      []Version  `json:"versions,omitempty"`
	Installer     *Installer `json:"installer,omitempty"`
}

// Version is one published release together with the files that identify it
// on disk.
type Version struct {
	Version string        `json:"version"`
	Release string        `json:"release_date,omitempty"`
	Files   []VersionFile `json:"file,omitempty"`
}

// VersionFile is a path (macro template) and its expected XXH3-128 digest.
type VersionFile struct {
	Path string `json:"path"`
	Hash string `json:"XXH3_128"`
}

// UnmarshalJSON accepts the lowercase hash key some entries use.
func (f *VersionFile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Path  string `json:"path"`
		Upper string `json:"XXH3_128"`
		Lower string `json:"xxh3_128"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Path = raw.Path
	f.Hash = raw.Upper
	if f.Hash == "" {
		f.Hash = raw.Lower
	}
	return nil
}

// UnmarshalJSON accepts both "latest-version" and "latestVersion", and both
// "versions" and the older "version" array.
func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var raw struct {
		plain
		LatestVersionAlt string          `json:"latestVersion"`
		VersionAlt       json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = Item(raw.plain)
	if it.LatestVersion == "" {
		it.LatestVersion = raw.LatestVersionAlt
	}
	if it.Versions == nil && len(raw.VersionAlt) > 0 && raw.VersionAlt[0] == '[' {
		if err := json.Unmarshal(raw.VersionAlt, &it.Versions); err != nil {
			return fmt.Errorf("item %s: version: %w", it.ID, err)
		}
	}
	return nil
}

// Installer is the "installer" object on an item. A bare string in the index
// is the legacy form: it marks the item installable but carries no steps.
type Installer struct {
	Legacy    string `json:"-"`
	Source    Source `json:"source"`
	Install   Steps  `json:"install"`
	Uninstall Steps  `json:"uninstall"`
}

// UnmarshalJSON handles the string and object forms.
func (in *Installer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = Installer{Legacy: s}
		return nil
	}
	type plain Installer
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*in = Installer(p)
	return nil
}

// SourceKind identifies which fetcher a download step uses.
type SourceKind string

const (
	SourceNone   SourceKind = ""
	SourceDirect SourceKind = "direct"
	SourceGitHub SourceKind = "github"
	SourceDrive  SourceKind = "googleDrive"
	SourceBooth  SourceKind = "booth"
)

// Source says where the download step gets its artifact from.
type Source struct {
	Direct      string        `json:"direct,omitempty"`
	GitHub      *GitHubSource `json:"github,omitempty"`
	GoogleDrive *DriveSource  `json:"googleDrive,omitempty"`
	Booth       string        `json:"booth,omitempty"`
}

// GitHubSource resolves to an asset of the repository's releases.
type GitHubSource struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Pattern string `json:"pattern,omitempty"`
}

// DriveSource is a Google Drive file id.
type DriveSource struct {
	ID string `json:"id"`
}

// Kind reports the populated source. Authors set one; when several are set
// Drive wins over Booth, Booth over Direct, and Direct over GitHub.
func (s Source) Kind() SourceKind {
	switch {
	case s.GoogleDrive != nil && s.GoogleDrive.ID != "":
		return SourceDrive
	case s.Booth != "":
		return SourceBooth
	case s.Direct != "":
		return SourceDirect
	case s.GitHub != nil && s.GitHub.Owner != "" && s.GitHub.Repo != "":
		return SourceGitHub
	default:
		return SourceNone
	}
}

// HasInstaller reports whether the item can be installed by the engine.
func (it Item) HasInstaller() bool {
	if it.Installer == nil {
		return false
	}
	return it.Installer.Legacy != "" || it.Installer.Install != nil
}

// HasUninstaller reports whether the item declares uninstall steps.
func (it Item) HasUninstaller() bool {
	return it.Installer != nil && len(it.Installer.Uninstall) > 0
}

// InstallSteps returns the install list, or nil for legacy installers.
func (it Item) InstallSteps() Steps {
	if it.Installer == nil {
		return nil
	}
	return it.Installer.Install
}

// UninstallSteps returns the uninstall list.
func (it Item) UninstallSteps() Steps {
	if it.Installer == nil {
		return nil
	}
	return it.Installer.Uninstall
}

// LatestVersionOf returns the declared latest version, falling back to the
// last entry of the versions list.
func (it Item) LatestVersionOf() string {
	if v := strings.TrimSpace(it.LatestVersion); v != "" {
		return v
	}
	if n := len(it.Versions); n > 0 {
		return it.Versions[n-1].Version
	}
	return ""
}

// DecodeItems parses a catalog index: a JSON array of items. Items without an
// id are dropped.
func DecodeItems(r io.Reader) ([]Item, error) {
	var items []Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding catalog index: %w", err)
	}
	out := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.ID) != "" {
			out = append(out, it)
		}
	}
	return out, nil
}

// LoadIndex reads a catalog index file.
func LoadIndex(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog index: %w", err)
	}
	defer f.Close()
	return DecodeItems(f)
}

// Find returns the item with the given id.
func Find(items []Item, id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
