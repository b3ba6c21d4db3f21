// pkg/status/status.go - installed version detection from file digests.

package status

import (
	"strings"

	version "github.com/hashicorp/go-version"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/macro"
	"github.com/aviutl2catalog/catalog/pkg/utils"
)

// Unknown is reported when files of a package exist but match no version.
const Unknown = "???"

// Detector finds which declared version of an item is on disk.
type Detector struct {
	// Dirs is queried once per DetectVersions call.
	Dirs  func() (config.Directories, error)
	Cache *HashCache
}

// DetectVersions returns id -> detected version for items. Undetectable items
// map to "". A failure for one item never fails the others.
func (d *Detector) DetectVersions(items []catalog.Item) map[string]string {
	out := make(map[string]string, len(items))
	ctx, err := d.context()
	if err != nil {
		logging.Warn("Version detection without host directories", "error", err)
	}
	hashes := map[string]string{}
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		out[it.ID] = d.detect(it, ctx, hashes)
	}
	logging.Debug("Version detection finished", "items", len(items))
	return out
}

// DetectOne detects a single item.
func (d *Detector) DetectOne(item catalog.Item) string {
	return d.DetectVersions([]catalog.Item{item})[item.ID]
}

func (d *Detector) context() (macro.Context, error) {
	if d.Dirs == nil {
		return macro.Context{}, nil
	}
	dirs, err := d.Dirs()
	if err != nil {
		return macro.Context{}, err
	}
	return macro.Context{
		AppDir:     dirs.InstallRoot,
		PluginsDir: dirs.PluginDir,
		ScriptsDir: dirs.ScriptDir,
		DataDir:    dirs.DataDir,
	}, nil
}

// detect tries versions newest first; a version matches when every file it
// lists exists with the declared digest.
func (d *Detector) detect(it catalog.Item, ctx macro.Context, hashes map[string]string) (detected string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Version detection failed", "id", it.ID, "panic", r)
			detected = ""
		}
	}()

	anyPresent := false
	for i := len(it.Versions) - 1; i >= 0; i-- {
		ver := it.Versions[i]
		if len(ver.Files) == 0 {
			continue
		}
		ok := true
		for _, f := range ver.Files {
			found := d.hash(macro.Expand(f.Path, ctx), hashes)
			if found != "" {
				anyPresent = true
			}
			if f.Hash == "" || !strings.EqualFold(found, f.Hash) {
				ok = false
				break
			}
		}
		if ok {
			return ver.Version
		}
	}
	if anyPresent {
		return Unknown
	}
	return ""
}

func (d *Detector) hash(path string, memo map[string]string) string {
	path = utils.NativePath(path)
	if h, ok := memo[path]; ok {
		return h
	}
	h, err := d.Cache.Hash(path)
	if err != nil {
		logging.Warn("hash error", "path", path, "error", err)
		h = ""
	}
	memo[path] = h
	return h
}

// IsLatest reports whether detected is the item's latest version. Strings are
// compared exactly; when both parse as versions, numeric equality also counts.
func IsLatest(item catalog.Item, detected string) bool {
	latest := item.LatestVersionOf()
	if detected == "" || latest == "" || detected == Unknown {
		return false
	}
	if detected == latest {
		return true
	}
	vd, errD := version.NewVersion(detected)
	vl, errL := version.NewVersion(latest)
	return errD == nil && errL == nil && vd.Equal(vl)
}

// IsOlderVersion reports whether local is strictly older than remote. Values
// that do not parse as versions fall back to a string comparison.
func IsOlderVersion(local, remote string) bool {
	vLocal, errLocal := version.NewVersion(local)
	vRemote, errRemote := version.NewVersion(remote)
	if errLocal != nil || errRemote != nil {
		return local != remote
	}
	return vLocal.LessThan(vRemote)
}

// UpdateAvailable reports whether an installed item can move to a newer
// version: it has a detected version that is not the latest.
func UpdateAvailable(item catalog.Item, detected string) bool {
	if detected == "" || IsLatest(item, detected) {
		return false
	}
	if detected == Unknown {
		return true
	}
	return IsOlderVersion(detected, item.LatestVersionOf())
}
