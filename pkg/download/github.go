// pkg/download/github.go - resolving release assets through the GitHub API.

package download

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// GitHub picks a release asset and downloads it through Direct.
type GitHub struct {
	Client    *http.Client
	APIBase   string
	UserAgent string
	Direct    *Direct
}

type ghAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	UpdatedAt          string `json:"updated_at"`
	CreatedAt          string `json:"created_at"`
}

type ghRelease struct {
	TagName     string    `json:"tag_name"`
	PublishedAt string    `json:"published_at"`
	CreatedAt   string    `json:"created_at"`
	Assets      []ghAsset `json:"assets"`
}

// Resolve returns the download URL of the asset selected for src.
//
// The latest release is consulted first: with a pattern the first matching
// asset is taken, otherwise the first asset. When that yields nothing the
// most recent 30 releases are listed and, across all matching assets, the one
// with the newest timestamp wins. ErrNoMatchingAsset is returned when both
// passes come up empty.
func (g *GitHub) Resolve(ctx context.Context, src catalog.GitHubSource) (string, error) {
	target := src.Owner + "/" + src.Repo
	var re *regexp.Regexp
	if src.Pattern != "" {
		var err error
		if re, err = regexp.Compile(src.Pattern); err != nil {
			return "", fetchError(catalog.SourceGitHub, target, fmt.Errorf("invalid asset pattern: %w", err))
		}
	}

	var latest ghRelease
	if err := g.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/releases/latest", src.Owner, src.Repo), &latest); err != nil {
		logging.Warn("[fetchGitHubAsset] fetch latest failed", "repo", target, "error", err)
	} else if a := pickFromRelease(latest, re); a != nil {
		return a.BrowserDownloadURL, nil
	}

	var releases []ghRelease
	if err := g.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/releases?per_page=30", src.Owner, src.Repo), &releases); err != nil {
		logging.Error("[fetchGitHubAsset] fetch failed", "repo", target, "error", err)
		return "", fetchError(catalog.SourceGitHub, target, err)
	}
	if a := newestMatching(releases, re); a != nil {
		return a.BrowserDownloadURL, nil
	}
	return "", fetchError(catalog.SourceGitHub, target, ErrNoMatchingAsset)
}

// Fetch resolves src and downloads the asset into destDir.
func (g *GitHub) Fetch(ctx context.Context, src catalog.GitHubSource, destDir, taskID string) (string, error) {
	assetURL, err := g.Resolve(ctx, src)
	if err != nil {
		return "", err
	}
	return g.Direct.Fetch(ctx, assetURL, destDir, taskID)
}

func (g *GitHub) getJSON(ctx context.Context, path string, v interface{}) error {
	base := strings.TrimRight(g.APIBase, "/")
	if base == "" {
		base = config.DefaultGitHubAPIBase
	}
	req, err := newRequest(ctx, base+path, g.UserAgent)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := clientOrDefault(g.Client).Do(req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func matches(re *regexp.Regexp, name string) bool {
	return re == nil || re.MatchString(name)
}

func pickFromRelease(rel ghRelease, re *regexp.Regexp) *ghAsset {
	for i := range rel.Assets {
		a := &rel.Assets[i]
		if a.BrowserDownloadURL != "" && matches(re, a.Name) {
			return a
		}
	}
	return nil
}

func newestMatching(releases []ghRelease, re *regexp.Regexp) *ghAsset {
	var best *ghAsset
	bestTS := int64(math.MinInt64)
	for r := range releases {
		rel := releases[r]
		for i := range rel.Assets {
			a := &releases[r].Assets[i]
			if a.BrowserDownloadURL == "" || !matches(re, a.Name) {
				continue
			}
			ts := assetTimestamp(*a, rel)
			if ts > bestTS {
				best, bestTS = a, ts
			}
		}
	}
	return best
}

// assetTimestamp uses the first present of asset updated_at, asset
// created_at, release published_at and release created_at. Unparseable or
// missing dates count as the epoch.
func assetTimestamp(a ghAsset, rel ghRelease) int64 {
	for _, s := range []string{a.UpdatedAt, a.CreatedAt, rel.PublishedAt, rel.CreatedAt} {
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return 0
		}
		return t.UnixMilli()
	}
	return 0
}
