// pkg/download/direct.go - plain HTTPS downloads.

package download

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// Direct downloads a file from an https URL into a directory.
type Direct struct {
	Client    *http.Client
	UserAgent string
	Bus       *events.Bus
}

// Fetch downloads rawURL into destDir and returns the absolute path of the
// saved file. The file is named after the last URL path segment. Progress is
// published on events.TopicDownloadProgress with taskID.
func (d *Direct) Fetch(ctx context.Context, rawURL, destDir, taskID string) (string, error) {
	path, err := d.fetch(ctx, rawURL, destDir, taskID)
	if err != nil {
		logging.Error("download failed", "url", rawURL, "error", err)
		return "", fetchError(catalog.SourceDirect, rawURL, err)
	}
	return path, nil
}

func (d *Direct) fetch(ctx context.Context, rawURL, destDir, taskID string) (string, error) {
	if !isHTTPS(rawURL) {
		return "", ErrInsecureURL
	}
	if strings.TrimSpace(destDir) == "" {
		return "", fmt.Errorf("destination directory must not be empty")
	}
	destDir, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to prepare destination directory: %w", err)
	}

	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	dest := filepath.Join(destDir, FilenameFromURL(u))

	req, err := newRequest(ctx, rawURL, d.UserAgent)
	if err != nil {
		return "", err
	}
	logging.Debug("Starting download", "url", rawURL, "destination", dest, "task", taskID)

	resp, err := clientOrDefault(d.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		if snippet := bodySnippet(resp.Body); snippet != "" {
			return "", fmt.Errorf("HTTP error: %s: %s", resp.Status, snippet)
		}
		return "", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	if err := saveBody(resp, dest, d.Bus, events.TopicDownloadProgress, taskID); err != nil {
		return "", err
	}
	logging.Info("Download completed successfully", "file", dest)
	return dest, nil
}
