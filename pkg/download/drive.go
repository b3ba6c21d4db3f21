// pkg/download/drive.go - Google Drive file downloads.

package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// Drive downloads publicly shared Google Drive files by id.
type Drive struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
	Bus       *events.Bus
}

// Fetch downloads the file fileID into destDir, naming it from the
// Content-Disposition header, and returns the absolute path. Progress is
// published on events.TopicDriveProgress with taskID.
func (d *Drive) Fetch(ctx context.Context, fileID, destDir, taskID string) (string, error) {
	path, err := d.fetch(ctx, fileID, destDir, taskID)
	if err != nil {
		logging.Error("failed to fetch drive file", "id", fileID, "error", err)
		return "", fetchError(catalog.SourceDrive, fileID, err)
	}
	return path, nil
}

func (d *Drive) fetch(ctx context.Context, fileID, destDir, taskID string) (string, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return "", errors.New("file id must not be empty")
	}
	base := strings.TrimRight(d.BaseURL, "/")
	if base == "" {
		base = config.DefaultDriveBaseURL
	}
	rawURL := base + "/uc?export=download&id=" + url.QueryEscape(fileID)

	req, err := newRequest(ctx, rawURL, d.UserAgent)
	if err != nil {
		return "", err
	}
	resp, err := clientOrDefault(d.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		snippet := bodySnippet(resp.Body)
		if snippet == "" {
			snippet = "failed to download file from Google Drive"
		}
		return "", fmt.Errorf("%s %s", resp.Status, snippet)
	}

	name, ok := FilenameFromContentDisposition(resp.Header.Get("Content-Disposition"))
	if !ok {
		return "", errors.New("missing filename in Google Drive response")
	}
	destDir, err = filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to prepare destination directory: %w", err)
	}
	dest := filepath.Join(destDir, name)

	if err := saveBody(resp, dest, d.Bus, events.TopicDriveProgress, taskID); err != nil {
		return "", err
	}
	logging.Info("Download completed successfully", "file", dest, "drive_id", fileID)
	return dest, nil
}
