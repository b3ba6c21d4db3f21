// pkg/download/booth.go - storefront downloads that need a logged-in session.

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
	"github.com/aviutl2catalog/catalog/pkg/retry"
	"github.com/aviutl2catalog/catalog/pkg/session"
)

// Booth downloads booth.pm files with the cookies of a Session.
type Booth struct {
	Client    *http.Client
	UserAgent string
	Session   session.Provider
	Bus       *events.Bus
}

// Fetch downloads rawURL into destDir. If the first attempt reports
// AUTH_REQUIRED or AUTH_WINDOW_MISSING the session is asked to log in and the
// download is retried exactly once.
func (b *Booth) Fetch(ctx context.Context, rawURL, destDir, taskID string) (string, error) {
	var path string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: 2,
		Retryable:   IsAuthError,
		Recover: func(ctx context.Context, _ error) error {
			if b.Session == nil {
				return ErrAuthWindowMissing
			}
			return b.Session.EnsureAuthenticated(ctx)
		},
	}, func(ctx context.Context) error {
		var err error
		path, err = b.attempt(ctx, rawURL, destDir, taskID)
		return err
	})
	if err != nil {
		logging.Error("booth download failed", "url", rawURL, "error", err)
		return "", fetchError(catalog.SourceBooth, rawURL, err)
	}
	return path, nil
}

func (b *Booth) attempt(ctx context.Context, rawURL, destDir, taskID string) (string, error) {
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
	if b.Session == nil {
		return "", ErrAuthWindowMissing
	}
	cookies, err := b.Session.Cookies(ctx, u)
	if err != nil {
		if IsAuthError(err) {
			return "", err
		}
		return "", fmt.Errorf("AUTH_COOKIE_FETCH_FAILED: %w", err)
	}
	dest := filepath.Join(destDir, FilenameFromURL(u))

	req, err := newRequest(ctx, rawURL, b.UserAgent)
	if err != nil {
		return "", err
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := clientOrDefault(b.Client).Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("HTTP_ERROR:%d %s", resp.StatusCode, resp.Status)
	}
	// a redirect to a login page means the session is gone
	if session.IsLoginURL(resp.Request.URL) {
		return "", ErrAuthRequired
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") && resp.Header.Get("Content-Disposition") == "" {
		return "", ErrAuthRequired
	}

	if err := saveBody(resp, dest, b.Bus, events.TopicDownloadProgress, taskID); err != nil {
		return "", err
	}
	logging.Info("Download completed successfully", "file", dest)
	return dest, nil
}
