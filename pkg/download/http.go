// pkg/download/http.go - request and streaming helpers shared by the fetchers.

package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/progress"
)

const snippetLimit = 500

func newRequest(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

func isHTTPS(rawURL string) bool {
	return hasPrefixFold(strings.TrimLeft(rawURL, " \t\r\n"), "https://")
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// bodySnippet returns at most snippetLimit characters of the response body.
func bodySnippet(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, snippetLimit*utf8.UTFMax))
	s := strings.TrimSpace(string(data))
	if utf8.RuneCountInString(s) > snippetLimit {
		s = string([]rune(s)[:snippetLimit])
	}
	return s
}

func contentLength(resp *http.Response) *int64 {
	if resp.ContentLength < 0 {
		return nil
	}
	n := resp.ContentLength
	return &n
}

// saveBody streams resp.Body into path, publishing byte progress on topic
// under taskID.
func saveBody(resp *http.Response, path string, bus *events.Bus, topic, taskID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to prepare destination directory: %w", err)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open destination file: %w", err)
	}

	reader := progress.NewReader(resp.Body, contentLength(resp), progress.DefaultInterval, func(read int64, total *int64) {
		bus.PublishProgress(topic, taskID, read, total)
	})
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return fmt.Errorf("read error: %w", err)
	}
	reader.Flush()
	if err := out.Close(); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}
