// pkg/session/cookiefile.go - login window for headless use, backed by a cookie file.

package session

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/skratchdot/open-golang/open"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// CookieFileWindow stands in for the embedded login window when there is no
// GUI. Show opens the login page in the user's browser and then waits for the
// user to paste the Cookie request header of a logged-in booth.pm tab into
// Path. Login completes once the file is rewritten with non-empty content.
type CookieFileWindow struct {
	Path   string
	Poll   time.Duration
	notify func(*url.URL)
	opener func(string) error

	mu   sync.Mutex
	stop chan struct{}
}

var loggedInURL = &url.URL{Scheme: "https", Host: "booth.pm", Path: "/"}

// NewCookieFileWindow returns a window reading cookies from path. notify is
// called once the file is ready, usually WindowSession.Navigated.
func NewCookieFileWindow(path string, notify func(*url.URL)) *CookieFileWindow {
	return &CookieFileWindow{
		Path:   path,
		Poll:   time.Second,
		notify: notify,
		opener: open.Start,
	}
}

// Show implements Window.
func (w *CookieFileWindow) Show(ctx context.Context, loginURL string) error {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	w.stop = stop
	w.mu.Unlock()

	// an existing file holds the cookies that were just refused
	initial, _ := w.state()
	if err := w.opener(loginURL); err != nil {
		logging.Warn("Could not open browser for storefront login", "url", loginURL, "error", err)
	}
	logging.Info("Log in to booth.pm, then save the Cookie header of any booth.pm request", "path", w.Path)
	go w.watch(ctx, stop, initial)
	return nil
}

func (w *CookieFileWindow) watch(ctx context.Context, stop <-chan struct{}, initial time.Time) {
	poll := w.Poll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if mod, ready := w.state(); ready && !mod.Equal(initial) {
				w.notify(loggedInURL)
				return
			}
		}
	}
}

// state returns the file's modification time and whether it has content.
func (w *CookieFileWindow) state() (time.Time, bool) {
	fi, err := os.Stat(w.Path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), fi.Size() > 0
}

// Cookies implements Window. The file holds a single Cookie header value,
// optionally prefixed with "Cookie:".
func (w *CookieFileWindow) Cookies(_ *url.URL) ([]*http.Cookie, error) {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	line := string(bytes.TrimSpace(data))
	if strings.HasPrefix(strings.ToLower(line), "cookie:") {
		line = strings.TrimSpace(line[len("cookie:"):])
	}
	req := http.Request{Header: http.Header{"Cookie": {line}}}
	return req.Cookies(), nil
}

// Close implements Window.
func (w *CookieFileWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	return nil
}
