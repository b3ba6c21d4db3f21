// pkg/session/session.go - authenticated storefront session backed by an auxiliary login window.

// Package session owns the booth.pm login state used by the storefront
// fetcher. Cookies live in an auxiliary window; when they are missing or
// stale the window is opened and the caller blocks until the window reports
// a completed login on the event bus.
package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// ErrWindowMissing is returned when cookies are requested before the login
// window exists.
var ErrWindowMissing = errors.New("AUTH_WINDOW_MISSING")

// LoginURL is where the login window starts.
const LoginURL = "https://booth.pm/users/sign_in"

var loginPaths = []string{
	"/users/sign_in",
	"/users/sign_in_by_password",
	"/users/password/new",
	"/users/unlock/new",
}

// IsLoginPath reports whether path is one of the storefront login pages.
func IsLoginPath(path string) bool {
	for _, p := range loginPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func isBoothHost(u *url.URL) bool {
	return u != nil && strings.HasSuffix(strings.ToLower(u.Hostname()), "booth.pm")
}

// IsLoginURL reports whether u is a booth.pm login page.
func IsLoginURL(u *url.URL) bool {
	return isBoothHost(u) && IsLoginPath(u.Path)
}

// IsLoggedInURL reports whether u is a booth.pm page other than a login page.
func IsLoggedInURL(u *url.URL) bool {
	return isBoothHost(u) && !IsLoginPath(u.Path)
}

// Provider supplies cookies for storefront requests.
type Provider interface {
	// Cookies returns the cookies to send with a request for u.
	Cookies(ctx context.Context, u *url.URL) ([]*http.Cookie, error)
	// EnsureAuthenticated shows the login surface and blocks until a login
	// completes or ctx ends.
	EnsureAuthenticated(ctx context.Context) error
	// Close hides the login surface. It is safe to call repeatedly.
	Close() error
}

// Window is an auxiliary login surface. Implementations publish
// events.TopicBoothLogin on the session's bus once the user has logged in,
// typically by calling WindowSession.Navigated.
type Window interface {
	Show(ctx context.Context, loginURL string) error
	Cookies(u *url.URL) ([]*http.Cookie, error)
	Close() error
}

// LoginComplete is the payload of events.TopicBoothLogin.
type LoginComplete struct {
	URL string `json:"url"`
}

// WindowSession is a Provider that lazily creates a Window.
type WindowSession struct {
	bus  *events.Bus
	open func() (Window, error)

	mu     sync.Mutex
	window Window
	group  singleflight.Group
}

// NewWindowSession returns a session that creates its window with open.
func NewWindowSession(bus *events.Bus, open func() (Window, error)) *WindowSession {
	return &WindowSession{bus: bus, open: open}
}

// Cookies returns the window's cookies for u, or ErrWindowMissing when no
// window has been opened yet.
func (s *WindowSession) Cookies(_ context.Context, u *url.URL) ([]*http.Cookie, error) {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	if w == nil {
		return nil, ErrWindowMissing
	}
	return w.Cookies(u)
}

// EnsureAuthenticated opens or focuses the login window and waits for the
// login-complete event. Concurrent callers share a single wait.
func (s *WindowSession) EnsureAuthenticated(ctx context.Context) error {
	_, err, _ := s.group.Do("login", func() (interface{}, error) {
		// the wait is registered before the window can fire its event
		next, cancel := s.bus.Once(events.TopicBoothLogin)
		defer cancel()

		w, err := s.ensureWindow()
		if err != nil {
			return nil, err
		}
		logging.Info("Waiting for storefront login")
		if err := w.Show(ctx, LoginURL); err != nil {
			return nil, err
		}

		select {
		case e := <-next:
			logging.Debug("Storefront login completed", "payload", e.Payload)
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return err
}

// Navigated is called by windows after each navigation. A booth.pm page that
// is not a login page means the user is logged in.
func (s *WindowSession) Navigated(u *url.URL) {
	if IsLoggedInURL(u) {
		s.bus.Publish(events.Event{Topic: events.TopicBoothLogin, Payload: LoginComplete{URL: u.String()}})
	}
}

// Close closes the window if one is open.
func (s *WindowSession) Close() error {
	s.mu.Lock()
	w := s.window
	s.window = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (s *WindowSession) ensureWindow() (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window != nil {
		return s.window, nil
	}
	if s.open == nil {
		return nil, ErrWindowMissing
	}
	w, err := s.open()
	if err != nil {
		return nil, err
	}
	s.window = w
	return w, nil
}
