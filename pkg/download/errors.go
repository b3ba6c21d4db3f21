// pkg/download/errors.go - fetch failures.

package download

import (
	"errors"
	"fmt"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/session"
)

var (
	// ErrAuthRequired means the storefront answered with a login page.
	ErrAuthRequired = errors.New("AUTH_REQUIRED")
	// ErrAuthWindowMissing means no login window exists to take cookies from.
	ErrAuthWindowMissing = session.ErrWindowMissing
	// ErrNoMatchingAsset means no GitHub release asset matched the pattern.
	ErrNoMatchingAsset = errors.New("no matching release asset")
	// ErrInsecureURL rejects anything other than https URLs.
	ErrInsecureURL = errors.New("Only https:// is permitted")
)

// FetchError wraps a failed download with the URL or id that was requested.
type FetchError struct {
	Kind   catalog.SourceKind
	Target string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s download failed (%s): %v", e.Kind, e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchError(kind catalog.SourceKind, target string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Kind: kind, Target: target, Err: err}
}

// IsAuthError reports whether err asks for a (re)login.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAuthWindowMissing)
}
