// pkg/retry/retry.go - retrying an action after a recovery hook.

package retry

import (
	"context"
	"fmt"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// Config defines how an action is retried.
//
// Retryable decides whether a failure may be retried at all; a nil Retryable
// retries every error. Recover runs between attempts and may repair the
// condition that caused the failure (a login, a refreshed token). If Recover
// fails, its error is returned and no further attempt is made.
type Config struct {
	MaxAttempts int
	Retryable   func(error) bool
	Recover     func(ctx context.Context, err error) error
}

// Do runs action until it succeeds, a non-retryable error occurs, or
// MaxAttempts is reached. The last error is returned unchanged.
func Do(ctx context.Context, cfg Config, action func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = action(ctx); err == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			logging.LogStructured(logging.LevelDebug,
				fmt.Sprintf("Non-retryable error encountered: %s", err.Error()),
				map[string]interface{}{
					"level":         "RETRY",
					"attempt":       attempt,
					"non_retryable": true,
				})
			return err
		}
		if attempt == attempts {
			logging.LogStructured(logging.LevelWarn,
				fmt.Sprintf("Attempt %d/%d failed: %s. No more retries.", attempt, attempts, err.Error()),
				map[string]interface{}{
					"level":         "RETRY",
					"attempt":       attempt,
					"max_attempts":  attempts,
					"final_failure": true,
				})
			break
		}

		logging.LogStructured(logging.LevelWarn,
			fmt.Sprintf("Attempt %d/%d failed: %s. Retrying...", attempt, attempts, err.Error()),
			map[string]interface{}{
				"level":        "RETRY",
				"attempt":      attempt,
				"max_attempts": attempts,
			})

		if cfg.Recover != nil {
			if rerr := cfg.Recover(ctx, err); rerr != nil {
				return rerr
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
