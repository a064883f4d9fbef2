// Package platform holds the pieces shared by every platform integration:
// auth-failure classification, the single refresh-and-retry pass, and OAuth
// token rotation.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"crossposter/internal/models"
)

// AuthError marks a request rejected because the account's credentials are
// expired or revoked. Dispatchers and fetchers wrap raw platform errors into
// this type; the retry layer keys off it.
type AuthError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: authentication rejected (status %d)", e.Platform, e.StatusCode)
	}
	return fmt.Sprintf("%s: authentication rejected (status %d): %s", e.Platform, e.StatusCode, e.Message)
}

// IsAuthError reports whether err (or anything it wraps) is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Refresher rotates an account's credentials after an auth rejection and
// persists the new tokens.
type Refresher interface {
	Refresh(ctx context.Context, account *models.PlatformAccount) error
}

// WithAuthRetry runs op and, when it fails with an AuthError, refreshes the
// account's tokens and retries op exactly once. Any other error or a second
// auth rejection is returned as-is. A failed refresh surfaces the original
// auth rejection — that is what execution records show verbatim. A nil
// refresher disables the retry (long-lived tokens).
func WithAuthRetry(ctx context.Context, logger zerolog.Logger, account *models.PlatformAccount, refresher Refresher, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsAuthError(err) || refresher == nil {
		return err
	}

	logger.Info().
		Int64("account_id", account.ID).
		Str("platform", account.PlatformID).
		Msg("access token rejected, refreshing")

	if rerr := refresher.Refresh(ctx, account); rerr != nil {
		logger.Error().
			Int64("account_id", account.ID).
			Str("platform", account.PlatformID).
			Err(rerr).
			Msg("token refresh failed")
		return err
	}

	return op(ctx)
}
