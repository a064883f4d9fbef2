package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"crossposter/internal/domain"
	"crossposter/internal/events"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
)

// twitterEndpoint is the OAuth2 token endpoint for user-context apps.
var twitterEndpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

// OAuthRefresher exchanges refresh tokens for new access tokens and persists
// the rotated pair before the caller retries. Refresh-token rotation is
// assumed: both tokens are replaced on every refresh.
type OAuthRefresher struct {
	store    domain.Store
	resolver domain.CredentialResolver
	events   domain.EventPublisher
	logger   zerolog.Logger

	// overridable in tests
	endpointFor func(platformID string) (oauth2.Endpoint, error)
}

// SetEventPublisher enables tokens-rotated events. Optional.
func (r *OAuthRefresher) SetEventPublisher(p domain.EventPublisher) { r.events = p }

func NewOAuthRefresher(store domain.Store, resolver domain.CredentialResolver, logger zerolog.Logger) *OAuthRefresher {
	return &OAuthRefresher{
		store:    store,
		resolver: resolver,
		logger:   logger,
		endpointFor: func(platformID string) (oauth2.Endpoint, error) {
			switch platformID {
			case models.PlatformTwitter:
				return twitterEndpoint, nil
			case models.PlatformYouTube:
				return google.Endpoint, nil
			default:
				return oauth2.Endpoint{}, fmt.Errorf("platform %s does not support token refresh", platformID)
			}
		},
	}
}

// Refresh rotates the account's token pair. The new credentials are written
// to storage before returning, so a retried request always sees them.
func (r *OAuthRefresher) Refresh(ctx context.Context, account *models.PlatformAccount) error {
	access, refresh, err := tokenPair(account)
	if err != nil {
		return err
	}
	if refresh == "" {
		return fmt.Errorf("account %d has no refresh token", account.ID)
	}

	endpoint, err := r.endpointFor(account.PlatformID)
	if err != nil {
		return err
	}

	client, err := r.resolver.GetOAuthClientCredentials(account.Owner, account.PlatformID)
	if err != nil {
		return fmt.Errorf("failed to resolve oauth client: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     endpoint,
	}
	// Просроченный Expiry заставляет TokenSource обменять refresh-токен.
	stale := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       time.Now().Add(-time.Hour),
	}

	fresh, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		metrics.IncTokenRefresh(account.PlatformID, "failed")
		return fmt.Errorf("failed to exchange refresh token: %w", err)
	}

	setTokenPair(account, fresh.AccessToken, fresh.RefreshToken, refresh)

	if err := r.store.UpdateAccountCredentials(ctx, account.ID, account.Credentials); err != nil {
		return fmt.Errorf("failed to persist rotated tokens: %w", err)
	}

	metrics.IncTokenRefresh(account.PlatformID, "ok")
	if r.events != nil {
		_ = r.events.PublishJSON(events.EventTokensRotated, events.TokensRotatedPayload{
			AccountID: account.ID,
			Platform:  account.PlatformID,
		})
	}

	r.logger.Info().
		Int64("account_id", account.ID).
		Str("platform", account.PlatformID).
		Msg("tokens rotated")
	return nil
}

func tokenPair(account *models.PlatformAccount) (access, refresh string, err error) {
	switch account.PlatformID {
	case models.PlatformTwitter:
		if account.Credentials.Twitter == nil {
			return "", "", fmt.Errorf("account %d has no twitter credentials", account.ID)
		}
		return account.Credentials.Twitter.AccessToken, account.Credentials.Twitter.RefreshToken, nil
	case models.PlatformYouTube:
		if account.Credentials.YouTube == nil {
			return "", "", fmt.Errorf("account %d has no youtube credentials", account.ID)
		}
		return account.Credentials.YouTube.AccessToken, account.Credentials.YouTube.RefreshToken, nil
	default:
		return "", "", fmt.Errorf("platform %s does not support token refresh", account.PlatformID)
	}
}

func setTokenPair(account *models.PlatformAccount, access, refresh, previous string) {
	// Некоторые провайдеры не возвращают новый refresh-токен, тогда
	// действует прежний.
	if refresh == "" {
		refresh = previous
	}
	switch account.PlatformID {
	case models.PlatformTwitter:
		account.Credentials.Twitter.AccessToken = access
		account.Credentials.Twitter.RefreshToken = refresh
	case models.PlatformYouTube:
		account.Credentials.YouTube.AccessToken = access
		account.Credentials.YouTube.RefreshToken = refresh
	}
}
