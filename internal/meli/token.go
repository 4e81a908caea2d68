package meli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"skuradar/internal/config"
	"skuradar/internal/retry"
)

// safetyMargin is subtracted from the reported token lifetime so a token is
// treated as expired slightly before the marketplace would reject it.
const safetyMargin = 5 * time.Minute

// AccessToken is an opaque bearer credential with an absolute expiry.
// Tokens are replaced wholesale on renewal, never mutated.
type AccessToken struct {
	Value     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Usable reports whether the token can still be presented at the given time.
func (t AccessToken) Usable(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenManager caches an access token across runs and renews it on expiry.
// It is not safe for concurrent callers; only one acquisition is in flight
// per pipeline run.
type TokenManager struct {
	client   *Client
	store    TokenStore
	cached   *AccessToken
	retryCfg retry.Config
	now      func() time.Time
}

func NewTokenManager(client *Client, store TokenStore) *TokenManager {
	return &TokenManager{
		client:   client,
		store:    store,
		retryCfg: config.DefaultResilienceConfig.TokenRequest,
		now:      time.Now,
	}
}

// GetValidToken returns the cached token when it is still usable, otherwise
// requests a fresh one. A failure here is fatal for the whole run; callers
// must not retry per row.
func (m *TokenManager) GetValidToken(ctx context.Context) (AccessToken, error) {
	now := m.now()

	if m.cached != nil && m.cached.Usable(now) {
		return *m.cached, nil
	}

	if tok, err := m.store.Get(); err == nil && tok != nil && tok.Usable(now) {
		log.Debug().Time("expires_at", tok.ExpiresAt).Msg("Using cached access token")
		m.cached = tok
		return *tok, nil
	}

	return m.fetch(ctx)
}

// ForceRefresh discards any cached token and requests a new one. The pipeline
// calls it once per run when a lookup reports the token as invalid.
func (m *TokenManager) ForceRefresh(ctx context.Context) (AccessToken, error) {
	log.Warn().Msg("Forcing access token refresh")
	m.cached = nil
	return m.fetch(ctx)
}

type rawToken struct {
	value     string
	expiresIn int
}

func (m *TokenManager) fetch(ctx context.Context) (AccessToken, error) {
	raw, err := retry.WithRetry(ctx, m.retryCfg, func(ctx context.Context) (rawToken, error) {
		value, expiresIn, err := m.client.RequestToken(ctx)
		return rawToken{value: value, expiresIn: expiresIn}, err
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to obtain access token")
		return AccessToken{}, fmt.Errorf("failed to obtain access token: %w", err)
	}

	tok := AccessToken{
		Value:     raw.value,
		ExpiresAt: m.now().Add(time.Duration(raw.expiresIn)*time.Second - safetyMargin),
	}

	// A persist failure only costs us a re-fetch on the next run.
	if err := m.store.Put(tok); err != nil {
		log.Warn().Err(err).Msg("Failed to persist access token")
	}

	log.Info().Time("expires_at", tok.ExpiresAt).Msg("Obtained new access token")
	m.cached = &tok
	return tok, nil
}
