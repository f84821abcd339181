package gcal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/campushub/calsync/internal/store"
)

// ValidToken returns a currently valid access token for the user, refreshing
// through the provider's refresh grant when the stored token has expired.
//
// A refreshed access token is persisted before returning; the stored refresh
// token is only replaced when the provider rotates it. Concurrent callers for
// the same user may race the refresh: the record is last-writer-wins and a
// provider-rejected refresh token is a fatal RefreshFailedError that callers
// must not retry. A failure to reach the token endpoint is a ProviderError
// instead and leaves the credential intact.
func (s *Service) ValidToken(ctx context.Context, userID int64) (*oauth2.Token, error) {
	rec, err := s.store.Tokens.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Expiry:       rec.ExpiresAt,
	}
	if tok.Valid() {
		return tok, nil
	}

	fresh, err := s.cfg.OAuth.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, refreshFailureError(err)
	}

	rec.AccessToken = fresh.AccessToken
	rec.ExpiresAt = fresh.Expiry
	if fresh.TokenType != "" {
		rec.TokenType = fresh.TokenType
	}
	// Google does not always rotate the refresh token on refresh; keep the
	// stored one unless a new value arrived.
	if fresh.RefreshToken != "" {
		rec.RefreshToken = fresh.RefreshToken
	}
	if err := s.store.Tokens.Upsert(ctx, *rec); err != nil {
		// A refreshed token we failed to record would leave the stored
		// credential stale, so this is not swallowed.
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	fresh.RefreshToken = rec.RefreshToken
	return fresh, nil
}

// Connected reports whether the user has a stored credential at all, without
// touching the provider.
func (s *Service) Connected(ctx context.Context, userID int64) (bool, error) {
	_, err := s.store.Tokens.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load credential: %w", err)
	}
	return true, nil
}
