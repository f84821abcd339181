package gcal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/campushub/calsync/internal/store"
)

// BeginAuthorization builds the Google consent URL for the user. Offline
// access plus a forced consent prompt guarantee a refresh token even when the
// user re-consents. The state parameter carries the portal user id for
// correlation on callback.
func (s *Service) BeginAuthorization(ctx context.Context, userID int64) (string, error) {
	if s.cfg.OAuth == nil || s.cfg.OAuth.ClientID == "" {
		return "", errors.New("google oauth client is not configured")
	}

	state := strconv.FormatInt(userID, 10)
	return s.cfg.OAuth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// CompleteAuthorization exchanges the authorization code for a token pair and
// stores it as the user's credential.
func (s *Service) CompleteAuthorization(ctx context.Context, userID int64, code string) error {
	if code == "" {
		return ErrMissingCode
	}

	tok, err := s.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return &TokenExchangeError{Description: exchangeFailureReason(err), Err: err}
	}

	rec := store.TokenRecord{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(s.cfg.OAuth.Scopes, " "),
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if err := s.store.Tokens.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

// Disconnect revokes the user's access token with Google on a best-effort
// basis, stops any active watch channels, and removes all local state. Child
// rows go before the token record so an interrupted deletion never leaves a
// credential pointing at vanished calendars.
func (s *Service) Disconnect(ctx context.Context, userID int64) error {
	rec, err := s.store.Tokens.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load credential: %w", err)
	}

	if rec != nil {
		s.stopAllWatches(ctx, userID)
		if err := s.revokeToken(ctx, rec.AccessToken); err != nil {
			log.Printf("[WARN] revoke token for user %d: %v", userID, err)
		}
	}

	if err := s.store.EventLinks.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete event links: %w", err)
	}
	if err := s.store.Calendars.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete calendars: %w", err)
	}
	if err := s.store.Tokens.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *Service) revokeToken(ctx context.Context, accessToken string) error {
	if s.cfg.RevokeURL == "" || accessToken == "" {
		return nil
	}

	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func exchangeFailureReason(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	return err.Error()
}
