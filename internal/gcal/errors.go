package gcal

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrNoCredential means the user never completed authorization (or
// disconnected). Callers should send the user through the consent flow.
var ErrNoCredential = errors.New("no google credential stored")

// ErrMissingCode means CompleteAuthorization was called without an
// authorization code.
var ErrMissingCode = errors.New("authorization code missing")

// errCursorExpired is the internal control signal for a provider-rejected
// sync cursor (HTTP 410). It is recovered once per sync invocation and never
// escapes SyncCalendar.
var errCursorExpired = errors.New("sync cursor expired")

// RefreshFailedError means the provider rejected the refresh grant. The
// stored credential is unusable and the user must reconnect; callers must not
// retry automatically.
type RefreshFailedError struct {
	Err error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh rejected, reauthorization required: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// TokenExchangeError means the provider rejected the authorization code
// exchange. The provider's description is kept for the user-facing message.
type TokenExchangeError struct {
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("code exchange failed: %s", e.Description)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// ProviderError is a transport or API-level failure from Google, carrying the
// original HTTP status where one exists.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("google api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("google api error: %s", e.Message)
}

// refreshFailureError classifies a failed refresh grant. Only an explicit
// provider rejection (an oauth2.RetrieveError from a 4xx token response, e.g.
// invalid_grant) kills the credential; transport failures and token-endpoint
// outages surface as ProviderError so the stored credential survives the
// outage.
func refreshFailureError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return &ProviderError{StatusCode: re.Response.StatusCode, Message: "token endpoint unavailable"}
		}
		return &RefreshFailedError{Err: err}
	}
	return &ProviderError{Message: err.Error()}
}

// providerError normalizes an error from the Google API client into a
// ProviderError, preserving the HTTP status for typed failures.
func providerError(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return &ProviderError{StatusCode: ge.Code, Message: ge.Message}
	}
	return &ProviderError{Message: err.Error()}
}

// isCursorExpired reports whether the provider rejected the presented sync
// cursor. Google signals this with HTTP 410 Gone.
func isCursorExpired(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == 410
}
