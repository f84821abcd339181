package gcal

import (
	"context"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/campushub/calsync/internal/store"
)

// DefaultCalendarID is the provider alias for the user's primary calendar.
const DefaultCalendarID = "primary"

// defaultSyncWindow bounds full-window syncs to [now-90d, now+90d].
const defaultSyncWindow = 90 * 24 * time.Hour

// Config carries every provider credential and endpoint the service talks
// to. Business logic never reads process-wide configuration directly; the
// struct is injected at construction.
type Config struct {
	// OAuth holds the Google client id/secret, redirect URL, scopes, and
	// authorization/token endpoints.
	OAuth *oauth2.Config

	// RevokeURL is the provider's token revocation endpoint.
	RevokeURL string

	// WebhookURL is the public address Google delivers push notifications to.
	WebhookURL string

	// SyncWindow overrides the full-window sync range. Zero means 90 days on
	// either side of now.
	SyncWindow time.Duration

	// APIOptions is appended to every calendar API client. Tests use it to
	// point the client at a local server.
	APIOptions []option.ClientOption
}

func (c Config) syncWindow() time.Duration {
	if c.SyncWindow > 0 {
		return c.SyncWindow
	}
	return defaultSyncWindow
}

// Service implements the calendar sync core: credential lifecycle,
// authorization flow, catalog refresh, incremental event sync, and watch
// registration.
type Service struct {
	cfg   Config
	store *store.Store
	now   func() time.Time
}

func New(cfg Config, st *store.Store) *Service {
	return &Service{cfg: cfg, store: st, now: time.Now}
}

// apiClient builds a calendar API client authenticated as the given user,
// refreshing the stored credential first when needed.
func (s *Service) apiClient(ctx context.Context, userID int64) (*calendar.Service, error) {
	tok, err := s.ValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, s.cfg.APIOptions...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, providerError(err)
	}
	return svc, nil
}
