package store

import "time"

// TokenRecord holds a user's Google OAuth credential. At most one per user.
type TokenRecord struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	Scope        string
	TokenType    string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Calendar mirrors one entry of a user's Google calendar list, keyed by
// (UserID, GCalID). SyncToken is the provider's opaque incremental cursor;
// nil forces the next sync into full-window mode.
type Calendar struct {
	ID              int64
	UserID          int64
	GCalID          string
	Summary         string
	TimeZone        string
	Selected        bool
	SyncToken       *string
	WatchResourceID *string
	WatchChannelID  *string
	WatchToken      *string
	WatchExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WatchRegistration captures a provider push channel bound to a calendar.
type WatchRegistration struct {
	ResourceID string
	ChannelID  string
	Token      string
	ExpiresAt  *time.Time
}

// EventLink ties a fetched Google event to a local calendar so the portal can
// render synced events without re-querying the provider.
type EventLink struct {
	ID          int64
	UserID      int64
	CalendarID  int64
	GCalEventID string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Status      string
}
