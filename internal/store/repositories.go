package store

import (
	"context"
	"time"
)

// TokenRepository persists per-user OAuth credentials.
type TokenRepository interface {
	Get(ctx context.Context, userID int64) (*TokenRecord, error)
	Upsert(ctx context.Context, rec TokenRecord) error
	Delete(ctx context.Context, userID int64) error
}

// CalendarRepository manages the mirrored calendar catalog.
type CalendarRepository interface {
	GetByGCalID(ctx context.Context, userID int64, gcalID string) (*Calendar, error)
	ListByUser(ctx context.Context, userID int64) ([]Calendar, error)
	Upsert(ctx context.Context, cal Calendar) (*Calendar, error)
	UpdateSyncToken(ctx context.Context, userID int64, gcalID string, token string) error
	UpdateWatch(ctx context.Context, userID int64, gcalID string, watch *WatchRegistration) error
	FindByWatch(ctx context.Context, resourceID, channelID string) (*Calendar, error)
	DeleteByUser(ctx context.Context, userID int64) error
}

// EventLinkRepository stores the local mirror of fetched provider events.
type EventLinkRepository interface {
	Upsert(ctx context.Context, link EventLink) error
	Delete(ctx context.Context, calendarID int64, gcalEventID string) error
	ListByCalendar(ctx context.Context, calendarID int64, from, to time.Time) ([]EventLink, error)
	DeleteByUser(ctx context.Context, userID int64) error
}
