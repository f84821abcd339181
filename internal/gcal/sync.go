package gcal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/campushub/calsync/internal/store"
)

// Google caps event pages at 250 results.
const maxPageSize = 250

// SyncResult summarizes one sync invocation.
type SyncResult struct {
	EventsFetched int
	SyncToken     string
}

// SyncCalendar brings the local mirror of one calendar up to date.
//
// When the calendar has a stored sync cursor the request is incremental:
// Google returns only changes since the cursor. Without a cursor the request
// is a full windowed fetch of [now-window, now+window] with recurring events
// expanded into single instances. The fetch paginates until no continuation
// token remains; the terminal page carries the next cursor.
//
// A cursor the provider rejects (HTTP 410) demotes the invocation to a
// full-window fetch, discarding any partial results, exactly once. A second
// rejection in the same invocation is a fatal ProviderError.
//
// An empty next cursor from the provider leaves the stored cursor untouched.
// The stale value will be rejected on the next sync and recovered through the
// full-window path, which is cheaper than risking a silent gap.
func (s *Service) SyncCalendar(ctx context.Context, userID int64, gcalID string) (*SyncResult, error) {
	if gcalID == "" {
		gcalID = DefaultCalendarID
	}

	cal, err := s.store.Calendars.GetByGCalID(ctx, userID, gcalID)
	if errors.Is(err, store.ErrNotFound) {
		// First sync can precede a catalog refresh (e.g. the default primary
		// calendar); start from a bare record with no cursor.
		cal, err = s.store.Calendars.Upsert(ctx, store.Calendar{
			UserID:   userID,
			GCalID:   gcalID,
			Selected: true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", gcalID, err)
	}

	svc, err := s.apiClient(ctx, userID)
	if err != nil {
		return nil, err
	}

	cursor := ""
	if cal.SyncToken != nil {
		cursor = *cal.SyncToken
	}

	events, nextCursor, err := s.fetchAllEvents(ctx, svc, gcalID, cursor)
	if errors.Is(err, errCursorExpired) {
		log.Printf("[INFO] sync cursor for calendar %s (user %d) rejected, falling back to full window", gcalID, userID)
		events, nextCursor, err = s.fetchAllEvents(ctx, svc, gcalID, "")
		if errors.Is(err, errCursorExpired) {
			return nil, &ProviderError{StatusCode: 410, Message: "sync cursor rejected twice in one invocation"}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := s.ingestEvents(ctx, cal, events); err != nil {
		return nil, err
	}

	if nextCursor != "" {
		if err := s.store.Calendars.UpdateSyncToken(ctx, userID, gcalID, nextCursor); err != nil {
			return nil, fmt.Errorf("persist sync cursor: %w", err)
		}
	}

	return &SyncResult{EventsFetched: len(events), SyncToken: nextCursor}, nil
}

// fetchAllEvents walks every page of an events listing. An empty cursor
// selects full-window mode. The returned cursor is the terminal page's
// nextSyncToken. A rejected cursor surfaces as errCursorExpired so the caller
// can apply the one-retry policy; every other provider failure is a
// ProviderError.
func (s *Service) fetchAllEvents(ctx context.Context, svc *calendar.Service, gcalID, cursor string) ([]*calendar.Event, string, error) {
	var (
		events    []*calendar.Event
		pageToken string
	)

	window := s.cfg.syncWindow()
	now := s.now()

	for {
		call := svc.Events.List(gcalID).MaxResults(maxPageSize).Context(ctx)
		if cursor != "" {
			call = call.SyncToken(cursor)
		} else {
			call = call.
				TimeMin(now.Add(-window).Format(time.RFC3339)).
				TimeMax(now.Add(window).Format(time.RFC3339)).
				SingleEvents(true)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			if isCursorExpired(err) {
				return nil, "", errCursorExpired
			}
			return nil, "", providerError(err)
		}

		events = append(events, page.Items...)

		pageToken = page.NextPageToken
		if pageToken == "" {
			return events, page.NextSyncToken, nil
		}
	}
}

// ingestEvents writes fetched events into the local event-link mirror.
// Cancelled events remove their link; everything else is upserted.
func (s *Service) ingestEvents(ctx context.Context, cal *store.Calendar, events []*calendar.Event) error {
	for _, ev := range events {
		if ev == nil || ev.Id == "" {
			continue
		}
		if ev.Status == "cancelled" {
			if err := s.store.EventLinks.Delete(ctx, cal.ID, ev.Id); err != nil {
				return fmt.Errorf("remove cancelled event %s: %w", ev.Id, err)
			}
			continue
		}

		link := store.EventLink{
			UserID:      cal.UserID,
			CalendarID:  cal.ID,
			GCalEventID: ev.Id,
			StartsAt:    eventTime(ev.Start),
			EndsAt:      eventTime(ev.End),
			Status:      ev.Status,
		}
		if err := s.store.EventLinks.Upsert(ctx, link); err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.Id, err)
		}
	}
	return nil
}

// eventTime converts a provider event boundary to a timestamp. Timed events
// carry DateTime; all-day events carry a bare Date interpreted at midnight
// UTC.
func eventTime(edt *calendar.EventDateTime) *time.Time {
	if edt == nil {
		return nil
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return &t
		}
		return nil
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return &t
		}
	}
	return nil
}
