package gcal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/campushub/calsync/internal/store"
)

// RefreshCalendarList pulls the user's calendar list from Google and upserts
// each entry into the local catalog. The upsert merges, it never clears: a
// calendar already known locally keeps its sync cursor, watch registration,
// and selection flag. The full local catalog is read back so callers see
// selection state alongside the fresh provider data.
func (s *Service) RefreshCalendarList(ctx context.Context, userID int64) ([]store.Calendar, error) {
	svc, err := s.apiClient(ctx, userID)
	if err != nil {
		return nil, err
	}

	pageToken := ""
	for {
		call := svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, providerError(err)
		}

		for _, item := range page.Items {
			incoming := store.Calendar{
				UserID:   userID,
				GCalID:   item.Id,
				Summary:  item.Summary,
				TimeZone: item.TimeZone,
				Selected: true,
			}
			if _, err := s.store.Calendars.Upsert(ctx, incoming); err != nil {
				return nil, fmt.Errorf("upsert calendar %s: %w", item.Id, err)
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return s.store.Calendars.ListByUser(ctx, userID)
}

// ConnectionStatus reports whether the user is connected and returns the
// local catalog, refreshing both the credential and the calendar list as a
// side effect. A credential that can no longer be refreshed reads as
// disconnected; a failed catalog refresh falls back to the stored catalog so
// stale data stays visible.
func (s *Service) ConnectionStatus(ctx context.Context, userID int64) (bool, []store.Calendar, error) {
	_, err := s.ValidToken(ctx, userID)
	switch {
	case err == nil:
	case isDisconnected(err):
		return false, nil, nil
	default:
		return false, nil, err
	}

	cals, err := s.RefreshCalendarList(ctx, userID)
	if err != nil {
		log.Printf("[WARN] catalog refresh for user %d: %v", userID, err)
		cals, err = s.store.Calendars.ListByUser(ctx, userID)
		if err != nil {
			return true, nil, err
		}
	}
	return true, cals, nil
}

// isDisconnected reports whether the error means the user has no usable
// credential (never connected, or refresh permanently rejected).
func isDisconnected(err error) bool {
	var rf *RefreshFailedError
	return errors.Is(err, ErrNoCredential) || errors.As(err, &rf)
}
