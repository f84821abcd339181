package gcal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/campushub/calsync/internal/store"
)

// RegisterWatch opens a push notification channel for one calendar. The
// channel id is a fresh uuid and the verification token is random; Google
// echoes the token back in X-Goog-Channel-Token on every delivery, which is
// how the webhook handler tells genuine notifications from forged ones.
func (s *Service) RegisterWatch(ctx context.Context, userID int64, gcalID string) (*store.WatchRegistration, error) {
	if gcalID == "" {
		gcalID = DefaultCalendarID
	}
	if s.cfg.WebhookURL == "" {
		return nil, errors.New("webhook address is not configured")
	}

	if _, err := s.store.Calendars.GetByGCalID(ctx, userID, gcalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("calendar %s is not in the local catalog", gcalID)
		}
		return nil, err
	}

	svc, err := s.apiClient(ctx, userID)
	if err != nil {
		return nil, err
	}

	verification, err := generateWatchToken()
	if err != nil {
		return nil, fmt.Errorf("generate watch token: %w", err)
	}

	channel := &calendar.Channel{
		Id:      uuid.NewString(),
		Type:    "web_hook",
		Address: s.cfg.WebhookURL,
		Token:   verification,
	}
	got, err := svc.Events.Watch(gcalID, channel).Context(ctx).Do()
	if err != nil {
		return nil, providerError(err)
	}

	watch := &store.WatchRegistration{
		ResourceID: got.ResourceId,
		ChannelID:  channel.Id,
		Token:      verification,
	}
	if got.Expiration > 0 {
		exp := time.UnixMilli(got.Expiration).UTC()
		watch.ExpiresAt = &exp
	}

	if err := s.store.Calendars.UpdateWatch(ctx, userID, gcalID, watch); err != nil {
		return nil, fmt.Errorf("persist watch registration: %w", err)
	}
	return watch, nil
}

// StopWatch closes the push channel for one calendar. The provider call is
// best-effort: the local registration is cleared even when Google refuses,
// since notifications for an unknown channel are acked and dropped anyway.
func (s *Service) StopWatch(ctx context.Context, userID int64, gcalID string) error {
	if gcalID == "" {
		gcalID = DefaultCalendarID
	}

	cal, err := s.store.Calendars.GetByGCalID(ctx, userID, gcalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if cal.WatchChannelID == nil || cal.WatchResourceID == nil {
		return nil
	}

	if svc, err := s.apiClient(ctx, userID); err == nil {
		channel := &calendar.Channel{Id: *cal.WatchChannelID, ResourceId: *cal.WatchResourceID}
		if err := svc.Channels.Stop(channel).Context(ctx).Do(); err != nil {
			log.Printf("[WARN] stop watch channel %s: %v", *cal.WatchChannelID, err)
		}
	}

	return s.store.Calendars.UpdateWatch(ctx, userID, gcalID, nil)
}

// stopAllWatches tears down every active channel for a user, used on
// disconnect. Failures are logged only.
func (s *Service) stopAllWatches(ctx context.Context, userID int64) {
	cals, err := s.store.Calendars.ListByUser(ctx, userID)
	if err != nil {
		log.Printf("[WARN] list calendars for watch teardown (user %d): %v", userID, err)
		return
	}
	for _, cal := range cals {
		if cal.WatchChannelID == nil {
			continue
		}
		if err := s.StopWatch(ctx, userID, cal.GCalID); err != nil {
			log.Printf("[WARN] stop watch for calendar %s (user %d): %v", cal.GCalID, userID, err)
		}
	}
}

func generateWatchToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
