package gcal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campushub/calsync/internal/store"
)

// In-memory repository fakes mirroring the Postgres implementations closely
// enough for the service logic under test, including merge-on-upsert.

type fakeTokenRepo struct {
	mu   sync.Mutex
	recs map[int64]store.TokenRecord
	log  *[]string
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{recs: make(map[int64]store.TokenRecord)}
}

func (r *fakeTokenRepo) Get(ctx context.Context, userID int64) (*store.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (r *fakeTokenRepo) Upsert(ctx context.Context, rec store.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.recs[rec.UserID]; ok && rec.RefreshToken == "" {
		rec.RefreshToken = existing.RefreshToken
	}
	r.recs[rec.UserID] = rec
	return nil
}

func (r *fakeTokenRepo) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log != nil {
		*r.log = append(*r.log, "tokens.delete")
	}
	delete(r.recs, userID)
	return nil
}

type fakeCalendarRepo struct {
	mu     sync.Mutex
	nextID int64
	cals   map[string]store.Calendar
	log    *[]string
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{cals: make(map[string]store.Calendar)}
}

func calKey(userID int64, gcalID string) string {
	return fmt.Sprintf("%d:%s", userID, gcalID)
}

func (r *fakeCalendarRepo) record(op string) {
	if r.log != nil {
		*r.log = append(*r.log, op)
	}
}

func (r *fakeCalendarRepo) GetByGCalID(ctx context.Context, userID int64, gcalID string) (*store.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cal, ok := r.cals[calKey(userID, gcalID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cal
	return &out, nil
}

func (r *fakeCalendarRepo) ListByUser(ctx context.Context, userID int64) ([]store.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Calendar
	for _, cal := range r.cals {
		if cal.UserID == userID {
			out = append(out, cal)
		}
	}
	return out, nil
}

func (r *fakeCalendarRepo) Upsert(ctx context.Context, cal store.Calendar) (*store.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := calKey(cal.UserID, cal.GCalID)
	var existing *store.Calendar
	if cur, ok := r.cals[key]; ok {
		existing = &cur
	}
	merged := store.MergeCalendar(existing, cal)
	if existing == nil {
		r.nextID++
		merged.ID = r.nextID
	}
	r.cals[key] = merged
	out := merged
	return &out, nil
}

func (r *fakeCalendarRepo) UpdateSyncToken(ctx context.Context, userID int64, gcalID string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := calKey(userID, gcalID)
	cal, ok := r.cals[key]
	if !ok {
		return store.ErrNotFound
	}
	cal.SyncToken = &token
	r.cals[key] = cal
	return nil
}

func (r *fakeCalendarRepo) UpdateWatch(ctx context.Context, userID int64, gcalID string, watch *store.WatchRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := calKey(userID, gcalID)
	cal, ok := r.cals[key]
	if !ok {
		return store.ErrNotFound
	}
	if watch == nil {
		cal.WatchResourceID, cal.WatchChannelID, cal.WatchToken, cal.WatchExpiresAt = nil, nil, nil, nil
	} else {
		resource, channel, token := watch.ResourceID, watch.ChannelID, watch.Token
		cal.WatchResourceID, cal.WatchChannelID, cal.WatchToken = &resource, &channel, &token
		cal.WatchExpiresAt = watch.ExpiresAt
	}
	r.cals[key] = cal
	return nil
}

func (r *fakeCalendarRepo) FindByWatch(ctx context.Context, resourceID, channelID string) (*store.Calendar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cal := range r.cals {
		if cal.WatchResourceID != nil && *cal.WatchResourceID == resourceID &&
			cal.WatchChannelID != nil && *cal.WatchChannelID == channelID {
			out := cal
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeCalendarRepo) DeleteByUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("calendars.delete")
	for key, cal := range r.cals {
		if cal.UserID == userID {
			delete(r.cals, key)
		}
	}
	return nil
}

type fakeEventLinkRepo struct {
	mu    sync.Mutex
	links map[string]store.EventLink
	log   *[]string
}

func newFakeEventLinkRepo() *fakeEventLinkRepo {
	return &fakeEventLinkRepo{links: make(map[string]store.EventLink)}
}

func linkKey(calendarID int64, eventID string) string {
	return fmt.Sprintf("%d:%s", calendarID, eventID)
}

func (r *fakeEventLinkRepo) Upsert(ctx context.Context, link store.EventLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[linkKey(link.CalendarID, link.GCalEventID)] = link
	return nil
}

func (r *fakeEventLinkRepo) Delete(ctx context.Context, calendarID int64, gcalEventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, linkKey(calendarID, gcalEventID))
	return nil
}

func (r *fakeEventLinkRepo) ListByCalendar(ctx context.Context, calendarID int64, from, to time.Time) ([]store.EventLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.EventLink
	for _, link := range r.links {
		if link.CalendarID == calendarID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (r *fakeEventLinkRepo) DeleteByUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log != nil {
		*r.log = append(*r.log, "event_links.delete")
	}
	for key, link := range r.links {
		if link.UserID == userID {
			delete(r.links, key)
		}
	}
	return nil
}

func newFakeStore() (*store.Store, *fakeTokenRepo, *fakeCalendarRepo, *fakeEventLinkRepo) {
	tokens := newFakeTokenRepo()
	cals := newFakeCalendarRepo()
	links := newFakeEventLinkRepo()
	return &store.Store{Tokens: tokens, Calendars: cals, EventLinks: links}, tokens, cals, links
}
