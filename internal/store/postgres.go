package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tokenRepo implements TokenRepository.
type tokenRepo struct {
	pool *pgxpool.Pool
}

func (r *tokenRepo) Get(ctx context.Context, userID int64) (*TokenRecord, error) {
	defer observeDB(ctx, "tokens.get")()
	const q = `SELECT user_id, access_token, refresh_token, scope, token_type, expires_at, updated_at
FROM google_tokens WHERE user_id=$1`

	var rec TokenRecord
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.Scope,
		&rec.TokenType, &rec.ExpiresAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token for user %d: %w", userID, err)
	}
	return &rec, nil
}

func (r *tokenRepo) Upsert(ctx context.Context, rec TokenRecord) error {
	defer observeDB(ctx, "tokens.upsert")()
	const q = `INSERT INTO google_tokens (user_id, access_token, refresh_token, scope, token_type, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (user_id) DO UPDATE SET
        access_token = EXCLUDED.access_token,
        refresh_token = CASE WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token ELSE google_tokens.refresh_token END,
        scope = EXCLUDED.scope,
        token_type = EXCLUDED.token_type,
        expires_at = EXCLUDED.expires_at,
        updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, q, rec.UserID, rec.AccessToken, rec.RefreshToken,
		rec.Scope, rec.TokenType, rec.ExpiresAt); err != nil {
		return fmt.Errorf("upsert token for user %d: %w", rec.UserID, err)
	}
	return nil
}

func (r *tokenRepo) Delete(ctx context.Context, userID int64) error {
	defer observeDB(ctx, "tokens.delete")()
	if _, err := r.pool.Exec(ctx, `DELETE FROM google_tokens WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete token for user %d: %w", userID, err)
	}
	return nil
}

// calendarRepo implements CalendarRepository.
type calendarRepo struct {
	pool *pgxpool.Pool
}

const calendarColumns = `id, user_id, gcal_id, summary, time_zone, selected, sync_token,
watch_resource_id, watch_channel_id, watch_token, watch_expires_at, created_at, updated_at`

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var cal Calendar
	err := row.Scan(
		&cal.ID, &cal.UserID, &cal.GCalID, &cal.Summary, &cal.TimeZone, &cal.Selected,
		&cal.SyncToken, &cal.WatchResourceID, &cal.WatchChannelID, &cal.WatchToken,
		&cal.WatchExpiresAt, &cal.CreatedAt, &cal.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *calendarRepo) GetByGCalID(ctx context.Context, userID int64, gcalID string) (*Calendar, error) {
	defer observeDB(ctx, "calendars.get")()
	q := `SELECT ` + calendarColumns + ` FROM calendars WHERE user_id=$1 AND gcal_id=$2`
	cal, err := scanCalendar(r.pool.QueryRow(ctx, q, userID, gcalID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get calendar %s for user %d: %w", gcalID, userID, err)
	}
	return cal, err
}

func (r *calendarRepo) ListByUser(ctx context.Context, userID int64) ([]Calendar, error) {
	defer observeDB(ctx, "calendars.list")()
	q := `SELECT ` + calendarColumns + ` FROM calendars WHERE user_id=$1 ORDER BY summary, gcal_id`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list calendars for user %d: %w", userID, err)
	}
	defer rows.Close()

	var cals []Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		cals = append(cals, *cal)
	}
	return cals, rows.Err()
}

func (r *calendarRepo) Upsert(ctx context.Context, cal Calendar) (*Calendar, error) {
	defer observeDB(ctx, "calendars.upsert")()

	// Merge semantics live in MergeCalendar, not in the SQL: read the current
	// row, merge, then write the merged record. The unique index on
	// (user_id, gcal_id) keeps concurrent writers last-write-wins.
	existing, err := r.GetByGCalID(ctx, cal.UserID, cal.GCalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	merged := MergeCalendar(existing, cal)

	const q = `INSERT INTO calendars (user_id, gcal_id, summary, time_zone, selected, sync_token,
        watch_resource_id, watch_channel_id, watch_token, watch_expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
ON CONFLICT (user_id, gcal_id) DO UPDATE SET
        summary = EXCLUDED.summary,
        time_zone = EXCLUDED.time_zone,
        selected = EXCLUDED.selected,
        sync_token = EXCLUDED.sync_token,
        watch_resource_id = EXCLUDED.watch_resource_id,
        watch_channel_id = EXCLUDED.watch_channel_id,
        watch_token = EXCLUDED.watch_token,
        watch_expires_at = EXCLUDED.watch_expires_at,
        updated_at = NOW()
RETURNING ` + calendarColumns

	out, err := scanCalendar(r.pool.QueryRow(ctx, q,
		merged.UserID, merged.GCalID, merged.Summary, merged.TimeZone, merged.Selected,
		merged.SyncToken, merged.WatchResourceID, merged.WatchChannelID, merged.WatchToken,
		merged.WatchExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert calendar %s for user %d: %w", cal.GCalID, cal.UserID, err)
	}
	return out, nil
}

func (r *calendarRepo) UpdateSyncToken(ctx context.Context, userID int64, gcalID string, token string) error {
	defer observeDB(ctx, "calendars.update_sync_token")()
	const q = `UPDATE calendars SET sync_token=$3, updated_at=NOW() WHERE user_id=$1 AND gcal_id=$2`
	tag, err := r.pool.Exec(ctx, q, userID, gcalID, token)
	if err != nil {
		return fmt.Errorf("update sync token for calendar %s: %w", gcalID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *calendarRepo) UpdateWatch(ctx context.Context, userID int64, gcalID string, watch *WatchRegistration) error {
	defer observeDB(ctx, "calendars.update_watch")()

	var (
		resourceID, channelID, token *string
		expiresAt                    *time.Time
	)
	if watch != nil {
		resourceID, channelID, token = &watch.ResourceID, &watch.ChannelID, &watch.Token
		expiresAt = watch.ExpiresAt
	}

	const q = `UPDATE calendars SET watch_resource_id=$3, watch_channel_id=$4, watch_token=$5,
        watch_expires_at=$6, updated_at=NOW() WHERE user_id=$1 AND gcal_id=$2`
	tag, err := r.pool.Exec(ctx, q, userID, gcalID, resourceID, channelID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update watch for calendar %s: %w", gcalID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *calendarRepo) FindByWatch(ctx context.Context, resourceID, channelID string) (*Calendar, error) {
	defer observeDB(ctx, "calendars.find_by_watch")()
	q := `SELECT ` + calendarColumns + ` FROM calendars WHERE watch_resource_id=$1 AND watch_channel_id=$2`
	cal, err := scanCalendar(r.pool.QueryRow(ctx, q, resourceID, channelID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find calendar by watch channel %s: %w", channelID, err)
	}
	return cal, err
}

func (r *calendarRepo) DeleteByUser(ctx context.Context, userID int64) error {
	defer observeDB(ctx, "calendars.delete_by_user")()
	if _, err := r.pool.Exec(ctx, `DELETE FROM calendars WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete calendars for user %d: %w", userID, err)
	}
	return nil
}

// eventLinkRepo implements EventLinkRepository.
type eventLinkRepo struct {
	pool *pgxpool.Pool
}

func (r *eventLinkRepo) Upsert(ctx context.Context, link EventLink) error {
	defer observeDB(ctx, "event_links.upsert")()
	const q = `INSERT INTO event_links (user_id, calendar_id, gcal_event_id, starts_at, ends_at, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (calendar_id, gcal_event_id) DO UPDATE SET
        starts_at = EXCLUDED.starts_at,
        ends_at = EXCLUDED.ends_at,
        status = EXCLUDED.status`

	if _, err := r.pool.Exec(ctx, q, link.UserID, link.CalendarID, link.GCalEventID,
		link.StartsAt, link.EndsAt, link.Status); err != nil {
		return fmt.Errorf("upsert event link %s: %w", link.GCalEventID, err)
	}
	return nil
}

func (r *eventLinkRepo) Delete(ctx context.Context, calendarID int64, gcalEventID string) error {
	defer observeDB(ctx, "event_links.delete")()
	const q = `DELETE FROM event_links WHERE calendar_id=$1 AND gcal_event_id=$2`
	if _, err := r.pool.Exec(ctx, q, calendarID, gcalEventID); err != nil {
		return fmt.Errorf("delete event link %s: %w", gcalEventID, err)
	}
	return nil
}

func (r *eventLinkRepo) ListByCalendar(ctx context.Context, calendarID int64, from, to time.Time) ([]EventLink, error) {
	defer observeDB(ctx, "event_links.list")()
	const q = `SELECT id, user_id, calendar_id, gcal_event_id, starts_at, ends_at, status
FROM event_links
WHERE calendar_id=$1 AND starts_at >= $2 AND starts_at < $3
ORDER BY starts_at`

	rows, err := r.pool.Query(ctx, q, calendarID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list event links for calendar %d: %w", calendarID, err)
	}
	defer rows.Close()

	var links []EventLink
	for rows.Next() {
		var l EventLink
		if err := rows.Scan(&l.ID, &l.UserID, &l.CalendarID, &l.GCalEventID,
			&l.StartsAt, &l.EndsAt, &l.Status); err != nil {
			return nil, fmt.Errorf("scan event link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *eventLinkRepo) DeleteByUser(ctx context.Context, userID int64) error {
	defer observeDB(ctx, "event_links.delete_by_user")()
	if _, err := r.pool.Exec(ctx, `DELETE FROM event_links WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete event links for user %d: %w", userID, err)
	}
	return nil
}
