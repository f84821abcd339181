// Package api exposes the calendar integration as a JSON API consumed by the
// student portal frontend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/campushub/calsync/internal/auth"
	"github.com/campushub/calsync/internal/gcal"
	httperrors "github.com/campushub/calsync/internal/http/errors"
	"github.com/campushub/calsync/internal/store"
	"github.com/campushub/calsync/internal/syncqueue"
)

// CalendarService is the slice of the sync core the handlers need.
type CalendarService interface {
	BeginAuthorization(ctx context.Context, userID int64) (string, error)
	CompleteAuthorization(ctx context.Context, userID int64, code string) error
	ConnectionStatus(ctx context.Context, userID int64) (bool, []store.Calendar, error)
	Disconnect(ctx context.Context, userID int64) error
	SyncCalendar(ctx context.Context, userID int64, gcalID string) (*gcal.SyncResult, error)
	RegisterWatch(ctx context.Context, userID int64, gcalID string) (*store.WatchRegistration, error)
	StopWatch(ctx context.Context, userID int64, gcalID string) error
}

// Enqueuer hands sync jobs to the background worker pool.
type Enqueuer interface {
	Enqueue(job syncqueue.Job) bool
}

type Handler struct {
	svc   CalendarService
	queue Enqueuer
	store *store.Store
}

func NewHandler(svc CalendarService, queue Enqueuer, st *store.Store) *Handler {
	return &Handler{svc: svc, queue: queue, store: st}
}

type calendarJSON struct {
	ID        string     `json:"id"`
	Summary   string     `json:"summary"`
	TimeZone  string     `json:"time_zone,omitempty"`
	Selected  bool       `json:"selected"`
	HasCursor bool       `json:"has_cursor"`
	WatchedAt *time.Time `json:"watch_expires_at,omitempty"`
}

func toCalendarJSON(cals []store.Calendar) []calendarJSON {
	out := make([]calendarJSON, 0, len(cals))
	for _, c := range cals {
		out = append(out, calendarJSON{
			ID:        c.GCalID,
			Summary:   c.Summary,
			TimeZone:  c.TimeZone,
			Selected:  c.Selected,
			HasCursor: c.SyncToken != nil && *c.SyncToken != "",
			WatchedAt: c.WatchExpiresAt,
		})
	}
	return out
}

// Connect hands the frontend the Google consent URL to redirect the user to.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	url, err := h.svc.BeginAuthorization(r.Context(), userID)
	if err != nil {
		httperrors.InternalError(w, r, err, "begin google authorization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorization_url": url})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Callback completes the OAuth flow with the code the frontend received on
// the Google redirect. When the frontend forwards the state parameter it must
// match the session user, so one user cannot attach a credential to another's
// account.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req callbackRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}
	if req.State != "" && req.State != strconv.FormatInt(userID, 10) {
		httperrors.BadRequestError(w, r, errors.New("state mismatch"), "invalid authorization state")
		return
	}

	err := h.svc.CompleteAuthorization(r.Context(), userID, req.Code)
	switch {
	case errors.Is(err, gcal.ErrMissingCode):
		httperrors.BadRequestError(w, r, err, "missing authorization code")
		return
	case err != nil:
		var te *gcal.TokenExchangeError
		if errors.As(err, &te) {
			httperrors.BadRequestError(w, r, err, "authorization failed: "+te.Description)
			return
		}
		httperrors.InternalError(w, r, err, "complete google authorization")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

// Status reports connection state and the calendar catalog.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	connected, cals, err := h.svc.ConnectionStatus(r.Context(), userID)
	if err != nil {
		httperrors.InternalError(w, r, err, "query connection status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": connected,
		"calendars": toCalendarJSON(cals),
	})
}

// Disconnect revokes the credential and removes all synced state.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.svc.Disconnect(r.Context(), userID); err != nil {
		httperrors.InternalError(w, r, err, "disconnect google account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

type eventJSON struct {
	EventID  string     `json:"event_id"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Events lists the locally mirrored events of one calendar. The portal reads
// the mirror; it never queries Google directly.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	gcalID := r.URL.Query().Get("gcal_id")
	if gcalID == "" {
		gcalID = gcal.DefaultCalendarID
	}

	now := time.Now()
	from, err := timeParam(r, "from", now.AddDate(0, 0, -7))
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid from timestamp")
		return
	}
	to, err := timeParam(r, "to", now.AddDate(0, 0, 30))
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid to timestamp")
		return
	}

	cal, err := h.store.Calendars.GetByGCalID(r.Context(), userID, gcalID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown calendar"})
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "load calendar")
		return
	}

	links, err := h.store.EventLinks.ListByCalendar(r.Context(), cal.ID, from, to)
	if err != nil {
		httperrors.InternalError(w, r, err, "list events")
		return
	}

	events := make([]eventJSON, 0, len(links))
	for _, l := range links {
		events = append(events, eventJSON{
			EventID:  l.GCalEventID,
			StartsAt: l.StartsAt,
			EndsAt:   l.EndsAt,
			Status:   l.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func timeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, raw)
}

type syncRequest struct {
	GCalID string `json:"gcal_id"`
}

// Sync runs a synchronization pass for one calendar and reports the result.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	res, err := h.svc.SyncCalendar(r.Context(), userID, req.GCalID)
	if err != nil {
		var pe *gcal.ProviderError
		switch {
		case isNotConnected(err):
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "google account is not connected"})
		case errors.As(err, &pe):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":           pe.Message,
				"provider_status": pe.StatusCode,
			})
		default:
			httperrors.InternalError(w, r, err, "sync calendar")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"synced":       true,
		"events_count": res.EventsFetched,
		"sync_token":   res.SyncToken,
	})
}

type watchRequest struct {
	GCalID string `json:"gcal_id"`
}

// Watch registers a push notification channel for one calendar. The
// verification token never leaves the server.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req watchRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	watch, err := h.svc.RegisterWatch(r.Context(), userID, req.GCalID)
	if err != nil {
		httperrors.InternalError(w, r, err, "register watch channel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": watch.ResourceID,
		"channel_id":  watch.ChannelID,
		"expires_at":  watch.ExpiresAt,
	})
}

// Unwatch stops the push channel for one calendar.
func (h *Handler) Unwatch(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req watchRequest
	if err := decodeBody(r, &req); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	if err := h.svc.StopWatch(r.Context(), userID, req.GCalID); err != nil {
		httperrors.InternalError(w, r, err, "stop watch channel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"watching": false})
}

// Webhook receives Google push notifications. It is unauthenticated; the
// stored per-channel verification token decides whether a notification is
// genuine. The response is always 200 for structurally valid deliveries so a
// forger learns nothing from status codes, and Google stops retrying.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	resourceID := r.Header.Get("X-Goog-Resource-Id")
	channelID := r.Header.Get("X-Goog-Channel-Id")
	state := r.Header.Get("X-Goog-Resource-State")

	if resourceID == "" || channelID == "" {
		httperrors.BadRequestError(w, r, errors.New("missing channel headers"), "missing notification headers")
		return
	}

	// The initial handshake after Events.Watch carries state "sync" and no
	// changes; ack it without queueing work.
	if state == "sync" {
		w.WriteHeader(http.StatusOK)
		return
	}

	cal, err := h.store.Calendars.FindByWatch(r.Context(), resourceID, channelID)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.LogInfo(r, "notification for unknown channel "+channelID+", dropping")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "look up watch channel")
		return
	}

	token := r.Header.Get("X-Goog-Channel-Token")
	if cal.WatchToken == nil || token == "" || token != *cal.WatchToken {
		httperrors.LogError(r, "channel token mismatch for channel "+channelID, errors.New("dropping notification"))
		w.WriteHeader(http.StatusOK)
		return
	}

	h.queue.Enqueue(syncqueue.Job{UserID: cal.UserID, GCalID: cal.GCalID, Source: "webhook"})
	w.WriteHeader(http.StatusOK)
}

func isNotConnected(err error) bool {
	var rf *gcal.RefreshFailedError
	return errors.Is(err, gcal.ErrNoCredential) || errors.As(err, &rf)
}

// decodeBody parses an optional JSON request body. An absent body leaves the
// destination zero-valued.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
