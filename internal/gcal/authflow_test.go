package gcal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/campushub/calsync/internal/store"
)

func TestBeginAuthorizationURL(t *testing.T) {
	st, _, _, _ := newFakeStore()
	svc := New(Config{OAuth: oauthConfigFor("https://accounts.example.com")}, st)

	raw, err := svc.BeginAuthorization(context.Background(), 42)
	if err != nil {
		t.Fatalf("BeginAuthorization returned error: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	q := u.Query()
	if got := q.Get("access_type"); got != "offline" {
		t.Errorf("expected access_type=offline, got %q", got)
	}
	if got := q.Get("prompt"); got != "consent" {
		t.Errorf("expected prompt=consent, got %q", got)
	}
	if got := q.Get("state"); got != "42" {
		t.Errorf("expected state=42, got %q", got)
	}
	if got := q.Get("client_id"); got != "client-id" {
		t.Errorf("expected client id in URL, got %q", got)
	}
}

func TestBeginAuthorizationUnconfigured(t *testing.T) {
	st, _, _, _ := newFakeStore()
	svc := New(Config{}, st)

	if _, err := svc.BeginAuthorization(context.Background(), 1); err == nil {
		t.Fatal("expected error when client is unconfigured")
	}
}

func TestCompleteAuthorizationMissingCode(t *testing.T) {
	st, _, _, _ := newFakeStore()
	svc := New(Config{OAuth: oauthConfigFor("https://accounts.example.com")}, st)

	err := svc.CompleteAuthorization(context.Background(), 1, "")
	if !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
}

func TestCompleteAuthorizationStoresTokenPair(t *testing.T) {
	st, tokens, _, _ := newFakeStore()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse exchange form: %v", err)
		}
		if got := r.Form.Get("code"); got != "auth-code" {
			t.Errorf("expected code=auth-code, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`))
	}))
	defer ts.Close()

	svc := New(Config{OAuth: oauthConfigFor(ts.URL)}, st)
	if err := svc.CompleteAuthorization(context.Background(), 7, "auth-code"); err != nil {
		t.Fatalf("CompleteAuthorization returned error: %v", err)
	}

	rec, ok := tokens.recs[7]
	if !ok {
		t.Fatal("expected token record upserted")
	}
	if rec.AccessToken != "access-1" || rec.RefreshToken != "refresh-1" {
		t.Errorf("unexpected stored tokens: %+v", rec)
	}
	if !rec.ExpiresAt.After(time.Now()) {
		t.Errorf("expected future expiry, got %v", rec.ExpiresAt)
	}
	if !strings.Contains(rec.Scope, "calendar") {
		t.Errorf("expected calendar scope recorded, got %q", rec.Scope)
	}
}

func TestCompleteAuthorizationExchangeRejected(t *testing.T) {
	st, _, _, _ := newFakeStore()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Malformed auth code."}`))
	}))
	defer ts.Close()

	svc := New(Config{OAuth: oauthConfigFor(ts.URL)}, st)
	err := svc.CompleteAuthorization(context.Background(), 7, "bad-code")

	var te *TokenExchangeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TokenExchangeError, got %v", err)
	}
	if te.Description != "Malformed auth code." {
		t.Errorf("expected provider description passed through, got %q", te.Description)
	}
}

func TestDisconnectDeletesChildRowsBeforeToken(t *testing.T) {
	st, tokens, cals, links := newFakeStore()
	var order []string
	tokens.log, cals.log, links.log = &order, &order, &order

	seedToken(tokens, 5, time.Now().Add(time.Hour))
	cursor := "tok-9"
	cals.cals[calKey(5, "primary")] = store.Calendar{ID: 1, UserID: 5, GCalID: "primary", SyncToken: &cursor}
	links.links[linkKey(1, "ev-1")] = store.EventLink{ID: 1, UserID: 5, CalendarID: 1, GCalEventID: "ev-1"}

	revoked := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		revoked = true
		if got := r.FormValue("token"); got != "access-old" {
			t.Errorf("expected current access token revoked, got %q", got)
		}
	}))
	defer ts.Close()

	svc := New(Config{OAuth: oauthConfigFor(ts.URL), RevokeURL: ts.URL + "/revoke"}, st)
	if err := svc.Disconnect(context.Background(), 5); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}

	if !revoked {
		t.Error("expected revoke endpoint called")
	}
	if len(tokens.recs) != 0 || len(cals.cals) != 0 || len(links.links) != 0 {
		t.Errorf("expected all user state removed: tokens=%d calendars=%d links=%d",
			len(tokens.recs), len(cals.cals), len(links.links))
	}

	want := []string{"event_links.delete", "calendars.delete", "tokens.delete"}
	if len(order) != len(want) {
		t.Fatalf("expected deletion order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected deletion order %v, got %v", want, order)
		}
	}
}

func TestDisconnectSurvivesRevokeFailure(t *testing.T) {
	st, tokens, cals, links := newFakeStore()
	seedToken(tokens, 5, time.Now().Add(time.Hour))
	cals.cals[calKey(5, "primary")] = store.Calendar{ID: 1, UserID: 5, GCalID: "primary"}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	svc := New(Config{OAuth: oauthConfigFor(ts.URL), RevokeURL: ts.URL + "/revoke"}, st)
	if err := svc.Disconnect(context.Background(), 5); err != nil {
		t.Fatalf("Disconnect must succeed locally despite revoke failure, got %v", err)
	}
	if len(tokens.recs) != 0 || len(cals.cals) != 0 || len(links.links) != 0 {
		t.Error("expected all user state removed despite revoke failure")
	}
}

func TestDisconnectWithoutCredential(t *testing.T) {
	st, _, _, _ := newFakeStore()
	svc := New(Config{OAuth: oauthConfigFor("https://accounts.example.com")}, st)

	if err := svc.Disconnect(context.Background(), 99); err != nil {
		t.Fatalf("Disconnect without credential must be a no-op, got %v", err)
	}
}
