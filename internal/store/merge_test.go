package store

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestMergeCalendarPreservesLocalState(t *testing.T) {
	watchExpiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := &Calendar{
		ID:              7,
		UserID:          100,
		GCalID:          "primary",
		Summary:         "Old Name",
		TimeZone:        "UTC",
		Selected:        false,
		SyncToken:       strPtr("tok-7"),
		WatchResourceID: strPtr("res-1"),
		WatchChannelID:  strPtr("chan-1"),
		WatchToken:      strPtr("secret"),
		WatchExpiresAt:  &watchExpiry,
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	incoming := Calendar{
		UserID:   100,
		GCalID:   "primary",
		Summary:  "Renamed Calendar",
		TimeZone: "America/Chicago",
		Selected: true,
	}

	merged := MergeCalendar(existing, incoming)

	if merged.ID != 7 {
		t.Errorf("expected existing ID preserved, got %d", merged.ID)
	}
	if merged.Summary != "Renamed Calendar" {
		t.Errorf("expected incoming summary, got %q", merged.Summary)
	}
	if merged.TimeZone != "America/Chicago" {
		t.Errorf("expected incoming time zone, got %q", merged.TimeZone)
	}
	if merged.Selected {
		t.Error("expected local selection flag preserved (false)")
	}
	if merged.SyncToken == nil || *merged.SyncToken != "tok-7" {
		t.Errorf("expected sync token preserved, got %v", merged.SyncToken)
	}
	if merged.WatchResourceID == nil || *merged.WatchResourceID != "res-1" {
		t.Errorf("expected watch resource preserved, got %v", merged.WatchResourceID)
	}
	if merged.WatchChannelID == nil || *merged.WatchChannelID != "chan-1" {
		t.Errorf("expected watch channel preserved, got %v", merged.WatchChannelID)
	}
	if merged.WatchToken == nil || *merged.WatchToken != "secret" {
		t.Errorf("expected watch token preserved, got %v", merged.WatchToken)
	}
	if merged.WatchExpiresAt == nil || !merged.WatchExpiresAt.Equal(watchExpiry) {
		t.Errorf("expected watch expiry preserved, got %v", merged.WatchExpiresAt)
	}
	if !merged.CreatedAt.Equal(existing.CreatedAt) {
		t.Errorf("expected created_at preserved, got %v", merged.CreatedAt)
	}
}

func TestMergeCalendarNewRecord(t *testing.T) {
	incoming := Calendar{
		UserID:   100,
		GCalID:   "team@group.calendar.google.com",
		Summary:  "Team",
		TimeZone: "UTC",
		Selected: true,
	}

	merged := MergeCalendar(nil, incoming)

	if merged != incoming {
		t.Errorf("expected incoming record used as-is, got %+v", merged)
	}
	if merged.SyncToken != nil {
		t.Errorf("new calendar must start without a sync token, got %v", merged.SyncToken)
	}
}
