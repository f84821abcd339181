package store

// MergeCalendar combines a freshly fetched provider calendar with the locally
// stored row. Provider-owned fields (summary, time zone) always take the
// incoming value; local-only state (selection flag, sync cursor, watch
// registration) survives the refresh. A nil existing record means the
// calendar is new and the incoming record is used as-is.
func MergeCalendar(existing *Calendar, incoming Calendar) Calendar {
	if existing == nil {
		return incoming
	}

	merged := incoming
	merged.ID = existing.ID
	merged.Selected = existing.Selected
	merged.SyncToken = existing.SyncToken
	merged.WatchResourceID = existing.WatchResourceID
	merged.WatchChannelID = existing.WatchChannelID
	merged.WatchToken = existing.WatchToken
	merged.WatchExpiresAt = existing.WatchExpiresAt
	merged.CreatedAt = existing.CreatedAt
	return merged
}
