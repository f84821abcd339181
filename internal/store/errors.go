package store

import "errors"

// ErrNotFound means the token, calendar, or event link does not exist for the
// given user. Lookups scoped to the wrong user report it the same way, so a
// caller cannot distinguish another user's rows from absent ones.
var ErrNotFound = errors.New("record not found")
