package service

import "time"

// Clock returns the current time. Every timestamp the ledger stores or
// compares against comes from one, never from the database.
type Clock func() time.Time

// SystemClock is the wall clock in UTC, truncated to the precision both
// ledger dialects store.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
