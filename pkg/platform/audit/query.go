package audit

import (
	"slices"
	"strings"
	"time"
)

// DefaultQueryLimit bounds a query that does not set Limit.
const DefaultQueryLimit = 100

// Filter selects events for operator inspection. Zero fields are ignored;
// set fields are AND-combined.
type Filter struct {
	// Action matches events whose action contains it (case-sensitive).
	Action string
	// UserID matches the actor exactly.
	UserID string
	// StartDate and EndDate are inclusive bounds on the timestamp.
	StartDate *time.Time
	EndDate   *time.Time
	// Limit caps the result size; values <= 0 mean DefaultQueryLimit.
	Limit int
}

// EffectiveLimit returns the limit the query will apply.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e Event) bool {
	if f.Action != "" && !strings.Contains(e.Action, f.Action) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// Query filters a snapshot (oldest first) and orders the result by timestamp
// descending, most recently appended first on ties. The input is not modified.
func Query(snapshot []Event, f Filter) []Event {
	matched := make([]Event, 0, min(len(snapshot), f.EffectiveLimit()))
	for i := len(snapshot) - 1; i >= 0; i-- {
		if f.Matches(snapshot[i]) {
			matched = append(matched, snapshot[i])
		}
	}

	// matched is newest-inserted first, so a stable sort keeps insertion
	// order as the tie-breaker.
	slices.SortStableFunc(matched, func(a, b Event) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	if limit := f.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
