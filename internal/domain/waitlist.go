package domain

import "time"

// DefaultPriority is the priority assigned to ordinary appends. Entries
// with a higher priority are served before lower ones; ties go to the
// earlier position.
const DefaultPriority = 0

// WaitlistEntry is an ordered overflow placement for a full section.
// Positions within one section are contiguous 1..n after every mutation.
type WaitlistEntry struct {
	ID          string
	SectionID   string
	RequesterID string
	Position    int
	Priority    int
	// EstimatedProbability is informational only and never consulted for
	// ordering.
	EstimatedProbability float64
	EnqueuedAt           time.Time
	ExpiresAt            *time.Time
}

// Expired reports whether the entry's TTL has passed. Entries without a
// TTL never expire.
func (e WaitlistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
