package domain

import "time"

type HoldingStatus string

const (
	HoldingStatusActive    HoldingStatus = "active"
	HoldingStatusDropped   HoldingStatus = "dropped"
	HoldingStatusCompleted HoldingStatus = "completed"
)

// Holding is one requester's occupation of one seat in a section. Created
// only by the admission service on a successful admission; leaves the
// active state only through an explicit release.
type Holding struct {
	ID           string
	SectionID    string
	RequesterID  string
	Status       HoldingStatus
	GrantedAt    time.Time
	DropDeadline *time.Time
	ReleasedAt   *time.Time
	// OverCapacity marks holdings granted by administrative override while
	// the section was already full.
	OverCapacity bool
}
