package domain

import "errors"

var (
	ErrSectionNotFound      = errors.New("section not found")
	ErrHoldingNotFound      = errors.New("holding not found")
	ErrProfileNotFound      = errors.New("requester profile not found")
	ErrAlreadyEnrolled      = errors.New("requester already holds a seat")
	ErrAlreadyWaitlisted    = errors.New("requester already waitlisted")
	ErrNotWaitlisted        = errors.New("requester not on waitlist")
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidCapacity      = errors.New("invalid capacity")
	ErrInvalidAdmissionMode = errors.New("invalid admission mode")
	ErrSectionNameRequired  = errors.New("section name required")
	ErrCourseCodeRequired   = errors.New("course code required")
	ErrRequesterRequired    = errors.New("requester id required")
	ErrActorRequired        = errors.New("actor required")
	ErrDuplicateEntry       = errors.New("duplicate entry")

	// ErrStoreUnavailable wraps transient storage failures (lost
	// connections, serialization aborts, server shutdown). Callers may
	// retry the request as-is.
	ErrStoreUnavailable = errors.New("store unavailable")
)
