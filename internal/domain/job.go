package domain

import "time"

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one durable unit of background work (a notification, a stats
// recompute). Jobs retry with backoff until MaxAttempts, then stay failed.
type Job struct {
	ID          string
	Type        string
	Payload     []byte
	Status      JobStatus
	Priority    int
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
