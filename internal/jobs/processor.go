package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScepterCode/project-nest-registrar/internal/clock"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

const (
	TypeNotifyAdmitted   = "notify.admitted"
	TypeNotifyWaitlisted = "notify.waitlisted"
	TypeNotifyPromoted   = "notify.promoted"
	TypeNotifyReleased   = "notify.released"
	TypeRecomputeStats   = "waitlist.recompute_stats"
)

type NotificationPayload struct {
	SectionID   string `json:"section_id"`
	RequesterID string `json:"requester_id"`
	Position    int    `json:"position,omitempty"`
}

type RecomputePayload struct {
	SectionID string `json:"section_id"`
}

// Store is the durable queue. DequeueNext claims at most one queued job
// (moving it to running) and returns nil when the queue is drained, so
// multiple workers can poll it concurrently without handing the same job
// out twice.
type Store interface {
	Enqueue(ctx context.Context, job domain.Job) error
	DequeueNext(ctx context.Context, now time.Time) (*domain.Job, error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, lastError string, retryAt time.Time, permanent bool) error
}

// FailureRecorder receives an audit record when a job exhausts its
// attempts. Same contract as the admission audit appender.
type FailureRecorder interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

type Handler func(ctx context.Context, job domain.Job) error

// Processor runs durable side-effect jobs on a pool of workers, decoupled
// from the admission critical path. Failed jobs retry with exponential
// backoff until MaxAttempts, then stay failed and are surfaced to the
// audit trail as a delivery failure; holdings and waitlist entries are
// never rolled back for a failed side effect.
type Processor struct {
	store    Store
	failures FailureRecorder
	clock    clock.Clock
	logger   *log.Logger

	handlers map[string]Handler

	workers     int
	pollEvery   time.Duration
	baseBackoff time.Duration
	maxAttempts int

	wg sync.WaitGroup
}

type Option func(*Processor)

func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.pollEvery = d
		}
	}
}

func WithBaseBackoff(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.baseBackoff = d
		}
	}
}

func WithDefaultMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func NewProcessor(store Store, failures FailureRecorder, clk clock.Clock, logger *log.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	p := &Processor{
		store:       store,
		failures:    failures,
		clock:       clk,
		logger:      logger,
		handlers:    make(map[string]Handler),
		workers:     2,
		pollEvery:   time.Second,
		baseBackoff: 5 * time.Second,
		maxAttempts: 5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Handle(jobType string, h Handler) {
	p.handlers[jobType] = h
}

type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
}

// Enqueue adds a job with default options. It satisfies the coordinator's
// queue interface; producers never wait for the job to run.
func (p *Processor) Enqueue(ctx context.Context, jobType string, payload any) error {
	_, err := p.EnqueueWithOptions(ctx, jobType, payload, EnqueueOptions{})
	return err
}

func (p *Processor) EnqueueWithOptions(ctx context.Context, jobType string, payload any, opts EnqueueOptions) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.maxAttempts
	}
	now := p.clock.Now()
	job := domain.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     data,
		Status:      domain.JobStatusQueued,
		Priority:    opts.Priority,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return job.ID, nil
}

// Start launches the worker pool. Workers poll the store and drain it on
// each tick; Stop-by-context then Wait for a clean shutdown.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx)
		}()
	}
}

func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) runWorker(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Processor) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.store.DequeueNext(ctx, p.clock.Now())
		if err != nil {
			p.logger.Printf("WARN: dequeue failed: %v", err)
			return
		}
		if job == nil {
			return
		}
		p.runJob(ctx, *job)
	}
}

func (p *Processor) runJob(ctx context.Context, job domain.Job) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		p.fail(ctx, job, fmt.Errorf("no handler for job type %s", job.Type), false)
		return
	}

	if err := handler(ctx, job); err != nil {
		p.fail(ctx, job, err, true)
		return
	}
	if err := p.store.MarkCompleted(ctx, job.ID); err != nil {
		p.logger.Printf("WARN: mark job %s completed: %v", job.ID, err)
	}
}

func (p *Processor) fail(ctx context.Context, job domain.Job, jobErr error, retriable bool) {
	attempts := job.Attempts + 1
	permanent := !retriable || attempts >= job.MaxAttempts
	retryAt := p.clock.Now().Add(p.backoff(attempts))

	if err := p.store.MarkFailed(ctx, job.ID, jobErr.Error(), retryAt, permanent); err != nil {
		p.logger.Printf("WARN: mark job %s failed: %v", job.ID, err)
		return
	}
	if !permanent {
		return
	}

	p.logger.Printf("WARN: job %s (%s) permanently failed after %d attempts: %v",
		job.ID, job.Type, attempts, jobErr)
	if p.failures == nil {
		return
	}
	var payload NotificationPayload
	_ = json.Unmarshal(job.Payload, &payload)
	record := domain.AuditRecord{
		SectionID:   payload.SectionID,
		RequesterID: payload.RequesterID,
		Action:      domain.AuditDeliveryFailed,
		Actor:       domain.SystemActor(),
		Reason:      fmt.Sprintf("job %s failed: %v", job.Type, jobErr),
		At:          p.clock.Now(),
	}
	if err := p.failures.Append(ctx, record); err != nil {
		p.logger.Printf("WARN: record delivery failure for job %s: %v", job.ID, err)
	}
}

// backoff doubles per attempt from the base, capped at ten minutes.
func (p *Processor) backoff(attempts int) time.Duration {
	d := p.baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return d
}
