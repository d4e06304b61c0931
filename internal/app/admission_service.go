package app

import (
	"context"
	"log"
	"time"

	"github.com/ScepterCode/project-nest-registrar/internal/clock"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
	"github.com/ScepterCode/project-nest-registrar/internal/eligibility"
	"github.com/ScepterCode/project-nest-registrar/internal/jobs"
)

type AdmissionRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSection(ctx context.Context, sectionID string) (domain.Section, error)
	GetSectionForUpdate(ctx context.Context, sectionID string) (domain.Section, error)
	FindActiveHolding(ctx context.Context, sectionID, requesterID string) (*domain.Holding, error)
	GetHoldingForUpdate(ctx context.Context, holdingID string) (domain.Holding, error)
	CountActiveHoldings(ctx context.Context, sectionID string) (int, error)
	CreateHolding(ctx context.Context, holding domain.Holding) error
	UpdateHoldingStatus(ctx context.Context, holdingID string, status domain.HoldingStatus, releasedAt time.Time) error
}

// ProfileDirectory is the read-only collaborator that supplies requester
// attributes for eligibility checks.
type ProfileDirectory interface {
	Profile(ctx context.Context, requesterID string) (domain.RequesterProfile, error)
}

// AuditAppender records state transitions. Appends are fire-and-forget
// from the coordinator's point of view: a failed append is logged only and
// never reverses a committed decision.
type AuditAppender interface {
	Append(ctx context.Context, record domain.AuditRecord) error
}

// JobQueue accepts side-effect work (notifications, stats recomputes)
// outside the admission critical path. Producers only enqueue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

type AdmissionOutcome string

const (
	OutcomeAdmitted       AdmissionOutcome = "ADMITTED"
	OutcomeWaitlisted     AdmissionOutcome = "WAITLISTED"
	OutcomeDenied         AdmissionOutcome = "DENIED"
	OutcomeAlreadyPresent AdmissionOutcome = "ALREADY_PRESENT"
)

type AdmissionResult struct {
	Outcome      AdmissionOutcome
	HoldingID    string
	Position     int
	DenialReason string
	Reasons      []eligibility.Reason
}

type ReleaseOutcome string

const (
	OutcomeReleased  ReleaseOutcome = "RELEASED"
	OutcomeNotActive ReleaseOutcome = "NOT_ACTIVE"
)

type ReleaseResult struct {
	Outcome             ReleaseOutcome
	PromotedRequesterID string
}

const denialAtCapacity = "at capacity"

// AdmissionService is the capacity coordinator for sections. It is the
// only writer of holdings and of the active-holder count, and it
// serializes every admit/release decision for a section inside one
// transaction holding a FOR UPDATE lock on the section row. Decisions for
// different sections proceed in parallel; there is no global lock.
type AdmissionService struct {
	repo      AdmissionRepository
	waitlist  *WaitlistService
	directory ProfileDirectory
	engine    *eligibility.Engine
	audit     AuditAppender
	queue     JobQueue
	clock     clock.Clock
	logger    *log.Logger
}

func NewAdmissionService(
	repo AdmissionRepository,
	waitlist *WaitlistService,
	directory ProfileDirectory,
	engine *eligibility.Engine,
	audit AuditAppender,
	queue JobQueue,
	clk clock.Clock,
	logger *log.Logger,
) *AdmissionService {
	if logger == nil {
		logger = log.Default()
	}
	return &AdmissionService{
		repo:      repo,
		waitlist:  waitlist,
		directory: directory,
		engine:    engine,
		audit:     audit,
		queue:     queue,
		clock:     clk,
		logger:    logger,
	}
}

type RequestAdmissionInput struct {
	RequesterID   string
	SectionID     string
	Justification string
}

// RequestAdmission decides admit / waitlist / deny for one requester. The
// capacity comparison uses the count read under the section row lock, so
// concurrent requests for the same section observe each other's writes in
// a total order and the active count never passes capacity.
func (s *AdmissionService) RequestAdmission(ctx context.Context, in RequestAdmissionInput) (AdmissionResult, error) {
	if in.RequesterID == "" {
		return AdmissionResult{}, domain.ErrRequesterRequired
	}
	if in.SectionID == "" {
		return AdmissionResult{}, domain.ErrInvalidID
	}

	profile, err := s.directory.Profile(ctx, in.RequesterID)
	if err != nil {
		return AdmissionResult{}, err
	}

	now := s.clock.Now()
	var result AdmissionResult

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		section, err := s.repo.GetSectionForUpdate(txCtx, in.SectionID)
		if err != nil {
			return err
		}

		if existing, err := s.repo.FindActiveHolding(txCtx, section.ID, in.RequesterID); err != nil {
			return err
		} else if existing != nil {
			result = AdmissionResult{Outcome: OutcomeAlreadyPresent, HoldingID: existing.ID}
			return nil
		}
		if entry, err := s.waitlist.repo.FindWaitlistEntry(txCtx, section.ID, in.RequesterID); err != nil {
			return err
		} else if entry != nil {
			result = AdmissionResult{Outcome: OutcomeAlreadyPresent, Position: entry.Position}
			return nil
		}

		evaluation := s.engine.Evaluate(profile, section)
		if !evaluation.Eligible {
			result = AdmissionResult{
				Outcome:      OutcomeDenied,
				DenialReason: "not eligible",
				Reasons:      evaluation.Reasons,
			}
			return nil
		}

		active, err := s.repo.CountActiveHoldings(txCtx, section.ID)
		if err != nil {
			return err
		}
		if active < section.Capacity {
			holding := domain.Holding{
				ID:          newID(),
				SectionID:   section.ID,
				RequesterID: in.RequesterID,
				Status:      domain.HoldingStatusActive,
				GrantedAt:   now,
			}
			if err := s.repo.CreateHolding(txCtx, holding); err != nil {
				return err
			}
			result = AdmissionResult{Outcome: OutcomeAdmitted, HoldingID: holding.ID, Reasons: evaluation.Reasons}
			return nil
		}

		size, err := s.waitlist.Size(txCtx, section.ID)
		if err != nil {
			return err
		}
		if size < section.WaitlistCapacity {
			position, err := s.waitlist.Append(txCtx, domain.WaitlistEntry{
				ID:          newID(),
				SectionID:   section.ID,
				RequesterID: in.RequesterID,
				Priority:    domain.DefaultPriority,
			})
			if err != nil {
				return err
			}
			result = AdmissionResult{Outcome: OutcomeWaitlisted, Position: position, Reasons: evaluation.Reasons}
			return nil
		}

		result = AdmissionResult{Outcome: OutcomeDenied, DenialReason: denialAtCapacity}
		return nil
	})
	if err != nil {
		return AdmissionResult{}, err
	}

	actor := domain.Actor{Kind: domain.ActorRequester, ID: in.RequesterID}
	switch result.Outcome {
	case OutcomeAdmitted:
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   in.SectionID,
			RequesterID: in.RequesterID,
			Action:      domain.AuditAdmitted,
			NewStatus:   string(domain.HoldingStatusActive),
			Actor:       actor,
			Reason:      in.Justification,
			At:          now,
		})
		s.enqueue(ctx, jobs.TypeNotifyAdmitted, jobs.NotificationPayload{
			SectionID:   in.SectionID,
			RequesterID: in.RequesterID,
		})
	case OutcomeWaitlisted:
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   in.SectionID,
			RequesterID: in.RequesterID,
			Action:      domain.AuditWaitlisted,
			NewStatus:   "waitlisted",
			Actor:       actor,
			Reason:      in.Justification,
			At:          now,
		})
		s.enqueue(ctx, jobs.TypeNotifyWaitlisted, jobs.NotificationPayload{
			SectionID:   in.SectionID,
			RequesterID: in.RequesterID,
			Position:    result.Position,
		})
		s.enqueue(ctx, jobs.TypeRecomputeStats, jobs.RecomputePayload{SectionID: in.SectionID})
	case OutcomeDenied:
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   in.SectionID,
			RequesterID: in.RequesterID,
			Action:      domain.AuditDenied,
			NewStatus:   "denied",
			Actor:       actor,
			Reason:      result.DenialReason,
			At:          now,
		})
	}
	return result, nil
}

type ReleaseInput struct {
	HoldingID string
	Actor     domain.Actor
	Reason    string
	// Completed marks the seat as finished rather than dropped.
	Completed bool
}

// Release frees a seat and, inside the same critical section, runs exactly
// one promotion attempt so that concurrent releases cannot double-fill a
// single freed slot. Releasing an already-inactive holding is a no-op
// reported as NOT_ACTIVE.
func (s *AdmissionService) Release(ctx context.Context, in ReleaseInput) (ReleaseResult, error) {
	if in.HoldingID == "" {
		return ReleaseResult{}, domain.ErrInvalidID
	}
	if in.Actor.Kind == "" {
		return ReleaseResult{}, domain.ErrActorRequired
	}

	now := s.clock.Now()
	type promotionSkip struct {
		requesterID string
		reason      string
	}
	var (
		result   ReleaseResult
		section  domain.Section
		holding  domain.Holding
		promoted *domain.Holding
		expired  []domain.WaitlistEntry
		skipped  []promotionSkip
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		holding, err = s.repo.GetHoldingForUpdate(txCtx, in.HoldingID)
		if err != nil {
			return err
		}
		section, err = s.repo.GetSectionForUpdate(txCtx, holding.SectionID)
		if err != nil {
			return err
		}

		if holding.Status != domain.HoldingStatusActive {
			result = ReleaseResult{Outcome: OutcomeNotActive}
			return nil
		}

		status := domain.HoldingStatusDropped
		if in.Completed {
			status = domain.HoldingStatusCompleted
		}
		if err := s.repo.UpdateHoldingStatus(txCtx, holding.ID, status, now); err != nil {
			return err
		}
		result = ReleaseResult{Outcome: OutcomeReleased}

		active, err := s.repo.CountActiveHoldings(txCtx, section.ID)
		if err != nil {
			return err
		}
		if active >= section.Capacity {
			// Over-capacity override still in effect; automatic admission
			// stays blocked until the count drops under capacity.
			return nil
		}

		entry, expiredHere, err := s.waitlist.NextPromotable(txCtx, section.ID, func(requesterID string) (bool, error) {
			profile, err := s.directory.Profile(txCtx, requesterID)
			if err != nil {
				skipped = append(skipped, promotionSkip{requesterID: requesterID, reason: "profile lookup failed: " + err.Error()})
				return false, err
			}
			if !s.engine.Evaluate(profile, section).Eligible {
				skipped = append(skipped, promotionSkip{requesterID: requesterID, reason: "ineligible at promotion re-check"})
				return false, nil
			}
			return true, nil
		})
		expired = expiredHere
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		next := domain.Holding{
			ID:          newID(),
			SectionID:   section.ID,
			RequesterID: entry.RequesterID,
			Status:      domain.HoldingStatusActive,
			GrantedAt:   now,
		}
		if err := s.repo.CreateHolding(txCtx, next); err != nil {
			return err
		}
		if _, err := s.waitlist.Remove(txCtx, section.ID, entry.RequesterID); err != nil {
			return err
		}
		promoted = &next
		result.PromotedRequesterID = entry.RequesterID
		return nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	if result.Outcome == OutcomeNotActive {
		return result, nil
	}

	released := string(domain.HoldingStatusDropped)
	if in.Completed {
		released = string(domain.HoldingStatusCompleted)
	}
	s.appendAudit(ctx, domain.AuditRecord{
		SectionID:   section.ID,
		RequesterID: holding.RequesterID,
		Action:      domain.AuditReleased,
		OldStatus:   string(domain.HoldingStatusActive),
		NewStatus:   released,
		Actor:       in.Actor,
		Reason:      in.Reason,
		At:          now,
	})
	s.enqueue(ctx, jobs.TypeNotifyReleased, jobs.NotificationPayload{
		SectionID:   section.ID,
		RequesterID: holding.RequesterID,
	})

	for _, entry := range expired {
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   section.ID,
			RequesterID: entry.RequesterID,
			Action:      domain.AuditWaitlistExpired,
			OldStatus:   "waitlisted",
			NewStatus:   "expired",
			Actor:       domain.SystemActor(),
			Reason:      "waitlist entry expired before promotion",
			At:          now,
		})
	}

	for _, skip := range skipped {
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   section.ID,
			RequesterID: skip.requesterID,
			Action:      domain.AuditPromotionSkipped,
			OldStatus:   "waitlisted",
			NewStatus:   "waitlisted",
			Actor:       domain.SystemActor(),
			Reason:      skip.reason,
			At:          now,
		})
	}

	if promoted != nil {
		s.appendAudit(ctx, domain.AuditRecord{
			SectionID:   section.ID,
			RequesterID: promoted.RequesterID,
			Action:      domain.AuditPromoted,
			OldStatus:   "waitlisted",
			NewStatus:   string(domain.HoldingStatusActive),
			Actor:       domain.SystemActor(),
			Reason:      "promoted from waitlist",
			At:          now,
		})
		s.enqueue(ctx, jobs.TypeNotifyPromoted, jobs.NotificationPayload{
			SectionID:   section.ID,
			RequesterID: promoted.RequesterID,
		})
	}
	if promoted != nil || len(expired) > 0 {
		s.enqueue(ctx, jobs.TypeRecomputeStats, jobs.RecomputePayload{SectionID: section.ID})
	}
	return result, nil
}

type ForceAdmitInput struct {
	SectionID   string
	RequesterID string
	Actor       domain.Actor
	Reason      string
}

// ForceAdmit is the administrative override: it skips the capacity
// comparison but runs through the same critical section, so the count
// stays accurate even above capacity. Hard eligibility blocks (registrar
// holds, missing invitations) still apply; overridable reasons do not.
func (s *AdmissionService) ForceAdmit(ctx context.Context, in ForceAdmitInput) (AdmissionResult, error) {
	if in.SectionID == "" || in.RequesterID == "" {
		return AdmissionResult{}, domain.ErrInvalidID
	}
	if in.Actor.Kind != domain.ActorAdmin {
		return AdmissionResult{}, domain.ErrActorRequired
	}

	profile, err := s.directory.Profile(ctx, in.RequesterID)
	if err != nil {
		return AdmissionResult{}, err
	}

	now := s.clock.Now()
	var (
		result        AdmissionResult
		overCapacity  bool
		wasWaitlisted bool
	)

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		section, err := s.repo.GetSectionForUpdate(txCtx, in.SectionID)
		if err != nil {
			return err
		}

		if existing, err := s.repo.FindActiveHolding(txCtx, section.ID, in.RequesterID); err != nil {
			return err
		} else if existing != nil {
			result = AdmissionResult{Outcome: OutcomeAlreadyPresent, HoldingID: existing.ID}
			return nil
		}

		evaluation := s.engine.Evaluate(profile, section)
		if evaluation.HardBlocked() {
			result = AdmissionResult{
				Outcome:      OutcomeDenied,
				DenialReason: "not eligible",
				Reasons:      evaluation.Reasons,
			}
			return nil
		}

		active, err := s.repo.CountActiveHoldings(txCtx, section.ID)
		if err != nil {
			return err
		}
		overCapacity = active >= section.Capacity

		holding := domain.Holding{
			ID:           newID(),
			SectionID:    section.ID,
			RequesterID:  in.RequesterID,
			Status:       domain.HoldingStatusActive,
			GrantedAt:    now,
			OverCapacity: overCapacity,
		}
		if err := s.repo.CreateHolding(txCtx, holding); err != nil {
			return err
		}

		if _, err := s.waitlist.Remove(txCtx, section.ID, in.RequesterID); err != nil {
			if err != domain.ErrNotWaitlisted {
				return err
			}
		} else {
			wasWaitlisted = true
		}

		result = AdmissionResult{Outcome: OutcomeAdmitted, HoldingID: holding.ID, Reasons: evaluation.Reasons}
		return nil
	})
	if err != nil {
		return AdmissionResult{}, err
	}
	if result.Outcome != OutcomeAdmitted {
		return result, nil
	}

	oldStatus := ""
	if wasWaitlisted {
		oldStatus = "waitlisted"
	}
	reason := in.Reason
	if overCapacity {
		reason = reason + " (over capacity)"
	}
	s.appendAudit(ctx, domain.AuditRecord{
		SectionID:   in.SectionID,
		RequesterID: in.RequesterID,
		Action:      domain.AuditForceAdmitted,
		OldStatus:   oldStatus,
		NewStatus:   string(domain.HoldingStatusActive),
		Actor:       in.Actor,
		Reason:      reason,
		At:          now,
	})
	s.enqueue(ctx, jobs.TypeNotifyAdmitted, jobs.NotificationPayload{
		SectionID:   in.SectionID,
		RequesterID: in.RequesterID,
	})
	return result, nil
}

type WithdrawInput struct {
	SectionID   string
	RequesterID string
	Actor       domain.Actor
}

// Withdraw removes a pending waitlist entry through the same remove path
// as administrative removal.
func (s *AdmissionService) Withdraw(ctx context.Context, in WithdrawInput) error {
	if in.SectionID == "" || in.RequesterID == "" {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetSectionForUpdate(txCtx, in.SectionID); err != nil {
			return err
		}
		_, err := s.waitlist.Remove(txCtx, in.SectionID, in.RequesterID)
		return err
	})
	if err != nil {
		return err
	}

	actor := in.Actor
	if actor.Kind == "" {
		actor = domain.Actor{Kind: domain.ActorRequester, ID: in.RequesterID}
	}
	s.appendAudit(ctx, domain.AuditRecord{
		SectionID:   in.SectionID,
		RequesterID: in.RequesterID,
		Action:      domain.AuditWithdrawn,
		OldStatus:   "waitlisted",
		NewStatus:   "withdrawn",
		Actor:       actor,
		At:          now,
	})
	s.enqueue(ctx, jobs.TypeRecomputeStats, jobs.RecomputePayload{SectionID: in.SectionID})
	return nil
}

// Waitlist returns the ordered entries for a section.
func (s *AdmissionService) Waitlist(ctx context.Context, sectionID string) ([]domain.WaitlistEntry, error) {
	if sectionID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	return s.waitlist.Entries(ctx, sectionID)
}

func (s *AdmissionService) appendAudit(ctx context.Context, record domain.AuditRecord) {
	if err := s.audit.Append(ctx, record); err != nil {
		s.logger.Printf("WARN: audit append failed action=%s section=%s: %v",
			record.Action, record.SectionID, err)
	}
}

func (s *AdmissionService) enqueue(ctx context.Context, jobType string, payload any) {
	if err := s.queue.Enqueue(ctx, jobType, payload); err != nil {
		s.logger.Printf("WARN: enqueue %s failed: %v", jobType, err)
	}
}
