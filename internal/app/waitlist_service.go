package app

import (
	"context"
	"time"

	"github.com/ScepterCode/project-nest-registrar/internal/clock"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

type WaitlistRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindWaitlistEntry(ctx context.Context, sectionID, requesterID string) (*domain.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, sectionID string) ([]domain.WaitlistEntry, error)
	CountWaitlist(ctx context.Context, sectionID string) (int, error)
	InsertWaitlistEntry(ctx context.Context, entry domain.WaitlistEntry) error
	DeleteWaitlistEntry(ctx context.Context, sectionID, requesterID string) error
	ShiftPositionsUp(ctx context.Context, sectionID string, fromPosition int) error
	ShiftPositionsDown(ctx context.Context, sectionID string, afterPosition int) error
	SetEstimatedProbability(ctx context.Context, entryID string, probability float64) error
	CountReleasesSince(ctx context.Context, sectionID string, since time.Time) (int, error)
}

// WaitlistService owns entry ordering for each section's waitlist.
// Positions stay contiguous 1..n and sorted by priority (highest first,
// FIFO within equal priority), so position order is service order.
//
// Append, Remove and NextPromotable must run inside the caller's section
// critical section; they never open their own transaction.
type WaitlistService struct {
	repo  WaitlistRepository
	clock clock.Clock
	ttl   time.Duration
}

const statsWindow = 28 * 24 * time.Hour

func NewWaitlistService(repo WaitlistRepository, clk clock.Clock, ttl time.Duration) *WaitlistService {
	return &WaitlistService{
		repo:  repo,
		clock: clk,
		ttl:   ttl,
	}
}

// Append places a requester on the waitlist and returns the assigned
// position. Default-priority entries go to the tail; a higher priority
// inserts before the first lower-priority entry, renumbering the tail so
// contiguity holds.
func (s *WaitlistService) Append(ctx context.Context, entry domain.WaitlistEntry) (int, error) {
	entries, err := s.repo.ListWaitlist(ctx, entry.SectionID)
	if err != nil {
		return 0, err
	}

	position := len(entries) + 1
	if entry.Priority > domain.DefaultPriority {
		for _, e := range entries {
			if e.Priority < entry.Priority {
				position = e.Position
				break
			}
		}
	}

	if position <= len(entries) {
		if err := s.repo.ShiftPositionsUp(ctx, entry.SectionID, position); err != nil {
			return 0, err
		}
	}

	entry.Position = position
	entry.EnqueuedAt = s.clock.Now()
	if s.ttl > 0 {
		expires := entry.EnqueuedAt.Add(s.ttl)
		entry.ExpiresAt = &expires
	}
	if err := s.repo.InsertWaitlistEntry(ctx, entry); err != nil {
		return 0, err
	}
	return position, nil
}

// Remove takes a requester off the waitlist and closes the gap. Returns
// the position the entry held.
func (s *WaitlistService) Remove(ctx context.Context, sectionID, requesterID string) (int, error) {
	entry, err := s.repo.FindWaitlistEntry(ctx, sectionID, requesterID)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, domain.ErrNotWaitlisted
	}
	if err := s.repo.DeleteWaitlistEntry(ctx, sectionID, requesterID); err != nil {
		return 0, err
	}
	if err := s.repo.ShiftPositionsDown(ctx, sectionID, entry.Position); err != nil {
		return 0, err
	}
	return entry.Position, nil
}

func (s *WaitlistService) Size(ctx context.Context, sectionID string) (int, error) {
	return s.repo.CountWaitlist(ctx, sectionID)
}

func (s *WaitlistService) Entries(ctx context.Context, sectionID string) ([]domain.WaitlistEntry, error) {
	return s.repo.ListWaitlist(ctx, sectionID)
}

// NextPromotable scans from the front of the waitlist and returns the
// first entry that passes the eligibility re-check, without removing it.
// Entries whose TTL has passed are removed on the way and returned in
// expired. An entry whose check errors is skipped but kept, so a flaky
// directory read leaves the waitlist intact for the next attempt.
func (s *WaitlistService) NextPromotable(ctx context.Context, sectionID string, check func(requesterID string) (bool, error)) (*domain.WaitlistEntry, []domain.WaitlistEntry, error) {
	entries, err := s.repo.ListWaitlist(ctx, sectionID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	var expired []domain.WaitlistEntry
	removed := 0
	for _, entry := range entries {
		entry.Position -= removed
		if entry.Expired(now) {
			if err := s.repo.DeleteWaitlistEntry(ctx, sectionID, entry.RequesterID); err != nil {
				return nil, expired, err
			}
			if err := s.repo.ShiftPositionsDown(ctx, sectionID, entry.Position); err != nil {
				return nil, expired, err
			}
			expired = append(expired, entry)
			removed++
			continue
		}

		ok, err := check(entry.RequesterID)
		if err != nil || !ok {
			continue
		}
		return &entry, expired, nil
	}
	return nil, expired, nil
}

// RecomputeEstimatedProbabilities refreshes each entry's informational
// promotion estimate from the section's recent release rate. Ordering is
// never derived from these numbers.
func (s *WaitlistService) RecomputeEstimatedProbabilities(ctx context.Context, sectionID string) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		entries, err := s.repo.ListWaitlist(txCtx, sectionID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		since := s.clock.Now().Add(-statsWindow)
		releases, err := s.repo.CountReleasesSince(txCtx, sectionID, since)
		if err != nil {
			return err
		}

		for i, entry := range entries {
			probability := float64(releases) / float64(i+1)
			if probability > 1 {
				probability = 1
			}
			if err := s.repo.SetEstimatedProbability(txCtx, entry.ID, probability); err != nil {
				return err
			}
		}
		return nil
	})
}
