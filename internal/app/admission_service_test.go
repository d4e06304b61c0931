package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ScepterCode/project-nest-registrar/internal/clock"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
	"github.com/ScepterCode/project-nest-registrar/internal/eligibility"
	"github.com/ScepterCode/project-nest-registrar/internal/jobs"
)

func TestAdmissionService_RequestAdmission(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	t.Run("admits when a seat is free", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 2, WaitlistCapacity: 2, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-1", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeAdmitted {
			t.Fatalf("expected ADMITTED, got %s", result.Outcome)
		}
		if result.HoldingID == "" {
			t.Fatalf("expected holding ID to be set")
		}
		if got := f.store.activeCount("sec-1"); got != 1 {
			t.Fatalf("expected 1 active holding, got %d", got)
		}
		f.audit.expectActions(t, domain.AuditAdmitted)
		f.queue.expectTypes(t, jobs.TypeNotifyAdmitted)
	})

	t.Run("waitlists when section is full", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 2, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"}, domain.RequesterProfile{ID: "req-2"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-2", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeWaitlisted {
			t.Fatalf("expected WAITLISTED, got %s", result.Outcome)
		}
		if result.Position != 1 {
			t.Fatalf("expected position 1, got %d", result.Position)
		}
		f.audit.expectActions(t, domain.AuditWaitlisted)
		f.queue.expectTypes(t, jobs.TypeNotifyWaitlisted, jobs.TypeRecomputeStats)
	})

	t.Run("denies when section and waitlist are full", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 1, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-3", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeDenied {
			t.Fatalf("expected DENIED, got %s", result.Outcome)
		}
		if result.DenialReason != "at capacity" {
			t.Fatalf("expected denial reason %q, got %q", "at capacity", result.DenialReason)
		}
		f.audit.expectActions(t, domain.AuditDenied)
	})

	t.Run("reports existing active holding", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, WaitlistCapacity: 2, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-1", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeAlreadyPresent {
			t.Fatalf("expected ALREADY_PRESENT, got %s", result.Outcome)
		}
		if result.HoldingID != "hold-1" {
			t.Fatalf("expected holding hold-1, got %s", result.HoldingID)
		}
		if got := f.store.activeCount("sec-1"); got != 1 {
			t.Fatalf("expected no new holding, got %d active", got)
		}
		f.audit.expectActions(t)
	})

	t.Run("reports existing waitlist entry with position", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 3, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-2"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-2", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeAlreadyPresent {
			t.Fatalf("expected ALREADY_PRESENT, got %s", result.Outcome)
		}
		if result.Position != 1 {
			t.Fatalf("expected position 1, got %d", result.Position)
		}
	})

	t.Run("denies ineligible requester with reasons", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, WaitlistCapacity: 2, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1", RegistrarHolds: []string{"unpaid balance"}})

		result, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-1", SectionID: "sec-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeDenied {
			t.Fatalf("expected DENIED, got %s", result.Outcome)
		}
		if len(result.Reasons) != 1 || result.Reasons[0].Kind != eligibility.ReasonRegistrarHold {
			t.Fatalf("expected registrar_hold reason, got %+v", result.Reasons)
		}
		if got := f.store.activeCount("sec-1"); got != 0 {
			t.Fatalf("expected no holdings, got %d", got)
		}
	})

	t.Run("unknown section", func(t *testing.T) {
		f := newFixture(now)
		f.addProfile(domain.RequesterProfile{ID: "req-1"})

		_, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "req-1", SectionID: "missing"})
		if err != domain.ErrSectionNotFound {
			t.Fatalf("expected ErrSectionNotFound, got %v", err)
		}
	})

	t.Run("unknown requester", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, AdmissionMode: domain.AdmissionModeOpen})

		_, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{RequesterID: "stranger", SectionID: "sec-1"})
		if err != domain.ErrProfileNotFound {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})

	t.Run("missing requester id", func(t *testing.T) {
		f := newFixture(now)

		_, err := f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{SectionID: "sec-1"})
		if err != domain.ErrRequesterRequired {
			t.Fatalf("expected ErrRequesterRequired, got %v", err)
		}
	})
}

func TestAdmissionService_ConcurrentRequestsNeverExceedCapacity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	const capacity = 30
	const waitlistCapacity = 10
	const requesters = 45

	f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: capacity, WaitlistCapacity: waitlistCapacity, AdmissionMode: domain.AdmissionModeOpen})
	for i := 0; i < requesters; i++ {
		f.addProfile(domain.RequesterProfile{ID: fmt.Sprintf("req-%d", i)})
	}

	var wg sync.WaitGroup
	results := make([]AdmissionResult, requesters)
	errs := make([]error, requesters)
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.RequestAdmission(context.Background(), RequestAdmissionInput{
				RequesterID: fmt.Sprintf("req-%d", i),
				SectionID:   "sec-1",
			})
		}(i)
	}
	wg.Wait()

	var admitted, waitlisted, denied int
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		switch results[i].Outcome {
		case OutcomeAdmitted:
			admitted++
		case OutcomeWaitlisted:
			waitlisted++
		case OutcomeDenied:
			denied++
		default:
			t.Fatalf("unexpected outcome %s", results[i].Outcome)
		}
	}

	if admitted != capacity {
		t.Fatalf("expected %d admitted, got %d", capacity, admitted)
	}
	if waitlisted != waitlistCapacity {
		t.Fatalf("expected %d waitlisted, got %d", waitlistCapacity, waitlisted)
	}
	if denied != requesters-capacity-waitlistCapacity {
		t.Fatalf("expected %d denied, got %d", requesters-capacity-waitlistCapacity, denied)
	}
	if got := f.store.activeCount("sec-1"); got != capacity {
		t.Fatalf("expected active count %d, got %d", capacity, got)
	}
	assertContiguous(t, f.store.list("sec-1"))
}

func TestAdmissionService_ConcurrentReleases(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	t.Run("parallel releases promote distinct entries", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 2, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(
			domain.RequesterProfile{ID: "req-1"},
			domain.RequesterProfile{ID: "req-2"},
			domain.RequesterProfile{ID: "req-3"},
			domain.RequesterProfile{ID: "req-4"},
		)
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addHolding(domain.Holding{ID: "hold-2", SectionID: "sec-1", RequesterID: "req-2", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-3", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-4", Position: 2})

		var wg sync.WaitGroup
		results := make([]ReleaseResult, 2)
		errs := make([]error, 2)
		for i, holdingID := range []string{"hold-1", "hold-2"} {
			wg.Add(1)
			go func(i int, holdingID string) {
				defer wg.Done()
				results[i], errs[i] = f.svc.Release(context.Background(), ReleaseInput{
					HoldingID: holdingID,
					Actor:     domain.Actor{Kind: domain.ActorAdmin, ID: "adm-1"},
				})
			}(i, holdingID)
		}
		wg.Wait()

		promoted := make(map[string]bool)
		for i := range results {
			if errs[i] != nil {
				t.Fatalf("release %d failed: %v", i, errs[i])
			}
			if results[i].Outcome != OutcomeReleased {
				t.Fatalf("release %d: expected RELEASED, got %s", i, results[i].Outcome)
			}
			if results[i].PromotedRequesterID == "" {
				t.Fatalf("release %d promoted nobody", i)
			}
			promoted[results[i].PromotedRequesterID] = true
		}
		if len(promoted) != 2 {
			t.Fatalf("expected 2 distinct promotions, got %v", promoted)
		}
		if got := f.store.activeCount("sec-1"); got != 2 {
			t.Fatalf("expected active count 2, got %d", got)
		}
		if entries := f.store.list("sec-1"); len(entries) != 0 {
			t.Fatalf("expected empty waitlist, got %+v", entries)
		}
	})

	t.Run("one holding released n times yields one RELEASED", func(t *testing.T) {
		const attempts = 10

		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"}, domain.RequesterProfile{ID: "req-2"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})

		var wg sync.WaitGroup
		results := make([]ReleaseResult, attempts)
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.svc.Release(context.Background(), ReleaseInput{
					HoldingID: "hold-1",
					Actor:     domain.Actor{Kind: domain.ActorRequester, ID: "req-1"},
				})
			}(i)
		}
		wg.Wait()

		var released, notActive int
		for i := range results {
			if errs[i] != nil {
				t.Fatalf("release %d failed: %v", i, errs[i])
			}
			switch results[i].Outcome {
			case OutcomeReleased:
				released++
			case OutcomeNotActive:
				notActive++
			default:
				t.Fatalf("unexpected outcome %s", results[i].Outcome)
			}
		}
		if released != 1 {
			t.Fatalf("expected exactly 1 RELEASED, got %d", released)
		}
		if notActive != attempts-1 {
			t.Fatalf("expected %d NOT_ACTIVE, got %d", attempts-1, notActive)
		}
		if got := f.store.activeCount("sec-1"); got != 1 {
			t.Fatalf("expected active count 1, got %d", got)
		}
		if f.store.findActive("sec-1", "req-2") == nil {
			t.Fatalf("expected req-2 to hold the promoted seat")
		}
		if entries := f.store.list("sec-1"); len(entries) != 0 {
			t.Fatalf("expected empty waitlist, got %+v", entries)
		}
	})
}

func TestAdmissionService_Release(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	t.Run("releases and promotes the waitlist head", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"}, domain.RequesterProfile{ID: "req-2"}, domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-3", Position: 2})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeReleased {
			t.Fatalf("expected RELEASED, got %s", result.Outcome)
		}
		if result.PromotedRequesterID != "req-2" {
			t.Fatalf("expected req-2 promoted, got %q", result.PromotedRequesterID)
		}
		if f.store.findActive("sec-1", "req-2") == nil {
			t.Fatalf("expected req-2 to hold a seat")
		}

		entries := f.store.list("sec-1")
		if len(entries) != 1 || entries[0].RequesterID != "req-3" || entries[0].Position != 1 {
			t.Fatalf("expected req-3 at position 1, got %+v", entries)
		}
		f.audit.expectActions(t, domain.AuditReleased, domain.AuditPromoted)
		f.queue.expectTypes(t, jobs.TypeNotifyReleased, jobs.TypeNotifyPromoted, jobs.TypeRecomputeStats)
	})

	t.Run("release with empty waitlist frees the seat", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorAdmin, ID: "adm-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.PromotedRequesterID != "" {
			t.Fatalf("expected no promotion, got %q", result.PromotedRequesterID)
		}
		if got := f.store.activeCount("sec-1"); got != 0 {
			t.Fatalf("expected 0 active holdings, got %d", got)
		}
	})

	t.Run("completed release records the completed status", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})

		if _, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorAdmin, ID: "adm-1"}, Completed: true}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := f.store.holdingStatus("hold-1"); got != domain.HoldingStatusCompleted {
			t.Fatalf("expected completed, got %s", got)
		}
	})

	t.Run("second release of the same holding is a no-op", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-2"}, domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-3", Position: 2})

		if _, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}}); err != nil {
			t.Fatalf("first release: %v", err)
		}
		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("second release: %v", err)
		}
		if result.Outcome != OutcomeNotActive {
			t.Fatalf("expected NOT_ACTIVE, got %s", result.Outcome)
		}
		// Only the first release promoted anyone.
		if got := f.store.activeCount("sec-1"); got != 1 {
			t.Fatalf("expected 1 active holding, got %d", got)
		}
		if len(f.store.list("sec-1")) != 1 {
			t.Fatalf("expected one entry left on the waitlist")
		}
	})

	t.Run("skips ineligible head and promotes the next entry", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(
			domain.RequesterProfile{ID: "req-2", RegistrarHolds: []string{"library fine"}},
			domain.RequesterProfile{ID: "req-3"},
		)
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-3", Position: 2})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.PromotedRequesterID != "req-3" {
			t.Fatalf("expected req-3 promoted, got %q", result.PromotedRequesterID)
		}
		// The skipped head keeps its spot.
		entries := f.store.list("sec-1")
		if len(entries) != 1 || entries[0].RequesterID != "req-2" || entries[0].Position != 1 {
			t.Fatalf("expected req-2 retained at position 1, got %+v", entries)
		}
		// The ordering exception shows up in the audit trail.
		f.audit.expectActions(t, domain.AuditReleased, domain.AuditPromotionSkipped, domain.AuditPromoted)
		if rec := f.audit.record(1); rec.RequesterID != "req-2" || rec.Reason != "ineligible at promotion re-check" {
			t.Fatalf("unexpected skip record %+v", rec)
		}
	})

	t.Run("directory failure skips the entry without losing it", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		// req-2 has no profile, so the re-check errors for it.
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-3", Position: 2})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.PromotedRequesterID != "req-3" {
			t.Fatalf("expected req-3 promoted, got %q", result.PromotedRequesterID)
		}
		entries := f.store.list("sec-1")
		if len(entries) != 1 || entries[0].RequesterID != "req-2" {
			t.Fatalf("expected req-2 retained, got %+v", entries)
		}
		f.audit.expectActions(t, domain.AuditReleased, domain.AuditPromotionSkipped, domain.AuditPromoted)
	})

	t.Run("removes expired entries before promoting", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		past := now.Add(-time.Hour)
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-2", Position: 1, ExpiresAt: &past})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-3", Position: 2})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.PromotedRequesterID != "req-3" {
			t.Fatalf("expected req-3 promoted, got %q", result.PromotedRequesterID)
		}
		if len(f.store.list("sec-1")) != 0 {
			t.Fatalf("expected empty waitlist, got %+v", f.store.list("sec-1"))
		}
		f.audit.expectActions(t, domain.AuditReleased, domain.AuditWaitlistExpired, domain.AuditPromoted)
	})

	t.Run("no promotion while still over capacity", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-3"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})
		f.store.addHolding(domain.Holding{ID: "hold-2", SectionID: "sec-1", RequesterID: "req-2", Status: domain.HoldingStatusActive, OverCapacity: true})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-3", Position: 1})

		result, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.PromotedRequesterID != "" {
			t.Fatalf("expected no promotion while at capacity, got %q", result.PromotedRequesterID)
		}
		if len(f.store.list("sec-1")) != 1 {
			t.Fatalf("expected waitlist untouched")
		}
	})

	t.Run("unknown holding", func(t *testing.T) {
		f := newFixture(now)

		_, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "missing", Actor: domain.Actor{Kind: domain.ActorAdmin, ID: "adm-1"}})
		if err != domain.ErrHoldingNotFound {
			t.Fatalf("expected ErrHoldingNotFound, got %v", err)
		}
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newFixture(now)

		_, err := f.svc.Release(context.Background(), ReleaseInput{HoldingID: "hold-1"})
		if err != domain.ErrActorRequired {
			t.Fatalf("expected ErrActorRequired, got %v", err)
		}
	})
}

func TestAdmissionService_ForceAdmit(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	admin := domain.Actor{Kind: domain.ActorAdmin, ID: "adm-1"}

	t.Run("admits over capacity and flags the holding", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-2"})
		f.store.addHolding(domain.Holding{ID: "hold-1", SectionID: "sec-1", RequesterID: "req-1", Status: domain.HoldingStatusActive})

		result, err := f.svc.ForceAdmit(context.Background(), ForceAdmitInput{SectionID: "sec-1", RequesterID: "req-2", Actor: admin, Reason: "dean approval"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeAdmitted {
			t.Fatalf("expected ADMITTED, got %s", result.Outcome)
		}
		holding := f.store.findActive("sec-1", "req-2")
		if holding == nil {
			t.Fatalf("expected holding for req-2")
		}
		if !holding.OverCapacity {
			t.Fatalf("expected over-capacity flag on holding")
		}
		f.audit.expectActions(t, domain.AuditForceAdmitted)
	})

	t.Run("overridable block does not stop the override", func(t *testing.T) {
		f := newFixture(now, domain.Section{
			ID: "sec-1", CourseCode: "CS301", Name: "Advanced", Capacity: 5, AdmissionMode: domain.AdmissionModeOpen,
			Rules: domain.SectionRules{PrerequisiteCourses: []string{"CS201"}},
		})
		f.addProfile(domain.RequesterProfile{ID: "req-1"})

		result, err := f.svc.ForceAdmit(context.Background(), ForceAdmitInput{SectionID: "sec-1", RequesterID: "req-1", Actor: admin, Reason: "prereq waived"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeAdmitted {
			t.Fatalf("expected ADMITTED, got %s", result.Outcome)
		}
	})

	t.Run("registrar hold still blocks", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1", RegistrarHolds: []string{"disciplinary"}})

		result, err := f.svc.ForceAdmit(context.Background(), ForceAdmitInput{SectionID: "sec-1", RequesterID: "req-1", Actor: admin})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Outcome != OutcomeDenied {
			t.Fatalf("expected DENIED, got %s", result.Outcome)
		}
		if got := f.store.activeCount("sec-1"); got != 0 {
			t.Fatalf("expected no holdings, got %d", got)
		}
	})

	t.Run("removes an existing waitlist entry", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-1", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-2", Position: 2})

		if _, err := f.svc.ForceAdmit(context.Background(), ForceAdmitInput{SectionID: "sec-1", RequesterID: "req-1", Actor: admin}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		entries := f.store.list("sec-1")
		if len(entries) != 1 || entries[0].RequesterID != "req-2" || entries[0].Position != 1 {
			t.Fatalf("expected req-2 at position 1, got %+v", entries)
		}
	})

	t.Run("rejects non-admin actors", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.addProfile(domain.RequesterProfile{ID: "req-1"})

		_, err := f.svc.ForceAdmit(context.Background(), ForceAdmitInput{SectionID: "sec-1", RequesterID: "req-1", Actor: domain.Actor{Kind: domain.ActorRequester, ID: "req-1"}})
		if err != domain.ErrActorRequired {
			t.Fatalf("expected ErrActorRequired, got %v", err)
		}
	})
}

func TestAdmissionService_Withdraw(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

	t.Run("removes the entry and closes the gap", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-1", Position: 1})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-2", Position: 2})
		f.store.addEntry(domain.WaitlistEntry{ID: "wl-3", SectionID: "sec-1", RequesterID: "req-3", Position: 3})

		if err := f.svc.Withdraw(context.Background(), WithdrawInput{SectionID: "sec-1", RequesterID: "req-2"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		entries := f.store.list("sec-1")
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		assertContiguous(t, entries)
		if entries[1].RequesterID != "req-3" || entries[1].Position != 2 {
			t.Fatalf("expected req-3 moved to position 2, got %+v", entries[1])
		}
		f.audit.expectActions(t, domain.AuditWithdrawn)
	})

	t.Run("not waitlisted", func(t *testing.T) {
		f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})

		err := f.svc.Withdraw(context.Background(), WithdrawInput{SectionID: "sec-1", RequesterID: "req-1"})
		if err != domain.ErrNotWaitlisted {
			t.Fatalf("expected ErrNotWaitlisted, got %v", err)
		}
	})

	t.Run("unknown section", func(t *testing.T) {
		f := newFixture(now)

		err := f.svc.Withdraw(context.Background(), WithdrawInput{SectionID: "missing", RequesterID: "req-1"})
		if err != domain.ErrSectionNotFound {
			t.Fatalf("expected ErrSectionNotFound, got %v", err)
		}
	})
}

func TestAdmissionService_Waitlist(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(now, domain.Section{ID: "sec-1", CourseCode: "CS101", Name: "Intro", Capacity: 1, WaitlistCapacity: 5, AdmissionMode: domain.AdmissionModeOpen})
	f.store.addEntry(domain.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", RequesterID: "req-1", Position: 1})
	f.store.addEntry(domain.WaitlistEntry{ID: "wl-2", SectionID: "sec-1", RequesterID: "req-2", Position: 2})

	entries, err := f.svc.Waitlist(context.Background(), "sec-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(entries) != 2 || entries[0].RequesterID != "req-1" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	if _, err := f.svc.Waitlist(context.Background(), "missing"); err != domain.ErrSectionNotFound {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
}

func assertContiguous(t *testing.T, entries []domain.WaitlistEntry) {
	t.Helper()
	for i, entry := range entries {
		if entry.Position != i+1 {
			t.Fatalf("position gap at index %d: %+v", i, entries)
		}
	}
}

// fixture wires an AdmissionService over the in-memory fake store.
type fixture struct {
	store     *fakeStore
	directory *fakeDirectory
	audit     *fakeAudit
	queue     *fakeQueue
	svc       *AdmissionService
}

func newFixture(now time.Time, sections ...domain.Section) *fixture {
	store := newFakeStore(sections...)
	dir := &fakeDirectory{profiles: make(map[string]domain.RequesterProfile)}
	audit := &fakeAudit{}
	queue := &fakeQueue{}
	waitlist := NewWaitlistService(store, clock.NewFixed(now), 0)
	svc := NewAdmissionService(store, waitlist, dir, eligibility.NewEngine(domain.SectionRules{}), audit, queue, clock.NewFixed(now), nil)
	return &fixture{store: store, directory: dir, audit: audit, queue: queue, svc: svc}
}

func (f *fixture) addProfile(profiles ...domain.RequesterProfile) {
	for _, p := range profiles {
		f.directory.profiles[p.ID] = p
	}
}

// fakeStore implements AdmissionRepository and WaitlistRepository over
// in-memory slices. WithTx takes a real lock so the concurrency test
// exercises the same serialization the row lock provides.
type fakeStore struct {
	mu       sync.Mutex
	sections map[string]domain.Section
	holdings []domain.Holding
	entries  []domain.WaitlistEntry
}

func newFakeStore(sections ...domain.Section) *fakeStore {
	s := &fakeStore{sections: make(map[string]domain.Section)}
	for _, section := range sections {
		s.sections[section.ID] = section
	}
	return s
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeStore) GetSection(_ context.Context, sectionID string) (domain.Section, error) {
	section, ok := f.sections[sectionID]
	if !ok {
		return domain.Section{}, domain.ErrSectionNotFound
	}
	return section, nil
}

func (f *fakeStore) GetSectionForUpdate(ctx context.Context, sectionID string) (domain.Section, error) {
	return f.GetSection(ctx, sectionID)
}

func (f *fakeStore) FindActiveHolding(_ context.Context, sectionID, requesterID string) (*domain.Holding, error) {
	return f.findActive(sectionID, requesterID), nil
}

func (f *fakeStore) GetHoldingForUpdate(_ context.Context, holdingID string) (domain.Holding, error) {
	for _, h := range f.holdings {
		if h.ID == holdingID {
			return h, nil
		}
	}
	return domain.Holding{}, domain.ErrHoldingNotFound
}

func (f *fakeStore) CountActiveHoldings(_ context.Context, sectionID string) (int, error) {
	count := 0
	for _, h := range f.holdings {
		if h.SectionID == sectionID && h.Status == domain.HoldingStatusActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateHolding(_ context.Context, holding domain.Holding) error {
	if f.findActive(holding.SectionID, holding.RequesterID) != nil {
		return domain.ErrAlreadyEnrolled
	}
	f.holdings = append(f.holdings, holding)
	return nil
}

func (f *fakeStore) UpdateHoldingStatus(_ context.Context, holdingID string, status domain.HoldingStatus, releasedAt time.Time) error {
	for i := range f.holdings {
		if f.holdings[i].ID == holdingID {
			f.holdings[i].Status = status
			f.holdings[i].ReleasedAt = &releasedAt
			return nil
		}
	}
	return domain.ErrHoldingNotFound
}

func (f *fakeStore) FindWaitlistEntry(_ context.Context, sectionID, requesterID string) (*domain.WaitlistEntry, error) {
	for i := range f.entries {
		e := f.entries[i]
		if e.SectionID == sectionID && e.RequesterID == requesterID {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListWaitlist(_ context.Context, sectionID string) ([]domain.WaitlistEntry, error) {
	return f.list(sectionID), nil
}

func (f *fakeStore) CountWaitlist(_ context.Context, sectionID string) (int, error) {
	return len(f.list(sectionID)), nil
}

func (f *fakeStore) InsertWaitlistEntry(_ context.Context, entry domain.WaitlistEntry) error {
	for _, e := range f.entries {
		if e.SectionID == entry.SectionID && e.RequesterID == entry.RequesterID {
			return domain.ErrAlreadyWaitlisted
		}
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) DeleteWaitlistEntry(_ context.Context, sectionID, requesterID string) error {
	for i, e := range f.entries {
		if e.SectionID == sectionID && e.RequesterID == requesterID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotWaitlisted
}

func (f *fakeStore) ShiftPositionsUp(_ context.Context, sectionID string, fromPosition int) error {
	for i := range f.entries {
		if f.entries[i].SectionID == sectionID && f.entries[i].Position >= fromPosition {
			f.entries[i].Position++
		}
	}
	return nil
}

func (f *fakeStore) ShiftPositionsDown(_ context.Context, sectionID string, afterPosition int) error {
	for i := range f.entries {
		if f.entries[i].SectionID == sectionID && f.entries[i].Position > afterPosition {
			f.entries[i].Position--
		}
	}
	return nil
}

func (f *fakeStore) SetEstimatedProbability(_ context.Context, entryID string, probability float64) error {
	for i := range f.entries {
		if f.entries[i].ID == entryID {
			f.entries[i].EstimatedProbability = probability
			return nil
		}
	}
	return domain.ErrNotWaitlisted
}

func (f *fakeStore) CountReleasesSince(_ context.Context, sectionID string, since time.Time) (int, error) {
	count := 0
	for _, h := range f.holdings {
		if h.SectionID != sectionID || h.Status == domain.HoldingStatusActive {
			continue
		}
		if h.ReleasedAt != nil && !h.ReleasedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) addHolding(holding domain.Holding) {
	f.holdings = append(f.holdings, holding)
}

func (f *fakeStore) addEntry(entry domain.WaitlistEntry) {
	f.entries = append(f.entries, entry)
}

func (f *fakeStore) findActive(sectionID, requesterID string) *domain.Holding {
	for i := range f.holdings {
		h := f.holdings[i]
		if h.SectionID == sectionID && h.RequesterID == requesterID && h.Status == domain.HoldingStatusActive {
			return &h
		}
	}
	return nil
}

func (f *fakeStore) activeCount(sectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, _ := f.CountActiveHoldings(context.Background(), sectionID)
	return count
}

func (f *fakeStore) holdingStatus(holdingID string) domain.HoldingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holdings {
		if h.ID == holdingID {
			return h.Status
		}
	}
	return ""
}

func (f *fakeStore) list(sectionID string) []domain.WaitlistEntry {
	var out []domain.WaitlistEntry
	for _, e := range f.entries {
		if e.SectionID == sectionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

type fakeDirectory struct {
	profiles map[string]domain.RequesterProfile
}

func (d *fakeDirectory) Profile(_ context.Context, requesterID string) (domain.RequesterProfile, error) {
	profile, ok := d.profiles[requesterID]
	if !ok {
		return domain.RequesterProfile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (a *fakeAudit) Append(_ context.Context, record domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
	return nil
}

func (a *fakeAudit) record(i int) domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[i]
}

func (a *fakeAudit) expectActions(t *testing.T, want ...domain.AuditAction) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) != len(want) {
		t.Fatalf("expected %d audit records, got %d: %+v", len(want), len(a.records), a.records)
	}
	for i, action := range want {
		if a.records[i].Action != action {
			t.Fatalf("expected audit[%d] %s, got %s", i, action, a.records[i].Action)
		}
	}
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []string
}

func (q *fakeQueue) Enqueue(_ context.Context, jobType string, _ any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobType)
	return nil
}

func (q *fakeQueue) expectTypes(t *testing.T, want ...string) {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) != len(want) {
		t.Fatalf("expected %d jobs, got %d: %v", len(want), len(q.jobs), q.jobs)
	}
	for i, jobType := range want {
		if q.jobs[i] != jobType {
			t.Fatalf("expected job[%d] %s, got %s", i, jobType, q.jobs[i])
		}
	}
}
