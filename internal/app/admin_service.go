package app

import (
	"context"

	"github.com/ScepterCode/project-nest-registrar/internal/clock"
	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

type AdminRepository interface {
	CreateSection(ctx context.Context, section domain.Section) error
	GetSection(ctx context.Context, sectionID string) (domain.Section, error)
	ListSections(ctx context.Context) ([]domain.Section, error)
	UpdateSection(ctx context.Context, section domain.Section) error
}

// ProfileWriter is the directory's write side; going through it keeps the
// read cache coherent with admin updates.
type ProfileWriter interface {
	Upsert(ctx context.Context, profile domain.RequesterProfile) error
}

// AdminService covers the administrative surface: section setup and the
// minimal profile write path the directory reads from.
type AdminService struct {
	repo     AdminRepository
	profiles ProfileWriter
	clock    clock.Clock
}

func NewAdminService(repo AdminRepository, profiles ProfileWriter, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:     repo,
		profiles: profiles,
		clock:    clk,
	}
}

type CreateSectionInput struct {
	CourseCode       string
	Name             string
	Capacity         int
	WaitlistCapacity int
	AdmissionMode    domain.AdmissionMode
	Rules            domain.SectionRules
}

func (s *AdminService) CreateSection(ctx context.Context, in CreateSectionInput) (domain.Section, error) {
	if in.CourseCode == "" {
		return domain.Section{}, domain.ErrCourseCodeRequired
	}
	if in.Name == "" {
		return domain.Section{}, domain.ErrSectionNameRequired
	}
	if in.Capacity <= 0 || in.WaitlistCapacity < 0 {
		return domain.Section{}, domain.ErrInvalidCapacity
	}
	mode := in.AdmissionMode
	if mode == "" {
		mode = domain.AdmissionModeOpen
	}
	if !domain.ValidAdmissionMode(mode) {
		return domain.Section{}, domain.ErrInvalidAdmissionMode
	}

	section := domain.Section{
		ID:               newID(),
		CourseCode:       in.CourseCode,
		Name:             in.Name,
		Capacity:         in.Capacity,
		WaitlistCapacity: in.WaitlistCapacity,
		AdmissionMode:    mode,
		Rules:            in.Rules,
		CreatedAt:        s.clock.Now(),
	}

	if err := s.repo.CreateSection(ctx, section); err != nil {
		return domain.Section{}, err
	}
	return section, nil
}

func (s *AdminService) GetSection(ctx context.Context, sectionID string) (domain.Section, error) {
	if sectionID == "" {
		return domain.Section{}, domain.ErrInvalidID
	}
	return s.repo.GetSection(ctx, sectionID)
}

func (s *AdminService) ListSections(ctx context.Context) ([]domain.Section, error) {
	return s.repo.ListSections(ctx)
}

type UpdateSectionInput struct {
	SectionID        string
	Capacity         *int
	WaitlistCapacity *int
	AdmissionMode    *domain.AdmissionMode
	Rules            *domain.SectionRules
}

// UpdateSection applies partial changes to capacity, mode or rules.
// Shrinking capacity below the current active count is allowed; the
// admission service simply blocks new automatic admissions until the
// count drops back under the new capacity.
func (s *AdminService) UpdateSection(ctx context.Context, in UpdateSectionInput) (domain.Section, error) {
	if in.SectionID == "" {
		return domain.Section{}, domain.ErrInvalidID
	}

	section, err := s.repo.GetSection(ctx, in.SectionID)
	if err != nil {
		return domain.Section{}, err
	}

	if in.Capacity != nil {
		if *in.Capacity <= 0 {
			return domain.Section{}, domain.ErrInvalidCapacity
		}
		section.Capacity = *in.Capacity
	}
	if in.WaitlistCapacity != nil {
		if *in.WaitlistCapacity < 0 {
			return domain.Section{}, domain.ErrInvalidCapacity
		}
		section.WaitlistCapacity = *in.WaitlistCapacity
	}
	if in.AdmissionMode != nil {
		if !domain.ValidAdmissionMode(*in.AdmissionMode) {
			return domain.Section{}, domain.ErrInvalidAdmissionMode
		}
		section.AdmissionMode = *in.AdmissionMode
	}
	if in.Rules != nil {
		section.Rules = *in.Rules
	}

	if err := s.repo.UpdateSection(ctx, section); err != nil {
		return domain.Section{}, err
	}
	return section, nil
}

func (s *AdminService) UpsertProfile(ctx context.Context, profile domain.RequesterProfile) error {
	if profile.ID == "" {
		return domain.ErrRequesterRequired
	}
	profile.UpdatedAt = s.clock.Now()
	return s.profiles.Upsert(ctx, profile)
}
