package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

type AdminRepository struct {
	querier
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{querier{pool: pool}}
}

func (r *AdminRepository) CreateSection(ctx context.Context, section domain.Section) error {
	rulesJSON, err := json.Marshal(section.Rules)
	if err != nil {
		return fmt.Errorf("encode section rules: %w", err)
	}

	const stmt = `
INSERT INTO sections (id, course_code, name, capacity, waitlist_capacity, admission_mode, rules, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.exec(ctx, stmt,
		section.ID,
		section.CourseCode,
		section.Name,
		section.Capacity,
		section.WaitlistCapacity,
		section.AdmissionMode,
		rulesJSON,
		section.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

func (r *AdminRepository) GetSection(ctx context.Context, sectionID string) (domain.Section, error) {
	repo := AdmissionRepository{r.querier}
	return repo.GetSection(ctx, sectionID)
}

func (r *AdminRepository) ListSections(ctx context.Context) ([]domain.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections ORDER BY created_at, course_code`, sectionColumns)

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []domain.Section
	for rows.Next() {
		var (
			s         domain.Section
			rulesJSON []byte
		)
		if err := rows.Scan(&s.ID, &s.CourseCode, &s.Name, &s.Capacity, &s.WaitlistCapacity, &s.AdmissionMode, &rulesJSON, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		if len(rulesJSON) > 0 {
			if err := json.Unmarshal(rulesJSON, &s.Rules); err != nil {
				return nil, fmt.Errorf("decode section rules: %w", err)
			}
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

func (r *AdminRepository) UpdateSection(ctx context.Context, section domain.Section) error {
	rulesJSON, err := json.Marshal(section.Rules)
	if err != nil {
		return fmt.Errorf("encode section rules: %w", err)
	}

	const stmt = `
UPDATE sections
SET capacity = $2, waitlist_capacity = $3, admission_mode = $4, rules = $5
WHERE id = $1`

	tag, err := r.exec(ctx, stmt,
		section.ID,
		section.Capacity,
		section.WaitlistCapacity,
		section.AdmissionMode,
		rulesJSON,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update section: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSectionNotFound
	}
	return nil
}
