package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// ProfileRepository backs the requester directory. Requester IDs are
// external (student numbers, federation subjects), so they are plain text
// rather than UUIDs.
type ProfileRepository struct {
	querier
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{querier{pool: pool}}
}

func (r *ProfileRepository) GetProfile(ctx context.Context, requesterID string) (domain.RequesterProfile, error) {
	const query = `
SELECT id, program, year_level, credit_hours, completed_courses, registrar_holds, invited_sections, updated_at
FROM requester_profiles
WHERE id = $1`

	var p domain.RequesterProfile
	err := r.queryRow(ctx, query, requesterID).Scan(
		&p.ID,
		&p.Program,
		&p.YearLevel,
		&p.CreditHours,
		&p.CompletedCourses,
		&p.RegistrarHolds,
		&p.InvitedSections,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RequesterProfile{}, domain.ErrProfileNotFound
		}
		return domain.RequesterProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) UpsertProfile(ctx context.Context, profile domain.RequesterProfile) error {
	const stmt = `
INSERT INTO requester_profiles (id, program, year_level, credit_hours, completed_courses, registrar_holds, invited_sections, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	program = EXCLUDED.program,
	year_level = EXCLUDED.year_level,
	credit_hours = EXCLUDED.credit_hours,
	completed_courses = EXCLUDED.completed_courses,
	registrar_holds = EXCLUDED.registrar_holds,
	invited_sections = EXCLUDED.invited_sections,
	updated_at = EXCLUDED.updated_at`

	_, err := r.exec(ctx, stmt,
		profile.ID,
		profile.Program,
		profile.YearLevel,
		profile.CreditHours,
		notNull(profile.CompletedCourses),
		notNull(profile.RegistrarHolds),
		notNull(profile.InvitedSections),
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// notNull maps a nil slice to an empty one so the NOT NULL array columns
// accept it.
func notNull(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
