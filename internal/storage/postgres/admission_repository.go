package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// AdmissionRepository persists sections and holdings. GetSectionForUpdate
// takes the row lock that serializes all admission and release decisions
// for one section.
type AdmissionRepository struct {
	querier
}

func NewAdmissionRepository(pool *pgxpool.Pool) *AdmissionRepository {
	return &AdmissionRepository{querier{pool: pool}}
}

func (r *AdmissionRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const sectionColumns = `id, course_code, name, capacity, waitlist_capacity, admission_mode, rules, created_at`

func (r *AdmissionRepository) GetSection(ctx context.Context, sectionID string) (domain.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1`, sectionColumns)
	return r.scanSection(r.queryRow(ctx, query, sectionID))
}

func (r *AdmissionRepository) GetSectionForUpdate(ctx context.Context, sectionID string) (domain.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1 FOR UPDATE`, sectionColumns)
	return r.scanSection(r.queryRow(ctx, query, sectionID))
}

func (r *AdmissionRepository) scanSection(row pgx.Row) (domain.Section, error) {
	var (
		s         domain.Section
		rulesJSON []byte
	)
	err := row.Scan(&s.ID, &s.CourseCode, &s.Name, &s.Capacity, &s.WaitlistCapacity, &s.AdmissionMode, &rulesJSON, &s.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Section{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Section{}, domain.ErrSectionNotFound
		}
		return domain.Section{}, fmt.Errorf("get section: %w", err)
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &s.Rules); err != nil {
			return domain.Section{}, fmt.Errorf("decode section rules: %w", err)
		}
	}
	return s, nil
}

const holdingColumns = `id, section_id, requester_id, status, granted_at, drop_deadline, released_at, over_capacity`

func (r *AdmissionRepository) FindActiveHolding(ctx context.Context, sectionID, requesterID string) (*domain.Holding, error) {
	query := fmt.Sprintf(`
SELECT %s FROM holdings
WHERE section_id = $1 AND requester_id = $2 AND status = 'active'`, holdingColumns)

	h, err := scanHolding(r.queryRow(ctx, query, sectionID, requesterID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find active holding: %w", err)
	}
	return &h, nil
}

func (r *AdmissionRepository) GetHoldingForUpdate(ctx context.Context, holdingID string) (domain.Holding, error) {
	query := fmt.Sprintf(`SELECT %s FROM holdings WHERE id = $1 FOR UPDATE`, holdingColumns)

	h, err := scanHolding(r.queryRow(ctx, query, holdingID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Holding{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Holding{}, domain.ErrHoldingNotFound
		}
		return domain.Holding{}, fmt.Errorf("get holding: %w", err)
	}
	return h, nil
}

func scanHolding(row pgx.Row) (domain.Holding, error) {
	var h domain.Holding
	err := row.Scan(&h.ID, &h.SectionID, &h.RequesterID, &h.Status, &h.GrantedAt, &h.DropDeadline, &h.ReleasedAt, &h.OverCapacity)
	return h, err
}

func (r *AdmissionRepository) CountActiveHoldings(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM holdings WHERE section_id = $1 AND status = 'active'`

	var total int
	if err := r.queryRow(ctx, query, sectionID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count active holdings: %w", err)
	}
	return total, nil
}

func (r *AdmissionRepository) CreateHolding(ctx context.Context, holding domain.Holding) error {
	const stmt = `
INSERT INTO holdings (id, section_id, requester_id, status, granted_at, drop_deadline, over_capacity)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		holding.ID,
		holding.SectionID,
		holding.RequesterID,
		holding.Status,
		holding.GrantedAt,
		holding.DropDeadline,
		holding.OverCapacity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyEnrolled
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create holding: %w", err)
	}
	return nil
}

func (r *AdmissionRepository) UpdateHoldingStatus(ctx context.Context, holdingID string, status domain.HoldingStatus, releasedAt time.Time) error {
	const stmt = `UPDATE holdings SET status = $2, released_at = $3 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, holdingID, status, releasedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update holding status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldingNotFound
	}
	return nil
}
