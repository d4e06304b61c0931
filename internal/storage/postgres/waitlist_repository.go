package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// WaitlistRepository persists ordered waitlist entries. Position shifts
// rely on the deferred (section_id, position) unique constraint, and the
// caller's section row lock keeps renumbering atomic with respect to
// concurrent appends.
type WaitlistRepository struct {
	querier
}

func NewWaitlistRepository(pool *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{querier{pool: pool}}
}

func (r *WaitlistRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const entryColumns = `id, section_id, requester_id, position, priority, estimated_probability, enqueued_at, expires_at`

func (r *WaitlistRepository) FindWaitlistEntry(ctx context.Context, sectionID, requesterID string) (*domain.WaitlistEntry, error) {
	query := fmt.Sprintf(`
SELECT %s FROM waitlist_entries WHERE section_id = $1 AND requester_id = $2`, entryColumns)

	var e domain.WaitlistEntry
	err := r.queryRow(ctx, query, sectionID, requesterID).
		Scan(&e.ID, &e.SectionID, &e.RequesterID, &e.Position, &e.Priority, &e.EstimatedProbability, &e.EnqueuedAt, &e.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &e, nil
}

func (r *WaitlistRepository) ListWaitlist(ctx context.Context, sectionID string) ([]domain.WaitlistEntry, error) {
	query := fmt.Sprintf(`
SELECT %s FROM waitlist_entries WHERE section_id = $1 ORDER BY position`, entryColumns)

	rows, err := r.query(ctx, query, sectionID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		var e domain.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.SectionID, &e.RequesterID, &e.Position, &e.Priority, &e.EstimatedProbability, &e.EnqueuedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func (r *WaitlistRepository) CountWaitlist(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waitlist_entries WHERE section_id = $1`

	var total int
	if err := r.queryRow(ctx, query, sectionID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count waitlist: %w", err)
	}
	return total, nil
}

func (r *WaitlistRepository) InsertWaitlistEntry(ctx context.Context, entry domain.WaitlistEntry) error {
	const stmt = `
INSERT INTO waitlist_entries (id, section_id, requester_id, position, priority, estimated_probability, enqueued_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		entry.ID,
		entry.SectionID,
		entry.RequesterID,
		entry.Position,
		entry.Priority,
		entry.EstimatedProbability,
		entry.EnqueuedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyWaitlisted
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) DeleteWaitlistEntry(ctx context.Context, sectionID, requesterID string) error {
	const stmt = `DELETE FROM waitlist_entries WHERE section_id = $1 AND requester_id = $2`

	tag, err := r.exec(ctx, stmt, sectionID, requesterID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotWaitlisted
	}
	return nil
}

func (r *WaitlistRepository) ShiftPositionsUp(ctx context.Context, sectionID string, fromPosition int) error {
	const stmt = `
UPDATE waitlist_entries SET position = position + 1
WHERE section_id = $1 AND position >= $2`

	if _, err := r.exec(ctx, stmt, sectionID, fromPosition); err != nil {
		return fmt.Errorf("shift positions up: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) ShiftPositionsDown(ctx context.Context, sectionID string, afterPosition int) error {
	const stmt = `
UPDATE waitlist_entries SET position = position - 1
WHERE section_id = $1 AND position > $2`

	if _, err := r.exec(ctx, stmt, sectionID, afterPosition); err != nil {
		return fmt.Errorf("shift positions down: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) SetEstimatedProbability(ctx context.Context, entryID string, probability float64) error {
	const stmt = `UPDATE waitlist_entries SET estimated_probability = $2 WHERE id = $1`

	if _, err := r.exec(ctx, stmt, entryID, probability); err != nil {
		return fmt.Errorf("set estimated probability: %w", err)
	}
	return nil
}

func (r *WaitlistRepository) CountReleasesSince(ctx context.Context, sectionID string, since time.Time) (int, error) {
	const query = `
SELECT COUNT(*) FROM holdings
WHERE section_id = $1 AND status IN ('dropped', 'completed') AND released_at >= $2`

	var total int
	if err := r.queryRow(ctx, query, sectionID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("count releases: %w", err)
	}
	return total, nil
}
