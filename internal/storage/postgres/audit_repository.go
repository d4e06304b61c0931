package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// AuditRepository appends to the immutable audit stream. Seq comes from an
// identity column, so records sharing a timestamp still have a total
// order. Appends run in their own implicit transaction: the recorder is
// durable before it acknowledges, and it is never part of the admission
// transaction.
type AuditRepository struct {
	querier
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{querier{pool: pool}}
}

func (r *AuditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	const stmt = `
INSERT INTO audit_records (section_id, requester_id, action, old_status, new_status, actor_kind, actor_id, reason, at)
VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		record.SectionID,
		record.RequesterID,
		record.Action,
		record.OldStatus,
		record.NewStatus,
		record.Actor.Kind,
		record.Actor.ID,
		record.Reason,
		record.At,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListBySection(ctx context.Context, sectionID string) ([]domain.AuditRecord, error) {
	const query = `
SELECT seq, COALESCE(section_id::text, ''), requester_id, action, old_status, new_status, actor_kind, actor_id, reason, at
FROM audit_records
WHERE section_id = $1
ORDER BY seq`

	rows, err := r.query(ctx, query, sectionID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(&rec.Seq, &rec.SectionID, &rec.RequesterID, &rec.Action, &rec.OldStatus, &rec.NewStatus, &rec.Actor.Kind, &rec.Actor.ID, &rec.Reason, &rec.At); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}
