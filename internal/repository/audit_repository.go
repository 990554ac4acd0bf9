package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AuditRepository stores integrity and lifecycle records in proctor_events.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

var auditColumns = []string{"session_id", "assessment_id", "candidate_id", "kind", "detail", "recorded_at"}

func auditRow(r *model.AuditRecord) []any {
	detail := r.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}
	return []any{r.SessionID, r.AssessmentID, r.CandidateID, string(r.Kind), string(detail), r.RecordedAt}
}

// CopyBatch bulk-inserts records with COPY.
func (r *AuditRepository) CopyBatch(ctx context.Context, records []*model.AuditRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, auditRow(rec))
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"proctor_events"}, auditColumns, pgx.CopyFromRows(rows))
}

// Insert stores a single record.
func (r *AuditRepository) Insert(ctx context.Context, rec *model.AuditRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctor_events (session_id, assessment_id, candidate_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		auditRow(rec)...,
	)
	return err
}

// ListBySession returns the records of one session in recording order.
func (r *AuditRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, assessment_id, candidate_id, kind, detail, recorded_at
		 FROM proctor_events
		 WHERE session_id = $1
		 ORDER BY recorded_at, id
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec    model.AuditRecord
			kind   string
			detail []byte
			at     time.Time
		)
		if err := rows.Scan(&rec.SessionID, &rec.AssessmentID, &rec.CandidateID, &kind, &detail, &at); err != nil {
			return nil, err
		}
		rec.Kind = model.AuditKind(kind)
		rec.Detail = detail
		rec.RecordedAt = at
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByKind aggregates one session's records by kind.
func (r *AuditRepository) CountByKind(ctx context.Context, sessionID string) (map[model.AuditKind]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*)
		 FROM proctor_events
		 WHERE session_id = $1
		 GROUP BY kind`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.AuditKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[model.AuditKind(kind)] = n
	}
	return counts, rows.Err()
}
