package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AuditQueue pushes audit records onto the Redis persist queue drained by
// the audit worker.
type AuditQueue struct {
	rdb *redis.Client
}

func NewAuditQueue(rdb *redis.Client) *AuditQueue {
	return &AuditQueue{rdb: rdb}
}

func (q *AuditQueue) Record(ctx context.Context, rec model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistAuditQueue, data).Err()
}

// NoopAudit discards records.
type NoopAudit struct{}

func (NoopAudit) Record(context.Context, model.AuditRecord) error { return nil }
