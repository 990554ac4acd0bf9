package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// auditStore is the write side of repository.AuditRepository.
type auditStore interface {
	CopyBatch(ctx context.Context, records []*model.AuditRecord) (int64, error)
	Insert(ctx context.Context, rec *model.AuditRecord) error
}

// AuditWorker drains proctor_audit_queue into PostgreSQL in batches.
type AuditWorker struct {
	store auditStore
	rdb   *redis.Client
	log   zerolog.Logger

	// requeueBackoff pauses after pushing failed records back.
	requeueBackoff time.Duration
}

func NewAuditWorker(store auditStore, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		store:          store,
		rdb:            rdb,
		log:            log.With().Str("component", "audit_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs the batching loop until ctx is cancelled. Call in a goroutine.
func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	buffer := make([]*model.AuditRecord, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAuditQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var rec model.AuditRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed audit record")
			continue
		}
		buffer = append(buffer, &rec)
	}
}

// flushSafe tries COPY first, then row-by-row, then requeues what failed.
func (w *AuditWorker) flushSafe(ctx context.Context, batch []*model.AuditRecord) {
	if _, err := w.store.CopyBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		if failed := w.fallbackInsert(ctx, batch); len(failed) > 0 {
			w.requeue(ctx, failed)
		}
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Audit batch persisted")
}

// fallbackInsert returns the records that could not be stored.
func (w *AuditWorker) fallbackInsert(ctx context.Context, batch []*model.AuditRecord) []*model.AuditRecord {
	var failed []*model.AuditRecord
	for _, rec := range batch {
		if rec.SessionID == "" {
			w.log.Error().Str("kind", string(rec.Kind)).Msg("Dropping audit record without session id")
			continue
		}
		if err := w.store.Insert(ctx, rec); err != nil {
			w.log.Error().Err(err).Str("session_id", rec.SessionID).Msg("Insert failed, requeueing")
			failed = append(failed, rec)
		}
	}
	return failed
}

func (w *AuditWorker) requeue(ctx context.Context, items []*model.AuditRecord) {
	pipe := w.rdb.Pipeline()
	for _, rec := range items {
		data, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.WorkerKey.PersistAuditQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue audit records. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed audit records")
	time.Sleep(w.requeueBackoff)
}

func (w *AuditWorker) shutdown(buffer []*model.AuditRecord) {
	w.log.Info().Int("pending", len(buffer)).Msg("AuditWorker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
