package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	snapshotWriteTimeout = 2 * time.Second
	snapshotDrainTimeout = 5 * time.Second
	snapshotRetryDelay   = 500 * time.Millisecond
	snapshotMaxAttempts  = 10
)

type snapshotOp struct {
	clear    bool
	snap     model.PersistedSnapshot
	seq      uint64
	attempts int
}

// SnapshotWriter makes snapshot writes fire-and-forget. Pending operations
// are coalesced per key so only the latest save or clear reaches the store.
// A failed write is retried unless a newer operation for the key replaced it.
type SnapshotWriter struct {
	store repository.SnapshotStore
	log   zerolog.Logger

	mu       sync.Mutex
	seq      uint64
	pending  map[string]snapshotOp
	order    []string
	inflight map[string]snapshotOp
	wake     chan struct{}

	retryDelay time.Duration
}

func NewSnapshotWriter(store repository.SnapshotStore, log zerolog.Logger) *SnapshotWriter {
	return &SnapshotWriter{
		store:      store,
		log:        log.With().Str("component", "snapshot_writer").Logger(),
		pending:    make(map[string]snapshotOp),
		inflight:   make(map[string]snapshotOp),
		wake:       make(chan struct{}, 1),
		retryDelay: snapshotRetryDelay,
	}
}

// Save queues a snapshot write. It never blocks on the store.
func (w *SnapshotWriter) Save(key string, snap model.PersistedSnapshot) {
	w.enqueue(key, snapshotOp{snap: snap})
}

// Clear queues removal of a snapshot.
func (w *SnapshotWriter) Clear(key string) {
	w.enqueue(key, snapshotOp{clear: true})
}

func (w *SnapshotWriter) enqueue(key string, op snapshotOp) {
	w.mu.Lock()
	w.seq++
	op.seq = w.seq
	w.queueLocked(key, op)
	w.mu.Unlock()
	w.signal()
}

func (w *SnapshotWriter) queueLocked(key string, op snapshotOp) {
	if _, queued := w.pending[key]; !queued {
		w.order = append(w.order, key)
	}
	w.pending[key] = op
}

func (w *SnapshotWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Load returns the latest queued or in-flight operation for key, falling
// back to the store.
func (w *SnapshotWriter) Load(ctx context.Context, key string) (*model.PersistedSnapshot, error) {
	w.mu.Lock()
	op, queued := w.pending[key]
	if !queued {
		op, queued = w.inflight[key]
	}
	w.mu.Unlock()
	if queued {
		if op.clear {
			return nil, nil
		}
		snap := op.snap
		return &snap, nil
	}
	return w.store.Load(ctx, key)
}

// Start drains queued writes until ctx is cancelled, then flushes what is
// left. Call in a goroutine.
func (w *SnapshotWriter) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), snapshotDrainTimeout)
			n := w.drain(drainCtx)
			cancel()
			w.log.Info().Int("flushed", n).Msg("Worker stopped")
			return
		case <-w.wake:
		case <-retry:
			retry = nil
		}
		if _, failed := w.flush(ctx); failed > 0 && retry == nil {
			retry = time.After(w.retryDelay)
		}
	}
}

// drain flushes until nothing is pending or ctx expires.
func (w *SnapshotWriter) drain(ctx context.Context) int {
	total := 0
	for {
		applied, failed := w.flush(ctx)
		total += applied
		if failed == 0 {
			return total
		}
		select {
		case <-ctx.Done():
			w.log.Error().Int("pending", failed).Msg("Snapshot writes lost at shutdown")
			return total
		case <-time.After(w.retryDelay):
		}
	}
}

// Flush writes every pending operation and returns how many were applied.
// Failed operations stay queued.
func (w *SnapshotWriter) Flush(ctx context.Context) int {
	applied, _ := w.flush(ctx)
	return applied
}

func (w *SnapshotWriter) flush(ctx context.Context) (applied, failed int) {
	w.mu.Lock()
	pending, order := w.pending, w.order
	w.pending = make(map[string]snapshotOp)
	w.order = nil
	for key, op := range pending {
		w.inflight[key] = op
	}
	w.mu.Unlock()

	for _, key := range order {
		op := pending[key]
		err := w.write(ctx, key, op)

		w.mu.Lock()
		if cur, ok := w.inflight[key]; ok && cur.seq == op.seq {
			delete(w.inflight, key)
		}
		_, superseded := w.pending[key]
		if err != nil && !superseded {
			op.attempts++
			if op.attempts < snapshotMaxAttempts {
				w.queueLocked(key, op)
				failed++
			}
		}
		w.mu.Unlock()

		if err != nil {
			w.log.Error().Err(err).Str("key", key).Int("attempt", op.attempts).Bool("clear", op.clear).Msg("Snapshot write failed")
			continue
		}
		applied++
	}
	return applied, failed
}

func (w *SnapshotWriter) write(ctx context.Context, key string, op snapshotOp) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotWriteTimeout)
	defer cancel()
	if op.clear {
		return w.store.Clear(wctx, key)
	}
	return w.store.Save(wctx, key, op.snap)
}
