package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SnapshotStore persists resumable session snapshots by key. Load returns
// nil, nil when nothing usable is stored.
type SnapshotStore interface {
	Save(ctx context.Context, key string, snap model.PersistedSnapshot) error
	Load(ctx context.Context, key string) (*model.PersistedSnapshot, error)
	Clear(ctx context.Context, key string) error
}

// decodeSnapshot treats corrupt or unparsable data as absent.
func decodeSnapshot(data []byte) *model.PersistedSnapshot {
	var snap model.PersistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}

// RedisSnapshotRepository keeps snapshots as JSON strings with a TTL.
type RedisSnapshotRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSnapshotRepository creates a new RedisSnapshotRepository.
func NewRedisSnapshotRepository(rdb *redis.Client, ttl time.Duration) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, key string, snap model.PersistedSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Load(ctx context.Context, key string) (*model.PersistedSnapshot, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return decodeSnapshot(data), nil
}

func (r *RedisSnapshotRepository) Clear(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// Keys lists stored snapshot keys matching pattern.
func (r *RedisSnapshotRepository) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// MemorySnapshotRepository is an in-process store for tests and offline
// tooling. Values are held encoded so that loads never alias saved data.
type MemorySnapshotRepository struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{entries: make(map[string][]byte)}
}

func (m *MemorySnapshotRepository) Save(_ context.Context, key string, snap model.PersistedSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshotRepository) Load(_ context.Context, key string) (*model.PersistedSnapshot, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeSnapshot(data), nil
}

func (m *MemorySnapshotRepository) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// PutRaw stores data verbatim under key.
func (m *MemorySnapshotRepository) PutRaw(key string, data []byte) {
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
}
