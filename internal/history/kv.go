package history

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by a KV when no value exists for the requested key.
var ErrMiss = errors.New("history: cache miss")

// KV is the cache contract the cache-aside service needs: get a serialized
// room by name, and atomically transform one. A miss is reported as ErrMiss;
// any other error means the cache is unreachable.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Update reads the value at key, passes it to fn (miss=true when no
	// value exists), and stores fn's result. The read and the write form
	// one atomic step against concurrent updaters, so fn may run more
	// than once and must be side-effect free.
	Update(ctx context.Context, key string, fn func(old []byte, miss bool) ([]byte, error)) error
}

// RedisKV adapts a go-redis client to the KV contract. The same client is
// shared with the bus publisher; the bus subscriber runs on its own
// connection (see internal/bus).
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps an already-connected redis client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

// updateRetries bounds the optimistic retry loop in Update.
const updateRetries = 32

func (r *RedisKV) Update(ctx context.Context, key string, fn func(old []byte, miss bool) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		miss := errors.Is(err, redis.Nil)
		if err != nil && !miss {
			return err
		}
		next, err := fn(old, miss)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	// WATCH aborts the transaction when the key changed under us; retry
	// with the fresh value.
	for i := 0; i < updateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

// MemoryKV is an in-process KV for single-instance deployments and tests.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryKV creates an empty in-process cache.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (m *MemoryKV) Update(_ context.Context, key string, fn func(old []byte, miss bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.entries[key]
	var cp []byte
	if ok {
		cp = append([]byte(nil), old...)
	}
	next, err := fn(cp, !ok)
	if err != nil {
		return err
	}
	m.entries[key] = append([]byte(nil), next...)
	return nil
}
