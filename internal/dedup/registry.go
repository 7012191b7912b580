package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry is the process-wide set of claimed job ids. Claim is the only
// path to emission: a record may be emitted if and only if its Claim
// returned true, making check-and-set and emission one atomic step even
// under concurrent site crawls. The set only grows for the life of a run.
type Registry interface {
	// Claim atomically registers jobID. True means the caller now owns
	// the id and must emit; false means someone already did.
	Claim(ctx context.Context, jobID string) (bool, error)
}

// MemoryRegistry is the in-process Registry used for single-process runs.
type MemoryRegistry struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{seen: make(map[string]struct{})}
}

// Claim implements Registry with a mutex-guarded set insertion.
func (r *MemoryRegistry) Claim(_ context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[jobID]; ok {
		return false, nil
	}
	r.seen[jobID] = struct{}{}
	return true, nil
}

// Size returns the number of claimed ids.
func (r *MemoryRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// RedisRegistry shares the claimed set across processes when a run is
// sharded over multiple crawler instances. SETNX gives the same atomic
// claim semantics as the in-memory set.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a Redis-backed registry under the given key prefix.
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "job:claimed"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Claim implements Registry via SETNX.
func (r *RedisRegistry) Claim(ctx context.Context, jobID string) (bool, error) {
	claimed, err := r.client.SetNX(ctx, r.prefix+":"+jobID, 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return claimed, nil
}
