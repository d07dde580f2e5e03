// Package tenant implements the process-wide tenant registry: a single,
// process-lifetime map from TenantId to a shared repo.Repository, safe
// under concurrent readers with writers serialized. Modeled on the
// reader-biased synchronization discipline of cmn/rom.go's single
// static handle and sharded the way ID-keyed lookups are elsewhere in
// this codebase, by hashing with the same xxhash family cmn/cos uses.
package tenant

import (
	"sync"

	"github.com/OneOfOne/xxhash"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo"
)

const shardCount = 16

type shard struct {
	mu sync.RWMutex
	m  map[ids.TenantId]repo.Repository
}

// Registry is the tenant->repository mapping. Insert is performed only by
// tenant_create and process initialization; there is no Remove.
type Registry struct {
	shards [shardCount]*shard
}

func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{m: make(map[ids.TenantId]repo.Repository)}
	}
	return r
}

func (r *Registry) shardFor(id ids.TenantId) *shard {
	h := xxhash.Checksum64(id[:])
	return r.shards[h%uint64(shardCount)]
}

// Insert registers a new tenant. Returns a *perr.Error of
// KindInvariantViolation if the tenant already exists; double inserts
// are rejected as a conflict rather than silently overwriting.
func (r *Registry) Insert(id ids.TenantId, repository repo.Repository) error {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.m[id]; exists {
		return perr.Conflict("tenant %s already registered", id)
	}
	s.m[id] = repository
	return nil
}

// Get looks up a tenant's repository. Returns a *perr.Error of
// KindResourceNotFound when the tenant is unregistered.
func (r *Registry) Get(id ids.TenantId) (repo.Repository, error) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	repository, ok := s.m[id]
	if !ok {
		return nil, perr.NotFound("tenant %s not registered", id)
	}
	return repository, nil
}

// List enumerates every registered tenant.
func (r *Registry) List() []ids.TenantId {
	out := make([]ids.TenantId, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.m {
			out = append(out, id)
		}
		s.mu.RUnlock()
	}
	return out
}
