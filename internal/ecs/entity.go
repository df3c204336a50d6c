// Package ecs implements the entity/component store: opaque entity ids,
// freely composable typed component records, parallel disjoint-entity
// iteration, and a structural command queue applied at phase boundaries
// (spec.md §3, §4.2).
package ecs

import "sync"

// Entity is a fresh opaque identifier (spec.md §3).
type Entity uint64

// Allocator mints entity ids and recycles ones freed by despawn, grounded
// on the original implementation's free-list id allocator (SPEC_FULL.md
// §4.12) — long-running worlds with heavy munition spawn/despawn churn
// would otherwise exhaust the id space and leave component maps sparse.
type Allocator struct {
	mu      sync.Mutex
	next    Entity
	freed   []Entity
}

// NewAllocator returns an allocator starting ids at 1 (0 is reserved as
// the not-an-entity sentinel).
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Alloc returns a fresh or recycled entity id.
func (a *Allocator) Alloc() Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.freed); n > 0 {
		id := a.freed[n-1]
		a.freed = a.freed[:n-1]
		return id
	}
	id := a.next
	a.next++
	return id
}

// Free returns id to the pool for reuse by a future Alloc call. Callers
// must not reference id again after freeing it — the store's Despawn
// calls this only once all components have been detached.
func (a *Allocator) Free(id Entity) {
	a.mu.Lock()
	a.freed = append(a.freed, id)
	a.mu.Unlock()
}
