package ecs

import "sync"

// DespawnHook is called when an entity is despawned, so component stores
// owned by other packages can detach their records. Registered once per
// component kind at startup.
type DespawnHook func(Entity)

// World owns entity lifetime: allocation, the alive set, the structural
// command queue, and despawn fan-out. Component data itself lives in
// per-package Set[T] values that register a DespawnHook here.
type World struct {
	ids     *Allocator
	cmds    *CommandQueue
	mu      sync.RWMutex
	alive   map[Entity]struct{}
	hooks   []DespawnHook
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		ids:   NewAllocator(),
		cmds:  NewCommandQueue(),
		alive: make(map[Entity]struct{}),
	}
}

// Commands returns the world's structural command queue.
func (w *World) Commands() *CommandQueue { return w.cmds }

// OnDespawn registers a hook invoked synchronously (on the owning
// goroutine, during Drain) whenever an entity is despawned.
func (w *World) OnDespawn(hook DespawnHook) {
	w.mu.Lock()
	w.hooks = append(w.hooks, hook)
	w.mu.Unlock()
}

// Spawn allocates a fresh entity and marks it alive immediately — safe to
// call directly (not via the command queue) since it only touches the
// allocator and alive set, never another system's component data.
func (w *World) Spawn() Entity {
	e := w.ids.Alloc()
	w.mu.Lock()
	w.alive[e] = struct{}{}
	w.mu.Unlock()
	return e
}

// Despawn buffers the destruction of e as a structural command: at the
// next Drain, every registered despawn hook runs (detaching components),
// the entity is marked dead, and its id is released for reuse.
func (w *World) Despawn(e Entity) {
	w.cmds.Push(func() {
		w.mu.Lock()
		if _, ok := w.alive[e]; !ok {
			w.mu.Unlock()
			return
		}
		delete(w.alive, e)
		hooks := w.hooks
		w.mu.Unlock()

		for _, h := range hooks {
			h(e)
		}
		w.ids.Free(e)
	})
}

// IsAlive reports whether e is currently live.
func (w *World) IsAlive(e Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.alive[e]
	return ok
}

// AliveCount returns the number of live entities (diagnostics/tests).
func (w *World) AliveCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.alive)
}

// Compact is a scheduled low-cadence maintenance hook (spec.md SPEC_FULL
// §4.12: "component stores periodically compact"). Go's built-in map
// already reclaims deleted entries without manual shrinking, so the only
// remaining maintenance is shrinking the allocator's freed-id backing
// slice once it has accumulated a large amount of churn.
func (w *World) Compact() {
	w.ids.mu.Lock()
	if cap(w.ids.freed) > 4096 && len(w.ids.freed) < cap(w.ids.freed)/4 {
		shrunk := make([]Entity, len(w.ids.freed))
		copy(shrunk, w.ids.freed)
		w.ids.freed = shrunk
	}
	w.ids.mu.Unlock()
}
