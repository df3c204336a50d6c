// Package collision implements the typed collider channels from spec.md
// §3/§4.4/§9: each channel is an explicit enum value (not a phantom type
// parameter) so the broadphase dispatcher can iterate channels uniformly,
// per the spec's design note on re-expressing trait-parametrised
// components without leaning on the host language's type system.
package collision

import (
	"sync"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
	"github.com/starhold/server/internal/spatial"
)

// Channel is a typed collision namespace (spec.md GLOSSARY).
type Channel int

const (
	Displayable Channel = iota
	Damaging
)

// CellSize returns HASH_CELL_SIZE for the channel — a compile-time
// constant per channel, chosen no smaller than the diameter of any shape
// the channel will carry (spec.md §4.1).
func (c Channel) CellSize() float64 {
	switch c {
	case Damaging:
		return 40 // munitions and hulls are small and fast
	default:
		return 4000 // viewport/ship AABBs are large
	}
}

// Evaluator is a sender component: "I was collided with" on hit.
type Evaluator struct {
	Shape geom.Shape
}

// ConcurrentEntitySet is an idempotent, concurrency-safe set of entities,
// used for Source.Collided so parallel broadphase workers can insert hits
// without a data race, and so a pair sharing multiple cells collapses to
// one entry (spec.md §4.4, §8 "at-most-one-source-hit per pair").
type ConcurrentEntitySet struct {
	mu sync.Mutex
	m  map[ecs.Entity]struct{}
}

func NewConcurrentEntitySet() *ConcurrentEntitySet {
	return &ConcurrentEntitySet{m: make(map[ecs.Entity]struct{})}
}

func (s *ConcurrentEntitySet) Insert(e ecs.Entity) {
	s.mu.Lock()
	s.m[e] = struct{}{}
	s.mu.Unlock()
}

func (s *ConcurrentEntitySet) Contains(e ecs.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[e]
	return ok
}

func (s *ConcurrentEntitySet) Clear() {
	s.mu.Lock()
	s.m = make(map[ecs.Entity]struct{})
	s.mu.Unlock()
}

// Snapshot returns a copy of the current members, safe to range over
// without holding the set's lock.
func (s *ConcurrentEntitySet) Snapshot() []ecs.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ecs.Entity, 0, len(s.m))
	for e := range s.m {
		out = append(out, e)
	}
	return out
}

func (s *ConcurrentEntitySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Source is a receiver component: accumulates evaluator entity ids that
// collided with it this tick.
type Source struct {
	Shape    geom.Shape
	Collided *ConcurrentEntitySet
}

// ChannelData holds the evaluator/source component stores for one
// channel.
type ChannelData struct {
	Evaluators *ecs.Set[Evaluator]
	Sources    *ecs.Set[*Source]
}

func newChannelData() *ChannelData {
	return &ChannelData{
		Evaluators: ecs.NewSet[Evaluator](),
		Sources:    ecs.NewSet[*Source](),
	}
}

// Registry owns every channel's collider components and dispatches the
// per-channel broadphase.
type Registry struct {
	channels map[Channel]*ChannelData
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[Channel]*ChannelData)}
}

func (r *Registry) Channel(c Channel) *ChannelData {
	cd, ok := r.channels[c]
	if !ok {
		cd = newChannelData()
		r.channels[c] = cd
	}
	return cd
}

// Detach removes e's collider components from every channel. Registered
// as a World.OnDespawn hook.
func (r *Registry) Detach(e ecs.Entity) {
	for _, cd := range r.channels {
		cd.Evaluators.Delete(e)
		cd.Sources.Delete(e)
	}
}

// SyncPosition moves every Evaluator/Source shape in every channel to the
// entity's current position (spec.md §4.3 step 5:
// update_collisions_with_position). Shapes that are only ever read
// (never re-centered) — e.g. a static asteroid's collider — still pass
// through MoveCenter each tick; the cost is a cheap struct copy.
func (r *Registry) SyncPosition(positions func(ecs.Entity) (geom.Point, bool)) {
	for _, cd := range r.channels {
		syncShape(cd.Evaluators, positions)
		syncSourceShape(cd.Sources, positions)
	}
}

// SyncRotation rotates every Evaluator/Source shape to the entity's
// current rotation (spec.md §4.3 step 5: update_collisions_with_rotation).
func (r *Registry) SyncRotation(rotations func(ecs.Entity) (float64, bool)) {
	for _, cd := range r.channels {
		syncShapeRotation(cd.Evaluators, rotations)
		syncSourceShapeRotation(cd.Sources, rotations)
	}
}

func syncShape(set *ecs.Set[Evaluator], pos func(ecs.Entity) (geom.Point, bool)) {
	entities := set.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		p, ok := pos(e)
		if !ok {
			return
		}
		set.Mutate(e, func(ev Evaluator) Evaluator {
			ev.Shape = ev.Shape.MoveCenter(p)
			return ev
		})
	})
}

func syncSourceShape(set *ecs.Set[*Source], pos func(ecs.Entity) (geom.Point, bool)) {
	entities := set.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		p, ok := pos(e)
		if !ok {
			return
		}
		src, ok := set.Get(e)
		if !ok {
			return
		}
		src.Shape = src.Shape.MoveCenter(p)
	})
}

func syncShapeRotation(set *ecs.Set[Evaluator], rot func(ecs.Entity) (float64, bool)) {
	entities := set.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		theta, ok := rot(e)
		if !ok {
			return
		}
		set.Mutate(e, func(ev Evaluator) Evaluator {
			ev.Shape = ev.Shape.SetRotation(theta)
			return ev
		})
	})
}

func syncSourceShapeRotation(set *ecs.Set[*Source], rot func(ecs.Entity) (float64, bool)) {
	entities := set.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		theta, ok := rot(e)
		if !ok {
			return
		}
		src, ok := set.Get(e)
		if !ok {
			return
		}
		src.Shape = src.Shape.SetRotation(theta)
	})
}

// ClearOldCollisions empties every Source's collided set in every
// channel (spec.md §4.3 step 6), run before each tick's broadphase so
// stale hits never survive into the next tick.
func (r *Registry) ClearOldCollisions() {
	for _, cd := range r.channels {
		entities := cd.Sources.Entities()
		ecs.ParallelEach(entities, func(e ecs.Entity) {
			if src, ok := cd.Sources.Get(e); ok {
				src.Collided.Clear()
			}
		})
	}
}

// RunBroadphase dispatches the broadphase for a single channel (spec.md
// §4.4) and records hits into each source's Collided set.
func (r *Registry) RunBroadphase(c Channel) {
	cd := r.Channel(c)
	cellSize := c.CellSize()

	var evalCandidates []spatial.Candidate
	cd.Evaluators.Range(func(e ecs.Entity, ev Evaluator) bool {
		evalCandidates = append(evalCandidates, spatial.Candidate{Entity: e, Shape: ev.Shape})
		return true
	})

	var sourceCandidates []spatial.Candidate
	sourcesByEntity := make(map[ecs.Entity]*Source)
	cd.Sources.Range(func(e ecs.Entity, src *Source) bool {
		sourceCandidates = append(sourceCandidates, spatial.Candidate{Entity: e, Shape: src.Shape})
		sourcesByEntity[e] = src
		return true
	})

	hits := spatial.Broadphase(cellSize, evalCandidates, sourceCandidates)
	for _, h := range hits {
		if src, ok := sourcesByEntity[h.Source]; ok {
			src.Collided.Insert(h.Evaluator)
		}
	}
}

// RunAllBroadphases runs every registered channel's broadphase, per
// spec.md §4.3 step 7 ("Broadphase per channel").
func (r *Registry) RunAllBroadphases() {
	for c := range r.channels {
		r.RunBroadphase(c)
	}
}
