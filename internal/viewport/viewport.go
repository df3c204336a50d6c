// Package viewport implements per-client differential object streaming
// (spec.md §4.7): each connected client's viewport is a Displayable-channel
// collider Source whose collided set drives a create/update/destroy diff
// against the set of ids it streamed last tick.
package viewport

import (
	"sync"
	"sync/atomic"

	"github.com/starhold/server/internal/collision"
	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
)

// ObjectKind tags the payload carried by an outgoing Event.
type ObjectKind int

const (
	ObjectCreation ObjectKind = iota
	ObjectUpdate
	ObjectDestruction
)

// Event is one line of a viewport's outgoing diff stream. Position,
// Rotation, Velocity, and AngularVelocity are zero-filled for entities
// with no motion component (spec.md §4.7 step 2); ObjectType is never
// zero-filled — an entity missing it is skipped before an Event is ever
// built for it.
type Event struct {
	Kind            ObjectKind
	Entity          ecs.Entity
	Position        geom.Point
	Rotation        float64
	VX, VY          float64
	AngularVelocity float64
	ObjectType      string
}

// Viewport is attached to an entity that represents a connected client's
// view into the world: it owns the Displayable-channel Source that the
// broadphase populates, an outgoing event channel the gateway drains, and
// a cancel flag set when the connection tears down (spec.md §4.7, §4.9).
type Viewport struct {
	Outgoing     chan Event
	cancelled    atomic.Bool
	mu           sync.Mutex
	lastTickIDs  map[ecs.Entity]struct{}
}

// outgoingBuffer bounds backpressure from a slow client without blocking
// the simulation tick (spec.md §4.7: "silently ignoring send failures").
const outgoingBuffer = 256

func NewViewport() *Viewport {
	return &Viewport{
		Outgoing:    make(chan Event, outgoingBuffer),
		lastTickIDs: make(map[ecs.Entity]struct{}),
	}
}

func (v *Viewport) Cancel()          { v.cancelled.Store(true) }
func (v *Viewport) Cancelled() bool  { return v.cancelled.Load() }

// send pushes an event without blocking; a full channel means the client
// is behind and the frame is simply dropped rather than stalling the tick.
func (v *Viewport) send(ev Event) {
	select {
	case v.Outgoing <- ev:
	default:
	}
}

// Components bundles the per-entity viewport component store plus the
// Displayable object-type tag every streamable entity carries (spec.md
// §4.7 step 2: "Displayable.object_type").
type Components struct {
	Viewports   *ecs.Set[*Viewport]
	ObjectTypes *ecs.Set[string]
}

func NewComponents() *Components {
	return &Components{
		Viewports:   ecs.NewSet[*Viewport](),
		ObjectTypes: ecs.NewSet[string](),
	}
}

func (c *Components) Detach(e ecs.Entity) {
	if vp, ok := c.Viewports.Get(e); ok {
		vp.Cancel()
	}
	c.Viewports.Delete(e)
	c.ObjectTypes.Delete(e)
}

// Tick computes and emits each viewport's create/update/destroy diff for
// this tick (spec.md §4.3 step 8, §4.7). Each viewport's current set is
// its Displayable Source.Collided snapshot; position/rotation/velocity
// lookups resolve the payload for update events (zero-filled when an
// entity has no motion), and the object-type lookup gates whether an
// entity is streamable at all.
func Tick(
	comps *Components,
	reg *collision.Registry,
	positions func(ecs.Entity) (geom.Point, bool),
	rotations func(ecs.Entity) (float64, bool),
	velocities func(ecs.Entity) (vx, vy float64, ok bool),
	angularVelocities func(ecs.Entity) (float64, bool),
) {
	cd := reg.Channel(collision.Displayable)
	entities := comps.Viewports.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		vp, ok := comps.Viewports.Get(e)
		if !ok || vp.Cancelled() {
			return
		}
		src, ok := cd.Sources.Get(e)
		if !ok {
			return
		}

		current := make(map[ecs.Entity]string)
		for _, id := range src.Collided.Snapshot() {
			// Look up Evaluator<Displayable> shape and Displayable.object_type;
			// if either is missing, the entity is not streamable, skip it
			// entirely (spec.md §4.7 step 2).
			if _, hasShape := cd.Evaluators.Get(id); !hasShape {
				continue
			}
			objectType, hasType := comps.ObjectTypes.Get(id)
			if !hasType {
				continue
			}
			current[id] = objectType
		}

		vp.mu.Lock()
		previous := vp.lastTickIDs
		vp.mu.Unlock()

		for id, objectType := range current {
			pos, _ := positions(id)
			rot, _ := rotations(id)
			vx, vy, _ := velocities(id)
			angVel, _ := angularVelocities(id)

			if _, existed := previous[id]; !existed {
				vp.send(Event{Kind: ObjectCreation, Entity: id})
			}
			vp.send(Event{
				Kind: ObjectUpdate, Entity: id,
				Position: pos, Rotation: rot,
				VX: vx, VY: vy, AngularVelocity: angVel,
				ObjectType: objectType,
			})
		}
		for id := range previous {
			if _, stillVisible := current[id]; !stillVisible {
				vp.send(Event{Kind: ObjectDestruction, Entity: id})
			}
		}

		vp.mu.Lock()
		vp.lastTickIDs = idSet(current)
		vp.mu.Unlock()
	})
}

func idSet(m map[ecs.Entity]string) map[ecs.Entity]struct{} {
	out := make(map[ecs.Entity]struct{}, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}
