// Package sim wires every subsystem together into the exact phase order
// spec.md §4.3 specifies, once per tick.
package sim

import (
	"github.com/starhold/server/internal/collision"
	"github.com/starhold/server/internal/control"
	"github.com/starhold/server/internal/damage"
	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
	"github.com/starhold/server/internal/motion"
	"github.com/starhold/server/internal/physics"
	"github.com/starhold/server/internal/viewport"
)

// Simulation bundles the entity store and every component registry the
// tick loop iterates over.
type Simulation struct {
	World     *ecs.World
	Motion    *motion.Components
	Physics   *physics.Components
	Control   *control.Components
	Collision *collision.Registry
	Damage    *damage.Components
	Viewport  *viewport.Components

	// OnFire is invoked for every controlled entity whose Fire key was
	// held this tick (spec.md §4.3 step 2). Left to the caller to spawn
	// a munition through the command queue, since munition prototypes
	// are asset-bundle data sim does not own.
	OnFire func(e ecs.Entity)
}

// New constructs a Simulation with every component registry wired and
// every registry's Detach hook registered against the world, so
// despawning an entity always releases its components in every
// subsystem (spec.md §4.2).
func New() *Simulation {
	s := &Simulation{
		World:     ecs.NewWorld(),
		Motion:    motion.NewComponents(),
		Physics:   physics.NewComponents(),
		Control:   control.NewComponents(),
		Collision: collision.NewRegistry(),
		Damage:    damage.NewComponents(),
		Viewport:  viewport.NewComponents(),
	}
	s.World.OnDespawn(s.Motion.Detach)
	s.World.OnDespawn(s.Physics.Detach)
	s.World.OnDespawn(s.Control.Detach)
	s.World.OnDespawn(s.Collision.Detach)
	s.World.OnDespawn(s.Damage.Detach)
	s.World.OnDespawn(s.Viewport.Detach)
	return s
}

// Despawn queues e for despawn through the world's command queue, the
// only path by which an entity leaves every subsystem at once.
func (s *Simulation) Despawn(e ecs.Entity) {
	s.World.Despawn(e)
}

// Tick runs one full phase sequence (spec.md §4.3 steps 2-11; step 1 —
// draining the external command queue — and step 12 — advancing the
// clock — are the caller's responsibility, since they live outside the
// entity store proper).
func (s *Simulation) Tick(deltaT float64) {
	angVel := s.Motion.AngularVelocity

	control.ApplyPlayerControl(s.Control, s.Physics, angVel, s.OnFire)

	physics.UpdateVelocities(s.Physics, s.Motion, deltaT)

	s.Motion.UpdatePositions(deltaT)
	s.Motion.UpdateRotations(deltaT)

	s.Collision.SyncPosition(func(e ecs.Entity) (geom.Point, bool) {
		return s.Motion.Position.Get(e)
	})
	s.Collision.SyncRotation(func(e ecs.Entity) (float64, bool) {
		return s.Motion.Rotation.Get(e)
	})

	s.Collision.ClearOldCollisions()
	s.Collision.RunAllBroadphases()

	damage.EvaluateDamage(s.Collision, s.Damage, s.Despawn)
	damage.EvaluateHealth(s.Damage, deltaT, s.Despawn)
	damage.CheckDespawnTimes(s.Damage, deltaT, s.Despawn)

	viewport.Tick(s.Viewport, s.Collision,
		func(e ecs.Entity) (geom.Point, bool) { return s.Motion.Position.Get(e) },
		func(e ecs.Entity) (float64, bool) { return s.Motion.Rotation.Get(e) },
		func(e ecs.Entity) (float64, float64, bool) {
			v, ok := s.Motion.Velocity.Get(e)
			return float64(v.X), float64(v.Y), ok
		},
		func(e ecs.Entity) (float64, bool) { return s.Motion.AngularVelocity.Get(e) },
	)

	s.World.Commands().Drain()
}
