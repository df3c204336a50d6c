// Package motion holds the scalar pose components every mobile entity
// carries — position, velocity, rotation, angular velocity — and the two
// plain integrators that advance position/rotation from them each tick
// (spec.md §3, §4.3 steps 4).
package motion

import (
	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
)

// Vec2 is a velocity-space vector (points/second, f32 precision per
// spec.md §3; stored as float32, with integrator arithmetic done in
// float64 and narrowed on store).
type Vec2 struct {
	X, Y float32
}

// Components holds the four per-entity pose component stores.
type Components struct {
	Position        *ecs.Set[geom.Point]
	Velocity        *ecs.Set[Vec2]
	Rotation        *ecs.Set[float64]
	AngularVelocity *ecs.Set[float64]
}

// NewComponents allocates empty stores for all four pose components.
func NewComponents() *Components {
	return &Components{
		Position:        ecs.NewSet[geom.Point](),
		Velocity:        ecs.NewSet[Vec2](),
		Rotation:        ecs.NewSet[float64](),
		AngularVelocity: ecs.NewSet[float64](),
	}
}

// Detach removes every pose component from e. Registered as a
// World.OnDespawn hook.
func (c *Components) Detach(e ecs.Entity) {
	c.Position.Delete(e)
	c.Velocity.Delete(e)
	c.Rotation.Delete(e)
	c.AngularVelocity.Delete(e)
}

// UpdatePositions advances every entity with both Position and Velocity
// by velocity*deltaT (spec.md §4.3 step 4: update_positions_with_velocity).
func (c *Components) UpdatePositions(deltaT float64) {
	entities := c.Velocity.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		v, ok := c.Velocity.Get(e)
		if !ok {
			return
		}
		c.Position.Mutate(e, func(p geom.Point) geom.Point {
			return geom.Point{
				X: p.X + float64(v.X)*deltaT,
				Y: p.Y + float64(v.Y)*deltaT,
			}
		})
	})
}

// UpdateRotations advances every entity with both Rotation and
// AngularVelocity by angularVelocity*deltaT (spec.md §4.3 step 4:
// update_rotations_with_angular_velocity).
func (c *Components) UpdateRotations(deltaT float64) {
	entities := c.AngularVelocity.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		omega, ok := c.AngularVelocity.Get(e)
		if !ok {
			return
		}
		c.Rotation.Mutate(e, func(rot float64) float64 {
			return rot + omega*deltaT
		})
	})
}
