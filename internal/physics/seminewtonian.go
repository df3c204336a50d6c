// Package physics implements the semi-Newtonian velocity integration from
// spec.md §4.5 — the non-trivial thrust/max-speed/rotation-compensation
// math that gives ships their characteristic handling. The closed-form
// rotation compensation is load-bearing (spec.md §9): it must not be
// simplified to a plain magnitude clamp.
package physics

import (
	"math"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/motion"
)

const (
	epsilon  = 1e-3
	kExp     = 2.0
	kLin     = 1.0
	kDrag    = 1.0
	dragCeil = 0.1 // fraction of maximum_speed below which low-speed drag applies
)

// State is the semi-Newtonian thrust component (spec.md §3).
type State struct {
	Thrust float64 // acceleration scalar, applied along the entity's facing
}

// MaxSpeed caps the steady-state speed a ship's thrust can sustain.
type MaxSpeed struct {
	MaximumSpeed float64
}

// MaxAcceleration is the thrust magnitude a ship applies while a forward
// or backward key is held (consumed by the control-input mapping in §4.3
// step 2, not by the velocity update itself).
type MaxAcceleration struct {
	MaximumAcceleration float64
}

// Components bundles the semi-Newtonian component stores.
type Components struct {
	State    *ecs.Set[State]
	MaxSpeed *ecs.Set[MaxSpeed]
	MaxAccel *ecs.Set[MaxAcceleration]
}

func NewComponents() *Components {
	return &Components{
		State:    ecs.NewSet[State](),
		MaxSpeed: ecs.NewSet[MaxSpeed](),
		MaxAccel: ecs.NewSet[MaxAcceleration](),
	}
}

func (c *Components) Detach(e ecs.Entity) {
	c.State.Delete(e)
	c.MaxSpeed.Delete(e)
	c.MaxAccel.Delete(e)
}

// UpdateVelocities runs the semi-Newtonian integration (spec.md §4.3 step
// 3) over every entity carrying State, MaxSpeed, Position's Velocity, and
// Rotation's AngularVelocity/Rotation. It is a pure function of the
// current components, called once per tick per matching entity.
func UpdateVelocities(c *Components, pose *motion.Components, deltaT float64) {
	entities := c.State.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		state, ok := c.State.Get(e)
		if !ok {
			return
		}
		maxSpeed, ok := c.MaxSpeed.Get(e)
		if !ok {
			return
		}
		v, ok := pose.Velocity.Get(e)
		if !ok {
			return
		}
		rot, ok := pose.Rotation.Get(e)
		if !ok {
			return
		}
		omega, ok := pose.AngularVelocity.Get(e)
		if !ok {
			omega = 0
		}

		nv := Integrate(
			float64(v.X), float64(v.Y),
			rot, omega, state.Thrust, maxSpeed.MaximumSpeed, deltaT,
		)
		pose.Velocity.Set(e, motion.Vec2{X: float32(nv.X), Y: float32(nv.Y)})
	})
}

// Vec is a plain 2-D float64 vector, used only inside this package's math
// so intermediate precision isn't lost to float32 rounding mid-computation.
type Vec struct{ X, Y float64 }

func (a Vec) add(b Vec) Vec   { return Vec{a.X + b.X, a.Y + b.Y} }
func (a Vec) scale(s float64) Vec { return Vec{a.X * s, a.Y * s} }
func (a Vec) length() float64 { return math.Hypot(a.X, a.Y) }
func (a Vec) rotate(theta float64) Vec {
	c, s := math.Cos(theta), math.Sin(theta)
	return Vec{a.X*c - a.Y*s, a.X*s + a.Y*c}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// Integrate performs the §4.5 velocity update for one entity, given its
// current velocity (vx, vy), rotation *after* this tick's rotation step,
// angular velocity, thrust scalar, and maximum speed. Returns the new
// velocity.
func Integrate(vx, vy, rotation, angularVelocity, thrust, maxSpeed, deltaT float64) Vec {
	v := Vec{vx, vy}

	// Step 1: thrust vector before/after this tick's rotation step.
	rotBefore := rotation - angularVelocity*deltaT
	before := Vec{math.Cos(rotBefore), math.Sin(rotBefore)}.scale(thrust)
	after := Vec{math.Cos(rotation), math.Sin(rotation)}.scale(thrust)

	// Step 2: average them.
	vectorThrust := Vec{
		X: lerp(after.X, before.X, 0.5),
		Y: lerp(after.Y, before.Y, 0.5),
	}

	// Step 3: tentative new velocity.
	vPrime := v.add(vectorThrust.scale(deltaT))

	final := vPrime
	excess := vPrime.length() - maxSpeed
	if excess > epsilon && vectorThrust.length() > epsilon {
		speed := vPrime.length()
		excessFalloff := excess*math.Exp(-kExp*deltaT) - math.Max(kLin*deltaT, 0)
		clamped := vPrime.scale(math.Min(1, (speed-excessFalloff)/speed))

		// Maximum-speed rotation compensation (spec.md §4.5, §9 — load-bearing).
		alpha := angularVelocity * deltaT
		sinA, cosA := math.Sin(alpha), math.Cos(alpha)
		origSpeed := v.length()
		if origSpeed > epsilon && sinA != 0 {
			alphaPrime := math.Atan2(origSpeed*sinA, thrust*deltaT*sinA+origSpeed*cosA)
			corrected := clamped.rotate(alpha - alphaPrime)
			if corrected.length() < maxSpeed {
				corrected = corrected.scale(maxSpeed / math.Max(corrected.length(), epsilon))
			}
			final = corrected
		} else {
			final = clamped
		}
	}

	// Step 6: low-speed drag.
	if final.length() <= maxSpeed*dragCeil {
		final = final.scale(math.Exp(-kDrag * deltaT))
	}

	return final
}
