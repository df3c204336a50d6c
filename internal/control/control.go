// Package control implements apply_player_control (spec.md §4.3 step 2):
// mapping a connected player's held input keys onto the thrust and
// angular-velocity inputs the physics phase consumes.
package control

import (
	"sync"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/physics"
	"github.com/starhold/server/internal/wire"
)

// InputState tracks which of the five control keys a session currently
// holds down. Mutated by the gateway's control loop, read once per tick
// by ApplyPlayerControl — guarded by its own mutex since those two
// goroutines never otherwise coordinate.
type InputState struct {
	mu                             sync.Mutex
	forward, backward, left, right bool
	fire                           bool
}

func NewInputState() *InputState { return &InputState{} }

// Apply updates the held state for one control key.
func (s *InputState) Apply(input wire.ControlKey, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch input {
	case wire.Forward:
		s.forward = pressed
	case wire.Backward:
		s.backward = pressed
	case wire.Left:
		s.left = pressed
	case wire.Right:
		s.right = pressed
	case wire.Fire:
		s.fire = pressed
	}
}

// Snapshot returns the current held state.
func (s *InputState) Snapshot() (forward, backward, left, right, fire bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forward, s.backward, s.left, s.right, s.fire
}

// Components bundles the per-entity controllable components.
type Components struct {
	Inputs    *ecs.Set[*InputState] // PlayerControlled
	MaxAngVel *ecs.Set[float64]     // ControllablePhysics: max angular velocity from input
}

func NewComponents() *Components {
	return &Components{
		Inputs:    ecs.NewSet[*InputState](),
		MaxAngVel: ecs.NewSet[float64](),
	}
}

func (c *Components) Detach(e ecs.Entity) {
	c.Inputs.Delete(e)
	c.MaxAngVel.Delete(e)
}

// ApplyPlayerControl maps each controlled entity's held input keys onto
// its semi-Newtonian State.Thrust and its angular velocity (spec.md
// §4.3 step 2). Fire state is passed to the caller-supplied onFire
// callback; this package does not spawn munitions itself.
func ApplyPlayerControl(c *Components, phys *physics.Components, angVel *ecs.Set[float64], onFire func(ecs.Entity)) {
	entities := c.Inputs.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		input, ok := c.Inputs.Get(e)
		if !ok {
			return
		}
		state, ok := phys.State.Get(e)
		if !ok {
			return
		}
		maxAccel, ok := phys.MaxAccel.Get(e)
		if !ok {
			return
		}
		maxAngVel, ok := c.MaxAngVel.Get(e)
		if !ok {
			maxAngVel = 0
		}

		forward, backward, left, right, fire := input.Snapshot()

		thrust := 0.0
		if forward {
			thrust += maxAccel.MaximumAcceleration
		}
		if backward {
			thrust -= maxAccel.MaximumAcceleration
		}
		phys.State.Set(e, physics.State{Thrust: thrust})

		omega := 0.0
		if left {
			omega -= maxAngVel
		}
		if right {
			omega += maxAngVel
		}
		angVel.Set(e, omega)

		if fire && onFire != nil {
			onFire(e)
		}
	})
}
