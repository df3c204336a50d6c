package control

import (
	"testing"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/physics"
	"github.com/starhold/server/internal/wire"
)

func TestApplyPlayerControlMapsThrustAndAngularVelocity(t *testing.T) {
	comps := NewComponents()
	phys := physics.NewComponents()
	angVel := ecs.NewSet[float64]()

	const e ecs.Entity = 1
	input := NewInputState()
	input.Apply(wire.Forward, true)
	input.Apply(wire.Right, true)
	comps.Inputs.Set(e, input)
	comps.MaxAngVel.Set(e, 2.0)
	phys.State.Set(e, physics.State{})
	phys.MaxAccel.Set(e, physics.MaxAcceleration{MaximumAcceleration: 50})

	ApplyPlayerControl(comps, phys, angVel, nil)

	state, _ := phys.State.Get(e)
	if state.Thrust != 50 {
		t.Fatalf("expected thrust 50, got %f", state.Thrust)
	}
	omega, _ := angVel.Get(e)
	if omega != 2.0 {
		t.Fatalf("expected angular velocity 2.0, got %f", omega)
	}
}

func TestApplyPlayerControlFireCallback(t *testing.T) {
	comps := NewComponents()
	phys := physics.NewComponents()
	angVel := ecs.NewSet[float64]()

	const e ecs.Entity = 1
	input := NewInputState()
	input.Apply(wire.Fire, true)
	comps.Inputs.Set(e, input)
	phys.State.Set(e, physics.State{})
	phys.MaxAccel.Set(e, physics.MaxAcceleration{})

	fired := false
	ApplyPlayerControl(comps, phys, angVel, func(fe ecs.Entity) {
		if fe == e {
			fired = true
		}
	})
	if !fired {
		t.Fatal("expected onFire callback to be invoked")
	}
}

func TestApplyPlayerControlOppositeKeysCancel(t *testing.T) {
	comps := NewComponents()
	phys := physics.NewComponents()
	angVel := ecs.NewSet[float64]()

	const e ecs.Entity = 1
	input := NewInputState()
	input.Apply(wire.Left, true)
	input.Apply(wire.Right, true)
	comps.Inputs.Set(e, input)
	comps.MaxAngVel.Set(e, 2.0)
	phys.State.Set(e, physics.State{})
	phys.MaxAccel.Set(e, physics.MaxAcceleration{})

	ApplyPlayerControl(comps, phys, angVel, nil)

	omega, _ := angVel.Get(e)
	if omega != 0 {
		t.Fatalf("expected opposing turn keys to cancel to 0, got %f", omega)
	}
}
