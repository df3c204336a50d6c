// Package damage implements the damage-dealing collider channel and the
// shield/hull health resolution from spec.md §4.6.
package damage

import (
	"github.com/starhold/server/internal/collision"
	"github.com/starhold/server/internal/ecs"
)

// Dealer is attached to an entity that deals damage on a Damaging-channel
// collision (e.g. a projectile). Allegiance identifies the owner so an
// entity never damages its own source (spec.md §4.6: skip self/owner).
type Dealer struct {
	Allegiance   ecs.Entity
	HullDamage   float64
	ShieldDamage float64
}

// Health is the shield-then-hull health pool (spec.md §3, §4.6).
type Health struct {
	Hull        float64
	Shield      float64
	MaxHull     float64
	MaxShield   float64
	HullRegen   float64
	ShieldRegen float64
}

// Timeout marks an entity for despawn once its remaining time reaches
// zero, independent of health (spec.md §4.6: check_despawn_times).
type Timeout struct {
	Remaining float64
}

// Components bundles the damage/health/timeout component stores.
type Components struct {
	Dealers  *ecs.Set[Dealer]
	Healths  *ecs.Set[Health]
	Timeouts *ecs.Set[Timeout]
}

func NewComponents() *Components {
	return &Components{
		Dealers:  ecs.NewSet[Dealer](),
		Healths:  ecs.NewSet[Health](),
		Timeouts: ecs.NewSet[Timeout](),
	}
}

func (c *Components) Detach(e ecs.Entity) {
	c.Dealers.Delete(e)
	c.Healths.Delete(e)
	c.Timeouts.Delete(e)
}

// EvaluateDamage walks every Damaging-channel Source — the damaging
// entity itself (e.g. a munition), which accumulated its own collided
// set during broadphase — and, for the first collided entity that isn't
// its own allegiance and carries a Health, applies damage once and
// despawns the dealer. One hit, one target. Break. (spec.md §4.6 step 1).
// world.Despawn is deferred via the command queue, consistent with
// spec.md §4.2's structural-mutation rule.
func EvaluateDamage(reg *collision.Registry, comps *Components, despawn func(ecs.Entity)) {
	cd := reg.Channel(collision.Damaging)
	cd.Sources.Range(func(attacker ecs.Entity, src *collision.Source) bool {
		dealer, ok := comps.Dealers.Get(attacker)
		if !ok {
			return true
		}
		for _, target := range src.Collided.Snapshot() {
			if target == dealer.Allegiance {
				continue // an entity never damages its own side
			}
			health, ok := comps.Healths.Get(target)
			if !ok {
				continue
			}
			comps.Healths.Set(target, applyDamage(health, dealer))
			despawn(attacker)
			break
		}
		return true
	})
}

// applyDamage resolves shield-then-hull damage: shield damage always
// depletes the shield pool, and hull is touched only when the shield
// breaks, by the proportion of shield damage that overkilled the
// remaining shield (spec.md §4.6, scenario 4).
func applyDamage(h Health, d Dealer) Health {
	remainingShield := h.Shield - d.ShieldDamage
	if remainingShield <= 0 {
		overkillShieldDamage := -remainingShield
		remainingShield = 0

		overkillProportion := overkillShieldDamage / d.ShieldDamage
		hullDamageDealt := overkillProportion * d.HullDamage

		h.Hull -= hullDamageDealt
	}
	h.Shield = remainingShield
	return h
}

// EvaluateHealth regenerates shield/hull toward their maximums and
// despawns any entity whose hull has reached zero or below (spec.md
// §4.6 step 2: evaluate_health).
func EvaluateHealth(comps *Components, deltaT float64, despawn func(ecs.Entity)) {
	entities := comps.Healths.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		h, ok := comps.Healths.Get(e)
		if !ok {
			return
		}
		h.Shield = clamp(h.Shield+h.ShieldRegen*deltaT, 0, h.MaxShield)
		h.Hull = clamp(h.Hull+h.HullRegen*deltaT, 0, h.MaxHull)
		comps.Healths.Set(e, h)
		if h.Hull <= 0 {
			despawn(e)
		}
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CheckDespawnTimes counts down every Timeout and despawns entities whose
// remaining time has elapsed (spec.md §4.6 step 3: check_despawn_times).
func CheckDespawnTimes(comps *Components, deltaT float64, despawn func(ecs.Entity)) {
	entities := comps.Timeouts.Entities()
	ecs.ParallelEach(entities, func(e ecs.Entity) {
		t, ok := comps.Timeouts.Get(e)
		if !ok {
			return
		}
		t.Remaining -= deltaT
		if t.Remaining <= 0 {
			despawn(e)
			return
		}
		comps.Timeouts.Set(e, t)
	})
}
