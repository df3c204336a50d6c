package damage

import (
	"sync"
	"testing"

	"github.com/starhold/server/internal/collision"
	"github.com/starhold/server/internal/ecs"
)

func TestApplyDamageShieldBreakSpillsProportionalHull(t *testing.T) {
	// Scenario 4: shield=10, hull=100, shield_damage=20, hull_damage=40.
	// Overkill is 10 of 20 (50%), so hull only takes 50% of 40 => 20,
	// leaving hull at 80.
	h := Health{Hull: 100, Shield: 10, MaxHull: 100, MaxShield: 10}
	d := Dealer{HullDamage: 40, ShieldDamage: 20}

	got := applyDamage(h, d)

	if got.Shield != 0 {
		t.Fatalf("expected shield depleted to 0, got %f", got.Shield)
	}
	if got.Hull != 80 {
		t.Fatalf("expected hull 80 after proportional overkill, got %f", got.Hull)
	}
}

func TestApplyDamageShieldAbsorbsWithoutTouchingHull(t *testing.T) {
	h := Health{Hull: 100, Shield: 50, MaxHull: 100, MaxShield: 50}
	d := Dealer{HullDamage: 40, ShieldDamage: 10}

	got := applyDamage(h, d)

	if got.Shield != 40 {
		t.Fatalf("expected shield 40, got %f", got.Shield)
	}
	if got.Hull != 100 {
		t.Fatalf("expected hull untouched while shield absorbs the hit, got %f", got.Hull)
	}
}

func TestEvaluateDamageSkipsOwnAllegiance(t *testing.T) {
	reg := collision.NewRegistry()
	comps := NewComponents()

	const target ecs.Entity = 1
	const friendlyMunition ecs.Entity = 2

	comps.Healths.Set(target, Health{Hull: 100, Shield: 100, MaxHull: 100, MaxShield: 100})
	comps.Dealers.Set(friendlyMunition, Dealer{Allegiance: target, HullDamage: 50, ShieldDamage: 50})

	collided := collision.NewConcurrentEntitySet()
	collided.Insert(target)
	reg.Channel(collision.Damaging).Sources.Set(friendlyMunition, &collision.Source{Collided: collided})

	var despawned []ecs.Entity
	var mu sync.Mutex
	EvaluateDamage(reg, comps, func(e ecs.Entity) {
		mu.Lock()
		despawned = append(despawned, e)
		mu.Unlock()
	})

	h, _ := comps.Healths.Get(target)
	if h.Hull != 100 {
		t.Fatalf("expected no damage from same-allegiance dealer, got hull %f", h.Hull)
	}
	if len(despawned) != 0 {
		t.Fatalf("expected no despawn for same-allegiance hit, got %v", despawned)
	}
}

func TestEvaluateDamageDespawnsMunitionOnHit(t *testing.T) {
	reg := collision.NewRegistry()
	comps := NewComponents()

	const target ecs.Entity = 1
	const enemyMunition ecs.Entity = 2
	const owner ecs.Entity = 99

	comps.Healths.Set(target, Health{Hull: 100, Shield: 100, MaxHull: 100, MaxShield: 100})
	comps.Dealers.Set(enemyMunition, Dealer{Allegiance: owner, HullDamage: 30, ShieldDamage: 30})

	collided := collision.NewConcurrentEntitySet()
	collided.Insert(target)
	reg.Channel(collision.Damaging).Sources.Set(enemyMunition, &collision.Source{Collided: collided})

	var despawned []ecs.Entity
	EvaluateDamage(reg, comps, func(e ecs.Entity) {
		despawned = append(despawned, e)
	})

	h, _ := comps.Healths.Get(target)
	if h.Shield != 70 {
		t.Fatalf("expected shield 70 after hit, got %f", h.Shield)
	}
	if h.Hull != 100 {
		t.Fatalf("expected hull untouched since shield absorbed the hit, got %f", h.Hull)
	}
	if len(despawned) != 1 || despawned[0] != enemyMunition {
		t.Fatalf("expected munition despawned, got %v", despawned)
	}
}

func TestEvaluateDamageStopsAtFirstValidTarget(t *testing.T) {
	reg := collision.NewRegistry()
	comps := NewComponents()

	const targetA ecs.Entity = 1
	const targetB ecs.Entity = 2
	const munition ecs.Entity = 3
	const owner ecs.Entity = 99

	comps.Healths.Set(targetA, Health{Hull: 100, MaxHull: 100})
	comps.Healths.Set(targetB, Health{Hull: 100, MaxHull: 100})
	comps.Dealers.Set(munition, Dealer{Allegiance: owner, HullDamage: 30})

	collided := collision.NewConcurrentEntitySet()
	collided.Insert(targetA)
	collided.Insert(targetB)
	reg.Channel(collision.Damaging).Sources.Set(munition, &collision.Source{Collided: collided})

	var despawned []ecs.Entity
	EvaluateDamage(reg, comps, func(e ecs.Entity) {
		despawned = append(despawned, e)
	})

	hA, _ := comps.Healths.Get(targetA)
	hB, _ := comps.Healths.Get(targetB)
	hit := (hA.Hull != 100) != (hB.Hull != 100) // exactly one of the two was hit
	if !hit {
		t.Fatalf("expected exactly one target damaged, got hullA=%f hullB=%f", hA.Hull, hB.Hull)
	}
	if len(despawned) != 1 || despawned[0] != munition {
		t.Fatalf("expected the munition despawned exactly once, got %v", despawned)
	}
}

func TestEvaluateHealthRegenClampsAndDespawnsOnDeath(t *testing.T) {
	comps := NewComponents()
	comps.Healths.Set(1, Health{Hull: 5, Shield: 90, MaxHull: 100, MaxShield: 100, HullRegen: 10, ShieldRegen: 50})
	comps.Healths.Set(2, Health{Hull: -1, Shield: 0, MaxHull: 100, MaxShield: 100})

	var despawned []ecs.Entity
	var mu sync.Mutex
	EvaluateHealth(comps, 1.0, func(e ecs.Entity) {
		mu.Lock()
		despawned = append(despawned, e)
		mu.Unlock()
	})

	h1, _ := comps.Healths.Get(1)
	if h1.Hull != 15 {
		t.Fatalf("expected hull regen to 15, got %f", h1.Hull)
	}
	if h1.Shield != 100 {
		t.Fatalf("expected shield clamped to max 100, got %f", h1.Shield)
	}
	if len(despawned) != 1 || despawned[0] != ecs.Entity(2) {
		t.Fatalf("expected entity 2 despawned for hull<=0, got %v", despawned)
	}
}

func TestCheckDespawnTimesCountsDownAndDespawns(t *testing.T) {
	comps := NewComponents()
	comps.Timeouts.Set(1, Timeout{Remaining: 0.5})

	var despawned []ecs.Entity
	CheckDespawnTimes(comps, 1.0, func(e ecs.Entity) {
		despawned = append(despawned, e)
	})

	if len(despawned) != 1 {
		t.Fatalf("expected timeout expiry despawn, got %v", despawned)
	}
}
