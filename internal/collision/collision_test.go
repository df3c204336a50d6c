package collision

import (
	"sync"
	"testing"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
)

func TestConcurrentEntitySetIdempotent(t *testing.T) {
	s := NewConcurrentEntitySet()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Insert(ecs.Entity(1))
		}()
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Fatalf("expected one member after concurrent duplicate inserts, got %d", s.Len())
	}
	if !s.Contains(1) {
		t.Fatal("expected set to contain entity 1")
	}
}

func TestConcurrentEntitySetClear(t *testing.T) {
	s := NewConcurrentEntitySet()
	s.Insert(1)
	s.Insert(2)
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty set after Clear, got %d", s.Len())
	}
}

func TestRegistryBroadphaseRecordsHit(t *testing.T) {
	r := NewRegistry()
	cd := r.Channel(Damaging)

	cd.Evaluators.Set(1, Evaluator{Shape: geom.NewCircle(geom.Point{X: 0, Y: 0}, 1)})
	cd.Sources.Set(2, &Source{
		Shape:    geom.NewCircle(geom.Point{X: 0.5, Y: 0}, 1),
		Collided: NewConcurrentEntitySet(),
	})

	r.RunBroadphase(Damaging)

	src, ok := cd.Sources.Get(2)
	if !ok {
		t.Fatal("expected source 2 to still exist")
	}
	if !src.Collided.Contains(1) {
		t.Fatal("expected source 2 to have collided with evaluator 1")
	}
}

func TestRegistryClearOldCollisions(t *testing.T) {
	r := NewRegistry()
	cd := r.Channel(Displayable)
	set := NewConcurrentEntitySet()
	set.Insert(99)
	cd.Sources.Set(1, &Source{Shape: geom.NewCircle(geom.Point{}, 1), Collided: set})

	r.ClearOldCollisions()

	src, _ := cd.Sources.Get(1)
	if src.Collided.Len() != 0 {
		t.Fatal("expected collided set cleared")
	}
}

func TestRegistryDetachRemovesFromAllChannels(t *testing.T) {
	r := NewRegistry()
	r.Channel(Displayable).Evaluators.Set(5, Evaluator{Shape: geom.NewCircle(geom.Point{}, 1)})
	r.Channel(Damaging).Sources.Set(5, &Source{Shape: geom.NewCircle(geom.Point{}, 1), Collided: NewConcurrentEntitySet()})

	r.Detach(5)

	if r.Channel(Displayable).Evaluators.Has(5) {
		t.Fatal("expected evaluator removed")
	}
	if r.Channel(Damaging).Sources.Has(5) {
		t.Fatal("expected source removed")
	}
}

func TestSyncPositionMovesShapes(t *testing.T) {
	r := NewRegistry()
	cd := r.Channel(Displayable)
	cd.Evaluators.Set(1, Evaluator{Shape: geom.NewCircle(geom.Point{X: 0, Y: 0}, 1)})

	r.SyncPosition(func(e ecs.Entity) (geom.Point, bool) {
		if e == 1 {
			return geom.Point{X: 10, Y: 10}, true
		}
		return geom.Point{}, false
	})

	ev, _ := cd.Evaluators.Get(1)
	if ev.Shape.Center() != (geom.Point{X: 10, Y: 10}) {
		t.Fatalf("expected shape moved to (10,10), got %+v", ev.Shape.Center())
	}
}
