package geom

import (
	"math"
	"testing"
)

func TestCircleVsCircleSymmetry(t *testing.T) {
	a := NewCircle(Point{0, 0}, 1)
	b := NewCircle(Point{1.5, 0}, 1)
	if !a.Collides(b) {
		t.Fatal("expected overlap")
	}
	if a.Collides(b) != b.Collides(a) {
		t.Fatal("collides must be symmetric")
	}

	c := NewCircle(Point{10, 0}, 1)
	if a.Collides(c) {
		t.Fatal("expected no overlap")
	}
	if a.Collides(c) != c.Collides(a) {
		t.Fatal("collides must be symmetric")
	}
}

func TestCircleVsTube(t *testing.T) {
	tube := NewRoundedTube(Point{-5, 0}, Point{5, 0}, 1)
	onSegment := NewCircle(Point{0, 1.5}, 1)
	if !onSegment.Collides(tube) {
		t.Fatal("expected overlap with segment midpoint")
	}
	if onSegment.Collides(tube) != tube.Collides(onSegment) {
		t.Fatal("must be symmetric")
	}

	beyondEnd := NewCircle(Point{6.5, 0}, 1)
	if !beyondEnd.Collides(tube) {
		t.Fatal("expected overlap clamped to endpoint")
	}

	farAway := NewCircle(Point{0, 10}, 1)
	if farAway.Collides(tube) {
		t.Fatal("expected no overlap")
	}
}

func TestTubeVsTubeSymmetry(t *testing.T) {
	a := NewRoundedTube(Point{0, 0}, Point{10, 0}, 1)
	b := NewRoundedTube(Point{5, -0.5}, Point{5, 5}, 1)
	if !a.Collides(b) {
		t.Fatal("expected overlap")
	}
	if a.Collides(b) != b.Collides(a) {
		t.Fatal("must be symmetric")
	}
}

func TestDegenerateTubeIsCircle(t *testing.T) {
	tube := NewRoundedTube(Point{3, 4}, Point{3, 4}, 2)
	if tube.Kind() != KindCircle {
		t.Fatalf("degenerate tube must be stored as a circle, got kind %v", tube.Kind())
	}
	if tube.Radius() != 2 || tube.Center() != (Point{3, 4}) {
		t.Fatal("degenerate tube lost its center/radius")
	}
}

func TestSetRotationMovesEndpoints(t *testing.T) {
	tube := NewRoundedTube(Point{-1, 0}, Point{1, 0}, 0.5)
	rotated := tube.SetRotation(math.Pi / 2)
	p1, p2 := rotated.Endpoints()
	if math.Abs(p1.X) > 1e-9 || math.Abs(p2.X) > 1e-9 {
		t.Fatalf("expected endpoints on the y-axis after 90deg rotation, got %v %v", p1, p2)
	}
}

func TestAABBCircle(t *testing.T) {
	c := NewCircle(Point{1, 1}, 2)
	box := c.AABB()
	if box.Min != (Point{-1, -1}) || box.Max != (Point{3, 3}) {
		t.Fatalf("unexpected aabb: %+v", box)
	}
}

func TestCellIteratorRowMajorNoDedup(t *testing.T) {
	box := AABB{Min: Point{0.1, 0.1}, Max: Point{2.1, 1.1}}
	cells := Cells(box, 1.0)
	want := []CellCoord{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	if len(cells) != len(want) {
		t.Fatalf("got %d cells, want %d: %v", len(cells), len(want), cells)
	}
	for i, c := range cells {
		if c != want[i] {
			t.Fatalf("cell %d: got %v want %v", i, c, want[i])
		}
	}
}

func TestCellIteratorRestartable(t *testing.T) {
	box := AABB{Min: Point{0, 0}, Max: Point{1, 1}}
	it := NewCellIterator(box, 1.0)
	first := collectAll(it)
	it.Reset()
	second := collectAll(it)
	if len(first) != len(second) {
		t.Fatal("restart produced different cell count")
	}
}

func collectAll(it *CellIterator) []CellCoord {
	var out []CellCoord
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

func TestCellSizeCatchesBoundaryCollision(t *testing.T) {
	// Scenario 6 from spec.md §8: two radius-1 circles at (0.1,0) and
	// (1.9,0) with HASH_CELL_SIZE=2 must share a cell and collide.
	a := NewCircle(Point{0.1, 0}, 1)
	b := NewCircle(Point{1.9, 0}, 1)
	if !a.Collides(b) {
		t.Fatal("expected analytic collision")
	}
	cellsA := Cells(a.AABB(), 2)
	cellsB := Cells(b.AABB(), 2)
	shared := false
	for _, ca := range cellsA {
		for _, cb := range cellsB {
			if ca == cb {
				shared = true
			}
		}
	}
	if !shared {
		t.Fatal("expected shared cell")
	}
}
