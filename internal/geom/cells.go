package geom

import "math"

// CellCoord is an integer spatial hash cell address.
type CellCoord struct {
	X, Y int64
}

// CellIterator walks the integer grid cells an AABB overlaps, row-major
// over y then x, per spec.md §4.1. It is finite and restartable — Reset
// rewinds it to the first cell without reallocating.
type CellIterator struct {
	minX, maxX, minY, maxY int64
	x, y                    int64
	done                    bool
}

// NewCellIterator builds an iterator over the cells box overlaps at the
// given per-channel hash cell size H.
func NewCellIterator(box AABB, cellSize float64) *CellIterator {
	it := &CellIterator{}
	it.minX = floorDiv(box.Min.X, cellSize)
	it.maxX = floorDiv(box.Max.X, cellSize)
	it.minY = floorDiv(box.Min.Y, cellSize)
	it.maxY = floorDiv(box.Max.Y, cellSize)
	it.Reset()
	return it
}

func floorDiv(v, cellSize float64) int64 {
	return int64(math.Floor(v / cellSize))
}

// Reset rewinds the iterator to its first cell.
func (it *CellIterator) Reset() {
	it.x, it.y = it.minX, it.minY
	it.done = false
}

// Next returns the next cell and true, or a zero value and false once
// exhausted.
func (it *CellIterator) Next() (CellCoord, bool) {
	if it.done {
		return CellCoord{}, false
	}
	cell := CellCoord{X: it.x, Y: it.y}
	it.x++
	if it.x > it.maxX {
		it.x = it.minX
		it.y++
		if it.y > it.maxY {
			it.done = true
		}
	}
	return cell, true
}

// Cells collects all cells the AABB overlaps. Convenience wrapper around
// CellIterator for callers that don't need to stream.
func Cells(box AABB, cellSize float64) []CellCoord {
	it := NewCellIterator(box, cellSize)
	out := make([]CellCoord, 0, 4)
	for {
		c, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// Key packs a cell coordinate into a single int64 for cheap map hashing
// under broadphase load — grounded on the original implementation's
// coordinate-hashing strategy (see SPEC_FULL.md §4.12).
func (c CellCoord) Key() int64 {
	return (c.X << 32) ^ (c.Y & 0xFFFFFFFF)
}
