// Package spatial implements the cell-based broadphase from spec.md §4.4:
// map shapes into grid cells, sort candidates by cell, scan each cell's
// run for analytic hits, and dispatch them to the caller.
package spatial

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/geom"
)

// Role distinguishes which side of a directional collision a candidate
// plays (spec.md §3: "evaluator" vs "source").
type Role uint8

const (
	RoleEvaluator Role = iota
	RoleSource
)

// Candidate is one (entity, shape) pair contributed to the broadphase for
// a single channel.
type Candidate struct {
	Entity ecs.Entity
	Shape  geom.Shape
}

type tuple struct {
	cell   int64
	entity ecs.Entity
	shape  geom.Shape
	role   Role
}

// Hit reports an evaluator's shape colliding with a source's shape.
type Hit struct {
	Evaluator ecs.Entity
	Source    ecs.Entity
}

// Broadphase returns every (evaluator, source) pair whose shapes overlap
// at least one grid cell of the given size and pass the analytic
// Shape.Collides test. HASH_CELL_SIZE (cellSize) must exceed the diameter
// of the largest shape on the channel for completeness (spec.md §4.4).
//
// A pair sharing multiple cells is naturally deduplicated: callers insert
// hits into an idempotent set (see internal/collision.ConcurrentEntitySet),
// so reporting the same pair twice is harmless; Broadphase tests and
// reports such a pair once per shared cell.
func Broadphase(cellSize float64, evaluators, sources []Candidate) []Hit {
	tuples := make([]tuple, 0, (len(evaluators)+len(sources))*2)
	tuples = appendTuples(tuples, evaluators, RoleEvaluator, cellSize)
	tuples = appendTuples(tuples, sources, RoleSource, cellSize)

	sort.Slice(tuples, func(i, j int) bool { return tuples[i].cell < tuples[j].cell })

	groups := groupByCell(tuples)

	workers := runtime.GOMAXPROCS(0)
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers <= 1 {
		return scanGroups(groups)
	}

	chunk := (len(groups) + workers - 1) / workers
	results := make([][]Hit, workers)
	var g errgroup.Group
	idx := 0
	for start := 0; start < len(groups); start += chunk {
		end := start + chunk
		if end > len(groups) {
			end = len(groups)
		}
		part := groups[start:end]
		slot := idx
		idx++
		g.Go(func() error {
			results[slot] = scanGroups(part)
			return nil
		})
	}
	_ = g.Wait()

	var out []Hit
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func appendTuples(tuples []tuple, items []Candidate, role Role, cellSize float64) []tuple {
	for _, item := range items {
		it := geom.NewCellIterator(item.Shape.AABB(), cellSize)
		for {
			c, ok := it.Next()
			if !ok {
				break
			}
			tuples = append(tuples, tuple{cell: c.Key(), entity: item.Entity, shape: item.Shape, role: role})
		}
	}
	return tuples
}

func groupByCell(sorted []tuple) [][]tuple {
	var groups [][]tuple
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j].cell == sorted[i].cell {
			j++
		}
		groups = append(groups, sorted[i:j])
		i = j
	}
	return groups
}

func scanGroups(groups [][]tuple) []Hit {
	var hits []Hit
	for _, group := range groups {
		var evals, srcs []tuple
		for _, t := range group {
			if t.role == RoleEvaluator {
				evals = append(evals, t)
			} else {
				srcs = append(srcs, t)
			}
		}
		for _, e := range evals {
			for _, s := range srcs {
				if e.shape.Collides(s.shape) {
					hits = append(hits, Hit{Evaluator: e.entity, Source: s.entity})
				}
			}
		}
	}
	return hits
}
