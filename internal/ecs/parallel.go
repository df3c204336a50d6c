package ecs

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelEach partitions entities into disjoint, contiguous chunks and
// runs fn over each chunk on its own goroutine, per spec.md §4.2/§5 —
// "parallel iteration over disjoint entity ids". It blocks until every
// chunk has been processed (a phase never returns to the tick driver
// early). fn must only touch the entity passed to it and components owned
// exclusively by the calling system for that phase.
func ParallelEach(entities []Entity, fn func(Entity)) {
	if len(entities) == 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > len(entities) {
		workers = len(entities)
	}
	if workers <= 1 {
		for _, e := range entities {
			fn(e)
		}
		return
	}

	chunk := (len(entities) + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < len(entities); start += chunk {
		end := start + chunk
		if end > len(entities) {
			end = len(entities)
		}
		part := entities[start:end]
		g.Go(func() error {
			for _, e := range part {
				fn(e)
			}
			return nil
		})
	}
	_ = g.Wait() // fn never returns an error; Wait only blocks for completion
}
