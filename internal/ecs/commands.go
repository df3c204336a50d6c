package ecs

import "sync"

// Command is a structural mutation (spawn, despawn, attach, detach)
// deferred until a phase boundary, per spec.md §4.2: "structural changes
// are buffered as commands and applied at phase boundaries."
type Command func()

// CommandQueue buffers structural commands produced during a phase (by
// systems, or by the external-command bridge) for later application.
type CommandQueue struct {
	mu  sync.Mutex
	cmd []Command
}

// NewCommandQueue returns an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{}
}

// Push enqueues a command. Safe to call concurrently from parallel system
// workers.
func (q *CommandQueue) Push(c Command) {
	q.mu.Lock()
	q.cmd = append(q.cmd, c)
	q.mu.Unlock()
}

// Drain applies and clears every buffered command, in FIFO order. Must be
// called from the single goroutine that owns the entity store.
func (q *CommandQueue) Drain() {
	q.mu.Lock()
	cmds := q.cmd
	q.cmd = nil
	q.mu.Unlock()
	for _, c := range cmds {
		c()
	}
}

// Len reports the number of buffered commands (for diagnostics/tests).
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmd)
}
