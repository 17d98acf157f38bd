package goimaging

import (
	"sync"
)

// gate bounds the number of engine operations running at once. Changing the
// limit only affects operations that have not entered yet.
type gate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	limit  int
	active int
}

// newGate returns a gate admitting limit operations; zero or less is
// unbounded.
func newGate(limit int) *gate {
	g := &gate{limit: limit}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// enter blocks until a slot is free and returns the function that frees it.
func (g *gate) enter() func() {
	g.mu.Lock()
	for g.limit > 0 && g.active >= g.limit {
		g.cond.Wait()
	}
	g.active++
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
		g.cond.Signal()
	}
}

func (g *gate) resize(limit int) {
	g.mu.Lock()
	g.limit = limit
	g.mu.Unlock()
	g.cond.Broadcast()
}
