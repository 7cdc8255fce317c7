// Exclusion is a reader-drain barrier: any number of tasks may Enter
// concurrently, but WaitDrained blocks a would-be exclusive actor
// (e.g. an AOTE invalidation) until every current entrant has Left.
// It is built directly on an ec.EC1 rather than a condition variable,
// matching how the original kernel expresses this kind of drain
// ("wait until event N, where N counts drain completions") as an
// event-count wait instead of a dedicated primitive.
package ml

import (
	"context"
	"sync"

	"ec"
)

// Exclusion tracks active entrants and signals an EC1 each time the
// count returns to zero.
type Exclusion struct {
	mu      sync.Mutex
	count   int
	drained ec.EC1
}

// NewExclusion returns a ready-to-use Exclusion.
func NewExclusion() *Exclusion {
	x := &Exclusion{}
	x.drained.Init()
	return x
}

// Enter registers one active entrant.
func (x *Exclusion) Enter() {
	x.mu.Lock()
	x.count++
	x.mu.Unlock()
}

// Leave deregisters one entrant, advancing the drained event count
// when the last entrant leaves.
func (x *Exclusion) Leave() {
	x.mu.Lock()
	x.count--
	if x.count < 0 {
		panic("ml: Exclusion.Leave without matching Enter")
	}
	if x.count == 0 {
		x.drained.AdvanceWithoutDispatch()
	}
	x.mu.Unlock()
}

// WaitDrained blocks until no entrants are active. If entrants are
// active when called, it waits for the next zero-crossing rather than
// any zero-crossing already past, so a WaitDrained that starts after
// Enter always observes a true drain.
func (x *Exclusion) WaitDrained(ctx context.Context) error {
	x.mu.Lock()
	if x.count == 0 {
		x.mu.Unlock()
		return nil
	}
	target := x.drained.Read() + 1
	x.mu.Unlock()
	return x.drained.Wait(ctx, target)
}
