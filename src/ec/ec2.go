// EC2 is the indexed, user-facing layer over EC1: callers address an
// event count by a small integer handle instead of holding a pointer,
// so the handle can cross an RPC boundary to a collaborating node.
// The pool's bitmap-style free-slot tracking is grounded on msi.go's
// allocator for the original kernel's MSI vector pool — same shape,
// a fixed-size slab plus a free bitmap — repurposed here for EC1
// registrations instead of interrupt vectors.
package ec

import (
	"context"
	"sync"

	"defs"
)

// Handle identifies an EC2-managed event count. Handle spaces:
//   - 1..registrationSlots:            caller-registered, caller-owned EC1s
//   - registrationSlots+1..+poolSlots: kernel-pool-allocated EC1s (bitmap)
//   - above directBase:                direct handles wrapping an EC1 the
//     caller already owns a *EC1 for (the original's ">0x3E8 is a literal
//     pointer" shortcut; since a Go handle can't safely encode a pointer,
//     this hands out a small dense int from its own counter instead)
type Handle int

const directBase = 0x3E8

// Table is the EC2 registration/allocation table for one kernel
// instance (or one ASID's view of it — spec leaves the scoping to
// the caller).
type Table struct {
	mu sync.Mutex

	regSlots  int
	poolSlots int

	registered map[Handle]*EC1
	nextReg    Handle

	pool           []*EC1
	poolUsed       []bool
	pendingRelease []bool

	direct     map[Handle]*EC1
	nextDirect Handle
}

// NewTable builds an EC2 table with regSlots registration handles and
// poolSlots pool entries (config.Tunables.EC2RegistrationSlots and
// EC2PoolSlots carry the original's sizes).
func NewTable(regSlots, poolSlots int) *Table {
	t := &Table{
		regSlots:   regSlots,
		poolSlots:  poolSlots,
		registered: make(map[Handle]*EC1, regSlots),
		pool:           make([]*EC1, poolSlots),
		poolUsed:       make([]bool, poolSlots),
		pendingRelease: make([]bool, poolSlots),
		direct:     make(map[Handle]*EC1),
		nextDirect: directBase + 1,
	}
	for i := range t.pool {
		t.pool[i] = &EC1{}
		t.pool[i].Init()
	}
	return t
}

// Register hands caller-owned ec a fresh registration handle, or
// returns the handle already assigned to ec if it is registered,
// matching ec2_$register_ec1's "free slot or existing handle"
// contract.
func (t *Table) Register(ec *EC1) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, existing := range t.registered {
		if existing == ec {
			return h, nil
		}
	}
	for h := Handle(1); int(h) <= t.regSlots; h++ {
		if _, used := t.registered[h]; !used {
			t.registered[h] = ec
			return h, nil
		}
	}
	return 0, defs.EEC2RegistrationFull
}

// Deregister removes a previously Register'd handle. It is not valid
// to Deregister a pool or direct handle.
func (t *Table) Deregister(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.registered[h]; !ok {
		return defs.EEC2Level1NotAllocated
	}
	delete(t.registered, h)
	return nil
}

// Allocate reserves one EC1 from the pool, returning its handle and a
// pointer the caller may Advance/Wait directly, matching
// ec2_$allocate_ec1. It first probes every entry a prior Release left
// pending-release: one whose waiters have since drained to zero is
// reclaimed in place instead of staying reserved forever.
func (t *Table) Allocate() (Handle, *EC1, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.poolUsed {
		if t.poolUsed[i] && t.pendingRelease[i] && t.pool[i].NumWaiters() == 0 {
			t.poolUsed[i] = false
			t.pendingRelease[i] = false
		}
	}
	for i, used := range t.poolUsed {
		if !used {
			t.poolUsed[i] = true
			t.pendingRelease[i] = false
			t.pool[i].Init()
			return Handle(t.regSlots + 1 + i), t.pool[i], nil
		}
	}
	return 0, nil, defs.EEC2UnableToAllocateL1
}

// Release returns a pool handle allocated by Allocate back to the
// free pool, matching ec2_$release_ec1: with no active waiters the
// allocation bit clears immediately; otherwise every waiter is woken
// (advance-all) and the entry is marked pending-release, reclaimed by
// a later Allocate once it probes the waiter count down to zero.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := int(h) - t.regSlots - 1
	if i < 0 || i >= t.poolSlots || !t.poolUsed[i] {
		return defs.EEC2Level1NotAllocated
	}
	ec := t.pool[i]
	if ec.NumWaiters() == 0 {
		t.poolUsed[i] = false
		t.pendingRelease[i] = false
		return nil
	}
	ec.AdvanceAll(nil)
	t.pendingRelease[i] = true
	return nil
}

// Direct wraps a caller-owned EC1 with a handle from the direct
// space, for ECs the caller manages outside the registration/pool
// scheme but still wants to address indirectly.
func (t *Table) Direct(ec *EC1) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.nextDirect
	t.nextDirect++
	t.direct[h] = ec
	return h
}

// Get resolves a handle to its underlying EC1 (get_ec1_addr),
// searching the registered, pool, and direct spaces in turn.
func (t *Table) Get(h Handle) (*EC1, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h > directBase {
		if ec, ok := t.direct[h]; ok {
			return ec, nil
		}
		return nil, defs.EEC2Level1NotAllocated
	}
	if int(h) > t.regSlots {
		i := int(h) - t.regSlots - 1
		if i >= 0 && i < t.poolSlots && t.poolUsed[i] {
			return t.pool[i], nil
		}
		return nil, defs.EEC2Level1NotAllocated
	}
	if ec, ok := t.registered[h]; ok {
		return ec, nil
	}
	return nil, defs.EEC2Level1NotAllocated
}

// Wait resolves h and waits on it until it reaches target. A handle
// that does not resolve fails with Get's error and a canceled ctx
// returns ErrQuit. A handle deregistered after the wait has begun is
// not detected, and EEC2AsyncFaultWhileWaiting is never returned.
func (t *Table) Wait(ctx context.Context, h Handle, target int32) error {
	ec, err := t.Get(h)
	if err != nil {
		return err
	}
	return ec.Wait(ctx, target)
}

// Advance resolves h and advances it by one.
func (t *Table) Advance(h Handle, dispatch func()) error {
	ec, err := t.Get(h)
	if err != nil {
		return err
	}
	ec.Advance(dispatch)
	return nil
}

// Read resolves h and returns its current value.
func (t *Table) Read(h Handle) (int32, error) {
	ec, err := t.Get(h)
	if err != nil {
		return 0, err
	}
	return ec.Read(), nil
}
