// Package ec implements the kernel's two-layer event-count
// synchronization primitive (spec §4.1): EC1, the kernel-internal
// direct form, and EC2, the user-exposed indexed form built on top of
// it. The waiter list is a container/list.List, the same intrusive
// ring the teacher uses for its block-cache lists (fs.BlkList_t) —
// list.List's internal representation is a sentinel-anchored ring,
// which is exactly the "circular doubly-linked list with the EC as
// sentinel" spec §3 requires of an EC1's waiters.
package ec

import (
	"container/list"
	"context"
	"sync"
	"time"

	"defs"
)

// ErrQuit is returned by Wait/WaitN when the wait was cut short by an
// asynchronous quit (ctx cancellation) rather than satisfied.
const ErrQuit = defs.EQuit

// MaxValue is the sentinel AdvanceAll sets the counter to so every
// waiter, regardless of target, wakes.
const MaxValue = int32(1<<31 - 1)

type waiter struct {
	target int32
	start  time.Time
	notify func(woke time.Time)
}

// EC1 is the kernel-internal event count: a monotonically
// nondecreasing int32 value plus a list of tasks waiting for it to
// reach some target.
type EC1 struct {
	mu      sync.Mutex
	value   int32
	waiters *list.List
}

// Init resets ec to value 0 with an empty waiter list.
func (ec *EC1) Init() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.value = 0
	ec.waiters = list.New()
}

func (ec *EC1) lazyInit() {
	if ec.waiters == nil {
		ec.waiters = list.New()
	}
}

// Read returns the current value, holding the lock only for the load;
// the value may be stale by the time the caller looks at it.
func (ec *EC1) Read() int32 {
	ec.mu.Lock()
	v := ec.value
	ec.mu.Unlock()
	return v
}

// NumWaiters returns the number of tasks currently blocked waiting on
// ec, the "active references" EC2's release_ec1 checks before
// deciding whether a pool entry can be freed outright or must wait for
// its waiters to drain.
func (ec *EC1) NumWaiters() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.lazyInit()
	return ec.waiters.Len()
}

// wake walks the waiter list, releasing every waiter whose target has
// been met, and returns how many were released. Must be called with
// ec.mu held.
func (ec *EC1) wake() int {
	ec.lazyInit()
	now := time.Now()
	n := 0
	var next *list.Element
	for e := ec.waiters.Front(); e != nil; e = next {
		next = e.Next()
		w := e.Value.(*waiter)
		if w.target <= ec.value {
			ec.waiters.Remove(e)
			w.notify(now)
			n++
		}
	}
	return n
}

// Advance increments value by one, wakes every satisfied waiter, and
// invokes dispatch if non-nil — standing in for the original's
// "optionally invokes the dispatcher on exit" since this module has
// no real run-queue to reschedule onto.
func (ec *EC1) Advance(dispatch func()) {
	ec.mu.Lock()
	ec.lazyInit()
	ec.value++
	ec.wake()
	ec.mu.Unlock()
	if dispatch != nil {
		dispatch()
	}
}

// AdvanceWithoutDispatch is Advance without the trailing dispatch
// call, matching the original's EC_$ADVANCE_WITHOUT_DISPATCH.
func (ec *EC1) AdvanceWithoutDispatch() {
	ec.Advance(nil)
}

// AdvanceAll sets value to MaxValue and wakes every waiter
// unconditionally.
func (ec *EC1) AdvanceAll(dispatch func()) {
	ec.mu.Lock()
	ec.lazyInit()
	ec.value = MaxValue
	ec.wake()
	ec.mu.Unlock()
	if dispatch != nil {
		dispatch()
	}
}

// PriorityBoost computes the wake-time priority bonus for a waiter
// that has waited for `waited`, using a small linear ramp up to
// boostTicks (spec's "18 ticks" placeholder, now config.Tunables.
// PriorityBoostTicks) beyond which the bonus clamps at its maximum.
// One "tick" is treated as one millisecond of wait time; re-
// implementers of a real scheduler should replace this with whatever
// unit their run queue uses.
func PriorityBoost(waited time.Duration, boostTicks int) int {
	const maxBoost = 20
	ticks := int(waited / time.Millisecond)
	if boostTicks <= 0 {
		return 0
	}
	if ticks >= boostTicks {
		return maxBoost
	}
	return (ticks * maxBoost) / boostTicks
}

// Wait suspends the caller until ec reaches target or ctx is
// canceled. It is race-free: the waiter links itself under the lock,
// re-checking the current value before registering, exactly
// mirroring spec's "wait is race-free" requirement.
func (ec *EC1) Wait(ctx context.Context, target int32) error {
	_, err := WaitN(ctx, []*EC1{ec}, []int32{target})
	return err
}

// WaitN cooperatively suspends the caller on up to N event counts,
// returning the 1-based index (per spec's EC_$WAIT contract) of
// whichever EC first satisfies its target, or ErrQuit if ctx is
// canceled first.
func WaitN(ctx context.Context, ecs []*EC1, targets []int32) (int, error) {
	if len(ecs) != len(targets) || len(ecs) == 0 {
		panic("ec: WaitN needs matching, non-empty ecs/targets")
	}
	result := make(chan struct {
		idx  int
		woke time.Time
	}, 1)
	var once sync.Once
	elems := make([]*list.Element, len(ecs))

	for i, e := range ecs {
		now := time.Now()
		idx := i
		e.mu.Lock()
		e.lazyInit()
		if e.value >= targets[i] {
			e.mu.Unlock()
			once.Do(func() {
				result <- struct {
					idx  int
					woke time.Time
				}{idx, now}
			})
			break
		}
		w := &waiter{
			target: targets[i],
			start:  now,
			notify: func(woke time.Time) {
				once.Do(func() {
					result <- struct {
						idx  int
						woke time.Time
					}{idx, woke}
				})
			},
		}
		elems[i] = e.waiters.PushBack(w)
		e.mu.Unlock()
	}

	cleanup := func() {
		for i, e := range ecs {
			if elems[i] == nil {
				continue
			}
			e.mu.Lock()
			e.waiters.Remove(elems[i])
			e.mu.Unlock()
		}
	}

	select {
	case r := <-result:
		cleanup()
		return r.idx + 1, nil
	case <-ctx.Done():
		cleanup()
		return 0, ErrQuit
	}
}
