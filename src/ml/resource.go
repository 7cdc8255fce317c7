// Package ml implements the kernel's ML (Micro-Lock) family: ordered
// resource locks, short-hold spin locks, and exclusion regions built
// on an event count. The Lock/Unlock/Lockassert naming and shape is
// grounded on vm.Vm_t's Lock_pmap/Unlock_pmap/Lockassert_pmap triad —
// ResourceLock and SpinLock offer the same three operations, while
// Exclusion offers Enter/Leave/WaitDrained instead.
package ml

import (
	"context"
	"fmt"
	"sync"

	"defs"
)

// LockID is a resource lock's position in the kernel's total lock
// order. A task may only acquire locks in strictly increasing LockID
// order; acquiring out of order is a programming error, not a
// contended-but-legal race, so it is fatal rather than returned as an
// Err_t (spec §7's "no recovery, invoke system crash" category).
type LockID int

// ResourceLock is a long-hold mutex participating in the kernel's
// total lock order.
type ResourceLock struct {
	id LockID
	mu sync.Mutex
}

// NewResourceLock creates a resource lock with a fixed position in
// the total order.
func NewResourceLock(id LockID) *ResourceLock {
	return &ResourceLock{id: id}
}

type heldKey struct{}

func held(ctx context.Context) []LockID {
	if v, ok := ctx.Value(heldKey{}).([]LockID); ok {
		return v
	}
	return nil
}

func withHeld(ctx context.Context, hs []LockID) context.Context {
	return context.WithValue(ctx, heldKey{}, hs)
}

// Lock acquires rl, asserting it is strictly above every lock the
// caller already holds, and returns a context recording the new held
// set. Callers thread the returned context through to the matching
// Unlock.
func (rl *ResourceLock) Lock(ctx context.Context) context.Context {
	hs := held(ctx)
	if n := len(hs); n > 0 && hs[n-1] >= rl.id {
		defs.Fatal(defs.EInvalidArg, fmt.Sprintf(
			"resource lock ordering violation: acquire %d while holding %d", rl.id, hs[n-1]))
	}
	rl.mu.Lock()
	next := make([]LockID, len(hs), len(hs)+1)
	copy(next, hs)
	next = append(next, rl.id)
	return withHeld(ctx, next)
}

// Unlock releases rl, which must be the most recently acquired lock
// still held by ctx (locks release in strict LIFO order, matching the
// original's nested-unlock discipline), and returns the context with
// rl removed from the held set.
func (rl *ResourceLock) Unlock(ctx context.Context) context.Context {
	hs := held(ctx)
	n := len(hs)
	if n == 0 || hs[n-1] != rl.id {
		defs.Fatal(defs.EInvalidArg, fmt.Sprintf(
			"resource lock %d unlocked out of acquire order", rl.id))
	}
	rl.mu.Unlock()
	return withHeld(ctx, hs[:n-1])
}

// Lockassert panics unless ctx records rl as currently held by this
// call chain, matching Lockassert_pmap's use as a precondition check
// at the top of functions that require the caller to already hold the
// lock.
func (rl *ResourceLock) Lockassert(ctx context.Context) {
	for _, id := range held(ctx) {
		if id == rl.id {
			return
		}
	}
	defs.Fatal(defs.EInvalidArg, fmt.Sprintf("resource lock %d not held", rl.id))
}
