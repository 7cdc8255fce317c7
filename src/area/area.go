// Package area implements the Area virtual-memory subsystem: named,
// segment-granular mappings of an AOT-managed object into an ASID's
// address space, with copy-on-write duplication and reversed
// (stack-like, downward-growing) areas. The segment presence map is
// an inline 64-bit bitmap with an overflow table for segments beyond
// the first 64 — the same "small inline fast path, map for the rest"
// shape vm.Vmregion_t uses for its region list, generalized here to
// bits instead of region records.
package area

import (
	"container/list"
	"sync"

	"aot"
	"defs"
	"uid"
)

// Handle identifies an area: a generation counter in the high bits so
// a stale handle to a freed, reused slot is detectable, and a dense
// pool index in the low bits.
type Handle uint32

func mkHandle(gen uint32, idx int) Handle {
	return Handle(gen<<16 | uint32(idx&0xFFFF))
}

func (h Handle) gen() uint32 { return uint32(h) >> 16 }
func (h Handle) idx() int    { return int(uint32(h) & 0xFFFF) }

// entry is one area: a window of an AOT object's segments mapped into
// one ASID, optionally growing downward ("reversed", for stacks).
type entry struct {
	mu       sync.Mutex
	handle   Handle
	asid     defs.ASID_t
	obj      *aot.AOTE
	baseSeg  int
	nsegs    int
	reversed bool
	cow      bool

	// remoteUID/callerID are set only on areas created via CreateFrom,
	// the (remote object, requesting caller) pair create_from hashes
	// and deduplicates on.
	remoteUID uid.UID
	callerID  uint64

	inline   uint64
	overflow map[int]bool

	elem *list.Element
}

func (e *entry) hasSeg(seg int) bool {
	rel := seg - e.baseSeg
	if rel < 0 || rel >= e.nsegs {
		return false
	}
	if rel < 64 {
		return e.inline&(1<<uint(rel)) != 0
	}
	return e.overflow[rel]
}

func (e *entry) setSeg(seg int) {
	rel := seg - e.baseSeg
	if rel < 64 {
		e.inline |= 1 << uint(rel)
		return
	}
	if e.overflow == nil {
		e.overflow = make(map[int]bool)
	}
	e.overflow[rel] = true
}

func (e *entry) clearSeg(seg int) {
	rel := seg - e.baseSeg
	if rel < 64 {
		e.inline &^= 1 << uint(rel)
		return
	}
	delete(e.overflow, rel)
}

func (e *entry) mappedSegs() []int {
	var out []int
	for i := 0; i < 64 && i < e.nsegs; i++ {
		if e.inline&(1<<uint(i)) != 0 {
			out = append(out, e.baseSeg+i)
		}
	}
	for rel, set := range e.overflow {
		if set {
			out = append(out, e.baseSeg+rel)
		}
	}
	return out
}

type poolSlot struct {
	e    *entry
	gen  uint32
	used bool
}

// Metrics receives a count every time Copy or CreateFrom is satisfied
// by an existing area instead of allocating a fresh one.
// telemetry.Collectors satisfies this without area importing the
// telemetry package directly.
type Metrics interface {
	AreaDedupHit()
}

// Table owns the area pool and the per-ASID lists threaded through
// it.
type Table struct {
	mu          sync.Mutex
	pool        []poolSlot
	freei       []int
	byASID      map[defs.ASID_t]*list.List
	byRemoteUID map[uid.UID][]*entry
	metrics     Metrics
}

// SetMetrics attaches m so every deduplicated Copy or CreateFrom
// reports to it.
// Passing nil disables reporting.
func (t *Table) SetMetrics(m Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// NewTable builds an area table with room for poolSize concurrently
// mapped areas. config.Tunables has no separate area-pool size (the
// historical kernel did not fix one independently of ASTEPoolSize),
// so cmd/kernelboot passes ASTEPoolSize here.
func NewTable(poolSize int) *Table {
	t := &Table{
		pool:   make([]poolSlot, poolSize),
		byASID: make(map[defs.ASID_t]*list.List),
	}
	t.freei = make([]int, poolSize)
	for i := range t.freei {
		t.freei[i] = poolSize - 1 - i
	}
	return t
}

func (t *Table) listFor(asid defs.ASID_t) *list.List {
	l, ok := t.byASID[asid]
	if !ok {
		l = list.New()
		t.byASID[asid] = l
	}
	return l
}

func (t *Table) alloc() (int, error) {
	if len(t.freei) == 0 {
		return 0, defs.EAreaNoneFree
	}
	idx := t.freei[len(t.freei)-1]
	t.freei = t.freei[:len(t.freei)-1]
	return idx, nil
}

func (t *Table) resolve(h Handle) (*entry, error) {
	idx := h.idx()
	if idx < 0 || idx >= len(t.pool) {
		return nil, defs.EAreaNotActive
	}
	s := &t.pool[idx]
	if !s.used || s.gen != h.gen() {
		return nil, defs.EAreaNotActive
	}
	return s.e, nil
}

// Create maps nsegs segments of obj starting at baseSeg into asid's
// address space as a new area, optionally reversed (growing toward
// lower segment numbers, as a stack does).
func (t *Table) Create(asid defs.ASID_t, obj *aot.AOTE, baseSeg, nsegs int, reversed bool) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.alloc()
	if err != nil {
		return 0, err
	}
	s := &t.pool[idx]
	s.used = true
	s.gen++
	e := &entry{asid: asid, obj: obj, baseSeg: baseSeg, nsegs: nsegs, reversed: reversed}
	e.handle = mkHandle(s.gen, idx)
	s.e = e
	e.elem = t.listFor(asid).PushBack(e)
	return e.handle, nil
}

// CreateFromSibling creates a new area over the same object as src,
// starting at fromSeg instead of src's own base — used when a fork
// needs a child view onto a parent's object beginning partway through
// it. This is distinct from CreateFrom, which hashes and deduplicates
// by remote object UID rather than by an existing area handle.
func (t *Table) CreateFromSibling(asid defs.ASID_t, src Handle, fromSeg int) (Handle, error) {
	t.mu.Lock()
	se, err := t.resolve(src)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	se.mu.Lock()
	obj := se.obj
	nsegs := se.baseSeg + se.nsegs - fromSeg
	reversed := se.reversed
	se.mu.Unlock()
	if nsegs <= 0 {
		return 0, defs.EInvalidArg
	}
	return t.Create(asid, obj, fromSeg, nsegs, reversed)
}

// CreateFrom implements create_from: areas are hashed by the UID of
// the remote object they back, and a second create_from naming the
// same (remoteUID, callerID) pair is deduplicated against the first
// instead of allocating a fresh pool slot — the area-layer analogue of
// AOT's activate_aote_canned dedup, keyed here by remote UID plus
// caller rather than by UID alone. baseSeg and nsegs are in segments,
// as for Create, not raw byte counts (rounding to segment and page
// granularity is this module's caller's responsibility, as for
// Create).
func (t *Table) CreateFrom(asid defs.ASID_t, remoteUID uid.UID, obj *aot.AOTE, baseSeg, nsegs int, reversed bool, callerID uint64) (Handle, error) {
	t.mu.Lock()
	if t.byRemoteUID == nil {
		t.byRemoteUID = make(map[uid.UID][]*entry)
	}
	bucket := t.byRemoteUID[remoteUID]
	live := bucket[:0]
	var found *entry
	for _, cand := range bucket {
		if _, err := t.resolve(cand.handle); err != nil {
			continue // stale: the area was Delete'd/FreeASID'd since
		}
		live = append(live, cand)
		cand.mu.Lock()
		match := cand.callerID == callerID
		cand.mu.Unlock()
		if match && found == nil {
			found = cand
		}
	}
	t.byRemoteUID[remoteUID] = live
	if found != nil {
		if t.metrics != nil {
			t.metrics.AreaDedupHit()
		}
		t.mu.Unlock()
		return found.handle, nil
	}
	t.mu.Unlock()

	h, err := t.Create(asid, obj, baseSeg, nsegs, reversed)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	e, err := t.resolve(h)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	e.mu.Lock()
	e.remoteUID = remoteUID
	e.callerID = callerID
	e.mu.Unlock()
	if t.byRemoteUID == nil {
		t.byRemoteUID = make(map[uid.UID][]*entry)
	}
	t.byRemoteUID[remoteUID] = append(t.byRemoteUID[remoteUID], e)
	t.mu.Unlock()
	return h, nil
}

// Delete removes an area from its ASID's list and frees its pool
// slot. It does not itself invalidate the underlying AOT segments —
// callers that want those released call aot.Table.Invalidate per
// still-mapped segment first (ThreadBstes enumerates them).
func (t *Table) Delete(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.resolve(h)
	if err != nil {
		return err
	}
	t.listFor(e.asid).Remove(e.elem)
	idx := h.idx()
	t.pool[idx].used = false
	t.pool[idx].e = nil
	t.freei = append(t.freei, idx)
	return nil
}

// Copy duplicates an area for copy-on-write sharing: the new area
// maps the same underlying object and the same already-resident
// segments, but is flagged cow so a subsequent write fault copies
// storage via aot.Table.CopyArea instead of mutating shared pages.
// This is the deduplicated-create path: Create a brand-new area only
// when no COW sibling already exists for the target ASID+object+base,
// matching spec's area-dedup invariant.
func (t *Table) Copy(dstASID defs.ASID_t, h Handle) (Handle, error) {
	t.mu.Lock()
	src, err := t.resolve(h)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}

	for el := t.listFor(dstASID).Front(); el != nil; el = el.Next() {
		cand := el.Value.(*entry)
		if cand.obj == src.obj && cand.baseSeg == src.baseSeg && cand.nsegs == src.nsegs {
			if t.metrics != nil {
				t.metrics.AreaDedupHit()
			}
			t.mu.Unlock()
			return cand.handle, nil
		}
	}

	idx, err := t.alloc()
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	s := &t.pool[idx]
	s.used = true
	s.gen++

	src.mu.Lock()
	dst := &entry{
		asid: dstASID, obj: src.obj, baseSeg: src.baseSeg, nsegs: src.nsegs,
		reversed: src.reversed, cow: true, inline: src.inline,
	}
	for rel, set := range src.overflow {
		if set {
			if dst.overflow == nil {
				dst.overflow = make(map[int]bool)
			}
			dst.overflow[rel] = true
		}
	}
	src.cow = true
	src.mu.Unlock()

	dst.handle = mkHandle(s.gen, idx)
	s.e = dst
	dst.elem = t.listFor(dstASID).PushBack(dst)
	t.mu.Unlock()
	return dst.handle, nil
}

// Grow extends a non-reversed area by extraSegs at its high end, or a
// reversed area by extraSegs at its low end (stack growth).
func (t *Table) Grow(h Handle, extraSegs int) error {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if extraSegs < 0 {
		return defs.EInvalidArg
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reversed {
		e.baseSeg -= extraSegs
	}
	e.nsegs += extraSegs
	return nil
}

// GrowTo sets an area's absolute segment count.
func (t *Table) GrowTo(h Handle, newNsegs int) error {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if newNsegs < 0 {
		return defs.EInvalidArg
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reversed {
		e.baseSeg += e.nsegs - newNsegs
	}
	e.nsegs = newNsegs
	return nil
}

// Assoc marks seg as resident within area h, called after the AOT
// layer has successfully wired the segment in.
func (t *Table) Assoc(h Handle, seg int) error {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rel := seg - e.baseSeg
	if rel < 0 || rel >= e.nsegs {
		return defs.EInvalidArg
	}
	e.setSeg(seg)
	return nil
}

// Invalidate clears seg's presence bit within area h (the object
// itself is invalidated via aot.Table.Invalidate by the caller).
func (t *Table) Invalidate(h Handle, seg int) error {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearSeg(seg)
	return nil
}

// ThreadBstes enumerates the segments currently marked resident in
// area h, supplementing the distilled spec with the original's
// thread_bstes walk over an area's block-segment-table entries.
func (t *Table) ThreadBstes(h Handle) ([]int, error) {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mappedSegs(), nil
}

// Touch reports whether h is a valid, currently-active area handle,
// the area-layer half of a liveness probe before a caller touches the
// backing AOTE.
func (t *Table) Touch(h Handle) (*aot.AOTE, error) {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obj, nil
}

// Transfer moves an area from its current ASID's list to toASID's,
// used when a region of address space changes ownership (e.g. an
// inherited mapping during exec).
func (t *Table) Transfer(h Handle, toASID defs.ASID_t) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.resolve(h)
	if err != nil {
		return err
	}
	t.listFor(e.asid).Remove(e.elem)
	e.asid = toASID
	e.elem = t.listFor(toASID).PushBack(e)
	return nil
}

// FreeASID deletes every area belonging to asid, e.g. on process exit.
func (t *Table) FreeASID(asid defs.ASID_t) {
	t.mu.Lock()
	l, ok := t.byASID[asid]
	if !ok {
		t.mu.Unlock()
		return
	}
	var idxs []int
	for el := l.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		idxs = append(idxs, e.handle.idx())
	}
	for _, idx := range idxs {
		t.pool[idx].used = false
		t.pool[idx].e = nil
		t.freei = append(t.freei, idx)
	}
	delete(t.byASID, asid)
	t.mu.Unlock()
}

// Shutdown frees every area in the table, across every ASID.
func (t *Table) Shutdown() {
	t.mu.Lock()
	asids := make([]defs.ASID_t, 0, len(t.byASID))
	for asid := range t.byASID {
		asids = append(asids, asid)
	}
	t.mu.Unlock()
	for _, asid := range asids {
		t.FreeASID(asid)
	}
}

// FreeFrom frees the tail of h's segment range starting at fromSeg,
// shrinking nsegs and clearing presence bits for every dropped
// segment — resolving the original's area_$free_segments semantics
// for an area whose upper portion is no longer needed (e.g. after a
// partial unmap).
func (t *Table) FreeFrom(h Handle, fromSeg int) error {
	t.mu.Lock()
	e, err := t.resolve(h)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if fromSeg < e.baseSeg || fromSeg > e.baseSeg+e.nsegs {
		return defs.EInvalidArg
	}
	for seg := fromSeg; seg < e.baseSeg+e.nsegs; seg++ {
		e.clearSeg(seg)
	}
	e.nsegs = fromSeg - e.baseSeg
	return nil
}
