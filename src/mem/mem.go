// Package mem implements the physical page allocator — the "Page
// alloc (WP/MMAP)" collaborator of spec §6 (calloc/unwire/free/
// remote_pool) and the page-level reference counting that backs
// AST segment-map entries and Area copy-on-write. The teacher's
// mem.Physmem_t is a freestanding-kernel page allocator wired
// directly into its own custom runtime (CPU-hint free lists, a
// hand-rolled direct map at a fixed virtual address, pmap/TLB
// bookkeeping); none of that has an analogue hosted on the stock Go
// runtime, so this adapts only the part of Physmem_t's shape spec §6
// actually calls out: a reference-counted free list of fixed-size
// pages addressed by an opaque page number, reachable without going
// through the target process's (nonexistent, here) page tables.
package mem

import (
	"sync"
	"sync/atomic"
)

// PGSIZE is the page size in bytes. Spec's Non-goals free
// re-implementers from the original's 1KB/32KB sizing, but the
// allocator below needs a compile-time array length, so this constant
// is the one place the size is fixed; config.Tunables.PageBytes
// documents the same default for callers that only need the number.
const PGSIZE = 1024

// Pa_t is an opaque physical page number (not a real hardware
// address — there is no MMU backing this module, see collab.MMU).
type Pa_t uint64

// Bytepg_t is one page of raw bytes.
type Bytepg_t [PGSIZE]byte

// Page_i is the allocator interface AST/Area code depends on,
// matching spec §6's Page alloc row (calloc/unwire/free) plus the
// reference-count queries AST's touch/copy_area need.
type Page_i interface {
	Calloc() (Pa_t, *Bytepg_t, bool)
	Refcnt(Pa_t) int
	Refup(Pa_t)
	Refdown(Pa_t) bool
	Unwire(Pa_t)
	Dmap(Pa_t) *Bytepg_t
}

type page struct {
	data   Bytepg_t
	refcnt int32
	wired  bool
	nexti  uint32
}

// Physmem_t is a reference-counted free-list page allocator. Pages
// are identified by a dense index into an internal slab rather than a
// hardware physical address, since this module never programs a real
// MMU (spec treats the MMU as an out-of-scope external collaborator).
type Physmem_t struct {
	mu     sync.Mutex
	pages  []page
	freei  uint32
	n      int32
	zeroed Bytepg_t
}

const freeNone = ^uint32(0)

// NewPhysmem allocates an arena of npages pages, all initially free,
// mirroring Phys_init's reservation of a fixed page pool.
func NewPhysmem(npages int) *Physmem_t {
	p := &Physmem_t{pages: make([]page, npages)}
	for i := range p.pages {
		p.pages[i].nexti = uint32(i) + 1
	}
	if npages > 0 {
		p.pages[npages-1].nexti = freeNone
		p.freei = 0
		p.n = int32(npages)
	} else {
		p.freei = freeNone
	}
	return p
}

// Calloc allocates one zeroed page with refcount 1.
func (p *Physmem_t) Calloc() (Pa_t, *Bytepg_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freei == freeNone {
		return 0, nil, false
	}
	idx := p.freei
	pg := &p.pages[idx]
	p.freei = pg.nexti
	p.n--
	pg.data = p.zeroed
	pg.refcnt = 1
	pg.wired = false
	return Pa_t(idx), &pg.data, true
}

// Refcnt reports the current reference count of pa.
func (p *Physmem_t) Refcnt(pa Pa_t) int {
	return int(atomic.LoadInt32(&p.pages[pa].refcnt))
}

// Refup increments pa's reference count.
func (p *Physmem_t) Refup(pa Pa_t) {
	if atomic.AddInt32(&p.pages[pa].refcnt, 1) <= 1 {
		panic("mem: Refup of a dead page")
	}
}

// Refdown decrements pa's reference count, returning true and
// returning the page to the free list when it reaches zero.
func (p *Physmem_t) Refdown(pa Pa_t) bool {
	c := atomic.AddInt32(&p.pages[pa].refcnt, -1)
	if c < 0 {
		panic("mem: negative refcount")
	}
	if c != 0 {
		return false
	}
	p.mu.Lock()
	p.pages[pa].nexti = p.freei
	p.freei = uint32(pa)
	p.n++
	p.mu.Unlock()
	return true
}

// Unwire marks pa no longer pinned; it does not by itself change the
// refcount (ASTE wire counts are tracked in the aot package — this
// mirrors WP's unwire(ppn) entry point which only clears the pinned
// bit so the page becomes eligible for eventual reclaim).
func (p *Physmem_t) Unwire(pa Pa_t) {
	p.pages[pa].wired = false
}

// Dmap returns the page contents for pa, standing in for the
// original's direct-map virtual address translation — there is no
// virtual memory in this hosted module, so this is just a slice of
// the backing array.
func (p *Physmem_t) Dmap(pa Pa_t) *Bytepg_t {
	return &p.pages[pa].data
}

// Free reports how many pages remain unallocated.
func (p *Physmem_t) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.n)
}

// RemotePool reserves a block of size pages set aside for remote
// (network-partner) requests, matching spec §6's remote_pool(size).
// It is a thin allocation loop over Calloc rather than a distinct
// pool implementation, since this module has no separate NUMA/remote
// memory domain to model.
func (p *Physmem_t) RemotePool(size int) ([]Pa_t, bool) {
	out := make([]Pa_t, 0, size)
	for i := 0; i < size; i++ {
		pa, _, ok := p.Calloc()
		if !ok {
			for _, a := range out {
				p.Refdown(a)
			}
			return nil, false
		}
		out = append(out, pa)
	}
	return out, true
}
