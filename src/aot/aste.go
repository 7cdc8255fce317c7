package aot

import (
	"sync"

	"mem"
)

// ASTE is one in-core segment of an activated object: a single page
// of backing memory plus the wired/dirty bits AST's touch/invalidate/
// truncate operations manipulate.
type ASTE struct {
	mu    sync.Mutex
	Seg   int
	pa    mem.Pa_t
	page  *mem.Bytepg_t
	wired bool
	dirty bool
}

// Page returns the segment's backing page.
func (a *ASTE) Page() *mem.Bytepg_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

// Wired reports whether the segment is currently pinned in memory.
func (a *ASTE) Wired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wired
}

// Dirty reports whether the segment has unflushed writes.
func (a *ASTE) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// MarkDirty flags the segment as modified.
func (a *ASTE) MarkDirty() {
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
}
