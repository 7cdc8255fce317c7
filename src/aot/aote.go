package aot

import (
	"sync"

	"uid"
)

// AOTE is an AST Object Table Entry: the in-core record of one
// activated object, keyed by its UID, holding the object's attribute
// block and the ASTEs for each of its currently in-core segments.
type AOTE struct {
	mu      sync.Mutex
	UID     uid.UID
	refcnt  int32
	attrs   attrBlock
	segs    map[int]*ASTE
	poolIdx int

	intrans     bool
	intransDone chan struct{}
}

func newAOTE(u uid.UID) *AOTE {
	return &AOTE{
		UID:  u,
		segs: make(map[int]*ASTE),
	}
}

// Refcnt returns the entry's current activation reference count.
func (a *AOTE) Refcnt() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refcnt
}

// Length returns the object's recorded length.
func (a *AOTE) Length() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attrs.Length()
}

// Trouble returns the object's sticky trouble code.
func (a *AOTE) Trouble() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attrs.Trouble()
}

// ClobberedBy returns the UID recorded by a prior SaveClobberedUID, or
// the nil UID if none was recorded.
func (a *AOTE) ClobberedBy() uid.UID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uid.UID{Hi: a.attrs.ClobberedHi(), Lo: a.attrs.ClobberedLo()}
}

// DismountSeq returns the current dismount sequence number.
func (a *AOTE) DismountSeq() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attrs.DismountSeq()
}
