// Package filelock implements the kernel's file lock manager: one
// compatibility-checked lock chain per UID, and a fixed-size per-ASID
// index of that process's currently held locks (the original's
// 150-entry local lock table). The per-UID chain is a plain mutex-
// guarded slice rather than hashtable.Hashtable_t's lock-free-read
// chain, since lock acquisition always needs the write path anyway;
// the per-ASID index mirrors accnt.Accnt_t's "small fixed array per
// process, guarded by one mutex" shape.
package filelock

import (
	"sync"

	"collab"
	"defs"
	"uid"
)

// Mode is a file lock mode. Modes are totally ordered by strength:
// None < Shared < Update < Exclusive.
type Mode int

const (
	ModeNone Mode = iota
	ModeShared
	ModeUpdate
	ModeExclusive
)

// compatible[a][b] reports whether a lock already held in mode a
// permits a new request in mode b.
var compatible = [4][4]bool{
	ModeNone:      {true, true, true, true},
	ModeShared:    {true, true, true, false},
	ModeUpdate:    {true, true, false, false},
	ModeExclusive: {true, false, false, false},
}

type holder struct {
	asid     defs.ASID_t
	mode     Mode
	refcount int
}

// requiresWrite reports whether mode needs write access to the
// underlying object, the check priv_lock runs against a read-only
// volume.
func requiresWrite(mode Mode) bool {
	return mode >= ModeUpdate
}

type chain struct {
	mu      sync.Mutex
	holders []holder
}

func (c *chain) compatibleWith(asid defs.ASID_t, mode Mode) bool {
	for _, h := range c.holders {
		if h.asid == asid {
			continue
		}
		if !compatible[h.mode][mode] {
			return false
		}
	}
	return true
}

type localEntry struct {
	used bool
	uid  uid.UID
	mode Mode
}

// Metrics receives a count every time a lock request is refused
// because an incompatible lock is already held. telemetry.Collectors
// satisfies this without filelock importing the telemetry package
// directly.
type Metrics interface {
	FileLockConflict()
}

// Table is the file lock manager: per-UID chains plus a per-ASID
// bounded local lock index.
type Table struct {
	mu           sync.Mutex
	chains       map[string]*chain
	perASID      map[defs.ASID_t][]localEntry
	slotsPerASID int
	metrics      Metrics
	volInfo      collab.VolumeInfo
	acl          collab.ACL
}

// NewTable builds a file lock manager with slotsPerASID local lock
// slots per ASID (config.Tunables.LockSlotsPerASID).
func NewTable(slotsPerASID int) *Table {
	return &Table{
		chains:       make(map[string]*chain),
		perASID:      make(map[defs.ASID_t][]localEntry),
		slotsPerASID: slotsPerASID,
	}
}

// SetMetrics attaches m so every lock conflict reports to it. Passing
// nil disables reporting.
func (t *Table) SetMetrics(m Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// SetVolumeInfo attaches the collaborator PrivLock consults to reject
// write-requiring modes against a read-only volume. Passing nil
// disables the check (every volume treated as writable).
func (t *Table) SetVolumeInfo(v collab.VolumeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volInfo = v
}

// SetACL attaches the collaborator PrivLock consults before granting a
// lock. Passing nil disables the check (every request allowed).
func (t *Table) SetACL(acl collab.ACL) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acl = acl
}

func (t *Table) chainFor(u uid.UID) *chain {
	key := u.String()
	c, ok := t.chains[key]
	if !ok {
		c = &chain{}
		t.chains[key] = c
	}
	return c
}

func (t *Table) slotsFor(asid defs.ASID_t) []localEntry {
	s, ok := t.perASID[asid]
	if !ok {
		s = make([]localEntry, t.slotsPerASID)
		t.perASID[asid] = s
	}
	return s
}

// PrivLock acquires u in mode on behalf of asid, returning the local
// lock-table index the caller must present to PrivUnlock. It fails
// with EObjectInUse if an incompatible lock is already held by a
// different ASID, or ELocalLockTableFull if asid has exhausted its
// local lock slots.
func (t *Table) PrivLock(asid defs.ASID_t, u uid.UID, mode Mode) (int, error) {
	if mode == ModeNone {
		return 0, defs.EIllegalLockRequest
	}
	t.mu.Lock()
	if t.volInfo != nil && requiresWrite(mode) && t.volInfo.IsReadOnly(u) {
		t.mu.Unlock()
		return 0, defs.EVolMountedReadOnly
	}
	if t.acl != nil {
		op := "read"
		if requiresWrite(mode) {
			op = "write"
		}
		if !t.acl.Allowed(asid, u, op) {
			t.mu.Unlock()
			return 0, defs.EInsufficientRights
		}
	}
	c := t.chainFor(u)
	slots := t.slotsFor(asid)

	idx := -1
	for i, s := range slots {
		if !s.used {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return 0, defs.ELocalLockTableFull
	}
	slots[idx] = localEntry{used: true, uid: u, mode: mode}
	t.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.compatibleWith(asid, mode) {
		t.mu.Lock()
		slots[idx] = localEntry{}
		if t.metrics != nil {
			t.metrics.FileLockConflict()
		}
		t.mu.Unlock()
		return 0, defs.EObjectInUse
	}
	for i, h := range c.holders {
		if h.asid == asid {
			// Re-lock/upgrade: a second local slot referencing a lock
			// this ASID already holds. Already known compatible with
			// every other ASID's mode (the scan above skips our own
			// entry); only ever strengthens the held mode.
			if mode > h.mode {
				c.holders[i].mode = mode
			}
			c.holders[i].refcount++
			return idx, nil
		}
	}
	c.holders = append(c.holders, holder{asid: asid, mode: mode, refcount: 1})
	return idx, nil
}

// releaseHolder decrements asid's refcount on u's chain, unlinking the
// holder entry once it reaches zero (spec §4.6 priv_unlock step 4).
func (t *Table) releaseHolder(asid defs.ASID_t, u uid.UID) {
	t.mu.Lock()
	c := t.chainFor(u)
	t.mu.Unlock()

	c.mu.Lock()
	for i, h := range c.holders {
		if h.asid == asid {
			c.holders[i].refcount--
			if c.holders[i].refcount <= 0 {
				c.holders = append(c.holders[:i], c.holders[i+1:]...)
			}
			break
		}
	}
	c.mu.Unlock()
}

// PrivUnlock releases the lock asid holds at local index idx.
func (t *Table) PrivUnlock(asid defs.ASID_t, idx int) error {
	t.mu.Lock()
	slots, ok := t.perASID[asid]
	if !ok || idx < 0 || idx >= len(slots) || !slots[idx].used {
		t.mu.Unlock()
		return defs.ENotLockedByProcess
	}
	e := slots[idx]
	slots[idx] = localEntry{}
	t.mu.Unlock()

	t.releaseHolder(asid, e.uid)
	return nil
}

// UnlockProc releases every lock held by a single ASID, without
// touching any other ASID's locks — the per-process-exit fast path
// from the original's unlock_proc.c, dropped by the distillation and
// restored here since priv_unlock_all's "one ASID" branch is exactly
// this operation.
func (t *Table) UnlockProc(asid defs.ASID_t) {
	t.mu.Lock()
	slots, ok := t.perASID[asid]
	if !ok {
		t.mu.Unlock()
		return
	}
	held := make([]uid.UID, 0, len(slots))
	for i, s := range slots {
		if s.used {
			held = append(held, s.uid)
			slots[i] = localEntry{}
		}
	}
	t.mu.Unlock()

	for _, u := range held {
		t.releaseHolder(asid, u)
	}
}

// PrivUnlockAll implements priv_unlock_all(asid_ptr): releases asid's
// locks, or every ASID's locks when asid is the zero value (ASID 0 is
// never itself a valid caller), matching spec's "one ASID or all"
// contract.
func (t *Table) PrivUnlockAll(asid defs.ASID_t) {
	if asid != 0 {
		t.UnlockProc(asid)
		return
	}
	t.mu.Lock()
	asids := make([]defs.ASID_t, 0, len(t.perASID))
	for a := range t.perASID {
		asids = append(asids, a)
	}
	t.mu.Unlock()
	for _, a := range asids {
		t.UnlockProc(a)
	}
}

// ReadLockEntryi returns the raw local lock-table entry at index idx
// for asid, an introspection primitive for process-state dumps.
func (t *Table) ReadLockEntryi(asid defs.ASID_t, idx int) (uid.UID, Mode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slots, ok := t.perASID[asid]
	if !ok || idx < 0 || idx >= len(slots) || !slots[idx].used {
		return uid.Nil, ModeNone, false
	}
	return slots[idx].uid, slots[idx].mode, true
}

// LocalReadLock reports the strongest mode among asid's local lock
// slots on u, if any.
func (t *Table) LocalReadLock(asid defs.ASID_t, u uid.UID) (Mode, bool) {
	t.mu.Lock()
	slots, ok := t.perASID[asid]
	t.mu.Unlock()
	if !ok {
		return ModeNone, false
	}
	have, found := ModeNone, false
	for _, s := range slots {
		if s.used && s.uid == u {
			found = true
			if s.mode > have {
				have = s.mode
			}
		}
	}
	return have, found
}

// LocalLockVerify checks that asid holds at least `want` strength on
// u, returning EIllegalLockRequest if it holds nothing or a weaker
// mode. Operations that require a held write lock call this as a
// precondition.
func (t *Table) LocalLockVerify(asid defs.ASID_t, u uid.UID, want Mode) error {
	have, ok := t.LocalReadLock(asid, u)
	if !ok || have < want {
		return defs.EIllegalLockRequest
	}
	return nil
}
