// Package naming implements the naming resolver: a tree of
// directories mapping path components to either child directories or
// leaf UIDs, plus per-ASID working/naming-directory state and
// cross-node resolution for paths naming an object on a remote
// collaborating node. Directory entries are a plain map guarded by a
// mutex rather than hashtable.Hashtable_t, since directories are
// typically small and Resolve always needs a consistent read of the
// whole entry (name plus child-or-leaf), not a lock-free single-key
// lookup.
package naming

import (
	"sync"

	"defs"
	"uid"
)

type dirEntry struct {
	child *Dir
	obj   uid.UID
	isDir bool
}

// Dir is one naming directory: a set of named entries, each either a
// child Dir or a leaf object UID.
type Dir struct {
	mu      sync.Mutex
	self    uid.UID
	entries map[string]dirEntry
}

// NewDir returns an empty directory.
func NewDir() *Dir {
	return &Dir{entries: make(map[string]dirEntry)}
}

// SetUID records the UID a resolve of this directory itself (as
// opposed to one of its entries) should return, e.g. the volume root's
// own object identity.
func (d *Dir) SetUID(u uid.UID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.self = u
}

// UID returns the UID set by SetUID, or uid.Nil if none was set.
func (d *Dir) UID() uid.UID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.self
}

// CrFile creates a leaf entry named name bound to obj. It fails with
// EObjectInUse-shaped EInvalidPathname if name already exists.
func (d *Dir) CrFile(name string, obj uid.UID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; ok {
		return defs.EInvalidPathname
	}
	d.entries[name] = dirEntry{obj: obj}
	return nil
}

// CrDir creates a child directory named name and returns it.
func (d *Dir) CrDir(name string) (*Dir, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; ok {
		return nil, defs.EInvalidPathname
	}
	child := NewDir()
	d.entries[name] = dirEntry{child: child, isDir: true}
	return child, nil
}

// Lookup returns the entry named name, distinguishing a child
// directory from a leaf UID.
func (d *Dir) Lookup(name string) (child *Dir, obj uid.UID, isDir, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[name]
	if !ok {
		return nil, uid.Nil, false, false
	}
	return e.child, e.obj, e.isDir, true
}

// Drop removes the entry named name. Dropping a non-empty child
// directory is refused.
func (d *Dir) Drop(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[name]
	if !ok {
		return defs.ENameNotFound
	}
	if e.isDir {
		e.child.mu.Lock()
		n := len(e.child.entries)
		e.child.mu.Unlock()
		if n != 0 {
			return defs.EInvalidArg
		}
	}
	delete(d.entries, name)
	return nil
}

// Names returns the sorted-by-insertion-unspecified set of entry names
// in d, for directory listing.
func (d *Dir) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.entries))
	for n := range d.entries {
		out = append(out, n)
	}
	return out
}

// Walk invokes fn once per leaf entry reachable from d, with path
// built as a "/"-joined sequence of component names rooted at prefix.
// It supplements the distilled spec with a bulk-enumeration primitive
// a volume-bootstrap tool needs to dump what it just created, mirroring
// the teacher's mkfs walking a host directory tree the other way.
func (d *Dir) Walk(prefix string, fn func(path string, obj uid.UID)) {
	d.mu.Lock()
	type child struct {
		name string
		e    dirEntry
	}
	children := make([]child, 0, len(d.entries))
	for n, e := range d.entries {
		children = append(children, child{n, e})
	}
	d.mu.Unlock()

	for _, c := range children {
		path := prefix + "/" + c.name
		if c.e.isDir {
			c.e.child.Walk(path, fn)
		} else {
			fn(path, c.e.obj)
		}
	}
}
