package naming

import (
	"context"
	"strings"
	"sync"

	"defs"
	"uid"
	"ustr"
)

// MaxPathLen bounds how many bytes a path may carry before Validate
// refuses it with ENameTooLong.
const MaxPathLen = 256

// nodeDataPrefix names the fixed-prefix namespace rooted at a node's
// own node_data object, addressed with a leading backtick the way the
// original naming layer distinguished it from an ordinary pathname
// component.
const nodeDataPrefix = "`node_data"

// PathClass is the naming layer's classification of a pathname, the
// first decision validate/resolve make before walking any components.
type PathClass int

const (
	// Relative paths start neither with "/" nor the node_data prefix
	// and are walked from the calling ASID's working directory.
	Relative PathClass = iota
	// Absolute paths start with a single "/" and are walked from the
	// calling ASID's naming directory.
	Absolute
	// Network paths start with "//" and name an object on a remote
	// collaborating node.
	Network
	// NodeData paths start with the node_data prefix and are walked
	// from the local node_data root rather than the naming tree.
	NodeData
)

func (c PathClass) String() string {
	switch c {
	case Absolute:
		return "absolute"
	case Network:
		return "network"
	case NodeData:
		return "node_data"
	default:
		return "relative"
	}
}

// Classify categorizes path the way the naming layer's validate
// operation does: Network ("//node/...") and Absolute ("/...") by
// their leading slash, NodeData ("`node_data" or "`node_data/...") by
// its fixed prefix, Relative otherwise.
func Classify(path ustr.Ustr) PathClass {
	raw := path.String()
	switch {
	case strings.HasPrefix(raw, "//"):
		return Network
	case strings.HasPrefix(raw, "/"):
		return Absolute
	case raw == nodeDataPrefix || strings.HasPrefix(raw, nodeDataPrefix+"/"):
		return NodeData
	default:
		return Relative
	}
}

// RemoteNode resolves a path rooted at a named remote node, the
// naming-layer half of a cross-node lookup ("//nodename/a/b"). A
// collaborating transport (see the collab package's RemoteNode type)
// implements this by shipping the request over the wire and waiting
// for an ack, mirroring fs.Bdev_req_t's request/AckCh pattern.
type RemoteNode interface {
	ResolveRemote(ctx context.Context, node string, path ustr.Ustr) (uid.UID, error)
}

// Validate checks path for the naming layer's basic well-formedness
// requirements.
func Validate(path ustr.Ustr) error {
	if len(path) == 0 {
		return defs.EInvalidPathname
	}
	if len(path) > MaxPathLen {
		return defs.ENameTooLong
	}
	return nil
}

// SplitPath breaks path into its non-empty components, so "/a//b/"
// yields ["a", "b"].
func SplitPath(path ustr.Ustr) []string {
	parts := strings.Split(path.String(), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeParts drops "." components and rejects a ".." component
// with EInvalidPathname rather than walking up a level, matching the
// naming layer's refusal to resolve parent-relative components (e.g.
// resolving "/com/bar/../baz" fails outright instead of yielding
// "/com/baz").
func normalizeParts(parts []string) ([]string, error) {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case ".":
			continue
		case "..":
			return nil, defs.EInvalidPathname
		default:
			out = append(out, p)
		}
	}
	return out, nil
}

// walkToUID resolves parts against dir, returning dir's own UID if
// parts is empty (a path that named dir exactly, e.g. "/" or
// "`node_data").
func walkToUID(dir *Dir, parts []string) (uid.UID, error) {
	if len(parts) == 0 {
		return dir.UID(), nil
	}
	for i, name := range parts {
		child, obj, isDir, ok := dir.Lookup(name)
		if !ok {
			return uid.Nil, defs.ENameNotFound
		}
		last := i == len(parts)-1
		if last {
			if isDir {
				return uid.Nil, defs.EInvalidPathname
			}
			return obj, nil
		}
		if !isDir {
			return uid.Nil, defs.ENameNotFound
		}
		dir = child
	}
	return uid.Nil, defs.ENameNotFound
}

// asidState is one ASID's naming context: its working directory
// (relative lookups start here) and its naming directory (the root
// an absolute path not otherwise qualified resolves against).
type asidState struct {
	wdir *Dir
	ndir *Dir
}

// Resolver is the naming subsystem for one kernel instance: the root
// naming tree, per-ASID working/naming directories, and an optional
// remote-resolution collaborator for cross-node paths.
type Resolver struct {
	mu       sync.Mutex
	root     *Dir
	nodeData *Dir
	perASID  map[defs.ASID_t]*asidState
	remote   RemoteNode
}

// NewResolver builds a Resolver rooted at root, with an optional
// remote-node collaborator (nil if this instance never resolves
// cross-node paths).
func NewResolver(root *Dir, remote RemoteNode) *Resolver {
	return &Resolver{
		root:    root,
		perASID: make(map[defs.ASID_t]*asidState),
		remote:  remote,
	}
}

// InitASID creates fresh naming state for asid, with both its working
// and naming directories set to root.
func (r *Resolver) InitASID(asid defs.ASID_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perASID[asid] = &asidState{wdir: r.root, ndir: r.root}
}

// Fork copies parent's naming state to child, matching the original's
// fork-time inheritance of working/naming directories.
func (r *Resolver) Fork(parent, child defs.ASID_t) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.perASID[parent]
	if !ok {
		return defs.EInvalidArg
	}
	r.perASID[child] = &asidState{wdir: p.wdir, ndir: p.ndir}
	return nil
}

// FreeASID discards asid's naming state, e.g. at process exit,
// supplementing the distilled spec with the original's per-ASID
// naming cleanup.
func (r *Resolver) FreeASID(asid defs.ASID_t) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.perASID, asid)
}

// SetWdir sets asid's working directory.
func (r *Resolver) SetWdir(asid defs.ASID_t, d *Dir) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.perASID[asid]
	if !ok {
		return defs.EInvalidArg
	}
	s.wdir = d
	return nil
}

// SetNdir sets asid's naming directory.
func (r *Resolver) SetNdir(asid defs.ASID_t, d *Dir) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.perASID[asid]
	if !ok {
		return defs.EInvalidArg
	}
	s.ndir = d
	return nil
}

// SetNodeDataDir points the "`node_data" namespace at d, e.g. the
// node-local object directory a volume activates at boot. Paths
// classified NodeData walk from d instead of the per-ASID naming
// directory. Until set, node_data paths walk from the resolver's root.
func (r *Resolver) SetNodeDataDir(d *Dir) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeData = d
}

func (r *Resolver) nodeDataRoot() *Dir {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nodeData != nil {
		return r.nodeData
	}
	return r.root
}

func (r *Resolver) state(asid defs.ASID_t) (*asidState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.perASID[asid]
	if !ok {
		return nil, defs.EInvalidArg
	}
	return s, nil
}

// Resolve walks path to a UID, starting from asid's working directory
// for a relative path or its naming directory for an absolute one. A
// path beginning with "`node_data" is walked from the node_data
// directory (see SetNodeDataDir). A path of the form "//node/..." is
// shipped to the remote collaborator instead of walked locally.
func (r *Resolver) Resolve(ctx context.Context, asid defs.ASID_t, path ustr.Ustr) (uid.UID, error) {
	if err := Validate(path); err != nil {
		return uid.Nil, err
	}
	s, err := r.state(asid)
	if err != nil {
		return uid.Nil, err
	}

	raw := path.String()
	switch Classify(path) {
	case Network:
		rest := strings.SplitN(raw[2:], "/", 2)
		if r.remote == nil || len(rest) == 0 || rest[0] == "" {
			return uid.Nil, defs.EInvalidPathname
		}
		var sub ustr.Ustr
		if len(rest) == 2 {
			sub = ustr.Ustr("/" + rest[1])
		} else {
			sub = ustr.MkUstrRoot()
		}
		return r.remote.ResolveRemote(ctx, rest[0], sub)

	case NodeData:
		rest := strings.TrimPrefix(raw, nodeDataPrefix)
		rest = strings.TrimPrefix(rest, "/")
		parts, err := normalizeParts(SplitPath(ustr.Ustr(rest)))
		if err != nil {
			return uid.Nil, err
		}
		return walkToUID(r.nodeDataRoot(), parts)
	}

	dir := s.wdir
	if path.IsAbsolute() {
		dir = s.ndir
	}
	parts, err := normalizeParts(SplitPath(path))
	if err != nil {
		return uid.Nil, err
	}
	return walkToUID(dir, parts)
}

// CrFile creates a leaf entry named by the final component of path,
// bound to obj. All but the final component must already exist as
// directories.
func (r *Resolver) CrFile(asid defs.ASID_t, path ustr.Ustr, obj uid.UID) error {
	if err := Validate(path); err != nil {
		return err
	}
	s, err := r.state(asid)
	if err != nil {
		return err
	}
	dir := s.wdir
	if path.IsAbsolute() {
		dir = s.ndir
	}
	parts, err := normalizeParts(SplitPath(path))
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return defs.EInvalidPathname
	}
	for _, name := range parts[:len(parts)-1] {
		child, _, isDir, ok := dir.Lookup(name)
		if !ok || !isDir {
			return defs.ENameNotFound
		}
		dir = child
	}
	return dir.CrFile(parts[len(parts)-1], obj)
}

// Drop removes the entry named by path's final component.
func (r *Resolver) Drop(asid defs.ASID_t, path ustr.Ustr) error {
	if err := Validate(path); err != nil {
		return err
	}
	s, err := r.state(asid)
	if err != nil {
		return err
	}
	dir := s.wdir
	if path.IsAbsolute() {
		dir = s.ndir
	}
	parts, err := normalizeParts(SplitPath(path))
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return defs.EInvalidPathname
	}
	for _, name := range parts[:len(parts)-1] {
		child, _, isDir, ok := dir.Lookup(name)
		if !ok || !isDir {
			return defs.ENameNotFound
		}
		dir = child
	}
	return dir.Drop(parts[len(parts)-1])
}
