// Package uid implements the kernel's global object identifier: a
// 64-bit, content-opaque {high, low} pair whose low half's top 20
// bits name an originating node when the object was created remotely.
package uid

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformed reports a string that is not a valid String() encoding.
type ErrMalformed struct {
	Text string
}

func (e ErrMalformed) Error() string {
	return fmt.Sprintf("uid: malformed UID %q", e.Text)
}

// UID is the kernel-wide object identifier. It is deliberately two
// plain uint32s rather than a single uint64 so that Hi/Lo match the
// original's wire layout and so zero-value UID{} is the well-known Nil.
type UID struct {
	Hi uint32
	Lo uint32
}

// Nil is the distinguished "no object" UID.
var Nil = UID{}

// nodeShift is where, within Lo, the originating-node field begins:
// the high 20 bits of the low half, per spec §3.
const nodeShift = 12
const nodeMask = 0xFFFFF << nodeShift

// IsNil reports whether u is the distinguished nil UID.
func (u UID) IsNil() bool {
	return u == Nil
}

// Node extracts the originating-node field from u's low half. ok is
// false for locally-canonical UIDs with no node encoded (node == 0).
func (u UID) Node() (node uint32, ok bool) {
	n := (u.Lo & nodeMask) >> nodeShift
	return n, n != 0
}

// New allocates a UID originating at node, folding a fresh UUIDv4
// draw into the low bits so independently-running nodes cannot
// collide without coordinating, the way the original's node-qualified
// allocator avoided cross-node collisions using the node number alone.
func New(node uint32) UID {
	id := uuid.New()
	b := id[:]
	hi := binary.BigEndian.Uint32(b[0:4])
	lo := binary.BigEndian.Uint32(b[4:8])
	lo = (lo &^ nodeMask) | ((node << nodeShift) & nodeMask)
	return UID{Hi: hi, Lo: lo}
}

// Hash returns a small-integer hash of u suitable for indexing a
// fixed-size bucket table; Bucket reduces it modulo a bucket count.
func Hash(u UID) uint32 {
	// fnv-1a style mix over the 8 raw bytes, avoiding a second import
	// for such a small, fixed-width key.
	h := uint32(2166136261)
	for _, b := range []byte{
		byte(u.Hi >> 24), byte(u.Hi >> 16), byte(u.Hi >> 8), byte(u.Hi),
		byte(u.Lo >> 24), byte(u.Lo >> 16), byte(u.Lo >> 8), byte(u.Lo),
	} {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}

// String renders u as "hi.lo" in hex, suitable as a hashtable.Hashtable_t
// string key.
func (u UID) String() string {
	return fmt.Sprintf("%08x.%08x", u.Hi, u.Lo)
}

// Parse reverses String, for tools and manifests that persist a UID
// as text (e.g. cmd/mkvol's JSON manifest) and need it back as a UID.
func Parse(s string) (UID, error) {
	var hi, lo uint32
	if n, err := fmt.Sscanf(s, "%08x.%08x", &hi, &lo); n != 2 || err != nil {
		return Nil, ErrMalformed{Text: s}
	}
	return UID{Hi: hi, Lo: lo}, nil
}

// Bucket reduces Hash(u) into [0, nbuckets).
func Bucket(u UID, nbuckets int) int {
	if nbuckets <= 0 {
		panic("uid: nbuckets must be positive")
	}
	return int(Hash(u) % uint32(nbuckets))
}
