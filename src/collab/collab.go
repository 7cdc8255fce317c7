// Package collab declares the external collaborators this module's
// core subsystems depend on but do not themselves implement: the
// volume table of contents an AOTE's attribute block and segments are
// fetched from and flushed to, the MMU a mapped Area ultimately wires
// into, the page allocator (mem.Physmem_t already satisfies
// PageAlloc), the ACL consulted before granting a file lock, the
// process collaborator a kernel subsystem signals, and the transport
// used to resolve a name rooted at another node. Most of these are
// interfaces only — there is no MMU or process scheduler under this
// hosted module — with small fakes provided where a concrete
// implementation is cheap and genuinely useful for tests.
package collab

import (
	"context"

	"defs"
	"mem"
	"uid"
	"ustr"
)

// VTOC is a volume's table of contents: durable storage for an
// object's attribute block and its segments, fetched on demand by the
// aot package and flushed back on eviction/dismount.
type VTOC interface {
	FetchAttrBlock(ctx context.Context, u uid.UID) ([]byte, error)
	StoreAttrBlock(ctx context.Context, u uid.UID, data []byte) error
	FetchSegment(ctx context.Context, u uid.UID, seg int) ([]byte, error)
	StoreSegment(ctx context.Context, u uid.UID, seg int, data []byte) error
}

// PageAlloc is the page-allocation collaborator the aot and area
// packages depend on; mem.Physmem_t satisfies it directly.
type PageAlloc = mem.Page_i

// MMU is the hardware memory-management collaborator a real Area
// implementation would ultimately program. This hosted module has no
// MMU to drive — area.Table tracks segment presence entirely in
// software — so MMU is declared for callers that layer real paging on
// top, with no fake: there is nothing faithful a fake MMU could do
// beyond bookkeeping area.Table already performs.
type MMU interface {
	MapPage(asid defs.ASID_t, va uint64, pa mem.Pa_t, writable bool) error
	UnmapPage(asid defs.ASID_t, va uint64) error
	Shootdown(asid defs.ASID_t, va uint64)
}

// ACL gates a file lock request against a policy external to the
// lock manager itself (e.g. a per-node or per-principal rule store).
type ACL interface {
	Allowed(asid defs.ASID_t, obj uid.UID, op string) bool
}

// AllowAllACL is an ACL that permits everything, for tests and
// single-principal deployments with no access control configured.
type AllowAllACL struct{}

// Allowed always returns true.
func (AllowAllACL) Allowed(defs.ASID_t, uid.UID, string) bool { return true }

// VolumeInfo answers whether the volume backing an object is mounted
// read-only, the check priv_lock runs before granting a write-requiring
// mode (spec §4.6 step 4).
type VolumeInfo interface {
	IsReadOnly(u uid.UID) bool
}

// AllWritableVolumes is a VolumeInfo that reports every volume as
// writable, for tests and deployments with no read-only volumes
// mounted.
type AllWritableVolumes struct{}

// IsReadOnly always returns false.
func (AllWritableVolumes) IsReadOnly(uid.UID) bool { return false }

// Proc is the process collaborator a kernel subsystem signals, e.g.
// when a lock conflict or a trouble code needs to be delivered to the
// owning task.
type Proc interface {
	ASID() defs.ASID_t
	Kill(quitval int)
}

// RemoteNode resolves a path rooted at a named remote node. Its shape
// matches naming.RemoteNode exactly (intentionally duck-typed, not
// imported, so naming does not need to depend on collab) so any
// RemoteNode implementation here can be passed directly to
// naming.NewResolver.
type RemoteNode interface {
	ResolveRemote(ctx context.Context, node string, path ustr.Ustr) (uid.UID, error)
}
