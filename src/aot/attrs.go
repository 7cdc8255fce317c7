package aot

import (
	"encoding/binary"
	"fmt"

	"uid"
)

// AttrBlockSize is the size in bytes of an AOTE's fixed attribute
// block, the UID-keyed metadata record every activated object carries
// (object length, trouble code, clobbered-UID, dismount sequence).
const AttrBlockSize = 64

// attrBlock is a fixed-offset record accessed the way fs.Superblock_t
// reads/writes its fields: named accessors over fixed byte offsets,
// rather than a parsed Go struct, so the block can be read or written
// as a flat byte slice when it is faulted in from or flushed to a
// volume's table of contents.
type attrBlock [AttrBlockSize]byte

const (
	offLength       = 0  // uint64: object length in bytes
	offTrouble      = 8  // int32: sticky trouble code, 0 if healthy
	offModTimeUnix  = 12 // int64: last-modified time, unix seconds
	offClobberedHi  = 20 // uint32: UID.Hi of the clobbering UID, 0 if none
	offClobberedLo  = 24 // uint32: UID.Lo of the clobbering UID
	offDismountSeq  = 28 // uint32: sequence number bumped on each dismount
	offDTV          = 32 // uint32: dynamic type descriptor
	offACLIndex     = 36 // uint32: index naming the governing ACL
	offACLMask      = 40 // uint32: rights mask cached from the last ACL evaluation
	offOwnerHi      = 44 // uint32: UID.Hi of the owning principal
	offOwnerLo      = 48 // uint32: UID.Lo of the owning principal
	offObjType      = 52 // uint32: object type code
)

// ACLAttrs is the ACL sub-range of the full attribute block: which
// ACL governs the object and the rights mask cached from the last
// evaluation, the reformatted sub-range get_acl_attributes hands back
// instead of the raw 64-byte block.
type ACLAttrs struct {
	Index uint32
	Mask  uint32
}

// CommonAttrs is the "common attributes" sub-range every object type
// shares regardless of its dynamic type: the owning principal and the
// object type code, the sub-range get_common_attributes hands back.
type CommonAttrs struct {
	Owner uid.UID
	Type  uint32
}

func fieldr64(b *attrBlock, off int) uint64 {
	return binary.BigEndian.Uint64(b[off : off+8])
}

func fieldw64(b *attrBlock, off int, v uint64) {
	binary.BigEndian.PutUint64(b[off:off+8], v)
}

func fieldr32(b *attrBlock, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

func fieldw32(b *attrBlock, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

// Length returns the object's recorded length in bytes.
func (b *attrBlock) Length() uint64 { return fieldr64(b, offLength) }

// SetLength records the object's length in bytes.
func (b *attrBlock) SetLength(n uint64) { fieldw64(b, offLength, n) }

// Trouble returns the sticky trouble code, or 0 if the object is
// healthy.
func (b *attrBlock) Trouble() int32 { return int32(fieldr32(b, offTrouble)) }

// SetTrouble records a sticky trouble code.
func (b *attrBlock) SetTrouble(code int32) { fieldw32(b, offTrouble, uint32(code)) }

// ModTimeUnix returns the last-modified time as unix seconds.
func (b *attrBlock) ModTimeUnix() int64 { return int64(fieldr64(b, offModTimeUnix)) }

// SetModTimeUnix records the last-modified time as unix seconds.
func (b *attrBlock) SetModTimeUnix(t int64) { fieldw64(b, offModTimeUnix, uint64(t)) }

// ClobberedHi/ClobberedLo return the raw halves of a saved clobbering
// UID, see SaveClobberedUID.
func (b *attrBlock) ClobberedHi() uint32 { return fieldr32(b, offClobberedHi) }
func (b *attrBlock) ClobberedLo() uint32 { return fieldr32(b, offClobberedLo) }

func (b *attrBlock) setClobbered(hi, lo uint32) {
	fieldw32(b, offClobberedHi, hi)
	fieldw32(b, offClobberedLo, lo)
}

// DismountSeq returns the current dismount sequence number.
func (b *attrBlock) DismountSeq() uint32 { return fieldr32(b, offDismountSeq) }

func (b *attrBlock) bumpDismountSeq() uint32 {
	n := b.DismountSeq() + 1
	fieldw32(b, offDismountSeq, n)
	return n
}

// DTV returns the object's dynamic type descriptor.
func (b *attrBlock) DTV() uint32 { return fieldr32(b, offDTV) }

// setDTS records the object's dynamic type descriptor.
func (b *attrBlock) setDTS(dtv uint32) { fieldw32(b, offDTV, dtv) }

// aclAttrs extracts the ACL sub-range of the block.
func (b *attrBlock) aclAttrs() ACLAttrs {
	return ACLAttrs{Index: fieldr32(b, offACLIndex), Mask: fieldr32(b, offACLMask)}
}

func (b *attrBlock) setACLAttrs(a ACLAttrs) {
	fieldw32(b, offACLIndex, a.Index)
	fieldw32(b, offACLMask, a.Mask)
}

// commonAttrs extracts the common-attributes sub-range of the block.
func (b *attrBlock) commonAttrs() CommonAttrs {
	return CommonAttrs{
		Owner: uid.UID{Hi: fieldr32(b, offOwnerHi), Lo: fieldr32(b, offOwnerLo)},
		Type:  fieldr32(b, offObjType),
	}
}

func (b *attrBlock) setCommonAttrs(c CommonAttrs) {
	fieldw32(b, offOwnerHi, c.Owner.Hi)
	fieldw32(b, offOwnerLo, c.Owner.Lo)
	fieldw32(b, offObjType, c.Type)
}

// Field offsets exported for tools that patch a serialized attribute
// block on disk directly, the way chentry.go patches an ELF header's
// Entry field in place rather than going through a parsed struct.
const (
	FieldLength      = offLength
	FieldTrouble     = offTrouble
	FieldModTimeUnix = offModTimeUnix
	FieldDismountSeq = offDismountSeq
)

// PatchUint64 overwrites the 8 bytes at offset within a serialized
// attribute block with v.
func PatchUint64(data []byte, offset int, v uint64) error {
	if offset < 0 || offset+8 > len(data) {
		return fmt.Errorf("aot: offset %d out of range for %d-byte block", offset, len(data))
	}
	binary.BigEndian.PutUint64(data[offset:offset+8], v)
	return nil
}

// PatchUint32 overwrites the 4 bytes at offset within a serialized
// attribute block with v.
func PatchUint32(data []byte, offset int, v uint32) error {
	if offset < 0 || offset+4 > len(data) {
		return fmt.Errorf("aot: offset %d out of range for %d-byte block", offset, len(data))
	}
	binary.BigEndian.PutUint32(data[offset:offset+4], v)
	return nil
}

// ReadUint64 returns the 8 bytes at offset within a serialized
// attribute block.
func ReadUint64(data []byte, offset int) (uint64, error) {
	if offset < 0 || offset+8 > len(data) {
		return 0, fmt.Errorf("aot: offset %d out of range for %d-byte block", offset, len(data))
	}
	return binary.BigEndian.Uint64(data[offset : offset+8]), nil
}

// ReadUint32 returns the 4 bytes at offset within a serialized
// attribute block.
func ReadUint32(data []byte, offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, fmt.Errorf("aot: offset %d out of range for %d-byte block", offset, len(data))
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), nil
}
