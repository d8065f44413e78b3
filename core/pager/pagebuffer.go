package pager

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumSize is the trailing CRC32C footer on every physical page.
const ChecksumSize = 4

// SmallestPhysicalBlock is the minimum unit of file I/O (spec.md §4.1) and
// the fixed size used for LPIDs 0 and 1 regardless of the configured
// logical page size (spec.md §6).
const SmallestPhysicalBlock = 4096

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// PageBuffer is a fixed-size, aligned byte buffer representing one physical
// page: payload followed by a 4-byte trailing CRC32C checksum seeded with
// the LPID it is bound to, so content copied to the wrong location fails
// verification instead of silently validating.
type PageBuffer struct {
	buf []byte
}

// NewPageBuffer allocates a zeroed buffer of the given physical page size.
func NewPageBuffer(physicalPageSize int) *PageBuffer {
	return &PageBuffer{buf: make([]byte, physicalPageSize)}
}

// WrapPageBuffer wraps an existing byte slice without copying. The caller
// must not mutate buf concurrently with use.
func WrapPageBuffer(buf []byte) *PageBuffer {
	return &PageBuffer{buf: buf}
}

// Bytes returns the full physical page including the trailing checksum.
func (p *PageBuffer) Bytes() []byte { return p.buf }

// Payload returns the portion of the buffer before the checksum footer.
func (p *PageBuffer) Payload() []byte { return p.buf[:len(p.buf)-ChecksumSize] }

// Clone returns a deep copy, used wherever a cached page must be mutated
// without disturbing readers holding the original (spec.md §5's
// clone-on-write page cloning).
func (p *PageBuffer) Clone() *PageBuffer {
	dup := make([]byte, len(p.buf))
	copy(dup, p.buf)
	return &PageBuffer{buf: dup}
}

// Seal computes and writes the CRC32C checksum seeded with lpid over the
// payload into the trailing footer.
func (p *PageBuffer) Seal(lpid LogicalPageID) {
	sum := checksumFor(lpid, p.Payload())
	binary.LittleEndian.PutUint32(p.buf[len(p.buf)-ChecksumSize:], sum)
}

// Verify reports whether the trailing checksum matches the payload when
// seeded with lpid.
func (p *PageBuffer) Verify(lpid LogicalPageID) bool {
	if len(p.buf) < ChecksumSize {
		return false
	}
	want := binary.LittleEndian.Uint32(p.buf[len(p.buf)-ChecksumSize:])
	got := checksumFor(lpid, p.Payload())
	return want == got
}

// checksumFor seeds a CRC32C digest with the 8 little-endian bytes of lpid
// before folding in the payload, binding page content to its logical
// location (spec.md §3 "Physical Page").
func checksumFor(lpid LogicalPageID, payload []byte) uint32 {
	h := crc32.New(crc32cTable)
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(lpid))
	h.Write(seed[:])
	h.Write(payload)
	return h.Sum32()
}
