package pager

import (
	"encoding/binary"
	"fmt"
)

// Header is the pager header stored at LPID 0 and mirrored to LPID 1
// before every commit (spec.md §3, §6). It always occupies a
// SmallestPhysicalBlock-sized physical page regardless of the configured
// logical page size.
type Header struct {
	FormatVersion  uint16
	PageSize       uint32
	PageCount      int64
	FreeList       QueueState
	DelayedFree    QueueState
	RemapQueue     QueueState
	CommittedVersion Version
	OldestVersion    Version
	MetaKey          []byte // opaque; the B-tree stores its root descriptor here
}

const headerFixedSize = 2 + 4 + 8 + 3*QueueStateEncodedSize + 8 + 8 + 4

// Encode serializes the header into a SmallestPhysicalBlock-sized payload
// (the checksum footer is appended separately by the caller via
// PageBuffer.Seal), padding unused bytes with 0xFF per spec.md §6.
func (h *Header) Encode(payload []byte) error {
	need := headerFixedSize + len(h.MetaKey)
	if need > len(payload) {
		return fmt.Errorf("pager: header (meta key %d bytes) exceeds page payload size %d", len(h.MetaKey), len(payload))
	}
	for i := range payload {
		payload[i] = 0xFF
	}
	off := 0
	binary.LittleEndian.PutUint16(payload[off:], h.FormatVersion)
	off += 2
	binary.LittleEndian.PutUint32(payload[off:], h.PageSize)
	off += 4
	binary.LittleEndian.PutUint64(payload[off:], uint64(h.PageCount))
	off += 8
	h.FreeList.encode(payload[off:])
	off += QueueStateEncodedSize
	h.DelayedFree.encode(payload[off:])
	off += QueueStateEncodedSize
	h.RemapQueue.encode(payload[off:])
	off += QueueStateEncodedSize
	binary.LittleEndian.PutUint64(payload[off:], uint64(h.CommittedVersion))
	off += 8
	binary.LittleEndian.PutUint64(payload[off:], uint64(h.OldestVersion))
	off += 8
	binary.LittleEndian.PutUint32(payload[off:], uint32(len(h.MetaKey)))
	off += 4
	copy(payload[off:], h.MetaKey)
	return nil
}

// DecodeHeader parses a header payload previously written by Encode.
func DecodeHeader(payload []byte) (*Header, error) {
	if len(payload) < headerFixedSize {
		return nil, fmt.Errorf("%w: header payload too short (%d bytes)", ErrCorruptFile, len(payload))
	}
	h := &Header{}
	off := 0
	h.FormatVersion = binary.LittleEndian.Uint16(payload[off:])
	off += 2
	h.PageSize = binary.LittleEndian.Uint32(payload[off:])
	off += 4
	h.PageCount = int64(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	h.FreeList = decodeQueueState(payload[off:])
	off += QueueStateEncodedSize
	h.DelayedFree = decodeQueueState(payload[off:])
	off += QueueStateEncodedSize
	h.RemapQueue = decodeQueueState(payload[off:])
	off += QueueStateEncodedSize
	h.CommittedVersion = Version(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	h.OldestVersion = Version(binary.LittleEndian.Uint64(payload[off:]))
	off += 8
	metaSize := binary.LittleEndian.Uint32(payload[off:])
	off += 4
	if int(metaSize) > len(payload)-off {
		return nil, fmt.Errorf("%w: meta key size %d overruns header payload", ErrCorruptFile, metaSize)
	}
	h.MetaKey = make([]byte, metaSize)
	copy(h.MetaKey, payload[off:off+int(metaSize)])
	return h, nil
}

// Clone returns a deep copy of the header, used when mirroring the live
// header into the last-committed copy at commit step 7 (spec.md §4.4).
func (h *Header) Clone() *Header {
	dup := *h
	dup.MetaKey = make([]byte, len(h.MetaKey))
	copy(dup.MetaKey, h.MetaKey)
	return &dup
}
