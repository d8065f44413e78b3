package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/dwaldb/core/pager"
)

// metaFormatVersion guards the meta-key wire format independently of the
// pager header's own format_version (spec.md §3 "meta_key").
const metaFormatVersion = 1

// metaKey is the value stored under the pager header's meta_key field: the
// B-tree's persistent identity across recoveries (spec.md §4.7
// "{format_version, height, lazy_delete_queue_state, root}").
type metaKey struct {
	height          int
	lazyDeleteState pager.QueueState
	root            PageID
}

func encodeQueueStateInto(buf []byte, s pager.QueueState) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s.HeadLPID))
	binary.LittleEndian.PutUint16(buf[8:10], s.HeadOffset)
	binary.LittleEndian.PutUint64(buf[10:18], uint64(s.TailLPID))
	binary.LittleEndian.PutUint64(buf[18:26], s.NumPages)
	binary.LittleEndian.PutUint64(buf[26:34], s.NumEntries)
}

func decodeQueueStateFrom(buf []byte) pager.QueueState {
	return pager.QueueState{
		HeadLPID:   pager.LogicalPageID(binary.LittleEndian.Uint64(buf[0:8])),
		HeadOffset: binary.LittleEndian.Uint16(buf[8:10]),
		TailLPID:   pager.LogicalPageID(binary.LittleEndian.Uint64(buf[10:18])),
		NumPages:   binary.LittleEndian.Uint64(buf[18:26]),
		NumEntries: binary.LittleEndian.Uint64(buf[26:34]),
	}
}

// queueStateEncodedSize mirrors pager.QueueStateEncodedSize; duplicated
// because the pager package's own encode/decode helpers are unexported.
const queueStateEncodedSize = 34

// encodeMetaKey serializes m as: version(u8) height(u16) queue-state(34)
// root-lpid-count(u16) root-lpids(8 each).
func encodeMetaKey(m metaKey) []byte {
	buf := make([]byte, 1+2+queueStateEncodedSize+2+8*len(m.root))
	buf[0] = metaFormatVersion
	binary.LittleEndian.PutUint16(buf[1:3], uint16(m.height))
	encodeQueueStateInto(buf[3:3+queueStateEncodedSize], m.lazyDeleteState)
	off := 3 + queueStateEncodedSize
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(m.root)))
	off += 2
	for i, lpid := range m.root {
		binary.LittleEndian.PutUint64(buf[off+8*i:], uint64(lpid))
	}
	return buf
}

func decodeMetaKey(buf []byte) (metaKey, error) {
	if len(buf) < 3+queueStateEncodedSize+2 {
		return metaKey{}, fmt.Errorf("btree: meta key too short (%d bytes)", len(buf))
	}
	if buf[0] != metaFormatVersion {
		return metaKey{}, fmt.Errorf("btree: unsupported meta key format version %d", buf[0])
	}
	height := int(binary.LittleEndian.Uint16(buf[1:3]))
	state := decodeQueueStateFrom(buf[3 : 3+queueStateEncodedSize])
	off := 3 + queueStateEncodedSize
	n := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	root := make(PageID, n)
	for i := 0; i < n; i++ {
		root[i] = pager.LogicalPageID(binary.LittleEndian.Uint64(buf[off+8*i:]))
	}
	return metaKey{height: height, lazyDeleteState: state, root: root}, nil
}
