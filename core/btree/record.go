// Package btree implements the versioned, copy-on-write B-tree layered
// over core/pager (spec.md §4.6). Pages hold records in a core/deltatree
// container; commit walks the tree against an in-memory mutation buffer,
// writing new pages through the pager and queuing obsolete subtrees onto
// a lazy-delete queue for background reclamation.
package btree

import (
	"encoding/binary"

	"github.com/sushant-115/dwaldb/core/deltatree"
	"github.com/sushant-115/dwaldb/core/pager"
)

// Record is one B-tree record: a key, a version, and an optional value
// (spec.md §3). A leaf record's value is the stored user value (absent
// means a clear tombstone); an internal record's value, when present, is
// an encoded PageID naming the child covering [this record's key, the
// next record's key).
type Record struct {
	Key      []byte
	Version  int64
	HasValue bool
	Value    []byte
}

func (r Record) toItem() deltatree.Item {
	return deltatree.Item{Key: r.Key, Version: r.Version, HasValue: r.HasValue, Value: r.Value}
}

func fromItem(it deltatree.Item) Record {
	return Record{Key: it.Key, Version: it.Version, HasValue: it.HasValue, Value: it.Value}
}

// PageID is an ordered list of LPIDs whose physical contents concatenate
// to form one logical B-tree page, supporting pages that overflow a
// single physical block (spec.md §3 "B-tree Page ID").
type PageID []pager.LogicalPageID

func (p PageID) equalCount(other PageID) bool { return len(p) == len(other) }

// encodeChildPageID serializes a PageID as a child link value: a uint16
// count followed by that many little-endian uint64 LPIDs.
func encodeChildPageID(p PageID) []byte {
	buf := make([]byte, 2+8*len(p))
	binary.LittleEndian.PutUint16(buf, uint16(len(p)))
	for i, id := range p {
		binary.LittleEndian.PutUint64(buf[2+8*i:], uint64(id))
	}
	return buf
}

func decodeChildPageID(b []byte) PageID {
	n := int(binary.LittleEndian.Uint16(b))
	out := make(PageID, n)
	for i := 0; i < n; i++ {
		out[i] = pager.LogicalPageID(binary.LittleEndian.Uint64(b[2+8*i:]))
	}
	return out
}
