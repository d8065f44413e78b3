package deltatree

import (
	"errors"
	"fmt"
)

// ErrFull is returned by Insert when the tree's backing buffer has no
// room left for the new node (spec.md §4.6 leaf merge: "if an insert
// doesn't fit the delta tree, fall back to linear merge").
var ErrFull = errors.New("deltatree: insert does not fit in page")

const (
	regimeSmall = 0 // uint16 node offsets — selected when capacity fits
	regimeLarge = 1 // uint32 node offsets — selected for larger pages

	smallRegimeCeiling = 1 << 16 // capacity at/above this uses the large regime

	arenaHeaderSize = 1 /* regime */ + 4 /* numItems */ + 4 /* root (max width) */ + 4 /* bump */
)

// DeltaTree is a balanced binary search tree of Items embedded in a fixed
// byte buffer (spec.md §4.5). All structural state — node links, item
// count, bump-allocator cursor — is encoded directly into the buffer, so
// a DeltaTree opened from previously written bytes needs no separate
// deserialization step beyond parsing the small fixed header.
type DeltaTree struct {
	buf        []byte
	regime     int
	offsetSize int // 2 (small) or 4 (large)
}

// New initializes an empty tree inside buf, whose full length determines
// the offset regime (spec.md §4.5 "two size regimes").
func New(buf []byte) *DeltaTree {
	t := &DeltaTree{buf: buf}
	if len(buf) >= smallRegimeCeiling {
		t.regime = regimeLarge
		t.offsetSize = 4
	} else {
		t.regime = regimeSmall
		t.offsetSize = 2
	}
	buf[0] = byte(t.regime)
	t.setNumItems(0)
	t.setRoot(0)
	t.setBump(uint32(t.nodeAreaStart()))
	return t
}

// Open parses a tree previously written by New/Insert/Erase out of buf.
func Open(buf []byte) (*DeltaTree, error) {
	if len(buf) < arenaHeaderSize {
		return nil, fmt.Errorf("deltatree: buffer too small for header (%d bytes)", len(buf))
	}
	t := &DeltaTree{buf: buf, regime: int(buf[0])}
	switch t.regime {
	case regimeSmall:
		t.offsetSize = 2
	case regimeLarge:
		t.offsetSize = 4
	default:
		return nil, fmt.Errorf("deltatree: unrecognized regime byte %d", buf[0])
	}
	return t, nil
}

func (t *DeltaTree) nodeAreaStart() int { return arenaHeaderSize }

// --- header accessors ---

func (t *DeltaTree) numItems() int        { return int(getUint32(t.buf[1:])) }
func (t *DeltaTree) setNumItems(n int)    { putUint32(t.buf[1:], uint32(n)) }
func (t *DeltaTree) root() uint32         { return t.getOffset(t.buf[5:]) }
func (t *DeltaTree) setRoot(o uint32)     { t.putOffset(t.buf[5:], o) }
func (t *DeltaTree) bump() uint32         { return getUint32(t.buf[9:]) }
func (t *DeltaTree) setBump(v uint32)     { putUint32(t.buf[9:], v) }

// Len returns the number of items ever inserted, including tombstoned
// (erased-but-not-compacted) entries.
func (t *DeltaTree) Len() int { return t.numItems() }

// ByteSize returns the number of bytes of buf currently in use.
func (t *DeltaTree) ByteSize() int { return int(t.bump()) }

// Capacity returns the usable size of the backing buffer.
func (t *DeltaTree) Capacity() int { return len(t.buf) }

func (t *DeltaTree) getOffset(b []byte) uint32 {
	if t.offsetSize == 2 {
		return uint32(getUint16(b))
	}
	return getUint32(b)
}

func (t *DeltaTree) putOffset(b []byte, v uint32) {
	if t.offsetSize == 2 {
		putUint16(b, uint16(v))
		return
	}
	putUint32(b, v)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

const (
	flagPrefixFromNext = 1 << 0 // base ancestor is the least-greater bound, not the greatest-lesser
	flagDeleted        = 1 << 1
)

// nodeHeaderSize is the fixed prefix of every encoded node: left, right,
// flags, delta length.
func (t *DeltaTree) nodeHeaderSize() int { return 2*t.offsetSize + 1 + 2 }

type node struct {
	offset  uint32
	left    uint32
	right   uint32
	flags   byte
	deltaOf []byte // the delta payload bytes, still encoded
}

func (t *DeltaTree) readNode(offset uint32) node {
	b := t.buf[offset:]
	n := node{offset: offset}
	n.left = t.getOffset(b)
	b = b[t.offsetSize:]
	n.right = t.getOffset(b)
	b = b[t.offsetSize:]
	n.flags = b[0]
	b = b[1:]
	deltaLen := getUint16(b)
	b = b[2:]
	n.deltaOf = b[:deltaLen]
	return n
}

func (t *DeltaTree) writeNodeLinks(offset uint32, left, right uint32) {
	b := t.buf[offset:]
	t.putOffset(b, left)
	b = b[t.offsetSize:]
	t.putOffset(b, right)
}

func (t *DeltaTree) setDeleted(offset uint32) {
	flagsOff := offset + uint32(2*t.offsetSize)
	t.buf[flagsOff] |= flagDeleted
}

func (t *DeltaTree) isDeleted(n node) bool { return n.flags&flagDeleted != 0 }
func (t *DeltaTree) baseIsNext(n node) bool { return n.flags&flagPrefixFromNext != 0 }

func (t *DeltaTree) decode(n node, prevBound, nextBound Item) Item {
	base := prevBound
	if t.baseIsNext(n) {
		base = nextBound
	}
	item, _ := readDelta(n.deltaOf, base)
	return item
}

// allocate reserves n bytes at the current bump cursor, returning the
// offset, or ok=false if the tree has no room left.
func (t *DeltaTree) allocate(n int) (uint32, bool) {
	cur := t.bump()
	need := uint32(n)
	if int(cur)+n > len(t.buf) {
		return 0, false
	}
	t.setBump(cur + need)
	return cur, true
}

// chooseBase decides which of the two bounding ancestors yields the
// shorter delta for item, per spec.md §4.5 "borrow all available prefix
// bytes from the ancestor which shares the most prefix bytes".
func chooseBase(item Item, prevBound, nextBound Item, havePrev, haveNext bool) (base Item, fromNext bool) {
	prevLen, nextLen := -1, -1
	if havePrev {
		prevLen = commonPrefixLen(item.Key, prevBound.Key)
	}
	if haveNext {
		nextLen = commonPrefixLen(item.Key, nextBound.Key)
	}
	if nextLen > prevLen {
		return nextBound, true
	}
	if havePrev {
		return prevBound, false
	}
	return nextBound, true
}

// Insert adds item to the tree, maintaining sorted order. It returns
// ErrFull if the backing buffer has no room for the new node.
func (t *DeltaTree) Insert(item Item) error {
	root := t.root()
	if root == 0 {
		return t.insertRoot(item)
	}
	return t.insertUnder(root, item, Item{}, Item{}, false, false)
}

func (t *DeltaTree) insertRoot(item Item) error {
	base, fromNext := chooseBase(item, Item{}, Item{}, false, false)
	off, ok := t.newNode(item, base, fromNext, 0, 0)
	if !ok {
		return ErrFull
	}
	t.setRoot(off)
	t.setNumItems(t.numItems() + 1)
	return nil
}

// insertUnder descends from the node at offset, carrying the tightest
// known bounding ancestors, until it finds the insertion point.
func (t *DeltaTree) insertUnder(offset uint32, item, prevBound, nextBound Item, havePrev, haveNext bool) error {
	n := t.readNode(offset)
	base := prevBound
	if t.baseIsNext(n) {
		base = nextBound
	}
	cur := t.decode(n, prevBound, nextBound)
	c := Compare(item, cur)
	if c == 0 {
		// Duplicate key+version+presence: overwrite in place by
		// re-encoding the delta against the same base if it still fits,
		// else signal full so the caller rebuilds the page.
		return t.overwrite(offset, n, item, base)
	}
	if c < 0 {
		if n.left == 0 {
			newBase, fromNext := chooseBase(item, prevBound, cur, havePrev, true)
			off, ok := t.newNode(item, newBase, fromNext, 0, 0)
			if !ok {
				return ErrFull
			}
			t.writeNodeLinks(offset, off, n.right)
			t.setNumItems(t.numItems() + 1)
			return nil
		}
		return t.insertUnder(n.left, item, prevBound, cur, havePrev, true)
	}
	if n.right == 0 {
		newBase, fromNext := chooseBase(item, cur, nextBound, true, haveNext)
		off, ok := t.newNode(item, newBase, fromNext, 0, 0)
		if !ok {
			return ErrFull
		}
		t.writeNodeLinks(offset, n.left, off)
		t.setNumItems(t.numItems() + 1)
		return nil
	}
	return t.insertUnder(n.right, item, cur, nextBound, true, haveNext)
}

func (t *DeltaTree) overwrite(offset uint32, n node, item, base Item) error {
	commonPrefix := item.getCommonPrefixLen(base, 0)
	need := item.deltaSize(base, commonPrefix)
	if need <= len(n.deltaOf) {
		putUint16(t.buf[offset+uint32(2*t.offsetSize)+1:], uint16(need))
		item.writeDelta(n.deltaOf[:need], base, commonPrefix)
		return nil
	}
	// Doesn't fit in the existing slot: the caller must fall back to a
	// full linear merge and page rewrite (spec.md §4.6), so there is no
	// value in relinking a replacement node here.
	return ErrFull
}

func (t *DeltaTree) newNode(item, base Item, fromNext bool, left, right uint32) (uint32, bool) {
	commonPrefix := item.getCommonPrefixLen(base, 0)
	deltaLen := item.deltaSize(base, commonPrefix)
	total := t.nodeHeaderSize() + deltaLen
	off, ok := t.allocate(total)
	if !ok {
		return 0, false
	}
	t.writeNodeLinks(off, left, right)
	flagsOff := off + uint32(2*t.offsetSize)
	var flags byte
	if fromNext {
		flags |= flagPrefixFromNext
	}
	t.buf[flagsOff] = flags
	putUint16(t.buf[flagsOff+1:], uint16(deltaLen))
	deltaStart := flagsOff + 3
	item.writeDelta(t.buf[deltaStart:deltaStart+uint32(deltaLen)], base, commonPrefix)
	return off, true
}

// Erase marks the node matching (key, version) as deleted without
// compacting the tree (spec.md §4.5 invariant: "deleted nodes are
// marked, not compacted"). It returns whether a matching, not-already-
// deleted node was found.
func (t *DeltaTree) Erase(key []byte, version int64) bool {
	target := Item{Key: key, Version: version, HasValue: true}
	offset := t.root()
	var prevBound, nextBound Item
	havePrev, haveNext := false, false
	for offset != 0 {
		n := t.readNode(offset)
		cur := t.decode(n, prevBound, nextBound)
		c := compareKeyVersion(target, cur)
		if c == 0 {
			if t.isDeleted(n) {
				return false
			}
			t.setDeleted(offset)
			return true
		}
		if c < 0 {
			nextBound, haveNext = cur, true
			offset = n.left
		} else {
			prevBound, havePrev = cur, true
			offset = n.right
		}
	}
	_, _ = havePrev, haveNext
	return false
}

func compareKeyVersion(a, b Item) int {
	if c := compareBytes(a.Key, b.Key); c != 0 {
		return c
	}
	if a.Version != b.Version {
		if a.Version < b.Version {
			return -1
		}
		return 1
	}
	return 0
}

// Build bulk-loads a sorted, duplicate-free slice of items into a fresh,
// perfectly height-balanced tree (spec.md §4.5 "after build, an in-order
// traversal returns the input sequence"). The split-point formula is
// FoundationDB's DeltaTree.h perfectSubtreeSplitPoint.
func Build(buf []byte, items []Item) (*DeltaTree, error) {
	t := New(buf)
	if len(items) == 0 {
		return t, nil
	}
	root, ok := t.buildRange(items, Item{}, Item{}, false, false)
	if !ok {
		return nil, ErrFull
	}
	t.setRoot(root)
	t.setNumItems(len(items))
	return t, nil
}

func (t *DeltaTree) buildRange(items []Item, prevBound, nextBound Item, havePrev, haveNext bool) (uint32, bool) {
	if len(items) == 0 {
		return 0, true
	}
	split := perfectSubtreeSplitPoint(len(items))
	mid := items[split]
	base, fromNext := chooseBase(mid, prevBound, nextBound, havePrev, haveNext)

	leftOff, ok := t.buildRange(items[:split], prevBound, mid, havePrev, true)
	if !ok {
		return 0, false
	}
	rightOff, ok := t.buildRange(items[split+1:], mid, nextBound, true, haveNext)
	if !ok {
		return 0, false
	}
	off, ok := t.newNode(mid, base, fromNext, leftOff, rightOff)
	return off, ok
}

// lessOrEqualPowerOfTwo returns the largest power of two <= n.
func lessOrEqualPowerOfTwo(n int) int {
	p := 1
	for p+p <= n {
		p += p
	}
	return p
}

// perfectSubtreeSplitPoint returns the in-order index of the root of a
// perfectly balanced binary search tree over subtreeSize items, per
// FoundationDB's DeltaTree.h.
func perfectSubtreeSplitPoint(subtreeSize int) int {
	s := lessOrEqualPowerOfTwo((subtreeSize-1)/2+1) - 1
	alt := subtreeSize - s - 1
	if s*2+1 < alt {
		return s*2 + 1
	}
	return alt
}
