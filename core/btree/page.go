package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/dwaldb/core/deltatree"
	"github.com/sushant-115/dwaldb/core/pager"
)

// pageHeaderSize is the fixed prefix of every B-tree page: height and the
// byte size of the delta tree region that follows (spec.md §3 "B-tree
// Page").
const pageHeaderSize = 2 + 4

// Page is one decoded B-tree page: a height (1 = leaf) and a Delta Tree of
// records, backed by a single contiguous buffer that may itself be the
// concatenation of several physical pages' payloads (an oversize page).
type Page struct {
	Height int
	buf    []byte
	tree   *deltatree.DeltaTree
}

// newPage allocates a fresh page buffer of usableBytes total size and
// initializes an empty Delta Tree inside it.
func newPage(height int, usableBytes int) *Page {
	buf := make([]byte, usableBytes)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(height))
	p := &Page{Height: height, buf: buf}
	p.tree = deltatree.New(buf[pageHeaderSize:])
	p.syncHeader()
	return p
}

func (p *Page) syncHeader() {
	binary.LittleEndian.PutUint32(p.buf[2:6], uint32(p.tree.ByteSize()))
}

// decodePage parses a page previously produced by newPage/Encode.
func decodePage(buf []byte) (*Page, error) {
	if len(buf) < pageHeaderSize {
		return nil, fmt.Errorf("btree: page buffer too small (%d bytes)", len(buf))
	}
	height := int(binary.LittleEndian.Uint16(buf[0:2]))
	tree, err := deltatree.Open(buf[pageHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("btree: decoding page delta tree: %w", err)
	}
	return &Page{Height: height, buf: buf, tree: tree}, nil
}

// Encode returns the page's on-disk bytes, refreshing the kv_bytes field.
func (p *Page) Encode() []byte {
	p.syncHeader()
	return p.buf
}

// IsLeaf reports whether this page's records are user KV records rather
// than child links (spec.md §3: "Height 1 = leaf").
func (p *Page) IsLeaf() bool { return p.Height == 1 }

// Insert adds rec to the page's Delta Tree, returning deltatree.ErrFull if
// it does not fit.
func (p *Page) Insert(rec Record) error {
	return p.tree.Insert(rec.toItem())
}

// Records returns every non-tombstoned record in key order.
func (p *Page) Records() []Record {
	out := make([]Record, 0, p.tree.Len())
	c := deltatree.NewCursor(p.tree)
	if !c.First() {
		return out
	}
	out = append(out, fromItem(c.Item()))
	for c.Next() {
		out = append(out, fromItem(c.Item()))
	}
	return out
}

// ChildPageID decodes rec's value as a child PageID (internal pages only).
func ChildPageID(rec Record) PageID {
	if !rec.HasValue {
		return nil
	}
	return decodeChildPageID(rec.Value)
}

// childRecord builds an internal record naming child as the covering
// PageID for [key, next record's key).
func childRecord(key []byte, child PageID) Record {
	return Record{Key: key, Version: 0, HasValue: true, Value: encodeChildPageID(child)}
}

// placeholderRecord builds a value-less internal record that exists only
// to preserve a decodable upper bound after a neighboring subtree shrank
// (spec.md §4.6 "InternalPageBuilder").
func placeholderRecord(key []byte) Record {
	return Record{Key: key, Version: 0, HasValue: false}
}

// --- physical page I/O across a possibly multi-LPID PageID ---

// pageReader is the read-only slice of the pager needed to decode a
// logical B-tree page. Both the live pager and a version snapshot satisfy
// it (via the adapters below), so cursors read identically whether they
// are walking the current tree or a retained snapshot.
type pageReader interface {
	PageSize() int
	ReadPage(id pager.LogicalPageID) (*pager.PageBuffer, error)
}

// pageWriter is the slice of *pager.Pager that commit needs to allocate,
// write, and free logical pages. Only ever backed by the live pager —
// snapshots are read-only.
type pageWriter interface {
	PageSize() int
	NewPageID() (pager.LogicalPageID, error)
	UpdatePage(id pager.LogicalPageID, content *pager.PageBuffer) error
	AtomicUpdatePage(id pager.LogicalPageID, content *pager.PageBuffer, version pager.Version) (pager.LogicalPageID, error)
	FreePage(id pager.LogicalPageID, version pager.Version) error
}

// livePageReader adapts *pager.Pager to the single-argument pageReader
// interface. Each read goes through the latest committed snapshot, so ids
// rewritten in place by AtomicUpdatePage resolve through the remap index
// to their newest committed content.
type livePageReader struct{ p *pager.Pager }

func (r livePageReader) PageSize() int { return r.p.PageSize() }
func (r livePageReader) ReadPage(id pager.LogicalPageID) (*pager.PageBuffer, error) {
	snap, err := r.p.LatestCommittedSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return snap.ReadPage(id)
}

// snapshotPageReader adapts a *pager.Snapshot to pageReader.
type snapshotPageReader struct {
	snap     *pager.Snapshot
	pageSize int
}

func (r snapshotPageReader) PageSize() int { return r.pageSize }
func (r snapshotPageReader) ReadPage(id pager.LogicalPageID) (*pager.PageBuffer, error) {
	return r.snap.ReadPage(id)
}

// readLogicalPage concatenates the payload bytes of every LPID in id, in
// order, and decodes the result as one Page.
func readLogicalPage(store pageReader, id PageID) (*Page, error) {
	buf := make([]byte, 0, len(id)*store.PageSize())
	for _, lpid := range id {
		pb, err := store.ReadPage(lpid)
		if err != nil {
			return nil, err
		}
		buf = append(buf, pb.Payload()...)
	}
	return decodePage(buf)
}

// usableBytesPerPhysicalPage is the payload capacity of one physical page
// once the checksum footer is excluded.
func usableBytesPerPhysicalPage(store pageWriter) int {
	return store.PageSize() - pager.ChecksumSize
}

// splitIntoPhysicalChunks divides buf into store.PageSize()-checksum sized
// chunks, the layout required to spread one logical page across several
// physical LPIDs.
func splitIntoPhysicalChunks(store pageWriter, buf []byte) [][]byte {
	chunkSize := usableBytesPerPhysicalPage(store)
	var chunks [][]byte
	for off := 0; off < len(buf); off += chunkSize {
		end := off + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		chunk := make([]byte, chunkSize)
		copy(chunk, buf[off:end])
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		chunks = append(chunks, make([]byte, chunkSize))
	}
	return chunks
}

// writeNewLogicalPage allocates a fresh LPID per physical chunk of buf and
// writes them, returning the resulting PageID.
func writeNewLogicalPage(store pageWriter, buf []byte) (PageID, error) {
	chunks := splitIntoPhysicalChunks(store, buf)
	ids := make(PageID, len(chunks))
	for i, chunk := range chunks {
		id, err := store.NewPageID()
		if err != nil {
			return nil, err
		}
		if err := store.UpdatePage(id, pager.WrapPageBuffer(append(chunk, make([]byte, pager.ChecksumSize)...))); err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// atomicRewriteLogicalPage rewrites buf into the same set of LPIDs as
// original via AtomicUpdatePage, preserving the parent's existing link
// (spec.md §4.6 "page rewrite reuse policy"). It requires
// len(original) == number of physical chunks buf needs.
func atomicRewriteLogicalPage(store pageWriter, original PageID, buf []byte, version pager.Version) error {
	chunks := splitIntoPhysicalChunks(store, buf)
	if len(chunks) != len(original) {
		return fmt.Errorf("btree: atomic rewrite chunk count %d does not match original %d", len(chunks), len(original))
	}
	for i, chunk := range chunks {
		full := append(chunk, make([]byte, pager.ChecksumSize)...)
		if _, err := store.AtomicUpdatePage(original[i], pager.WrapPageBuffer(full), version); err != nil {
			return err
		}
	}
	return nil
}

// freeLogicalPage frees every LPID composing id at version.
func freeLogicalPage(store pageWriter, id PageID, version pager.Version) error {
	for _, lpid := range id {
		if err := store.FreePage(lpid, version); err != nil {
			return err
		}
	}
	return nil
}
