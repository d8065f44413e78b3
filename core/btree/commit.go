package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/dwaldb/core/deltatree"
	"github.com/sushant-115/dwaldb/core/pager"
)

// pageFillTarget is the fraction of a physical page's usable bytes a
// freshly written page tries to fill, leaving room for the next commit's
// deltas before a page must split again (spec.md §4.6 "writePages targets
// roughly two thirds of a page").
const pageFillTarget = 0.66

// minLeafRecords and minInternalRecords are the floors writePages will not
// split below, merging an undersized tail chunk into its predecessor
// instead (spec.md §4.6 "a split never produces a page below the minimum
// record count").
const (
	minLeafRecords     = 1
	minInternalRecords = 4
)

// summary is what commitSubtree reports for one surviving child page: the
// key it should be filed under in its parent, and its identity.
type summary struct {
	key    []byte
	pageID PageID
	height int
}

// outcome is commitSubtree's result for one subtree.
type outcome struct {
	gone      bool
	summaries []summary
}

// commitContext threads the dependencies commitSubtree needs through the
// recursion without a receiver, since commitSubtree recurses over subtrees
// rather than over the Tree itself.
type commitContext struct {
	pgr     *pager.Pager
	mb      *mutationBuffer
	lazy    *lazyDeleter
	version pager.Version
}

// commitSubtree walks the subtree rooted at pageID (nil if the range was
// previously empty) covering [lower, upper), merges it against the
// mutation buffer, and writes back whatever survives (spec.md §4.6). It is
// the same function at every height: height 1 performs a leaf record
// merge, height > 1 recurses per child and reassembles an internal page
// from the summaries.
func commitSubtree(ctx *commitContext, pageID PageID, height int, lower, upper []byte) (outcome, error) {
	if !rangeTouched(ctx.mb, lower, upper) {
		if pageID == nil {
			return outcome{gone: true}, nil
		}
		return outcome{summaries: []summary{{key: lower, pageID: pageID, height: height}}}, nil
	}

	if isFullyCleared(ctx.mb, lower, upper) {
		if pageID != nil {
			if height <= 1 {
				if err := freeLogicalPage(ctx.pgr, pageID, ctx.version); err != nil {
					return outcome{}, err
				}
			} else if err := ctx.lazy.enqueue(pageID, height, ctx.version); err != nil {
				return outcome{}, err
			}
		}
		return outcome{gone: true}, nil
	}

	if height <= 1 {
		return commitLeaf(ctx, pageID, lower, upper)
	}
	return commitInternal(ctx, pageID, height, lower, upper)
}

func commitLeaf(ctx *commitContext, pageID PageID, lower, upper []byte) (outcome, error) {
	var existing []Record
	if pageID != nil {
		page, err := readLogicalPage(livePageReader{p: ctx.pgr}, pageID)
		if err != nil {
			return outcome{}, fmt.Errorf("btree: reading leaf page for merge: %w", err)
		}
		existing = page.Records()
	}
	boundaries := ctx.mb.rangeSlice(lower, upper)
	merged := mergeLeafRecords(existing, boundaries, lower, upper)

	if len(merged) == 0 {
		if pageID != nil {
			if err := freeLogicalPage(ctx.pgr, pageID, ctx.version); err != nil {
				return outcome{}, err
			}
		}
		return outcome{gone: true}, nil
	}

	summaries, err := writePages(ctx, merged, 1, pageID)
	if err != nil {
		return outcome{}, err
	}
	return outcome{summaries: summaries}, nil
}

func commitInternal(ctx *commitContext, pageID PageID, height int, lower, upper []byte) (outcome, error) {
	var children []Record
	if pageID != nil {
		page, err := readLogicalPage(livePageReader{p: ctx.pgr}, pageID)
		if err != nil {
			return outcome{}, fmt.Errorf("btree: reading internal page for merge: %w", err)
		}
		children = page.Records()
	}

	var merged []Record
	for i := range children {
		childLower := children[i].Key
		if i == 0 {
			childLower = lower
		}
		childUpper := upper
		if i+1 < len(children) {
			childUpper = children[i+1].Key
		}
		childID := ChildPageID(children[i])

		out, err := commitSubtree(ctx, childID, height-1, childLower, childUpper)
		if err != nil {
			return outcome{}, err
		}
		for _, s := range out.summaries {
			merged = append(merged, childRecord(s.key, s.pageID))
		}
	}

	if len(merged) == 0 {
		if pageID != nil {
			if err := freeLogicalPage(ctx.pgr, pageID, ctx.version); err != nil {
				return outcome{}, err
			}
		}
		return outcome{gone: true}, nil
	}

	summaries, err := writePages(ctx, merged, height, pageID)
	if err != nil {
		return outcome{}, err
	}
	return outcome{summaries: summaries}, nil
}

// rangeTouched reports whether any boundary within [lower, upper) was
// touched (set/cleared) since the last commit. An untouched range's page,
// if any, is reused verbatim without being read.
func rangeTouched(mb *mutationBuffer, lower, upper []byte) bool {
	for _, b := range mb.rangeSlice(lower, upper) {
		if b.touched {
			return true
		}
	}
	return false
}

// isFullyCleared reports whether every key in [lower, upper) is covered by
// an active range clear, with no intervening set. When true, an existing
// page for this range can be discarded without ever being read: for a
// leaf it is freed outright, for an internal page it is handed onto the
// lazy delete queue so its descendants are freed incrementally rather
// than during this commit (spec.md §4.7).
func isFullyCleared(mb *mutationBuffer, lower, upper []byte) bool {
	for _, b := range mb.rangeSlice(lower, upper) {
		if !b.clearAfter {
			return false
		}
		if b.boundaryChanged && b.hasValue {
			return false
		}
	}
	return true
}

// mergeLeafRecords scanlines existing (sorted) leaf records against the
// mutation buffer's boundaries covering [lower, upper), producing the
// final sorted record list for the range (spec.md §4.6 "leaf merge").
func mergeLeafRecords(existing []Record, boundaries []*boundary, lower, upper []byte) []Record {
	var out []Record
	ei := 0
	emitExisting := func(to []byte, cleared bool) {
		for ei < len(existing) && compareKeys(existing[ei].Key, to) < 0 {
			if !cleared && compareKeys(existing[ei].Key, lower) >= 0 {
				out = append(out, existing[ei])
			}
			ei++
		}
	}
	for idx, b := range boundaries {
		rangeEnd := upper
		if idx+1 < len(boundaries) {
			rangeEnd = boundaries[idx+1].key
		}
		emitExisting(b.key, false)
		if b.boundaryChanged {
			if ei < len(existing) && compareKeys(existing[ei].Key, b.key) == 0 {
				ei++
			}
			if b.hasValue && compareKeys(b.key, lower) >= 0 && compareKeys(b.key, upper) < 0 {
				out = append(out, Record{Key: append([]byte(nil), b.key...), Version: 0, HasValue: true, Value: b.value})
			}
		} else if ei < len(existing) && compareKeys(existing[ei].Key, b.key) == 0 {
			if compareKeys(b.key, lower) >= 0 {
				out = append(out, existing[ei])
			}
			ei++
		}
		emitExisting(rangeEnd, b.clearAfter)
	}
	return out
}

// splitRecordsIntoChunks greedily accumulates records until adding the
// next one would exceed targetBytes, cutting a new chunk there, unless
// doing so would leave the current chunk under minCount. A final
// undersized tail chunk is folded into its predecessor.
func splitRecordsIntoChunks(records []Record, targetBytes, minCount int) [][]Record {
	if len(records) == 0 {
		return nil
	}
	var chunks [][]Record
	var cur []Record
	curBytes := 0
	for _, r := range records {
		recBytes := len(r.Key) + len(r.Value) + 24
		if curBytes+recBytes > targetBytes && len(cur) >= minCount {
			chunks = append(chunks, cur)
			cur = nil
			curBytes = 0
		}
		cur = append(cur, r)
		curBytes += recBytes
	}
	chunks = append(chunks, cur)
	if len(chunks) > 1 && len(chunks[len(chunks)-1]) < minCount {
		tail := chunks[len(chunks)-1]
		chunks = chunks[:len(chunks)-1]
		chunks[len(chunks)-1] = append(chunks[len(chunks)-1], tail...)
	}
	return chunks
}

// writePages splits records into one or more physical pages at height,
// writing each through ctx.pgr. When the result is exactly one chunk and
// reuse names a PageID with a matching physical chunk count, the existing
// LPIDs are rewritten in place via AtomicUpdatePage rather than
// reallocated, preserving the parent's link to this page (spec.md §4.6
// "page rewrite reuse policy"). Otherwise fresh LPIDs are allocated and,
// if reuse was non-nil, its old LPIDs are freed.
func writePages(ctx *commitContext, records []Record, height int, reuse PageID) ([]summary, error) {
	minCount := minLeafRecords
	if height > 1 {
		minCount = minInternalRecords
	}
	usable := usableBytesPerPhysicalPage(ctx.pgr)
	target := int(float64(usable) * pageFillTarget)
	chunks := splitRecordsIntoChunks(records, target, minCount)

	summaries := make([]summary, 0, len(chunks))
	reused := false
	for _, chunk := range chunks {
		buf, err := buildPageBuffer(height, usable, chunk)
		if err != nil {
			return nil, err
		}

		var id PageID
		if len(chunks) == 1 && reuse != nil && !reused {
			neededChunks := (len(buf) + usable - 1) / usable
			if neededChunks == len(reuse) {
				if err := atomicRewriteLogicalPage(ctx.pgr, reuse, buf, ctx.version); err != nil {
					return nil, err
				}
				id = reuse
				reused = true
			}
		}
		if id == nil {
			newID, err := writeNewLogicalPage(ctx.pgr, buf)
			if err != nil {
				return nil, err
			}
			id = newID
		}
		summaries = append(summaries, summary{key: chunk[0].Key, pageID: id, height: height})
	}

	if reuse != nil && !reused {
		if err := freeLogicalPage(ctx.pgr, reuse, ctx.version); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// buildPageBuffer bulk-builds chunk's records into a Delta Tree sized to
// usable bytes, growing the buffer by one more physical page's worth of
// usable bytes per attempt (spanning additional physical LPIDs), for up to
// eight attempts, until the tree fits, matching this engine's support for oversize pages
// (spec.md §3 "B-tree Page ID").
func buildPageBuffer(height int, usable int, chunk []Record) ([]byte, error) {
	items := make([]deltatree.Item, len(chunk))
	for i, r := range chunk {
		items[i] = r.toItem()
	}
	total := usable
	for attempt := 0; attempt < 8; attempt++ {
		buf := make([]byte, total)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(height))
		tree, err := deltatree.Build(buf[pageHeaderSize:], items)
		if err == nil {
			binary.LittleEndian.PutUint32(buf[2:6], uint32(tree.ByteSize()))
			return buf, nil
		}
		total += usable
	}
	return nil, fmt.Errorf("btree: page for %d records did not fit after growing to %d bytes", len(chunk), total)
}
