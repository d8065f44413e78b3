package btree

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/dwaldb/core/pager"
	"github.com/sushant-115/dwaldb/pkg/logger"
)

// Tree is the versioned, copy-on-write B-tree described by spec.md §4.6,
// layered directly over a *pager.Pager. All writes accumulate in an
// in-memory mutation buffer; Commit merges them against the on-disk tree
// in one pass and hands the result to the pager's own atomic commit.
type Tree struct {
	pgr *pager.Pager
	log *zap.Logger

	mu     sync.Mutex
	root   PageID
	height int
	mutBuf *mutationBuffer

	lazyDelete *pager.FIFOQueue
	lazy       *lazyDeleter
}

// Open bootstraps a fresh tree (an empty single leaf) or, if pgr already
// holds a committed meta key, resumes the tree it describes (spec.md §4.7
// "meta_key").
func Open(pgr *pager.Pager, log *zap.Logger) (*Tree, error) {
	t := &Tree{pgr: pgr, log: log, mutBuf: newMutationBuffer()}

	raw := pgr.MetaKey()
	if len(raw) == 0 {
		queue, err := pager.NewFIFOQueue("btree_lazy_delete", pgr)
		if err != nil {
			return nil, err
		}
		t.lazyDelete = queue
		t.root = nil
		t.height = 1
	} else {
		mk, err := decodeMetaKey(raw)
		if err != nil {
			return nil, err
		}
		queue, err := pager.OpenFIFOQueue("btree_lazy_delete", pgr, mk.lazyDeleteState)
		if err != nil {
			return nil, err
		}
		t.lazyDelete = queue
		t.root = mk.root
		t.height = mk.height
	}

	t.lazy = newLazyDeleter(t.lazyDelete, pgr, log, &t.mu)
	t.lazy.start()
	log.Debug("btree: opened", logger.Queue("btree_lazy_delete"), logger.Height(t.height))
	return t, nil
}

// Set stages a point write, visible to readers only after Commit.
func (t *Tree) Set(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mutBuf.Set(key, value)
}

// ClearRange stages a [begin, end) clear.
func (t *Tree) ClearRange(begin, end []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mutBuf.ClearRange(begin, end)
}

// Commit merges every staged write against the durable tree and commits
// the result through the pager, returning the new version (spec.md §4.7
// "commit walks the whole tree ... in one pass").
func (t *Tree) Commit() (pager.Version, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mutBuf.Empty() {
		return t.pgr.CommittedVersion(), nil
	}

	t.lazy.shutdown()
	if _, err := t.lazyDelete.PreFlush(); err != nil {
		t.lazy.start()
		return pager.InvalidVersion, err
	}

	writeVersion := t.nextWriteVersion()
	ctx := &commitContext{pgr: t.pgr, mb: t.mutBuf, lazy: t.lazy, version: writeVersion}

	out, err := commitSubtree(ctx, t.root, t.height, []byte{}, endSentinel)
	if err != nil {
		t.lazy.start()
		return pager.InvalidVersion, err
	}

	newRoot, newHeight, err := t.promoteRoot(ctx, out)
	if err != nil {
		t.lazy.start()
		return pager.InvalidVersion, err
	}

	mk := metaKey{height: newHeight, lazyDeleteState: t.lazyDelete.FinishFlush(), root: newRoot}
	committed, err := t.pgr.Commit(encodeMetaKey(mk))
	if err != nil {
		t.lazy.start()
		return pager.InvalidVersion, err
	}

	t.root = newRoot
	t.height = newHeight
	t.mutBuf.Reset()
	t.lazy.start()
	return committed, nil
}

// nextWriteVersion is a placeholder write-time version used only to tag
// lazy-delete entries and atomic page rewrites; the pager assigns the real
// committed version inside Commit, which is what readers actually observe.
// Using the pager's current committed version plus one keeps lazy-delete
// entries ordered consistently with EffectiveOldest comparisons.
func (t *Tree) nextWriteVersion() pager.Version {
	return t.pgr.CommittedVersion() + 1
}

// promoteRoot turns a single-subtree commit outcome into the tree's new
// root, growing the tree by one height level whenever writePages produced
// more than one top-level summary (spec.md §4.7 "root promotion"). A
// single remaining summary becomes the root at its own height; the tree is
// never shrunk by replacing a one-child internal root with that child.
func (t *Tree) promoteRoot(ctx *commitContext, out outcome) (PageID, int, error) {
	if out.gone {
		return nil, 1, nil
	}
	summaries := out.summaries
	height := t.height
	for len(summaries) > 1 {
		records := make([]Record, len(summaries))
		for i, s := range summaries {
			records[i] = childRecord(s.key, s.pageID)
		}
		height++
		next, err := writePages(ctx, records, height, nil)
		if err != nil {
			return nil, 0, err
		}
		summaries = next
	}
	return summaries[0].pageID, summaries[0].height, nil
}

// Close stops the background lazy-delete worker. It does not close the
// underlying pager.
func (t *Tree) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lazy.shutdown()
}
