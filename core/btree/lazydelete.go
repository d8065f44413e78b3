package btree

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sushant-115/dwaldb/core/pager"
	"github.com/sushant-115/dwaldb/pkg/logger"
)

// leadLPID logs the first physical chunk of a PageID, which is enough to
// correlate a lazy-delete log line with the page's other log mentions.
func leadLPID(id PageID) zap.Field {
	if len(id) == 0 {
		return logger.LPID(0)
	}
	return logger.LPID(uint64(id[0]))
}

// lazyDeleteEntry names one obsolete subtree root: the height it was queued
// at and the version its replacement committed, plus the PageID that must
// eventually be freed (spec.md §4.7 "lazy delete queue"). Entries for an
// internal page's children are pushed by the worker itself as it descends,
// one level at a time, so a single large obsolete subtree never blocks a
// commit.
type lazyDeleteEntry struct {
	version pager.Version
	height  int
	page    PageID
}

func encodeLazyDeleteEntry(e lazyDeleteEntry) []byte {
	buf := make([]byte, 8+2+2+8*len(e.page))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.version))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(e.height))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(e.page)))
	for i, lpid := range e.page {
		binary.LittleEndian.PutUint64(buf[12+8*i:], uint64(lpid))
	}
	return buf
}

func decodeLazyDeleteEntry(buf []byte) lazyDeleteEntry {
	version := pager.Version(binary.LittleEndian.Uint64(buf[0:8]))
	height := int(binary.LittleEndian.Uint16(buf[8:10]))
	n := int(binary.LittleEndian.Uint16(buf[10:12]))
	page := make(PageID, n)
	for i := 0; i < n; i++ {
		page[i] = pager.LogicalPageID(binary.LittleEndian.Uint64(buf[12+8*i:]))
	}
	return lazyDeleteEntry{version: version, height: height, page: page}
}

// lazyDeleter owns the background worker that frees obsolete subtrees once
// no retained snapshot can still reach them (spec.md §4.7: freeing a
// replaced internal page's children is deferred and spread across many
// commits rather than done inline, so a commit that replaces a large
// subtree does not stall on freeing all of it).
type lazyDeleter struct {
	queue     *pager.FIFOQueue
	pgr       *pager.Pager
	log       *zap.Logger
	limiter   *rate.Limiter
	stop      chan struct{}
	wg        sync.WaitGroup
	commitMu  *sync.Mutex // Tree.mu, taken while touching the queue outside a commit
}

func newLazyDeleter(queue *pager.FIFOQueue, pgr *pager.Pager, log *zap.Logger, commitMu *sync.Mutex) *lazyDeleter {
	return &lazyDeleter{
		queue:    queue,
		pgr:      pgr,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(200), 1),
		commitMu: commitMu,
	}
}

// enqueue records that page (at height) was replaced as of version and can
// be freed once EffectiveOldest() advances past it.
func (d *lazyDeleter) enqueue(page PageID, height int, version pager.Version) error {
	return d.queue.PushBack(encodeLazyDeleteEntry(lazyDeleteEntry{version: version, height: height, page: page}))
}

func (d *lazyDeleter) start() {
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go d.run(d.stop)
}

func (d *lazyDeleter) shutdown() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
}

func (d *lazyDeleter) run(stop chan struct{}) {
	defer d.wg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.stepOnce()
		}
	}
}

// stepOnce reclaims a single lazy-delete entry, if one is both present and
// old enough, descending one level into an internal page rather than
// freeing an entire obsolete subtree at once.
func (d *lazyDeleter) stepOnce() {
	if !d.limiter.Allow() {
		return
	}
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	raw, ok, err := d.queue.PeekFront()
	if err != nil || !ok {
		if err != nil {
			d.log.Warn("btree: lazy delete peek failed", zap.Error(err))
		}
		return
	}
	entry := decodeLazyDeleteEntry(raw)
	if entry.version >= d.pgr.EffectiveOldest() {
		return // still possibly visible to a retained snapshot
	}
	if err := d.queue.Consume(); err != nil {
		d.log.Warn("btree: lazy delete consume failed", zap.Error(err))
		return
	}

	if entry.height <= 1 {
		if err := freeLogicalPage(d.pgr, entry.page, entry.version); err != nil {
			d.log.Warn("btree: freeing lazy-deleted leaf failed", leadLPID(entry.page), logger.Version(int64(entry.version)), zap.Error(err))
		}
		return
	}

	page, err := readLogicalPage(livePageReader{p: d.pgr}, entry.page)
	if err != nil {
		d.log.Warn("btree: reading lazy-deleted internal page failed", leadLPID(entry.page), logger.Height(entry.height), zap.Error(err))
		return
	}
	for _, rec := range page.Records() {
		child := ChildPageID(rec)
		if child == nil {
			continue
		}
		if err := d.enqueue(child, entry.height-1, entry.version); err != nil {
			d.log.Warn("btree: re-enqueueing lazy delete child failed", leadLPID(child), logger.Height(entry.height-1), zap.Error(err))
		}
	}
	if err := freeLogicalPage(d.pgr, entry.page, entry.version); err != nil {
		d.log.Warn("btree: freeing lazy-deleted internal page failed", leadLPID(entry.page), logger.Version(int64(entry.version)), zap.Error(err))
	}
}
