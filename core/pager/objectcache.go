package pager

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// opFuture is the minimal future/task type the design notes (spec.md §9)
// call for to model a suspension point: a single-shot result the
// scheduler (or a later caller) can await exactly once.
type opFuture struct {
	done chan struct{}
	err  error
}

func newOpFuture() *opFuture { return &opFuture{done: make(chan struct{})} }

func (f *opFuture) finish(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the scheduled operation completes and returns its error.
func (f *opFuture) Wait() error {
	<-f.done
	return f.err
}

// cacheEntry is one Object Cache slot: the current content plus whatever
// read/write is in flight against it (spec.md §4.3).
type cacheEntry struct {
	id           LogicalPageID
	content      *PageBuffer
	pendingRead  *opFuture
	pendingWrite *opFuture
	sizeBytes    int
}

// evictable reports whether this entry may be dropped from the cache right
// now: no read or write is in flight against it.
func (e *cacheEntry) evictable() bool {
	return e.pendingRead == nil && e.pendingWrite == nil
}

// ObjectCache is a bounded LRU over logical page IDs (spec.md §4.3). Byte
// budgeting and skip-pinned-entry eviction are layered on top of a
// hashicorp/golang-lru/v2/simplelru.LRU used purely as the recency-ordered
// key ring: GetOldest peeks the eviction candidate without promoting it,
// Get promotes (the "cycle to the back" move for a non-evictable entry),
// and Remove drops a key once its content has actually been evicted. The
// library's own automatic eviction is disabled (an effectively unbounded
// size) because its eviction callback cannot skip a pinned entry and keep
// looking — this cache's "stop at the first non-evictable entry" rule
// needs that skip, so eviction is driven manually.
type ObjectCache struct {
	mu         sync.Mutex
	entries    map[LogicalPageID]*cacheEntry
	order      *lru.LRU[LogicalPageID, struct{}]
	byteBudget int64
	curBytes   int64
	inFlight   []*opFuture
	log        *zap.Logger
}

// NewObjectCache creates a cache with the given byte budget. A budget of 0
// disables eviction (unbounded cache), useful for tests.
func NewObjectCache(byteBudget int64, log *zap.Logger) *ObjectCache {
	if log == nil {
		log = zap.NewNop()
	}
	order, _ := lru.NewLRU[LogicalPageID, struct{}](1<<30, nil)
	return &ObjectCache{
		entries:    make(map[LogicalPageID]*cacheEntry),
		order:      order,
		byteBudget: byteBudget,
		log:        log,
	}
}

// Get returns the entry for id, creating it if absent. When noHit is true
// the LRU recency order is left untouched (used by internal maintenance
// reads that should not count as a cache "hit").
func (c *ObjectCache) Get(id LogicalPageID, noHit bool) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		if !noHit {
			c.order.Get(id)
		}
		return e
	}
	e := &cacheEntry{id: id}
	c.entries[id] = e
	c.order.Add(id, struct{}{})
	c.evictLocked()
	return e
}

// GetIfExists returns the entry for id without creating it or touching the
// LRU order.
func (c *ObjectCache) GetIfExists(id LogicalPageID) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// setContent records newly-read or newly-written content for id and
// accounts its bytes against the budget, then triggers eviction.
func (c *ObjectCache) setContent(id LogicalPageID, content *PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.curBytes += int64(len(content.Bytes()) - e.sizeBytes)
	e.sizeBytes = len(content.Bytes())
	e.content = content
	c.evictLocked()
}

// evictLocked evicts from the front of the eviction order until either the
// cache is within budget or a non-evictable entry is encountered, in which
// case that entry is cycled to the back and eviction stops for this call
// (spec.md §4.3).
func (c *ObjectCache) evictLocked() {
	if c.byteBudget <= 0 {
		return
	}
	for c.curBytes > c.byteBudget && c.order.Len() > 0 {
		key, _, ok := c.order.GetOldest()
		if !ok {
			return
		}
		e, ok := c.entries[key]
		if !ok {
			c.order.Remove(key)
			continue
		}
		if !e.evictable() {
			// Cycle this pinned/in-flight entry to the most-recently-used
			// end and stop; it is not a candidate this round.
			c.order.Get(key)
			return
		}
		c.order.Remove(key)
		delete(c.entries, key)
		c.curBytes -= int64(e.sizeBytes)
	}
}

// ScheduleRead registers fn as the pending read for id, sequenced after any
// pending write so a read never observes content older than a write that
// was submitted first, and returns a future the caller may await.
func (c *ObjectCache) ScheduleRead(id LogicalPageID, fn func() (*PageBuffer, error)) *opFuture {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{id: id}
		c.entries[id] = e
		c.order.Add(id, struct{}{})
	}
	waitFor := e.pendingWrite
	future := newOpFuture()
	e.pendingRead = future
	c.mu.Unlock()

	go func() {
		if waitFor != nil {
			waitFor.Wait()
		}
		buf, err := fn()
		c.mu.Lock()
		if err == nil {
			c.curBytes += int64(len(buf.Bytes()) - e.sizeBytes)
			e.sizeBytes = len(buf.Bytes())
			e.content = buf
		}
		if e.pendingRead == future {
			e.pendingRead = nil
		}
		c.evictLocked()
		c.mu.Unlock()
		future.finish(err)
	}()
	return future
}

// ScheduleWrite replaces the in-memory content for id immediately (so
// readers after the call see the new content without waiting for the
// physical write) and schedules fn to perform the durable write, chained
// after any write already pending for id. The returned future is also
// retained for DrainInFlight to await at commit.
func (c *ObjectCache) ScheduleWrite(id LogicalPageID, content *PageBuffer, fn func(*PageBuffer) error) *opFuture {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{id: id}
		c.entries[id] = e
		c.order.Add(id, struct{}{})
	}
	waitForWrite := e.pendingWrite
	waitForRead := e.pendingRead
	future := newOpFuture()
	e.pendingWrite = future
	c.curBytes += int64(len(content.Bytes()) - e.sizeBytes)
	e.sizeBytes = len(content.Bytes())
	e.content = content
	c.inFlight = append(c.inFlight, future)
	c.evictLocked()
	c.mu.Unlock()

	go func() {
		if waitForRead != nil {
			waitForRead.Wait()
		}
		if waitForWrite != nil {
			waitForWrite.Wait()
		}
		err := fn(content)
		c.mu.Lock()
		if e.pendingWrite == future {
			e.pendingWrite = nil
		}
		c.evictLocked()
		c.mu.Unlock()
		future.finish(err)
	}()
	return future
}

// DrainInFlight awaits every write scheduled since the last drain (commit
// step 5, spec.md §4.4) and returns the first error encountered, if any.
// The futures are already backed by their own goroutines; errgroup just
// gives the fan-in a Wait that returns the first error, instead of a
// hand-rolled WaitGroup plus a separate first-error variable. The group
// has no context, so one failed write does not cancel the others.
func (c *ObjectCache) DrainInFlight() error {
	c.mu.Lock()
	pending := c.inFlight
	c.inFlight = nil
	c.mu.Unlock()

	var g errgroup.Group
	for _, f := range pending {
		f := f
		g.Go(func() error { return f.Wait() })
	}
	return g.Wait()
}

// Clear awaits evictability on every entry and drops them all, used when
// closing the pager.
func (c *ObjectCache) Clear() {
	c.mu.Lock()
	pending := make([]*opFuture, 0)
	for _, e := range c.entries {
		if e.pendingRead != nil {
			pending = append(pending, e.pendingRead)
		}
		if e.pendingWrite != nil {
			pending = append(pending, e.pendingWrite)
		}
	}
	c.mu.Unlock()

	for _, f := range pending {
		f.Wait()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[LogicalPageID]*cacheEntry)
	order, _ := lru.NewLRU[LogicalPageID, struct{}](1<<30, nil)
	c.order = order
	c.curBytes = 0
}
