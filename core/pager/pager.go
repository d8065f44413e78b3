// Package pager implements the DWAL (Delayed-Write-Ahead-Log) pager:
// page-granularity atomic updates, crash-safe durability via a remap
// queue, and multi-version read snapshots (spec.md §4.4). It is the lower
// of the two tightly coupled subsystems described in spec.md §1; the
// upper one, the versioned B-tree, lives in core/btree and speaks to this
// package only through Pager's exported page interface.
package pager

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sushant-115/dwaldb/pkg/logger"
)

// Pager is the DWAL pager (spec.md §4.4).
type Pager struct {
	path     string
	file     *AsyncFile
	log      *zap.Logger
	pageSize int

	allocMu sync.Mutex // serializes new_page_id/free_page against the three queues

	liveHeader      *Header
	committedHeader *Header
	headerMu        sync.RWMutex

	freeList    *FIFOQueue
	delayedFree *FIFOQueue
	remapQueue  *FIFOQueue
	remapIndex  *RemapIndex

	cache     *ObjectCache
	snapshots *snapshotDeque

	pendingOldest Version
	oldestMu      sync.Mutex

	commitInFlight int32

	fatalMu  sync.RWMutex
	fatalErr error

	reclaimLimiter *rate.Limiter
	reclaimStop    chan struct{}
	reclaimWG      sync.WaitGroup
}

// Open opens the database file at path, creating and bootstrapping it if
// it does not exist, and recovering it (spec.md §4.4 "Recovery") if it
// does.
func Open(path string, cfg Config) (*Pager, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.PageSize%SmallestPhysicalBlock != 0 || cfg.PageSize < SmallestPhysicalBlock {
		return nil, fmt.Errorf("pager: page size %d must be a multiple of %d", cfg.PageSize, SmallestPhysicalBlock)
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	file, err := OpenAsyncFile(path, isNew)
	if err != nil {
		return nil, err
	}

	p := &Pager{
		path:           path,
		file:           file,
		log:            cfg.Logger,
		remapIndex:     NewRemapIndex(),
		snapshots:      &snapshotDeque{},
		cache:          NewObjectCache(cfg.CacheBytes, cfg.Logger),
		reclaimLimiter: cfg.reclaimLimiter(),
	}

	if isNew {
		if err := p.bootstrap(cfg.PageSize); err != nil {
			file.Close()
			return nil, err
		}
	} else {
		if err := p.recover(); err != nil {
			file.Close()
			return nil, err
		}
	}

	p.startReclaim()
	return p, nil
}

// bootstrap initializes a fresh database file: header pages, the three
// pager queues, and an initial commit (spec.md §4.4 "Recovery" step 2).
func (p *Pager) bootstrap(pageSize int) error {
	p.liveHeader = &Header{
		FormatVersion:    FormatVersion,
		PageSize:         uint32(pageSize),
		PageCount:        int64(FirstUserLPID),
		CommittedVersion: 0,
		OldestVersion:    0,
	}
	p.committedHeader = p.liveHeader.Clone()
	p.pageSize = pageSize

	var err error
	if p.freeList, err = NewFIFOQueue("free_list", p); err != nil {
		return err
	}
	if p.delayedFree, err = NewFIFOQueue("delayed_free_list", p); err != nil {
		return err
	}
	if p.remapQueue, err = NewFIFOQueue("remap_queue", p); err != nil {
		return err
	}

	if _, err := p.Commit(nil); err != nil {
		return err
	}
	return nil
}

// recover reloads header, queue, and remap state from an existing file
// (spec.md §4.4 "Recovery" step 3-6).
func (p *Pager) recover() error {
	hdr, fromBackup, err := p.readValidHeader()
	if err != nil {
		return err
	}
	if fromBackup {
		p.log.Warn("pager: promoting backup header after primary checksum failure")
	}
	if hdr.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: file has %d, implementation supports %d", ErrFormatMismatch, hdr.FormatVersion, FormatVersion)
	}

	p.pageSize = int(hdr.PageSize)
	p.liveHeader = hdr
	p.committedHeader = hdr.Clone()

	var ferr error
	if p.freeList, ferr = OpenFIFOQueue("free_list", p, hdr.FreeList); ferr != nil {
		return ferr
	}
	if p.delayedFree, ferr = OpenFIFOQueue("delayed_free_list", p, hdr.DelayedFree); ferr != nil {
		return ferr
	}
	if p.remapQueue, ferr = OpenFIFOQueue("remap_queue", p, hdr.RemapQueue); ferr != nil {
		return ferr
	}

	it, err := p.remapQueue.PeekAll()
	if err != nil {
		return err
	}
	for {
		item, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		p.remapIndex.Insert(decodeRemapEntry(item))
	}

	p.snapshots.push(newSnapshot(p, hdr.CommittedVersion))
	return nil
}

// readValidHeader reads LPID 0, falling back to the LPID 1 backup on
// checksum failure and promoting it (spec.md invariant 1).
func (p *Pager) readValidHeader() (*Header, bool, error) {
	primary := make([]byte, SmallestPhysicalBlock)
	if err := p.file.ReadAt(primary, 0); err != nil {
		return nil, false, err
	}
	pb := WrapPageBuffer(primary)
	if pb.Verify(HeaderLPID) {
		hdr, err := DecodeHeader(pb.Payload())
		return hdr, false, err
	}

	backup := make([]byte, SmallestPhysicalBlock)
	if err := p.file.ReadAt(backup, SmallestPhysicalBlock); err != nil {
		return nil, false, err
	}
	bb := WrapPageBuffer(backup)
	if !bb.Verify(HeaderBackupLPID) {
		return nil, false, ErrCorruptFile
	}
	hdr, err := DecodeHeader(bb.Payload())
	if err != nil {
		return nil, false, err
	}
	// Promote: re-seal the backup's bytes for LPID 0 and write it back.
	promoted := bb.Clone()
	promoted.Seal(HeaderLPID)
	if err := p.file.WriteAt(promoted.Bytes(), 0); err != nil {
		return nil, false, err
	}
	if err := p.file.Sync(); err != nil {
		return nil, false, err
	}
	return hdr, true, nil
}

// --- PageAllocator interface, consumed by FIFOQueue ---

func (p *Pager) LogicalPageSize() int { return p.pageSize }

func (p *Pager) NewPageIDRaw() (LogicalPageID, error) {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()
	return p.newPageIDLocked()
}

func (p *Pager) newPageIDLocked() (LogicalPageID, error) {
	if p.freeList != nil {
		item, ok, err := p.freeList.PeekFront()
		if err != nil {
			return InvalidLogicalPageID, err
		}
		if ok {
			id := decodeLPIDItem(item)
			if err := p.freeList.Consume(); err != nil {
				return InvalidLogicalPageID, err
			}
			return id, nil
		}
	}
	if p.delayedFree != nil {
		eff := p.effectiveOldestLocked()
		item, ok, err := p.delayedFree.PeekFront()
		if err != nil {
			return InvalidLogicalPageID, err
		}
		if ok {
			e := decodeDelayedFreeItem(item)
			if e.version <= eff {
				if err := p.delayedFree.Consume(); err != nil {
					return InvalidLogicalPageID, err
				}
				return e.lpid, nil
			}
		}
	}
	p.headerMu.Lock()
	id := LogicalPageID(p.liveHeader.PageCount)
	p.liveHeader.PageCount++
	p.headerMu.Unlock()
	return id, nil
}

func (p *Pager) FreePageRaw(id LogicalPageID, version Version) error {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()
	return p.freePageLocked(id, version)
}

func (p *Pager) freePageLocked(id LogicalPageID, version Version) error {
	if p.remapIndex.HasEntries(id) {
		return p.remapQueue.PushBack(RemapEntry{Version: version, Original: id, New: InvalidLogicalPageID}.encode())
	}
	if version < p.effectiveOldestLocked() {
		return p.freeList.PushBack(encodeLPIDItem(id))
	}
	return p.delayedFree.PushBack(encodeDelayedFreeItem(delayedFreeItem{version: version, lpid: id}))
}

func (p *Pager) ReadPhysical(id LogicalPageID) (*PageBuffer, error) {
	return p.readPhysicalRaw(id)
}

func (p *Pager) WritePhysical(id LogicalPageID, buf *PageBuffer) error {
	buf.Seal(id)
	return p.writePhysicalRaw(id, buf)
}

// --- public page interface consumed by core/btree ---

// NewPageID allocates a fresh logical page ID (spec.md §4.4).
func (p *Pager) NewPageID() (LogicalPageID, error) {
	if err := p.checkFatal(); err != nil {
		return InvalidLogicalPageID, err
	}
	return p.NewPageIDRaw()
}

// UpdatePage replaces the cached content for id and schedules a physical
// write, sequenced after any pending read/write for id. It does not
// allocate (spec.md §4.4).
func (p *Pager) UpdatePage(id LogicalPageID, content *PageBuffer) error {
	if err := p.checkFatal(); err != nil {
		return err
	}
	content.Seal(id)
	future := p.cache.ScheduleWrite(id, content, func(buf *PageBuffer) error {
		return p.writePhysicalRaw(id, buf)
	})
	return future.Wait()
}

// AtomicUpdatePage allocates a new LPID, writes content there, and records
// a remap from id to the new LPID effective at version. The caller
// continues to refer to the page by the original id (spec.md §4.4).
func (p *Pager) AtomicUpdatePage(id LogicalPageID, content *PageBuffer, version Version) (LogicalPageID, error) {
	if err := p.checkFatal(); err != nil {
		return InvalidLogicalPageID, err
	}
	newID, err := p.NewPageID()
	if err != nil {
		return InvalidLogicalPageID, err
	}
	content.Seal(newID)
	future := p.cache.ScheduleWrite(newID, content, func(buf *PageBuffer) error {
		return p.writePhysicalRaw(newID, buf)
	})

	p.allocMu.Lock()
	entry := RemapEntry{Version: version, Original: id, New: newID}
	perr := p.remapQueue.PushBack(entry.encode())
	p.allocMu.Unlock()
	if perr != nil {
		return InvalidLogicalPageID, perr
	}
	p.remapIndex.Insert(entry)

	if err := future.Wait(); err != nil {
		p.markFatal(err)
		return InvalidLogicalPageID, err
	}
	return id, nil
}

// FreePage frees id, possibly deferred until retention allows reuse
// (spec.md §4.4).
func (p *Pager) FreePage(id LogicalPageID, version Version) error {
	if err := p.checkFatal(); err != nil {
		return err
	}
	return p.FreePageRaw(id, version)
}

// ReadPage returns id's current content, from cache or disk. noHit skips
// promoting the entry in the LRU order (used for internal maintenance
// scans that should not perturb normal eviction order).
func (p *Pager) ReadPage(id LogicalPageID, noHit bool) (*PageBuffer, error) {
	if err := p.checkFatal(); err != nil {
		return nil, err
	}
	entry := p.cache.Get(id, noHit)
	if entry.content != nil {
		return entry.content, nil
	}
	future := p.cache.ScheduleRead(id, func() (*PageBuffer, error) {
		return p.readPhysicalRaw(id)
	})
	if err := future.Wait(); err != nil {
		p.markFatal(err)
		return nil, err
	}
	entry2, ok := p.cache.GetIfExists(id)
	if !ok || entry2.content == nil {
		return nil, fmt.Errorf("%w: lpid %s vanished from cache after read", ErrIO, id)
	}
	return entry2.content, nil
}

// readPageAtVersion resolves id through the remap index as of version,
// then reads the resolved LPID (spec.md §4.4 "read_page_at_version").
func (p *Pager) readPageAtVersion(id LogicalPageID, version Version) (*PageBuffer, error) {
	if resolved, ok := p.remapIndex.Resolve(id, version); ok {
		if resolved == InvalidLogicalPageID {
			return nil, fmt.Errorf("%w: lpid %s was freed as of version %d", ErrIO, id, version)
		}
		return p.ReadPage(resolved, false)
	}
	return p.ReadPage(id, false)
}

// GetReadSnapshot returns the snapshot whose version is the greatest <= v.
func (p *Pager) GetReadSnapshot(v Version) (*Snapshot, error) {
	if err := p.checkFatal(); err != nil {
		return nil, err
	}
	return p.snapshots.get(v)
}

// LatestCommittedSnapshot returns a new reference to the most recently
// committed snapshot.
func (p *Pager) LatestCommittedSnapshot() (*Snapshot, error) {
	p.headerMu.RLock()
	v := p.committedHeader.CommittedVersion
	p.headerMu.RUnlock()
	return p.GetReadSnapshot(v)
}

// SetOldestVersion requests that retention advance to v; it takes effect
// at the next commit (spec.md §4.4).
func (p *Pager) SetOldestVersion(v Version) {
	p.oldestMu.Lock()
	p.pendingOldest = v
	p.oldestMu.Unlock()
}

// EffectiveOldest is min(last-committed oldest version, front snapshot's
// version) (spec.md §4.4).
func (p *Pager) EffectiveOldest() Version {
	p.allocMu.Lock()
	defer p.allocMu.Unlock()
	return p.effectiveOldestLocked()
}

func (p *Pager) effectiveOldestLocked() Version {
	p.headerMu.RLock()
	oldest := p.committedHeader.OldestVersion
	p.headerMu.RUnlock()
	if front, ok := p.snapshots.front(); ok && front.Version < oldest {
		oldest = front.Version
	}
	return oldest
}

// CommittedVersion returns the version recorded in the last committed
// header. Open always leaves a committed header in place (bootstrapping a
// new file commits one), so this never returns InvalidVersion.
func (p *Pager) CommittedVersion() Version {
	p.headerMu.RLock()
	defer p.headerMu.RUnlock()
	return p.committedHeader.CommittedVersion
}

// MetaKey returns the opaque B-tree root descriptor stored in the last
// committed header.
func (p *Pager) MetaKey() []byte {
	p.headerMu.RLock()
	defer p.headerMu.RUnlock()
	return append([]byte(nil), p.committedHeader.MetaKey...)
}

// PageCount returns the header's current total page count.
func (p *Pager) PageCount() int64 {
	p.headerMu.RLock()
	defer p.headerMu.RUnlock()
	return p.liveHeader.PageCount
}

// StorageBytes reports total/free/available/used bytes, derived from the
// header's page count and the free/delayed-free queue lengths
// (SPEC_FULL.md §12 "Storage byte accounting").
type StorageBytes struct {
	Total     int64
	Free      int64
	Available int64
	Used      int64
}

func (p *Pager) StorageBytesReport() StorageBytes {
	p.headerMu.RLock()
	pageCount := p.liveHeader.PageCount
	freeEntries := int64(p.freeList.State().NumEntries)
	delayedEntries := int64(p.delayedFree.State().NumEntries)
	p.headerMu.RUnlock()
	pageBytes := int64(p.pageSize)
	total := pageCount * pageBytes
	free := freeEntries * pageBytes
	available := free + delayedEntries*pageBytes
	return StorageBytes{
		Total:     total,
		Free:      free,
		Available: available,
		Used:      total - free,
	}
}

// --- commit ---

// Commit runs the nine-step DWAL commit protocol of spec.md §4.4 and
// returns the newly committed version. metaKey is the B-tree's opaque
// root descriptor to persist in the header.
func (p *Pager) Commit(metaKey []byte) (Version, error) {
	if err := p.checkFatal(); err != nil {
		return InvalidVersion, err
	}
	if !atomic.CompareAndSwapInt32(&p.commitInFlight, 0, 1) {
		return InvalidVersion, ErrCommitInFlight
	}
	defer atomic.StoreInt32(&p.commitInFlight, 0)

	// Step 1: write the last-committed header to LPID 1 (backup).
	p.headerMu.RLock()
	backupPayload := make([]byte, SmallestPhysicalBlock-ChecksumSize)
	if err := p.committedHeader.Encode(backupPayload); err != nil {
		p.headerMu.RUnlock()
		return InvalidVersion, err
	}
	p.headerMu.RUnlock()
	backupBuf := WrapPageBuffer(append(backupPayload, make([]byte, ChecksumSize)...))
	backupBuf.Seal(HeaderBackupLPID)
	if err := p.writePhysicalRaw(HeaderBackupLPID, backupBuf); err != nil {
		return InvalidVersion, p.commitFailed(err)
	}

	// Step 2: stop the remap-undo background task.
	p.stopReclaim()

	// Step 3: two-phase flush of the three queues to a fixed point.
	for {
		any := false
		for _, q := range []*FIFOQueue{p.freeList, p.delayedFree, p.remapQueue} {
			did, err := q.PreFlush()
			if err != nil {
				p.startReclaim()
				return InvalidVersion, p.commitFailed(err)
			}
			any = any || did
		}
		if !any {
			break
		}
	}

	// Step 4: record queue states into the live header, plus oldest/
	// committed version bookkeeping.
	p.oldestMu.Lock()
	newOldest := p.pendingOldest
	p.oldestMu.Unlock()

	p.headerMu.Lock()
	p.liveHeader.FreeList = p.freeList.FinishFlush()
	p.liveHeader.DelayedFree = p.delayedFree.FinishFlush()
	p.liveHeader.RemapQueue = p.remapQueue.FinishFlush()
	if newOldest > p.liveHeader.OldestVersion {
		p.liveHeader.OldestVersion = newOldest
	}
	p.liveHeader.CommittedVersion = p.committedHeader.CommittedVersion + 1
	p.liveHeader.MetaKey = metaKey
	newVersion := p.liveHeader.CommittedVersion
	livePayload := make([]byte, SmallestPhysicalBlock-ChecksumSize)
	encodeErr := p.liveHeader.Encode(livePayload)
	liveSnapshot := p.liveHeader.Clone()
	p.headerMu.Unlock()
	if encodeErr != nil {
		p.startReclaim()
		return InvalidVersion, p.commitFailed(encodeErr)
	}

	// Step 5: await all in-flight page writes, then sync.
	if err := p.cache.DrainInFlight(); err != nil {
		p.startReclaim()
		return InvalidVersion, p.commitFailed(err)
	}
	if err := p.file.Sync(); err != nil {
		p.startReclaim()
		return InvalidVersion, p.commitFailed(err)
	}

	// Step 6: write the header to LPID 0; sync again.
	headerBuf := WrapPageBuffer(append(livePayload, make([]byte, ChecksumSize)...))
	headerBuf.Seal(HeaderLPID)
	if err := p.writePhysicalRaw(HeaderLPID, headerBuf); err != nil {
		p.startReclaim()
		return InvalidVersion, p.commitFailed(err)
	}
	if err := p.file.Sync(); err != nil {
		p.startReclaim()
		return InvalidVersion, p.commitFailed(err)
	}

	// Step 7: copy live header to last-committed; push a new snapshot.
	p.headerMu.Lock()
	p.committedHeader = liveSnapshot
	p.headerMu.Unlock()
	p.snapshots.push(newSnapshot(p, newVersion))

	// Step 8: try to release expired snapshots.
	p.tryReleaseSnapshots()

	// Step 9: restart the remap-undo task.
	p.startReclaim()

	p.log.Debug("pager: committed", logger.Version(int64(newVersion)))
	return newVersion, nil
}

func (p *Pager) commitFailed(err error) error {
	p.markFatal(err)
	return err
}

func (p *Pager) tryReleaseSnapshots() {
	p.headerMu.RLock()
	oldest := p.committedHeader.OldestVersion
	p.headerMu.RUnlock()
	p.snapshots.releaseExpired(oldest)
}

// --- fatal error latch (spec.md §7's "single error channel") ---

func (p *Pager) checkFatal() error {
	p.fatalMu.RLock()
	defer p.fatalMu.RUnlock()
	return p.fatalErr
}

func (p *Pager) markFatal(err error) {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	if p.fatalErr == nil {
		p.fatalErr = err
		p.log.Error("pager: fatal error latched", zap.Error(err))
	}
}

// --- physical I/O helpers ---

func (p *Pager) offsetFor(id LogicalPageID) int64 {
	if id == HeaderLPID {
		return 0
	}
	if id == HeaderBackupLPID {
		return SmallestPhysicalBlock
	}
	userStart := userRegionStart(p.pageSize)
	return userStart + int64(id-FirstUserLPID)*int64(p.pageSize)
}

func userRegionStart(pageSize int) int64 {
	two := int64(2 * SmallestPhysicalBlock)
	if int64(pageSize) <= two {
		return two
	}
	n := (two + int64(pageSize) - 1) / int64(pageSize)
	return n * int64(pageSize)
}

func (p *Pager) physicalSizeFor(id LogicalPageID) int {
	if id == HeaderLPID || id == HeaderBackupLPID {
		return SmallestPhysicalBlock
	}
	return p.pageSize
}

func (p *Pager) readPhysicalRaw(id LogicalPageID) (*PageBuffer, error) {
	size := p.physicalSizeFor(id)
	buf := make([]byte, size)
	if err := p.file.ReadAt(buf, p.offsetFor(id)); err != nil {
		p.markFatal(err)
		return nil, err
	}
	pb := WrapPageBuffer(buf)
	if !pb.Verify(id) {
		err := fmt.Errorf("%w: lpid %s", ErrChecksumMismatch, id)
		p.markFatal(err)
		return nil, err
	}
	return pb, nil
}

func (p *Pager) writePhysicalRaw(id LogicalPageID, pb *PageBuffer) error {
	offset := p.offsetFor(id)
	need := offset + int64(len(pb.Bytes()))
	sz, err := p.file.Size()
	if err != nil {
		return err
	}
	if need > sz {
		if err := p.file.Truncate(need); err != nil {
			return err
		}
	}
	return p.file.WriteAt(pb.Bytes(), offset)
}

// --- remap-undo background task (spec.md §4.4 "Remap undo") ---

func (p *Pager) startReclaim() {
	p.reclaimStop = make(chan struct{})
	p.reclaimWG.Add(1)
	go p.runReclaim(p.reclaimStop)
}

func (p *Pager) stopReclaim() {
	println("stopReclaim: enter, reclaimStop nil?", p.reclaimStop == nil)
	if p.reclaimStop == nil {
		return
	}
	close(p.reclaimStop)
	println("stopReclaim: closed, waiting")
	p.reclaimWG.Wait()
	println("stopReclaim: wait done")
	p.reclaimStop = nil
}

func (p *Pager) runReclaim(stop chan struct{}) {
	println("runReclaim: started")
	defer p.reclaimWG.Done()
	defer println("runReclaim: exiting")
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			println("runReclaim: stop received")
			return
		case <-ticker.C:
			p.reclaimOnce()
		}
	}
}

// reclaimOnce pops remap entries whose version < effective_oldest, undoing
// normal entries in place and freeing tombstoned originals (spec.md §4.4).
func (p *Pager) reclaimOnce() {
	for _, id := range p.remapIndex.LPIDsWithEntries() {
		if !p.reclaimLimiter.Allow() {
			return
		}
		eff := p.EffectiveOldest()
		v, newID, ok := p.remapIndex.OldestEntry(id)
		if !ok || v >= eff {
			continue
		}
		if newID == InvalidLogicalPageID {
			if err := p.FreePageRaw(id, v); err != nil {
				p.log.Warn("pager: remap-undo free failed", logger.LPID(uint64(id)), logger.Version(int64(v)), zap.Error(err))
				continue
			}
			p.remapIndex.Remove(id, v)
			continue
		}
		content, err := p.readPhysicalRaw(newID)
		if err != nil {
			p.log.Warn("pager: remap-undo read failed", logger.LPID(uint64(newID)), zap.Error(err))
			continue
		}
		if err := p.UpdatePage(id, content); err != nil {
			p.log.Warn("pager: remap-undo writeback failed", logger.LPID(uint64(id)), zap.Error(err))
			continue
		}
		p.remapIndex.Remove(id, v)
		if err := p.FreePageRaw(newID, 0); err != nil {
			p.log.Warn("pager: remap-undo free of shadow page failed", logger.LPID(uint64(newID)), zap.Error(err))
		}
	}
}

// Close stops background tasks, drains the cache, and closes the file.
func (p *Pager) Close() error {
	p.stopReclaim()
	p.cache.Clear()
	return p.file.Close()
}

// pageSize exposed as a method for the versioned B-tree to size its
// Delta Tree budgets against.
func (p *Pager) PageSize() int { return p.pageSize }

type delayedFreeItem struct {
	version Version
	lpid    LogicalPageID
}

func encodeLPIDItem(id LogicalPageID) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeLPIDItem(buf []byte) LogicalPageID {
	return LogicalPageID(binary.LittleEndian.Uint64(buf))
}

func encodeDelayedFreeItem(it delayedFreeItem) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(it.version))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(it.lpid))
	return buf
}

func decodeDelayedFreeItem(buf []byte) delayedFreeItem {
	return delayedFreeItem{
		version: Version(binary.LittleEndian.Uint64(buf[0:8])),
		lpid:    LogicalPageID(binary.LittleEndian.Uint64(buf[8:16])),
	}
}
