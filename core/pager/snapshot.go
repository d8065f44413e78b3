package pager

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Snapshot is a reference-counted read view pinned at a committed version
// (spec.md §3 invariant 8, §4.4 "get_read_snapshot"). Its opaque ID is a
// random UUID assigned at creation; kv.Store does not expose it.
type Snapshot struct {
	ID      uuid.UUID
	Version Version

	pager    *Pager
	refCount int32
}

func newSnapshot(pager *Pager, version Version) *Snapshot {
	return &Snapshot{
		ID:       uuid.New(),
		Version:  version,
		pager:    pager,
		refCount: 1,
	}
}

func (s *Snapshot) addRef() {
	atomic.AddInt32(&s.refCount, 1)
}

// Release drops a reference. The pager reclaims snapshots whose refcount
// has dropped to one (the pager itself is the sole remaining owner) and
// whose version is older than the last committed header's oldest version.
func (s *Snapshot) Release() {
	atomic.AddInt32(&s.refCount, -1)
	s.pager.tryReleaseSnapshots()
}

// ReadPage resolves id through the remap index as of this snapshot's
// version and returns its validated content (spec.md §4.4
// "read_page_at_version").
func (s *Snapshot) ReadPage(id LogicalPageID) (*PageBuffer, error) {
	return s.pager.readPageAtVersion(id, s.Version)
}

// snapshotDeque is the pager's ordered (ascending by version) list of live
// snapshots.
type snapshotDeque struct {
	mu   sync.Mutex
	list []*Snapshot
}

func (d *snapshotDeque) push(s *Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = append(d.list, s)
}

func (d *snapshotDeque) front() (*Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.list) == 0 {
		return nil, false
	}
	return d.list[0], true
}

// get returns the snapshot whose version is the greatest <= v, adding a
// reference before returning it.
func (d *snapshotDeque) get(v Version) (*Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.list) == 0 || v < d.list[0].Version {
		return nil, fmt.Errorf("%w: version %d requested, earliest retained is %v", ErrVersionTooOld, v, earliestVersion(d.list))
	}
	i := sort.Search(len(d.list), func(i int) bool { return d.list[i].Version > v })
	snap := d.list[i-1]
	snap.addRef()
	return snap, nil
}

// releaseExpired drops snapshots from the front whose refcount is exactly
// one (the deque's own reference) and whose version is strictly older than
// oldestVersion — the retention floor from the pager's committed header,
// not EffectiveOldest (which is itself clamped to the front snapshot's own
// version and so could never satisfy a "front < EffectiveOldest" check).
// Both halves of spec.md §3's conjunction must hold: a snapshot still
// inside the retention window stays live even at refcount one, so a later
// GetReadSnapshot for any version >= oldestVersion keeps working.
func (d *snapshotDeque) releaseExpired(oldestVersion Version) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.list) > 1 {
		front := d.list[0]
		if atomic.LoadInt32(&front.refCount) > 1 {
			break
		}
		if front.Version >= oldestVersion {
			break
		}
		d.list = d.list[1:]
	}
}

func earliestVersion(list []*Snapshot) Version {
	if len(list) == 0 {
		return InvalidVersion
	}
	return list[0].Version
}
