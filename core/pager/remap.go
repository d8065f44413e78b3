package pager

import (
	"encoding/binary"
	"sort"
	"sync"
)

// RemapEntry is (version, original_lpid, new_lpid) from spec.md §3. A
// New of InvalidLogicalPageID represents a pending free (a tombstone).
type RemapEntry struct {
	Version  Version
	Original LogicalPageID
	New      LogicalPageID
}

func (e RemapEntry) encode() []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Version))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Original))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.New))
	return buf
}

func decodeRemapEntry(buf []byte) RemapEntry {
	return RemapEntry{
		Version:  Version(binary.LittleEndian.Uint64(buf[0:8])),
		Original: LogicalPageID(binary.LittleEndian.Uint64(buf[8:16])),
		New:      LogicalPageID(binary.LittleEndian.Uint64(buf[16:24])),
	}
}

// RemapIndex is the in-memory map<LPID, map<Version, LPID>> (spec.md §4.4)
// used to resolve a logical page ID to the physical page visible at a
// given version without walking the on-disk remap queue.
type RemapIndex struct {
	mu      sync.RWMutex
	byLPID  map[LogicalPageID]map[Version]LogicalPageID
	sorted  map[LogicalPageID][]Version // kept sorted ascending, parallel to byLPID
}

// NewRemapIndex creates an empty index.
func NewRemapIndex() *RemapIndex {
	return &RemapIndex{
		byLPID: make(map[LogicalPageID]map[Version]LogicalPageID),
		sorted: make(map[LogicalPageID][]Version),
	}
}

// Insert records that, from Version onward, Original resolves to New (or,
// if New is invalid, that Original is tombstoned as of Version).
func (r *RemapIndex) Insert(e RemapEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byLPID[e.Original]
	if !ok {
		m = make(map[Version]LogicalPageID)
		r.byLPID[e.Original] = m
	}
	if _, exists := m[e.Version]; !exists {
		r.sorted[e.Original] = insertSortedVersion(r.sorted[e.Original], e.Version)
	}
	m[e.Version] = e.New
}

// Remove deletes the mapping for (original, version), used once remap-undo
// has copied the content back in place.
func (r *RemapIndex) Remove(original LogicalPageID, version Version) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byLPID[original]
	if !ok {
		return
	}
	delete(m, version)
	if len(m) == 0 {
		delete(r.byLPID, original)
		delete(r.sorted, original)
		return
	}
	versions := r.sorted[original]
	for i, v := range versions {
		if v == version {
			r.sorted[original] = append(versions[:i], versions[i+1:]...)
			break
		}
	}
}

// Resolve returns the greatest-versioned remap target for original with
// version <= asOf, and whether one exists (spec.md §3 "Remap Entry").
func (r *RemapIndex) Resolve(original LogicalPageID, asOf Version) (LogicalPageID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.sorted[original]
	if len(versions) == 0 {
		return InvalidLogicalPageID, false
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i] > asOf })
	if i == 0 {
		return InvalidLogicalPageID, false
	}
	v := versions[i-1]
	return r.byLPID[original][v], true
}

// OldestEntry returns the remaining (version, new LPID) pair with the
// lowest version for original, used by remap-undo to pick the next
// version to process.
func (r *RemapIndex) OldestEntry(original LogicalPageID) (Version, LogicalPageID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.sorted[original]
	if len(versions) == 0 {
		return 0, InvalidLogicalPageID, false
	}
	v := versions[0]
	return v, r.byLPID[original][v], true
}

// HasEntries reports whether original currently has any pending remap
// entries, used by FreePageRaw to decide whether a free must be routed
// through the remap queue as a tombstone (spec.md §4.4 "free_page").
func (r *RemapIndex) HasEntries(original LogicalPageID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sorted[original]) > 0
}

// LPIDsWithEntries returns every original LPID that currently has at least
// one remap entry, used by the remap-undo task to scan for work.
func (r *RemapIndex) LPIDsWithEntries() []LogicalPageID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogicalPageID, 0, len(r.byLPID))
	for id := range r.byLPID {
		out = append(out, id)
	}
	return out
}

func insertSortedVersion(versions []Version, v Version) []Version {
	i := sort.Search(len(versions), func(i int) bool { return versions[i] >= v })
	versions = append(versions, 0)
	copy(versions[i+1:], versions[i:])
	versions[i] = v
	return versions
}
