package pager

import (
	"encoding/binary"
	"fmt"
)

// queuePageHeaderSize is the fixed header at the start of every queue page:
// next_page_lpid (u64) + next_offset (u16) + end_offset (u16), spec.md §6.
const queuePageHeaderSize = 8 + 2 + 2

// PageAllocator is the slice of the pager a FIFOQueue needs. It is an
// interface, not a direct struct reference, to break the cyclic dependency
// spec.md §4.2 calls out: queues allocate pages through the pager and the
// pager's own free/remap/lazy-delete bookkeeping is itself stored in
// queues.
type PageAllocator interface {
	NewPageIDRaw() (LogicalPageID, error)
	FreePageRaw(id LogicalPageID, version Version) error
	ReadPhysical(id LogicalPageID) (*PageBuffer, error)
	WritePhysical(id LogicalPageID, buf *PageBuffer) error
	LogicalPageSize() int
}

// QueueState is the on-disk queue descriptor embedded three times in the
// pager header (spec.md §3).
type QueueState struct {
	HeadLPID   LogicalPageID
	HeadOffset uint16
	TailLPID   LogicalPageID
	NumPages   uint64
	NumEntries uint64
}

func (s QueueState) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s.HeadLPID))
	binary.LittleEndian.PutUint16(buf[8:10], s.HeadOffset)
	binary.LittleEndian.PutUint64(buf[10:18], uint64(s.TailLPID))
	binary.LittleEndian.PutUint64(buf[18:26], s.NumPages)
	binary.LittleEndian.PutUint64(buf[26:34], s.NumEntries)
}

func decodeQueueState(buf []byte) QueueState {
	return QueueState{
		HeadLPID:   LogicalPageID(binary.LittleEndian.Uint64(buf[0:8])),
		HeadOffset: binary.LittleEndian.Uint16(buf[8:10]),
		TailLPID:   LogicalPageID(binary.LittleEndian.Uint64(buf[10:18])),
		NumPages:   binary.LittleEndian.Uint64(buf[18:26]),
		NumEntries: binary.LittleEndian.Uint64(buf[26:34]),
	}
}

// QueueStateEncodedSize is the fixed wire size of a QueueState.
const QueueStateEncodedSize = 34

// FIFOQueue is a durable singly-linked list of length-prefixed items spread
// across pager pages allocated on demand (spec.md §4.2). Every queue used
// by the pager (free list, delayed-free list, remap queue, lazy-delete
// queue) is one instance of this type.
type FIFOQueue struct {
	name   string
	pager  PageAllocator
	state  QueueState
	head   *PageBuffer // cached decoded page currently at state.HeadLPID, or nil
	tail   *PageBuffer // in-memory tail page being appended to
	front  [][]byte    // push_front items buffered since the last flush
	dirty  bool        // true if the live tail page received pushes since the last PreFlush
}

// NewFIFOQueue creates an empty queue, allocating its first page.
func NewFIFOQueue(name string, pager PageAllocator) (*FIFOQueue, error) {
	id, err := pager.NewPageIDRaw()
	if err != nil {
		return nil, err
	}
	page := NewPageBuffer(pager.LogicalPageSize())
	writeQueueHeader(page, InvalidLogicalPageID, queuePageHeaderSize, queuePageHeaderSize)
	q := &FIFOQueue{
		name:  name,
		pager: pager,
		state: QueueState{HeadLPID: id, TailLPID: id, NumPages: 1},
		tail:  page,
	}
	if err := pager.WritePhysical(id, page); err != nil {
		return nil, err
	}
	return q, nil
}

// OpenFIFOQueue resumes a queue from a recovered QueueState.
func OpenFIFOQueue(name string, pager PageAllocator, state QueueState) (*FIFOQueue, error) {
	q := &FIFOQueue{name: name, pager: pager, state: state}
	if state.TailLPID != InvalidLogicalPageID {
		tail, err := pager.ReadPhysical(state.TailLPID)
		if err != nil {
			return nil, fmt.Errorf("%s: loading tail page %s: %w", name, state.TailLPID, err)
		}
		q.tail = tail
	}
	return q, nil
}

func writeQueueHeader(page *PageBuffer, next LogicalPageID, nextOffset, endOffset uint16) {
	payload := page.Payload()
	binary.LittleEndian.PutUint64(payload[0:8], uint64(next))
	binary.LittleEndian.PutUint16(payload[8:10], nextOffset)
	binary.LittleEndian.PutUint16(payload[10:12], endOffset)
}

func readQueueHeader(page *PageBuffer) (next LogicalPageID, nextOffset, endOffset uint16) {
	payload := page.Payload()
	next = LogicalPageID(binary.LittleEndian.Uint64(payload[0:8]))
	nextOffset = binary.LittleEndian.Uint16(payload[8:10])
	endOffset = binary.LittleEndian.Uint16(payload[10:12])
	return
}

// PushBack appends item to the tail page, allocating a fresh tail page if
// the current one is full.
func (q *FIFOQueue) PushBack(item []byte) error {
	need := 2 + len(item)
	_, _, endOffset := readQueueHeader(q.tail)
	capBytes := len(q.tail.Payload())
	if int(endOffset)+need > capBytes {
		if err := q.rollTail(); err != nil {
			return err
		}
		_, _, endOffset = readQueueHeader(q.tail)
	}
	payload := q.tail.Payload()
	binary.LittleEndian.PutUint16(payload[endOffset:endOffset+2], uint16(len(item)))
	copy(payload[endOffset+2:], item)
	newEnd := endOffset + uint16(need)
	_, nextOffset, _ := readQueueHeader(q.tail)
	writeQueueHeader(q.tail, InvalidLogicalPageID, nextOffset, newEnd)
	q.state.NumEntries++
	q.dirty = true
	return nil
}

// rollTail links the current tail page to a freshly allocated, empty page
// and makes that page the new live tail. Called both when the current tail
// is full and, once per commit, as the crash-safety "link to empty page"
// step in PreFlush (spec.md §4.2).
func (q *FIFOQueue) rollTail() error {
	newID, err := q.pager.NewPageIDRaw()
	if err != nil {
		return err
	}
	newPage := NewPageBuffer(q.pager.LogicalPageSize())
	writeQueueHeader(newPage, InvalidLogicalPageID, queuePageHeaderSize, queuePageHeaderSize)

	_, nextOffset, endOffset := readQueueHeader(q.tail)
	_ = nextOffset
	writeQueueHeader(q.tail, newID, queuePageHeaderSize, endOffset)

	if err := q.pager.WritePhysical(q.state.TailLPID, q.tail); err != nil {
		return err
	}
	if err := q.pager.WritePhysical(newID, newPage); err != nil {
		return err
	}
	q.tail = newPage
	q.state.TailLPID = newID
	q.state.NumPages++
	q.dirty = false
	return nil
}

// PushFront buffers item to be prepended ahead of the current head the
// next time the queue is flushed.
func (q *FIFOQueue) PushFront(item []byte) {
	q.front = append(q.front, item)
	q.state.NumEntries++
}

// loadHead ensures q.head holds the decoded page at state.HeadLPID.
func (q *FIFOQueue) loadHead() error {
	if q.head != nil {
		return nil
	}
	if q.state.HeadLPID == InvalidLogicalPageID {
		return nil
	}
	page, err := q.pager.ReadPhysical(q.state.HeadLPID)
	if err != nil {
		return err
	}
	q.head = page
	return nil
}

// PeekFront returns the next unconsumed item's bytes without advancing the
// queue, or ok=false if the queue is empty.
func (q *FIFOQueue) PeekFront() (item []byte, ok bool, err error) {
	if q.state.HeadLPID == InvalidLogicalPageID || q.state.NumEntries == 0 {
		return nil, false, nil
	}
	if err := q.loadHead(); err != nil {
		return nil, false, err
	}
	next, nextOffset, endOffset := readQueueHeader(q.head)
	offset := q.state.HeadOffset
	if offset == 0 {
		offset = queuePageHeaderSize
	}
	if offset >= endOffset {
		if next == InvalidLogicalPageID {
			return nil, false, nil
		}
		if err := q.advanceHeadPage(next); err != nil {
			return nil, false, err
		}
		return q.PeekFront()
	}
	_ = nextOffset
	payload := q.head.Payload()
	length := binary.LittleEndian.Uint16(payload[offset : offset+2])
	item = make([]byte, length)
	copy(item, payload[offset+2:offset+2+length])
	return item, true, nil
}

// Consume advances past the item last returned by PeekFront, freeing the
// page it lived on (at version 0, reusable next commit) once exhausted.
func (q *FIFOQueue) Consume() error {
	if q.state.HeadLPID == InvalidLogicalPageID || q.state.NumEntries == 0 {
		return nil
	}
	if err := q.loadHead(); err != nil {
		return err
	}
	payload := q.head.Payload()
	offset := q.state.HeadOffset
	if offset == 0 {
		offset = queuePageHeaderSize
	}
	length := binary.LittleEndian.Uint16(payload[offset : offset+2])
	q.state.HeadOffset = offset + 2 + length
	q.state.NumEntries--

	_, _, endOffset := readQueueHeader(q.head)
	next, _, _ := readQueueHeader(q.head)
	if q.state.HeadOffset >= endOffset && next != InvalidLogicalPageID {
		return q.advanceHeadPage(next)
	}
	return nil
}

func (q *FIFOQueue) advanceHeadPage(next LogicalPageID) error {
	old := q.state.HeadLPID
	q.state.HeadLPID = next
	q.state.HeadOffset = queuePageHeaderSize
	q.state.NumPages--
	q.head = nil
	if old == q.state.TailLPID {
		// The page being freed is still the live tail; nothing to reload.
		return nil
	}
	return q.pager.FreePageRaw(old, 0)
}

// PreFlush merges buffered push_front items ahead of the head and, if the
// live tail received pushes since the last round, caps it by linking to a
// fresh empty page (the DWAL crash-safety rule, spec.md §4.2). It reports
// whether it did any structural work, so the caller can iterate pre-flush
// across all three pager queues to a fixed point before capping tails
// (spec.md §4.2 "cyclic dependency management").
func (q *FIFOQueue) PreFlush() (didWork bool, err error) {
	if len(q.front) > 0 {
		if err := q.mergeFront(); err != nil {
			return false, err
		}
		didWork = true
	}
	if q.dirty {
		if err := q.rollTail(); err != nil {
			return false, err
		}
		didWork = true
	}
	return didWork, nil
}

// mergeFront builds a fresh page chain holding the buffered push_front
// items (oldest first) and links it ahead of the current head.
func (q *FIFOQueue) mergeFront() error {
	items := q.front
	q.front = nil

	firstNewID := InvalidLogicalPageID
	var curPage *PageBuffer
	curID := InvalidLogicalPageID
	flushPage := func(linkTo LogicalPageID) error {
		if curPage == nil {
			return nil
		}
		_, nextOffset, endOffset := readQueueHeader(curPage)
		_ = nextOffset
		writeQueueHeader(curPage, linkTo, queuePageHeaderSize, endOffset)
		return q.pager.WritePhysical(curID, curPage)
	}

	pagesAdded := 0
	for _, item := range items {
		need := 2 + len(item)
		if curPage == nil || int(currentEnd(curPage))+need > len(curPage.Payload()) {
			newID, err := q.pager.NewPageIDRaw()
			if err != nil {
				return err
			}
			if err := flushPage(newID); err != nil {
				return err
			}
			if firstNewID == InvalidLogicalPageID {
				firstNewID = newID
			}
			curID = newID
			curPage = NewPageBuffer(q.pager.LogicalPageSize())
			writeQueueHeader(curPage, InvalidLogicalPageID, queuePageHeaderSize, queuePageHeaderSize)
			pagesAdded++
		}
		payload := curPage.Payload()
		end := currentEnd(curPage)
		binary.LittleEndian.PutUint16(payload[end:end+2], uint16(len(item)))
		copy(payload[end+2:], item)
		writeQueueHeader(curPage, InvalidLogicalPageID, queuePageHeaderSize, end+uint16(need))
	}
	if curPage != nil {
		if err := flushPage(q.state.HeadLPID); err != nil {
			return err
		}
	}
	if firstNewID != InvalidLogicalPageID {
		q.state.HeadLPID = firstNewID
		q.state.HeadOffset = queuePageHeaderSize
		q.state.NumPages += uint64(pagesAdded)
		q.head = nil
	}
	return nil
}

func currentEnd(page *PageBuffer) uint16 {
	_, _, end := readQueueHeader(page)
	return end
}

// FinishFlush returns the queue's durable state to be embedded in the
// pager header. Call once pre-flushing across all queues has reached a
// fixed point (spec.md §4.2).
func (q *FIFOQueue) FinishFlush() QueueState {
	return q.state
}

// State returns the queue's current descriptor (for diagnostics/tests).
func (q *FIFOQueue) State() QueueState { return q.state }

// QueueIterator lazily streams every currently-flushed item in a queue,
// used during recovery to rebuild the remap index (spec.md §4.4 step 5).
type QueueIterator struct {
	pager      PageAllocator
	pageID     LogicalPageID
	page       *PageBuffer
	offset     uint16
	endOffset  uint16
	nextPageID LogicalPageID
}

// PeekAll returns an iterator over every item from head to tail without
// consuming the queue.
func (q *FIFOQueue) PeekAll() (*QueueIterator, error) {
	it := &QueueIterator{pager: q.pager, pageID: q.state.HeadLPID}
	if it.pageID == InvalidLogicalPageID {
		return it, nil
	}
	page, err := q.pager.ReadPhysical(it.pageID)
	if err != nil {
		return nil, err
	}
	it.page = page
	it.nextPageID, _, it.endOffset = readQueueHeader(page)
	it.offset = q.state.HeadOffset
	if it.offset == 0 {
		it.offset = queuePageHeaderSize
	}
	return it, nil
}

// Next returns the next item, or ok=false once the stream is exhausted.
func (it *QueueIterator) Next() (item []byte, ok bool, err error) {
	for {
		if it.page == nil {
			return nil, false, nil
		}
		if it.offset >= it.endOffset {
			if it.nextPageID == InvalidLogicalPageID {
				it.page = nil
				return nil, false, nil
			}
			page, err := it.pager.ReadPhysical(it.nextPageID)
			if err != nil {
				return nil, false, err
			}
			it.pageID = it.nextPageID
			it.page = page
			it.nextPageID, _, it.endOffset = readQueueHeader(page)
			it.offset = queuePageHeaderSize
			continue
		}
		payload := it.page.Payload()
		length := binary.LittleEndian.Uint16(payload[it.offset : it.offset+2])
		item = make([]byte, length)
		copy(item, payload[it.offset+2:it.offset+2+length])
		it.offset += 2 + length
		return item, true, nil
	}
}
