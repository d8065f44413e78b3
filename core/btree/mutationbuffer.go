package btree

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

// boundary is one entry of the mutation buffer: an in-memory ordered map
// from boundary key to a pending change (spec.md §3 "Mutation Buffer").
type boundary struct {
	key             []byte
	boundaryChanged bool
	hasValue        bool
	value           []byte
	clearAfter      bool
	touched         bool // set by set/clear this write version, cleared after commit
}

// endSentinel is the reserved key marking the upper bound of the keyspace
// (spec.md §3: "an end sentinel key"). No real user key can equal it since
// it is longer than any key this engine will compare against during a
// single commit's boundary walk — it never leaves the mutation buffer.
var endSentinel = []byte{0xFF}

// mutationBuffer is the ordered map described in spec.md §3, backed by
// hashicorp/go-immutable-radix for its ordered iteration (the "optional
// ART" alternative spec.md §9 calls out). It is rebuilt fresh after every
// commit.
type mutationBuffer struct {
	tree *iradix.Tree
}

func newMutationBuffer() *mutationBuffer {
	t := iradix.New()
	t, _, _ = t.Insert([]byte{}, &boundary{key: []byte{}})
	t, _, _ = t.Insert(endSentinel, &boundary{key: endSentinel})
	return &mutationBuffer{tree: t}
}

// boundaries returns every boundary entry in ascending key order.
func (m *mutationBuffer) boundaries() []*boundary {
	out := make([]*boundary, 0, m.tree.Len())
	it := m.tree.Root().Iterator()
	for {
		_, v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v.(*boundary))
	}
	return out
}

// rangeSlice returns the boundaries with key in [lower, upper], plus the
// last boundary strictly below lower when there is one, the slice
// a subtree's commit recursion matches against (spec.md §4.6 "commit walks
// ... against the mutation buffer slice that overlaps each subtree's key
// range").
func (m *mutationBuffer) rangeSlice(lower, upper []byte) []*boundary {
	all := m.boundaries()
	lo := 0
	for lo < len(all) && compareKeys(all[lo].key, lower) < 0 {
		lo++
	}
	if lo > 0 {
		lo-- // include the last boundary before lower: it governs the range's initial state
	}
	hi := lo
	for hi < len(all) && compareKeys(all[hi].key, upper) <= 0 {
		hi++
	}
	return all[lo:hi]
}

func compareKeys(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// insertBoundary splits the range containing k at k, inheriting the
// previous range's clear-after flag (spec.md §3 "insert(k) splits the
// range containing k at k").
func (m *mutationBuffer) insertBoundary(k []byte) *boundary {
	if v, ok := m.tree.Get(k); ok {
		return v.(*boundary)
	}
	prevClearAfter := false
	all := m.boundaries()
	for _, b := range all {
		if compareKeys(b.key, k) < 0 {
			prevClearAfter = b.clearAfter
		} else {
			break
		}
	}
	b := &boundary{key: append([]byte(nil), k...), clearAfter: prevClearAfter}
	tree, _, _ := m.tree.Insert(k, b)
	m.tree = tree
	return b
}

// Set marks boundary k changed with the new value (spec.md §3 "A set
// operation marks boundary k changed with new value").
func (m *mutationBuffer) Set(k, v []byte) {
	b := m.insertBoundary(k)
	b.boundaryChanged = true
	b.hasValue = true
	b.value = v
	b.touched = true
}

// Clear marks the begin boundary changed (cleared) with clear_after set,
// erases intermediate boundaries, and leaves the end boundary untouched
// (spec.md §3 "A range clear...").
func (m *mutationBuffer) ClearRange(begin, end []byte) {
	endBoundary := m.insertBoundary(end)
	_ = endBoundary // ensures a boundary exists at end so clearAfter stops there

	b := m.insertBoundary(begin)
	b.boundaryChanged = true
	b.hasValue = false
	b.value = nil
	b.clearAfter = true
	b.touched = true

	all := m.boundaries()
	for _, other := range all {
		if compareKeys(other.key, begin) > 0 && compareKeys(other.key, end) < 0 {
			tree, _, _ := m.tree.Delete(other.key)
			m.tree = tree
		}
	}
}

// Reset returns a fresh, empty mutation buffer for the next write version.
func (m *mutationBuffer) Reset() {
	*m = *newMutationBuffer()
}

// Empty reports whether no mutation has been recorded since the last
// commit (used to skip a no-op commit's page rewrite work).
func (m *mutationBuffer) Empty() bool {
	for _, b := range m.boundaries() {
		if b.touched {
			return false
		}
	}
	return true
}
