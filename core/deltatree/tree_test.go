package deltatree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func itemsOf(keys ...string) []Item {
	out := make([]Item, len(keys))
	for i, k := range keys {
		out[i] = Item{Key: []byte(k), Version: 0, HasValue: true, Value: []byte("v-" + k)}
	}
	return out
}

func collectForward(t *testing.T, tree *DeltaTree) []string {
	t.Helper()
	var got []string
	c := NewCursor(tree)
	if !c.First() {
		return got
	}
	got = append(got, string(c.Item().Key))
	for c.Next() {
		got = append(got, string(c.Item().Key))
	}
	return got
}

func collectReverse(t *testing.T, tree *DeltaTree) []string {
	t.Helper()
	var got []string
	c := NewCursor(tree)
	if !c.Last() {
		return got
	}
	got = append(got, string(c.Item().Key))
	for c.Prev() {
		got = append(got, string(c.Item().Key))
	}
	return got
}

func TestBuildInOrderRoundTrip(t *testing.T) {
	keys := []string{"a", "apple", "b", "banana", "c", "cherry", "z"}
	items := itemsOf(keys...)
	buf := make([]byte, 4096)
	tree, err := Build(buf, items)
	require.NoError(t, err)
	require.Equal(t, len(keys), tree.Len())
	require.Equal(t, keys, collectForward(t, tree))

	reversed := make([]string, len(keys))
	for i, k := range keys {
		reversed[len(keys)-1-i] = k
	}
	require.Equal(t, reversed, collectReverse(t, tree))
}

func TestInsertMaintainsOrder(t *testing.T) {
	buf := make([]byte, 8192)
	tree := New(buf)
	order := []string{"m", "a", "z", "c", "b", "y", "x", "n"}
	for _, k := range order {
		require.NoError(t, tree.Insert(Item{Key: []byte(k), Version: 0, HasValue: true, Value: []byte(k)}))
	}
	got := collectForward(t, tree)
	require.Equal(t, []string{"a", "b", "c", "m", "n", "x", "y", "z"}, got)
}

func TestEraseMarksWithoutCompacting(t *testing.T) {
	buf := make([]byte, 4096)
	tree := New(buf)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tree.Insert(Item{Key: []byte(k), Version: 0, HasValue: true, Value: []byte(k)}))
	}
	sizeBefore := tree.ByteSize()
	require.True(t, tree.Erase([]byte("b"), 0))
	require.Equal(t, sizeBefore, tree.ByteSize(), "erase must not reclaim bytes")
	require.Equal(t, []string{"a", "c", "d"}, collectForward(t, tree))
	require.False(t, tree.Erase([]byte("b"), 0), "erasing an already-deleted key reports not-found")
	require.False(t, tree.Erase([]byte("nope"), 0))
}

func TestSeekGEAndLE(t *testing.T) {
	keys := []string{"a", "c", "e", "g", "i"}
	buf := make([]byte, 4096)
	tree, err := Build(buf, itemsOf(keys...))
	require.NoError(t, err)

	c := NewCursor(tree)
	require.True(t, c.SeekGE(Item{Key: []byte("d")}, nil))
	require.Equal(t, "e", string(c.Item().Key))

	c2 := NewCursor(tree)
	require.True(t, c2.SeekLE(Item{Key: []byte("d")}, nil))
	require.Equal(t, "c", string(c2.Item().Key))

	c3 := NewCursor(tree)
	require.False(t, c3.SeekGE(Item{Key: []byte("z")}, nil))

	c4 := NewCursor(tree)
	require.False(t, c4.SeekLE(Item{Key: []byte("0")}, nil))
}

func TestOpenRoundTripsRegime(t *testing.T) {
	buf := make([]byte, 4096)
	tree := New(buf)
	require.NoError(t, tree.Insert(Item{Key: []byte("k"), Version: 0, HasValue: true, Value: []byte("v")}))

	reopened, err := Open(buf)
	require.NoError(t, err)
	require.Equal(t, tree.Len(), reopened.Len())
	require.Equal(t, []string{"k"}, collectForward(t, reopened))
}

func TestInsertReturnsErrFullWhenPageExhausted(t *testing.T) {
	buf := make([]byte, 64) // barely room for the header and one tiny node
	tree := New(buf)
	var lastErr error
	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		lastErr = tree.Insert(Item{Key: key, Version: 0, HasValue: true, Value: []byte("xxxxxxxxxxxxxxxxxxxx")})
		if lastErr != nil {
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrFull)
}
