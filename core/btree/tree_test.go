package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sushant-115/dwaldb/core/pager"
)

// setupTree opens a Tree over a fresh pager file in a temporary directory
// for isolated testing.
func setupTree(t *testing.T) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := pager.DefaultConfig()
	cfg.Logger = zap.NewNop()
	pgr, err := pager.Open(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { pgr.Close() })

	tree, err := Open(pgr, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func collectForward(t *testing.T, c *Cursor) []string {
	t.Helper()
	var got []string
	ok, err := c.First()
	require.NoError(t, err)
	for ok {
		got = append(got, string(c.Key()))
		ok, err = c.Next()
		require.NoError(t, err)
	}
	return got
}

func TestSetCommitReadBack(t *testing.T) {
	tree := setupTree(t)

	tree.Set([]byte("b"), []byte("bv"))
	tree.Set([]byte("a"), []byte("av"))
	tree.Set([]byte("c"), []byte("cv"))

	v, err := tree.Commit()
	require.NoError(t, err)
	require.NotEqual(t, pager.InvalidVersion, v)

	c, err := tree.NewCursorAtVersion(v)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, collectForward(t, c))

	ok, err := c.SeekGE([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", string(c.Key()))
	require.Equal(t, "bv", string(c.Value()))
}

func TestCommitWithNoStagedWritesIsANoop(t *testing.T) {
	tree := setupTree(t)
	before, err := tree.Commit()
	require.NoError(t, err)
	after, err := tree.Commit()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestOverwriteIsVisibleAfterCommit(t *testing.T) {
	tree := setupTree(t)
	tree.Set([]byte("k"), []byte("v1"))
	_, err := tree.Commit()
	require.NoError(t, err)

	tree.Set([]byte("k"), []byte("v2"))
	v, err := tree.Commit()
	require.NoError(t, err)

	c, err := tree.NewCursorAtVersion(v)
	require.NoError(t, err)
	ok, err := c.SeekGE([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(c.Value()))
}

func TestClearRangeRemovesKeys(t *testing.T) {
	tree := setupTree(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		tree.Set([]byte(k), []byte(k))
	}
	_, err := tree.Commit()
	require.NoError(t, err)

	tree.ClearRange([]byte("b"), []byte("d"))
	v, err := tree.Commit()
	require.NoError(t, err)

	c, err := tree.NewCursorAtVersion(v)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "d", "e"}, collectForward(t, c))
}

func TestClearEntireRangeFreesWithoutReadingSubtree(t *testing.T) {
	tree := setupTree(t)
	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		tree.Set(key, []byte("value"))
	}
	_, err := tree.Commit()
	require.NoError(t, err)

	tree.ClearRange([]byte{}, endSentinel)
	v, err := tree.Commit()
	require.NoError(t, err)

	c, err := tree.NewCursorAtVersion(v)
	require.NoError(t, err)
	ok, err := c.First()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorAtStaleVersionIsRejected(t *testing.T) {
	tree := setupTree(t)
	tree.Set([]byte("a"), []byte("1"))
	v, err := tree.Commit()
	require.NoError(t, err)

	_, err = tree.NewCursorAtVersion(v - 1)
	require.ErrorIs(t, err, ErrVersionUnavailable)
}

func TestManyKeysSplitAcrossPages(t *testing.T) {
	tree := setupTree(t)
	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k-%05d", i))
		tree.Set(key, []byte(fmt.Sprintf("value-%05d-payload", i)))
	}
	v, err := tree.Commit()
	require.NoError(t, err)

	c, err := tree.NewCursorAtVersion(v)
	require.NoError(t, err)
	got := collectForward(t, c)
	require.Len(t, got, n)
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("k-%05d", i), got[i])
	}
}
