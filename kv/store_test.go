package kv

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	cfg.Log.Level = "error"
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetCommitReadValue(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Set([]byte("a"), []byte("av")))
	_, err := s.Commit()
	require.NoError(t, err)

	v, err := s.ReadValue([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "av", string(v))

	v, err = s.ReadValue([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestReadValuePrefixTruncates(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Set([]byte("a"), []byte("abcdefgh")))
	_, err := s.Commit()
	require.NoError(t, err)

	v, err := s.ReadValuePrefix([]byte("a"), 3)
	require.NoError(t, err)
	require.Equal(t, "abc", string(v))

	v, err = s.ReadValuePrefix([]byte("a"), 100)
	require.NoError(t, err)
	require.Equal(t, "abcdefgh", string(v))
}

func seedRange(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k-%03d", i)
		require.NoError(t, s.Set([]byte(key), []byte(key)))
	}
	_, err := s.Commit()
	require.NoError(t, err)
}

func TestReadRangeForwardRowLimit(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 10)

	res, err := s.ReadRange([]byte("k-000"), []byte("k-999"), 3, 0)
	require.NoError(t, err)
	require.True(t, res.More)
	require.Len(t, res.Rows, 3)
	require.Equal(t, "k-000", string(res.Rows[0].Key))
	require.Equal(t, "k-002", string(res.Rows[2].Key))
}

func TestReadRangeReverseRowLimit(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 10)

	res, err := s.ReadRange([]byte("k-000"), []byte("k-999"), -3, 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	require.Equal(t, "k-009", string(res.Rows[0].Key))
	require.Equal(t, "k-007", string(res.Rows[2].Key))
}

func TestReadRangeExclusiveEnd(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 3)

	res, err := s.ReadRange([]byte("k-000"), []byte("k-002"), -10, 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "k-001", string(res.Rows[0].Key))
	require.Equal(t, "k-000", string(res.Rows[1].Key))
}

func TestReadRangeZeroRowLimitIsEmpty(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 3)

	res, err := s.ReadRange([]byte("k-000"), []byte("k-999"), 0, 0)
	require.NoError(t, err)
	require.Empty(t, res.Rows)
}

func TestStorageBytesReportsUsage(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 50)

	b := s.StorageBytes()
	require.Greater(t, b.Total, int64(0))
}

func TestClearRemovesKeys(t *testing.T) {
	s := setupStore(t)
	seedRange(t, s, 5)
	require.NoError(t, s.Clear([]byte("k-001"), []byte("k-003")))
	_, err := s.Commit()
	require.NoError(t, err)

	res, err := s.ReadRange([]byte("k-000"), []byte("k-999"), 10, 0)
	require.NoError(t, err)
	var got []string
	for _, row := range res.Rows {
		got = append(got, string(row.Key))
	}
	require.Equal(t, []string{"k-000", "k-003", "k-004"}, got)
}

func TestCommitAfterCloseFails(t *testing.T) {
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	cfg.Log.Level = "error"
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	require.NoError(t, s.Close())

	_, err = s.Commit()
	require.Error(t, err)
}

func TestCommitAdvancesOldestVersion(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	v, err := s.Commit()
	require.NoError(t, err)
	require.Equal(t, v, s.pgr.EffectiveOldest())
}
