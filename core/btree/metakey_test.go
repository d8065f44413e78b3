package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/dwaldb/core/pager"
)

func TestMetaKeyRoundTrip(t *testing.T) {
	mk := metaKey{
		height: 3,
		lazyDeleteState: pager.QueueState{
			HeadLPID:   7,
			HeadOffset: 128,
			TailLPID:   9,
			NumPages:   2,
			NumEntries: 5,
		},
		root: PageID{11, 12, 13},
	}

	buf := encodeMetaKey(mk)
	got, err := decodeMetaKey(buf)
	require.NoError(t, err)
	require.Equal(t, mk, got)
}

func TestMetaKeyRoundTripEmptyRoot(t *testing.T) {
	mk := metaKey{height: 1, root: PageID{}}
	got, err := decodeMetaKey(encodeMetaKey(mk))
	require.NoError(t, err)
	require.Equal(t, 1, got.height)
	require.Empty(t, got.root)
}

func TestDecodeMetaKeyRejectsShortBuffer(t *testing.T) {
	_, err := decodeMetaKey([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeMetaKeyRejectsWrongVersion(t *testing.T) {
	mk := metaKey{height: 1, root: PageID{4}}
	buf := encodeMetaKey(mk)
	buf[0] = metaFormatVersion + 1
	_, err := decodeMetaKey(buf)
	require.Error(t, err)
}
