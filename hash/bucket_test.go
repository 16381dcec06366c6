package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketAddGetRemove(t *testing.T) {
	b := newBucket(8)

	b.addEntry([]byte("bbb"), []byte("v1"))
	b.addEntry([]byte("aaa"), []byte("v2"))
	b.addEntry([]byte("ccc"), []byte("v3"))

	v, ok := b.get([]byte("aaa"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	// Entries stay sorted by key after out-of-order inserts.
	require.Equal(t, []byte("aaa"), b.entries[0].key)
	require.Equal(t, []byte("bbb"), b.entries[1].key)
	require.Equal(t, []byte("ccc"), b.entries[2].key)

	v, ok = b.removeEntry([]byte("bbb"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
	require.Len(t, b.entries, 2)

	_, ok = b.removeEntry([]byte("bbb"))
	require.False(t, ok)
}

func TestBucketAddEntryOverwritesExisting(t *testing.T) {
	b := newBucket(8)

	b.addEntry([]byte("k"), []byte("v1"))
	b.addEntry([]byte("k"), []byte("v2"))

	require.Len(t, b.entries, 1)
	v, ok := b.get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestBucketEncodeDecodeRoundTrip(t *testing.T) {
	b := newBucket(10)
	b.splitHistory = []int64{3, 7, -1}
	b.nextRemovedBucketPair = 42
	b.addEntry([]byte("alpha"), []byte("1"))
	b.addEntry([]byte("beta"), []byte("22"))
	b.addEntry([]byte("gamma"), []byte(""))

	buf := make([]byte, 4096)
	require.NoError(t, encodeBucket(b, buf))

	decoded, err := decodeBucket(buf)
	require.NoError(t, err)

	require.Equal(t, b.depth, decoded.depth)
	require.Equal(t, b.splitHistory, decoded.splitHistory)
	require.Equal(t, b.nextRemovedBucketPair, decoded.nextRemovedBucketPair)
	require.Equal(t, b.entries, decoded.entries)
}

func TestBucketEncodeTooSmallBuffer(t *testing.T) {
	b := newBucket(8)
	b.addEntry([]byte("a-pretty-long-key"), []byte("a-pretty-long-value"))

	err := encodeBucket(b, make([]byte, 4))
	require.Error(t, err)
}

func TestDecodeBucketRejectsTruncatedPage(t *testing.T) {
	_, err := decodeBucket(make([]byte, 3))
	require.Error(t, err)
	require.IsType(t, &CorruptionError{}, err)
}

func TestDecodeBucketAllZeroPageIsEmptyDepthZero(t *testing.T) {
	buf := make([]byte, bucketHeaderSize+64)
	b, err := decodeBucket(buf)
	require.NoError(t, err)
	require.Equal(t, uint8(0), b.depth)
	require.Empty(t, b.entries)
}

func TestBucketEncodedSizeGrowsWithEntries(t *testing.T) {
	b := newBucket(8)
	base := b.encodedSize()

	b.addEntry([]byte("key"), []byte("value"))
	require.Greater(t, b.encodedSize(), base)
}
