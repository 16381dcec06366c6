package hash

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krotik/exthash/codec"
	"github.com/krotik/exthash/config"
	"github.com/krotik/exthash/dmem"
	"github.com/krotik/exthash/pagecache"
)

// identityHash returns the big-endian uint64 a Uint64Codec-encoded key
// decodes to, so a key's value IS its routing hash - used by tests that
// pick keys by their exact hash-prefix bits.
func identityHash(keyBytes []byte) uint64 {
	return binary.BigEndian.Uint64(keyBytes)
}

func newTestIndex(t *testing.T, opts config.Options) *Index[uint64, string] {
	t.Helper()
	dir := t.TempDir()
	cache := pagecache.NewFileCache(dir, 4096)
	mem := dmem.NewHeap()

	idx, err := Open[uint64, string](filepath.Join(dir, "idx"), cache, mem, codec.Uint64Codec{}, codec.StringCodec{}, opts)
	require.NoError(t, err)
	return idx
}

func smallOptions() config.Options {
	opts := config.Defaults()
	opts.PageSize = 256
	opts.MaxLevelDepth = 2
	opts.SplitBufferLimit = 1000
	return opts
}

func TestEngineRoundTripInsertGetRemove(t *testing.T) {
	idx := newTestIndex(t, config.Defaults())

	require.NoError(t, idx.Insert(1, "one"))
	require.NoError(t, idx.Insert(2, "two"))
	require.NoError(t, idx.Insert(3, "three"))

	v, ok, err := idx.Lookup(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", v)

	_, ok, err = idx.Lookup(99)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, idx.Insert(2, "TWO"))
	v, ok, err = idx.Lookup(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "TWO", v)

	found, err := idx.Remove(2)
	require.NoError(t, err)
	require.True(t, found)

	_, ok, err = idx.Lookup(2)
	require.NoError(t, err)
	require.False(t, ok)

	found, err = idx.Remove(2)
	require.NoError(t, err)
	require.False(t, found)
}

func TestEngineSizeCoherence(t *testing.T) {
	idx := newTestIndex(t, config.Defaults())
	idx.SetHashFunc(identityHash)

	for i := uint64(1); i <= 200; i++ {
		require.NoError(t, idx.Insert(i, "v"))
	}
	require.Equal(t, uint64(200), idx.Size())

	for i := uint64(1); i <= 50; i++ {
		found, err := idx.Remove(i)
		require.NoError(t, err)
		require.True(t, found)
	}
	require.Equal(t, uint64(150), idx.Size())

	// Identity hash makes hash-prefix order agree with key order, and key
	// 0 (never inserted) is the minimum address in that order - walking
	// forward from it visits every remaining entry exactly once.
	results, err := idx.HigherEntries(0)
	require.NoError(t, err)
	require.Len(t, results, 150)
}

const bit61 = uint64(1) << 61

// TestEngineSplitMergeTombstoneLifecycle walks split, merge, tombstone
// reuse and lifecycle cleanup as one continuous scenario, since each
// builds on the directory state the previous one left behind. With
// MaxLevelDepth=2 and an identity hash, the top 2 bits pick the root
// slot (00 for every key below) and bit 61 picks
// which half of a split an entry lands in - chosen so the first overflow
// splits the bucket into two roughly even halves instead of cascading
// (every key sharing the routed bit would just force another split of the
// same half, arbitrarily deep, the way keys 0..N would under this hash).
func TestEngineSplitMergeTombstoneLifecycle(t *testing.T) {
	idx := newTestIndex(t, smallOptions())
	idx.SetHashFunc(identityHash)

	groupA := []uint64{0, 1, 2, 3}                      // bit61 = 0
	groupB := []uint64{bit61, bit61 + 1, bit61 + 2, bit61 + 3, bit61 + 4} // bit61 = 1

	for _, k := range groupA {
		require.NoError(t, idx.Insert(k, "abcdefghij"))
	}
	for _, k := range groupB {
		require.NoError(t, idx.Insert(k, "abcdefghij"))
	}
	// 9 entries fit in a 256 byte page; a 10th forces the first split.
	require.NoError(t, idx.Insert(bit61+5, "abcdefghij"))

	// --- S1: split basic ---------------------------------------------
	require.Contains(t, idx.store.opened, 1, "a level-1 bucket file should have been opened by the split")
	require.Equal(t, uint64(2), idx.store.levelMeta(1).bucketsCount)
	require.Equal(t, uint64(3), idx.store.levelMeta(0).bucketsCount, "one of the 4 initial level-0 buckets was consumed by the split")

	// --- S3: directory deepening ---------------------------------------
	// MaxLevelDepth=2 means the root is already at its depth ceiling, so
	// this first split could only grow the directory by allocating a new
	// child node, never by doubling the root in place.
	require.Greater(t, len(idx.dir.nodes), 1)
	sawChildRef := false
	for _, s := range idx.dir.nodes[0].slots {
		if s.isChildRef() {
			sawChildRef = true
		}
	}
	require.True(t, sawChildRef, "root should reference a child node after deepening")

	for i, k := range []uint64{0, 1} {
		found, err := idx.Remove(k)
		require.NoErrorf(t, err, "remove %d", i)
		require.True(t, found)
	}

	// --- S2: merge basic -------------------------------------------------
	// groupA's bucket still has 2 entries (keys 2, 3) here - above the
	// merge threshold - so no merge should have happened yet.
	require.Equal(t, uint64(2), idx.store.levelMeta(1).bucketsCount, "merge should not have happened yet")

	// Removing key 2 drops the bucket to its last entry (key 3), pushing
	// its occupancy under MergeThreshold and pulling its buddy (groupB
	// plus the recursively-inserted 10th key) back together into a single
	// level-0 bucket.
	found, err := idx.Remove(2)
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, uint64(0), idx.store.levelMeta(1).bucketsCount)
	require.Equal(t, uint64(4), idx.store.levelMeta(0).bucketsCount, "the merged bucket should have returned to level 0")
	require.NotEqual(t, int64(-1), idx.store.levelMeta(1).tombstoneIndex)

	for _, k := range groupB {
		v, ok, err := idx.Lookup(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abcdefghij", v)
	}
	v, ok, err := idx.Lookup(3)
	require.NoError(t, err)
	require.True(t, ok, "key 3 was never removed, it should have survived the merge")
	require.Equal(t, "abcdefghij", v)

	// --- S6: tombstone reuse ---------------------------------------------
	filledBefore, err := idx.cache.GetFilledUpTo(idx.store.fileName(1))
	require.NoError(t, err)

	// Refill the now-merged level-0 bucket (7 entries: key 3 plus all of
	// groupB) past capacity again, forcing a second split that must reuse
	// the pages freed by the merge above.
	require.NoError(t, idx.Insert(4, "abcdefghij"))
	require.NoError(t, idx.Insert(bit61+6, "abcdefghij"))
	require.NoError(t, idx.Insert(5, "abcdefghij"))

	require.Equal(t, uint64(2), idx.store.levelMeta(1).bucketsCount)

	filledAfter, err := idx.cache.GetFilledUpTo(idx.store.fileName(1))
	require.NoError(t, err)
	require.Equal(t, filledBefore, filledAfter, "the second split should have reused the tombstoned pages instead of growing the file")
	require.Equal(t, int64(-1), idx.store.levelMeta(1).tombstoneIndex, "the tombstone chain should be drained after its only pair was reused")
}

func TestEngineReopenPersistence(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "idx")
	cache := pagecache.NewFileCache(dir, 4096)
	mem := dmem.NewHeap()
	opts := config.Defaults()

	idx, err := Open[uint64, string](name, cache, mem, codec.Uint64Codec{}, codec.StringCodec{}, opts)
	require.NoError(t, err)

	for i := uint64(0); i < 500; i++ {
		require.NoError(t, idx.Insert(i, "value"))
	}
	require.NoError(t, idx.Close())

	cache2 := pagecache.NewFileCache(dir, 4096)
	reopened, err := Open[uint64, string](name, cache2, mem, codec.Uint64Codec{}, codec.StringCodec{}, opts)
	require.NoError(t, err)

	require.Equal(t, uint64(500), reopened.Size())
	for i := uint64(0); i < 500; i++ {
		v, ok, err := reopened.Lookup(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "value", v)
	}
}

func TestEngineKeyTooLargeDroppedByDefault(t *testing.T) {
	opts := smallOptions()
	idx := newTestIndex(t, opts)

	huge := make([]byte, 0)
	for i := 0; i < 300; i++ {
		huge = append(huge, 'x')
	}

	// A single oversized value for a fresh bucket: default options drop it
	// silently rather than returning KeyTooLargeError.
	err := idx.Insert(1, string(huge))
	require.NoError(t, err)

	_, ok, err := idx.Lookup(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngineKeyTooLargeErrorsWhenConfigured(t *testing.T) {
	opts := smallOptions()
	opts.DropOversizedKeys = false
	idx := newTestIndex(t, opts)

	huge := make([]byte, 0)
	for i := 0; i < 300; i++ {
		huge = append(huge, 'x')
	}

	err := idx.Insert(1, string(huge))
	require.Error(t, err)
	require.IsType(t, &KeyTooLargeError{}, err)
}
