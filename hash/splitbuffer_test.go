package hash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krotik/exthash/dmem"
	"github.com/krotik/exthash/pagecache"
)

func newTestSplitBuffer(t *testing.T, threshold int) (*splitBuffer, *bucketStore, pagecache.Cache, *dmem.Heap) {
	t.Helper()
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "idx", ".bkt", 256)
	mem := dmem.NewHeap()
	return newSplitBuffer(store, cache, mem, threshold), store, cache, mem
}

func TestSplitBufferStageThenRead(t *testing.T) {
	sb, _, _, _ := newTestSplitBuffer(t, 10)

	b := newBucket(8)
	b.addEntry([]byte("k"), []byte("v"))

	require.NoError(t, sb.stage(0, 5, b))
	require.Equal(t, 1, sb.len())

	read, err := sb.read(0, 5)
	require.NoError(t, err)
	require.Equal(t, b.entries, read.entries)
}

func TestSplitBufferWriteUpdatesStagedCopy(t *testing.T) {
	sb, _, _, _ := newTestSplitBuffer(t, 10)

	require.NoError(t, sb.stage(0, 1, newBucket(8)))

	updated := newBucket(8)
	updated.addEntry([]byte("new"), []byte("entry"))
	require.NoError(t, sb.write(0, 1, updated))

	read, err := sb.read(0, 1)
	require.NoError(t, err)
	require.Equal(t, updated.entries, read.entries)
}

func TestSplitBufferDrainsAboveThresholdAndFreesHandles(t *testing.T) {
	sb, _, _, mem := newTestSplitBuffer(t, 2)

	require.NoError(t, sb.stage(0, 0, newBucket(8)))
	require.NoError(t, sb.stage(0, 1, newBucket(8)))
	require.Equal(t, 2, sb.len())

	// The third stage call crosses the threshold and triggers a drain.
	require.NoError(t, sb.stage(0, 2, newBucket(8)))
	require.Equal(t, 0, sb.len())
	require.Equal(t, 0, mem.Len())
}

func TestSplitBufferExplicitDrainClearsStaging(t *testing.T) {
	sb, _, _, mem := newTestSplitBuffer(t, 100)

	require.NoError(t, sb.stage(0, 0, newBucket(8)))
	require.NoError(t, sb.stage(1, 0, newBucket(8)))

	require.NoError(t, sb.drain())
	require.Equal(t, 0, sb.len())
	require.Equal(t, 0, mem.Len())

	// Pages drained to disk are still readable through the cache path.
	b, err := sb.read(0, 0)
	require.NoError(t, err)
	require.Empty(t, b.entries)
}

func TestSplitBufferReadFallsBackToCacheWhenNotStaged(t *testing.T) {
	sb, _, cache, _ := newTestSplitBuffer(t, 100)

	require.NoError(t, sb.store.ensureLevel(0))
	name := sb.store.fileName(0)
	buf, err := cache.AllocateAndLockForWrite(name, 0)
	require.NoError(t, err)
	b := newBucket(8)
	b.addEntry([]byte("persisted"), []byte("value"))
	require.NoError(t, encodeBucket(b, buf))
	require.NoError(t, cache.ReleaseWriteLock(name, 0))

	read, err := sb.read(0, 0)
	require.NoError(t, err)
	require.Equal(t, b.entries, read.entries)
}
