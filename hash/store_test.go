package hash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krotik/exthash/pagecache"
)

func TestBucketStoreAllocateInitial(t *testing.T) {
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "idx", ".bkt", 256)

	pages, err := store.allocateInitial(0, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3}, pages)
	require.Equal(t, uint64(4), store.levelMeta(0).bucketsCount)
}

func TestBucketStoreAllocateSplitPairWithoutTombstone(t *testing.T) {
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "idx", ".bkt", 256)
	require.NoError(t, store.ensureLevel(1))

	updated, created, err := store.allocateSplitPair(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), updated)
	require.Equal(t, uint64(1), created)
	require.Equal(t, uint64(2), store.levelMeta(1).bucketsCount)
}

func TestBucketStoreFreeThenReuseMergedPair(t *testing.T) {
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "idx", ".bkt", 256)

	updated, created, err := store.allocateSplitPair(0)
	require.NoError(t, err)

	// The pages must actually exist as encoded buckets before
	// freeMergedPair can read/rewrite the lower one's tombstone link.
	name := store.fileName(0)
	for _, idx := range []uint64{updated, created} {
		buf, err := cache.AllocateAndLockForWrite(name, idx)
		require.NoError(t, err)
		require.NoError(t, encodeBucket(newBucket(1), buf))
		require.NoError(t, cache.ReleaseWriteLock(name, idx))
	}

	lower := updated
	if created < lower {
		lower = created
	}
	require.NoError(t, store.freeMergedPair(0, lower))
	require.Equal(t, uint64(0), store.levelMeta(0).bucketsCount)
	require.Equal(t, int64(lower), store.levelMeta(0).tombstoneIndex)

	reusedUpdated, reusedCreated, err := store.allocateSplitPair(0)
	require.NoError(t, err)
	require.Equal(t, lower, reusedUpdated)
	require.Equal(t, lower+1, reusedCreated)
	require.Equal(t, int64(-1), store.levelMeta(0).tombstoneIndex)
}

func TestBucketStoreFileNameIncludesLevel(t *testing.T) {
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "myindex", ".bkt", 256)

	require.Equal(t, "myindex0.bkt", store.fileName(0))
	require.Equal(t, "myindex3.bkt", store.fileName(3))
}

func TestBucketStoreCloseClosesOpenedFiles(t *testing.T) {
	cache := pagecache.NewFileCache(t.TempDir(), 64)
	store := newBucketStore(cache, "idx", ".bkt", 256)

	require.NoError(t, store.ensureLevel(0))
	require.NoError(t, store.ensureLevel(1))
	require.NoError(t, store.close())

	// A closed file can be reopened without error (proves it was
	// actually closed, not just forgotten about).
	require.NoError(t, cache.OpenFile(store.fileName(0), 256))
}
