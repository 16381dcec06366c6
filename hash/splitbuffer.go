package hash

import (
	"sort"

	"github.com/krotik/exthash/dmem"
	"github.com/krotik/exthash/pagecache"
)

/*
pageKey identifies a staged page within the split buffer.
*/
type pageKey struct {
	level int
	index uint64
}

/*
splitBuffer is a staging area for the two pages a bucket split just
wrote, consulted ahead of the page cache by every bucket read/write so a
reader never sees a half-finished split. Staged bytes live in a
dmem.Allocator handle rather than a Go byte slice directly, so draining
a page back to disk corresponds to an actual dmem.Allocator.Free call
rather than letting the GC reclaim it.
*/
type splitBuffer struct {
	store     *bucketStore
	cache     pagecache.Cache
	mem       dmem.Allocator
	threshold int

	staged map[pageKey]dmem.Handle
}

func newSplitBuffer(store *bucketStore, cache pagecache.Cache, mem dmem.Allocator, threshold int) *splitBuffer {
	return &splitBuffer{
		store:     store,
		cache:     cache,
		mem:       mem,
		threshold: threshold,
		staged:    make(map[pageKey]dmem.Handle),
	}
}

/*
stage records a freshly split bucket page off-cache, registering it with
the page cache via CacheHit so the cache's eviction accounting knows it
exists without owning its storage. Once the number of staged pages
exceeds threshold, the whole buffer is drained.
*/
func (sb *splitBuffer) stage(level int, index uint64, b *bucket) error {
	if err := sb.store.ensureLevel(level); err != nil {
		return err
	}

	buf := make([]byte, sb.store.pageSize)
	if err := encodeBucket(b, buf); err != nil {
		return err
	}

	if old, ok := sb.staged[pageKey{level, index}]; ok {
		sb.mem.Free(old)
	}

	h := sb.mem.Allocate(len(buf))
	copy(sb.mem.Bytes(h), buf)
	sb.staged[pageKey{level, index}] = h

	if err := sb.cache.CacheHit(sb.store.fileName(level), index, buf); err != nil {
		return wrapErr("stage", err)
	}

	if len(sb.staged) > sb.threshold {
		return sb.drain()
	}
	return nil
}

/*
read returns the current bucket at (level, index), consulting the split
buffer before the page cache.
*/
func (sb *splitBuffer) read(level int, index uint64) (*bucket, error) {
	if h, ok := sb.staged[pageKey{level, index}]; ok {
		return decodeBucket(sb.mem.Bytes(h))
	}

	if err := sb.store.ensureLevel(level); err != nil {
		return nil, err
	}
	name := sb.store.fileName(level)
	buf, err := sb.cache.LoadAndLockForRead(name, index)
	if err != nil {
		return nil, wrapErr("read", err)
	}
	defer sb.cache.ReleaseReadLock(name, index)

	return decodeBucket(buf)
}

/*
write persists b at (level, index), updating the staged copy in place if
one exists rather than touching the cache.
*/
func (sb *splitBuffer) write(level int, index uint64, b *bucket) error {
	if h, ok := sb.staged[pageKey{level, index}]; ok {
		return encodeBucket(b, sb.mem.Bytes(h))
	}

	if err := sb.store.ensureLevel(level); err != nil {
		return err
	}
	name := sb.store.fileName(level)
	buf, err := sb.cache.LoadAndLockForWrite(name, index)
	if err != nil {
		return wrapErr("write", err)
	}
	if err := encodeBucket(b, buf); err != nil {
		sb.cache.ReleaseWriteLock(name, index)
		return err
	}
	return wrapErr("write", sb.cache.ReleaseWriteLock(name, index))
}

/*
allocateAndWrite writes b to a page the caller knows has never been
cache-resident (the initial root buckets written by bootstrap) straight
through the cache, bypassing the staging map
entirely - only pages written by an in-flight split go through stage.
*/
func (sb *splitBuffer) allocateAndWrite(level int, index uint64, b *bucket) error {
	if err := sb.store.ensureLevel(level); err != nil {
		return err
	}
	name := sb.store.fileName(level)
	buf, err := sb.cache.AllocateAndLockForWrite(name, index)
	if err != nil {
		return wrapErr("allocateAndWrite", err)
	}
	if err := encodeBucket(b, buf); err != nil {
		sb.cache.ReleaseWriteLock(name, index)
		return err
	}
	return wrapErr("allocateAndWrite", sb.cache.ReleaseWriteLock(name, index))
}

/*
drain flushes every staged page to disk in ascending (level, pageIndex)
order and clears the staging map.
*/
func (sb *splitBuffer) drain() error {
	keys := make([]pageKey, 0, len(sb.staged))
	for k := range sb.staged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return keys[i].index < keys[j].index
	})

	for _, k := range keys {
		h := sb.staged[k]
		name := sb.store.fileName(k.level)

		// Hand the cache the latest staged bytes: its copy from stage time
		// misses every write made to the staged page since.
		data := append([]byte(nil), sb.mem.Bytes(h)...)
		if err := sb.cache.CacheHit(name, k.index, data); err != nil {
			return wrapErr("drain", err)
		}
		if err := sb.cache.FlushData(name, k.index, data); err != nil {
			return wrapErr("drain", err)
		}
		if err := sb.cache.ClearExternalManagementFlag(name, k.index); err != nil {
			return wrapErr("drain", err)
		}
		sb.mem.Free(h)
		delete(sb.staged, k)
	}
	return nil
}

func (sb *splitBuffer) len() int {
	return len(sb.staged)
}
