/*
Package hash implements an on-disk extendible hash index: a directory
tree of nodes resolving hashed keys to bucket pages, backed
by a per-level bucket store and a split-staging buffer, synchronized by
a single reader/writer lock and checkpointed through a small state
store.

Index[K, V] is the public entry point: Lookup, Insert and Remove,
plus the four ordered range scans in range.go. Keys and values are
opaque to everything below Index - they are turned into comparably
ordered bytes by a codec.Codec[T] at the boundary, and into a 64-bit
routing hash by hashing those same bytes (package hashfunc).
*/
package hash

import (
	"errors"
	"os"

	"github.com/krotik/exthash/codec"
	"github.com/krotik/exthash/config"
	"github.com/krotik/exthash/dmem"
	"github.com/krotik/exthash/hashfunc"
	"github.com/krotik/exthash/internal/elog"
	"github.com/krotik/exthash/pagecache"
	"github.com/krotik/exthash/rwlock"
)

var log = elog.Get("hash")

/*
Index is a generic on-disk extendible hash index over key type K and
value type V.
*/
type Index[K any, V any] struct {
	name string
	opts config.Options

	keyCodec codec.Codec[K]
	valCodec codec.Codec[V]

	cache pagecache.Cache
	store *bucketStore
	sb    *splitBuffer
	dir   *directory
	state *stateStore

	lock *rwlock.RWLock

	size    uint64
	metrics Metrics

	hashFn func(keyBytes []byte) uint64
}

/*
Open opens (or creates, if no state file exists yet) a hash index named
name. cache and mem are the page cache and direct-memory allocator the
index will use; a caller with no special requirements can pass
pagecache.NewFileCache and dmem.NewHeap.
*/
func Open[K any, V any](name string, cache pagecache.Cache, mem dmem.Allocator, keyCodec codec.Codec[K], valCodec codec.Codec[V], opts config.Options) (*Index[K, V], error) {
	if err := opts.Validate(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	store := newBucketStore(cache, name, ".bkt", opts.PageSize)
	sb := newSplitBuffer(store, cache, mem, opts.SplitBufferLimit)
	ss := newStateStore(name)

	idx := &Index[K, V]{
		name:     name,
		opts:     opts,
		keyCodec: keyCodec,
		valCodec: valCodec,
		cache:    cache,
		store:    store,
		sb:       sb,
		state:    ss,
		lock:     rwlock.New(),
		metrics:  noopMetrics{},
		hashFn:   hashfunc.Bytes,
	}

	st, err := ss.load(uint8(opts.MaxLevelDepth))
	if err == nil {
		idx.dir = st.dir
		idx.size = st.size
		store.levels = st.levels
		for level := range store.levels {
			if err := store.ensureLevel(level); err != nil {
				return nil, err
			}
		}
		return idx, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, wrapErr("Open", err)
	}

	if err := idx.bootstrap(); err != nil {
		return nil, err
	}
	return idx, nil
}

/*
bootstrap creates the initial directory and its 2^MaxLevelDepth (256 by
default) empty file-level-0 buckets.
*/
func (idx *Index[K, V]) bootstrap() error {
	depth := uint8(idx.opts.MaxLevelDepth)
	count := 1 << depth

	pages, err := idx.store.allocateInitial(0, count)
	if err != nil {
		return wrapErr("Open", err)
	}
	for _, p := range pages {
		if err := idx.sb.allocateAndWrite(0, p, newBucket(depth)); err != nil {
			return wrapErr("Open", err)
		}
	}

	idx.dir = newDirectory(depth, nullPointer)
	root := idx.dir.nodes[0]
	for i, p := range pages {
		root.slots[i] = newBucketPointer(p, 0)
	}
	return nil
}

func (idx *Index[K, V]) encodeKey(key K) []byte {
	buf := make([]byte, idx.keyCodec.Size(key))
	idx.keyCodec.Encode(key, buf)
	return buf
}

func (idx *Index[K, V]) encodeValue(value V) []byte {
	buf := make([]byte, idx.valCodec.Size(value))
	idx.valCodec.Encode(value, buf)
	return buf
}

/*
Size returns the number of live key/value pairs.
*/
func (idx *Index[K, V]) Size() uint64 {
	return idx.size
}

/*
Lookup returns the value stored for key, and whether it was found.
*/
func (idx *Index[K, V]) Lookup(key K) (V, bool, error) {
	var zero V

	keyBytes := idx.encodeKey(key)
	h := idx.hashFn(keyBytes)

	tok := idx.lock.RLock()
	defer idx.lock.RUnlock(tok)

	_, ptr, err := idx.dir.resolve(h)
	if err != nil {
		return zero, false, wrapErr("Lookup", err)
	}
	if ptr.isEmpty() {
		return zero, false, nil
	}

	b, err := idx.sb.read(int(ptr.fileLevel()), ptr.pageIndex())
	if err != nil {
		return zero, false, wrapErr("Lookup", err)
	}

	valBytes, ok := b.get(keyBytes)
	idx.metrics.Lookups(1)
	if !ok {
		return zero, false, nil
	}
	return idx.valCodec.Decode(valBytes), true, nil
}

/*
Insert stores value under key, overwriting any existing entry for the
same key.
*/
func (idx *Index[K, V]) Insert(key K, value V) error {
	keyBytes := idx.encodeKey(key)
	valBytes := idx.encodeValue(value)
	h := idx.hashFn(keyBytes)

	tok := idx.lock.Lock()
	defer idx.lock.Unlock(tok)

	return idx.insertLocked(h, keyBytes, valBytes)
}

func (idx *Index[K, V]) insertLocked(h uint64, keyBytes, valBytes []byte) error {
	path, ptr, err := idx.dir.resolve(h)
	if err != nil {
		return wrapErr("Insert", err)
	}
	if ptr.isEmpty() || ptr.isChildRef() {
		return &CorruptionError{Detail: "insert resolved to a non-bucket slot"}
	}

	level := int(ptr.fileLevel())
	pageIdx := ptr.pageIndex()

	b, err := idx.sb.read(level, pageIdx)
	if err != nil {
		return wrapErr("Insert", err)
	}

	if _, exists := b.get(keyBytes); exists {
		b.addEntry(keyBytes, valBytes)
		return wrapErr("Insert", idx.sb.write(level, pageIdx, b))
	}

	needed := b.encodedSize() + entryOverhead + len(keyBytes) + len(valBytes)
	if needed <= idx.opts.PageSize {
		b.addEntry(keyBytes, valBytes)
		if err := idx.sb.write(level, pageIdx, b); err != nil {
			return wrapErr("Insert", err)
		}
		idx.size++
		idx.metrics.Inserts(1)
		return nil
	}

	if len(b.entries) == 0 {
		if idx.opts.DropOversizedKeys {
			log.Warning("dropping oversized insert", "keyBytes", len(keyBytes), "valueBytes", len(valBytes))
			return nil
		}
		return &KeyTooLargeError{KeySize: len(keyBytes), ValueSize: len(valBytes), PageSize: idx.opts.PageSize}
	}

	if err := idx.splitBucket(path, b, level, pageIdx); err != nil {
		return wrapErr("Insert", err)
	}
	idx.metrics.Splits(1)

	return idx.insertLocked(h, keyBytes, valBytes)
}

/*
splitBucket allocates a new bucket pair one level deeper, redistributes
src's entries between them by their next unconsumed hash bit, stages
both in the split buffer, and publishes the pair into the directory in
src's place.
*/
func (idx *Index[K, V]) splitBucket(path bucketPath, src *bucket, level int, srcIdx uint64) error {
	newDepth := src.depth + 1
	newLevel := int(newDepth) - idx.opts.MaxLevelDepth

	updatedIdx, newIdx, err := idx.store.allocateSplitPair(newLevel)
	if err != nil {
		return err
	}

	history := append(append([]int64{}, src.splitHistory...), int64(srcIdx))

	updated := newBucket(newDepth)
	updated.splitHistory = append([]int64{}, history...)
	created := newBucket(newDepth)
	created.splitHistory = append([]int64{}, history...)

	bitShift := uint(64 - int(newDepth))
	for _, e := range src.entries {
		h := idx.hashFn(e.key)
		if (h>>bitShift)&1 == 0 {
			updated.appendEntry(e.key, e.value)
		} else {
			created.appendEntry(e.key, e.value)
		}
	}
	updated.sortEntries()
	created.sortEntries()

	if err := idx.sb.stage(newLevel, updatedIdx, updated); err != nil {
		return err
	}
	if err := idx.sb.stage(newLevel, newIdx, created); err != nil {
		return err
	}

	srcMeta := idx.store.levelMeta(level)
	if srcMeta.bucketsCount > 0 {
		srcMeta.bucketsCount--
	}
	if err := idx.cache.ClearDirtyFlag(idx.store.fileName(level), srcIdx); err != nil {
		return wrapErr("splitBucket", err)
	}

	updatedPtr := newBucketPointer(updatedIdx, uint8(newLevel))
	createdPtr := newBucketPointer(newIdx, uint8(newLevel))

	if err := idx.dir.installSplit(path, updatedPtr, createdPtr); err != nil {
		return err
	}

	if idx.sb.len() > idx.opts.SplitBufferLimit {
		return idx.sb.drain()
	}
	return nil
}

/*
Remove deletes key, returning whether it was present.
*/
func (idx *Index[K, V]) Remove(key K) (bool, error) {
	keyBytes := idx.encodeKey(key)
	h := idx.hashFn(keyBytes)

	tok := idx.lock.Lock()
	defer idx.lock.Unlock(tok)

	path, ptr, err := idx.dir.resolve(h)
	if err != nil {
		return false, wrapErr("Remove", err)
	}
	if ptr.isEmpty() {
		return false, nil
	}

	level := int(ptr.fileLevel())
	pageIdx := ptr.pageIndex()

	b, err := idx.sb.read(level, pageIdx)
	if err != nil {
		return false, wrapErr("Remove", err)
	}

	if _, found := b.removeEntry(keyBytes); !found {
		return false, nil
	}

	if err := idx.sb.write(level, pageIdx, b); err != nil {
		return false, wrapErr("Remove", err)
	}
	idx.size--
	idx.metrics.Removes(1)

	if idx.shouldMerge(b) {
		if err := idx.tryMerge(path, b, level, pageIdx); err != nil {
			return false, wrapErr("Remove", err)
		}
	}

	return true, nil
}

func (idx *Index[K, V]) shouldMerge(b *bucket) bool {
	if int(b.depth)-idx.opts.MaxLevelDepth < 1 {
		return false
	}
	return float64(b.encodedSize()) < idx.opts.MergeThreshold*float64(idx.opts.PageSize)
}

/*
tryMerge looks up b's buddy bucket and, if it is also a live terminal
bucket whose combined contents fit a single page one level shallower,
merges the two and publishes the result in their place. It gives up
(returning nil, not an error) on any shape that isn't a clean
buddy-pair merge: a missing split history, an empty or child-ref buddy
slot, or a combined size over budget.
*/
func (idx *Index[K, V]) tryMerge(path bucketPath, b *bucket, level int, pageIdx uint64) error {
	if len(b.splitHistory) == 0 {
		return nil
	}

	buddyPtr := idx.dir.buddySlot(path)
	if buddyPtr.isEmpty() || buddyPtr.isChildRef() {
		return nil
	}

	buddyLevel := int(buddyPtr.fileLevel())
	buddyIdx := buddyPtr.pageIndex()
	if buddyLevel != level {
		return nil
	}

	buddy, err := idx.sb.read(buddyLevel, buddyIdx)
	if err != nil {
		return err
	}
	if buddy.depth != b.depth {
		return nil
	}

	merged := newBucket(b.depth - 1)
	merged.splitHistory = append([]int64{}, b.splitHistory[:len(b.splitHistory)-1]...)
	merged.entries = append(merged.entries, buddy.entries...)
	merged.entries = append(merged.entries, b.entries...)
	merged.sortEntries()

	if merged.encodedSize() > idx.opts.PageSize {
		return nil
	}

	parentLevel := level - 1
	parentIdx := uint64(b.splitHistory[len(b.splitHistory)-1])

	if err := idx.sb.write(parentLevel, parentIdx, merged); err != nil {
		return err
	}
	idx.store.levelMeta(parentLevel).bucketsCount++

	lower := pageIdx
	if buddyIdx < lower {
		lower = buddyIdx
	}
	if err := idx.store.freeMergedPair(level, lower); err != nil {
		return err
	}
	idx.metrics.Merges(1)

	mergedPtr := newBucketPointer(parentIdx, uint8(parentLevel))
	idx.dir.installMerge(path, mergedPtr)

	return nil
}

/*
Checkpoint persists the index's metadata, directory and per-level
bucket-store bookkeeping, draining the split buffer first so every
published pointer refers to data already on disk.
*/
func (idx *Index[K, V]) Checkpoint() error {
	if err := idx.sb.drain(); err != nil {
		return wrapErr("Checkpoint", err)
	}
	return wrapErr("Checkpoint", idx.state.save(idx.dir, idx.size, idx.store.levels))
}

/*
Close drains the split buffer, checkpoints and closes every open bucket
file.
*/
func (idx *Index[K, V]) Close() error {
	if err := idx.Checkpoint(); err != nil {
		return err
	}
	return idx.store.close()
}

/*
SetMetrics installs a Metrics sink. Passing nil restores the no-op
default.
*/
func (idx *Index[K, V]) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	idx.metrics = m
}

/*
SetHashFunc overrides the routing hash applied to a key's encoded bytes.
Passing nil restores hashfunc.Bytes, the default. Only meaningful before
any entry has been inserted - every resolve/insert/split/merge call after
the first Insert routes on whichever function was installed at the time,
so switching it mid-lifetime would strand existing entries behind hashes
computed under the old function.
*/
func (idx *Index[K, V]) SetHashFunc(fn func(keyBytes []byte) uint64) {
	if fn == nil {
		fn = hashfunc.Bytes
	}
	idx.hashFn = fn
}
