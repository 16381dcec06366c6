package hash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

/*
entry is a single key/value pair inside a bucket page. Keys and values
are already codec-encoded bytes; bucket itself never looks at the
original K/V types.
*/
type entry struct {
	key   []byte
	value []byte
}

/*
bucket is the in-memory form of a bucket page: a sorted dictionary of
entries plus the depth, split-history and tombstone-link metadata
carried on the page itself.

Entries are kept sorted by key bytes (bytes.Compare). Every codec in
package codec is written so its Encode output preserves
the type's natural order under bytes.Compare, which is what lets bucket
use a single untyped comparator instead of taking a per-call comparison
function.
*/
type bucket struct {
	depth uint8

	/*
		splitHistory[level] records the page index this bucket's file-level
		`level` ancestor occupied immediately before the split that pushed
		this bucket one level deeper; it holds one entry per such split, so
		it is empty for a file-level-0 bucket. tryMerge (engine.go) reads
		its last entry to find the page the merged bucket is written back to.
	*/
	splitHistory []int64

	/*
		nextRemovedBucketPair links this page into its file level's
		tombstone chain (store.go) when the bucket has been removed; -1
		while the page is live.
	*/
	nextRemovedBucketPair int64

	entries []entry
}

func newBucket(depth uint8) *bucket {
	return &bucket{depth: depth, nextRemovedBucketPair: -1}
}

func (b *bucket) find(key []byte) int {
	return sort.Search(len(b.entries), func(i int) bool {
		return bytes.Compare(b.entries[i].key, key) >= 0
	})
}

func (b *bucket) get(key []byte) ([]byte, bool) {
	i := b.find(key)
	if i < len(b.entries) && bytes.Equal(b.entries[i].key, key) {
		return b.entries[i].value, true
	}
	return nil, false
}

/*
addEntry inserts (or overwrites) key/value at the sorted position. It
does not itself check available page space; callers check encodedSize
against the page budget before calling it.
*/
func (b *bucket) addEntry(key, value []byte) {
	i := b.find(key)
	if i < len(b.entries) && bytes.Equal(b.entries[i].key, key) {
		b.entries[i].value = value
		return
	}
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = entry{key: key, value: value}
}

/*
appendEntry appends without checking or preserving sort order - used
while redistributing entries during a split, where the caller
re-establishes order once via sortEntries.
*/
func (b *bucket) appendEntry(key, value []byte) {
	b.entries = append(b.entries, entry{key: key, value: value})
}

func (b *bucket) sortEntries() {
	sort.Slice(b.entries, func(i, j int) bool {
		return bytes.Compare(b.entries[i].key, b.entries[j].key) < 0
	})
}

func (b *bucket) removeEntry(key []byte) ([]byte, bool) {
	i := b.find(key)
	if i >= len(b.entries) || !bytes.Equal(b.entries[i].key, key) {
		return nil, false
	}
	v := b.entries[i].value
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return v, true
}

/*
encodedSize returns the number of bytes bucket's current contents would
occupy on a page, including the fixed header (depth, split history,
tombstone link, entry count).
*/
func (b *bucket) encodedSize() int {
	size := bucketHeaderSize + len(b.splitHistory)*8
	for _, e := range b.entries {
		size += entryOverhead + len(e.key) + len(e.value)
	}
	return size
}

const (
	bucketHeaderSize = 1 /*depth*/ + 2 /*split history len*/ + 8 /*tombstone link*/ + 4 /*entry count*/
	entryOverhead    = 4 + 4 // key length + value length prefixes
)

/*
encodeBucket serializes b into a page-sized buffer. The caller owns buf
and guarantees len(buf) >= b.encodedSize(); the remainder of the page is
left untouched (pages are always allocated zeroed).
*/
func encodeBucket(b *bucket, buf []byte) error {
	if b.encodedSize() > len(buf) {
		return fmt.Errorf("hash: bucket does not fit in %d byte page (needs %d)", len(buf), b.encodedSize())
	}

	off := 0
	buf[off] = b.depth
	off++

	binary.BigEndian.PutUint16(buf[off:], uint16(len(b.splitHistory)))
	off += 2
	for _, h := range b.splitHistory {
		binary.BigEndian.PutUint64(buf[off:], uint64(h))
		off += 8
	}

	binary.BigEndian.PutUint64(buf[off:], uint64(b.nextRemovedBucketPair))
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(b.entries)))
	off += 4

	for _, e := range b.entries {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(e.key)))
		off += 4
		binary.BigEndian.PutUint32(buf[off:], uint32(len(e.value)))
		off += 4
		off += copy(buf[off:], e.key)
		off += copy(buf[off:], e.value)
	}

	return nil
}

/*
decodeBucket parses a page previously written by encodeBucket. An
all-zero page (one that has never been written) decodes to an empty
depth-0 bucket, which callers treat as "not yet materialized".
*/
func decodeBucket(buf []byte) (*bucket, error) {
	if len(buf) < bucketHeaderSize {
		return nil, &CorruptionError{Detail: "page too small to hold a bucket header"}
	}

	off := 0
	depth := buf[off]
	off++

	histLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if off+histLen*8 > len(buf) {
		return nil, &CorruptionError{Detail: "bucket split-history length overruns page"}
	}
	hist := make([]int64, histLen)
	for i := range hist {
		hist[i] = int64(binary.BigEndian.Uint64(buf[off:]))
		off += 8
	}

	if off+8 > len(buf) {
		return nil, &CorruptionError{Detail: "bucket page truncated before tombstone link"}
	}
	nextRemoved := int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8

	if off+4 > len(buf) {
		return nil, &CorruptionError{Detail: "bucket page truncated before entry count"}
	}
	count := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4

	entries := make([]entry, 0, count)
	for i := 0; i < count; i++ {
		if off+8 > len(buf) {
			return nil, &CorruptionError{Detail: "bucket entry header overruns page"}
		}
		keyLen := int(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		valLen := int(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		if off+keyLen+valLen > len(buf) {
			return nil, &CorruptionError{Detail: "bucket entry body overruns page"}
		}
		key := make([]byte, keyLen)
		copy(key, buf[off:off+keyLen])
		off += keyLen
		val := make([]byte, valLen)
		copy(val, buf[off:off+valLen])
		off += valLen
		entries = append(entries, entry{key: key, value: val})
	}

	return &bucket{
		depth:                 depth,
		splitHistory:          hist,
		nextRemovedBucketPair: nextRemoved,
		entries:               entries,
	}, nil
}
