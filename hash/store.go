package hash

import (
	"fmt"
	"path/filepath"

	"github.com/krotik/exthash/pagecache"
)

/*
levelMeta is the per-file-level bookkeeping bucketStore keeps: how many
bucket pages are live, and the head of that level's tombstone chain.
*/
type levelMeta struct {
	bucketsCount   uint64
	tombstoneIndex int64 // -1 sentinel: chain is empty
}

/*
bucketStore is one page file per file level, each a dense sequence of
fixed-size bucket pages, with a tombstone chain per level threaded
through bucket.nextRemovedBucketPair. It owns allocation and freeing of
bucket pages; splitbuffer.go owns staging freshly split pages ahead of
the cache, and calls back into bucketStore for the file-level
bookkeeping those pages belong to.
*/
type bucketStore struct {
	cache     pagecache.Cache
	indexName string
	extension string
	pageSize  int

	opened map[int]bool
	levels []levelMeta
}

func newBucketStore(cache pagecache.Cache, indexName, extension string, pageSize int) *bucketStore {
	return &bucketStore{
		cache:     cache,
		indexName: indexName,
		extension: extension,
		pageSize:  pageSize,
		opened:    make(map[int]bool),
	}
}

/*
fileName builds the bucket file name for level, relative to the page
cache's own root directory. Only the base of indexName is used, so an
Index opened with a name that already includes a directory (to give the
state file, which bypasses the cache, a full path) still resolves bucket
files inside the cache's directory rather than nesting it a second time.
*/
func (s *bucketStore) fileName(level int) string {
	return fmt.Sprintf("%s%d%s", filepath.Base(s.indexName), level, s.extension)
}

func (s *bucketStore) ensureLevel(level int) error {
	for len(s.levels) <= level {
		s.levels = append(s.levels, levelMeta{tombstoneIndex: -1})
	}
	if s.opened[level] {
		return nil
	}
	if err := s.cache.OpenFile(s.fileName(level), s.pageSize); err != nil {
		return wrapErr("ensureLevel", err)
	}
	s.opened[level] = true
	return nil
}

func (s *bucketStore) levelMeta(level int) *levelMeta {
	return &s.levels[level]
}

/*
allocateInitial reserves the next count contiguous bucket pages at
level, used only to seed the file-level-0 buckets a freshly created
directory's root node points at. It never consults the tombstone chain,
since there is nothing to reuse yet.
*/
func (s *bucketStore) allocateInitial(level int, count int) ([]uint64, error) {
	if err := s.ensureLevel(level); err != nil {
		return nil, err
	}
	filled, err := s.cache.GetFilledUpTo(s.fileName(level))
	if err != nil {
		return nil, wrapErr("allocateInitial", err)
	}
	out := make([]uint64, count)
	for i := 0; i < count; i++ {
		out[i] = filled + uint64(i)
	}
	s.levels[level].bucketsCount += uint64(count)
	return out, nil
}

/*
allocateSplitPair returns the two contiguous page indices a bucket split
writes its updated and new half to: the tombstone head and its
immediate successor if the level has one, else the next two never-used
indices.
*/
func (s *bucketStore) allocateSplitPair(level int) (updated, created uint64, err error) {
	if err := s.ensureLevel(level); err != nil {
		return 0, 0, err
	}
	lv := s.levelMeta(level)

	if lv.tombstoneIndex != -1 {
		updated = uint64(lv.tombstoneIndex)
		created = updated + 1

		buf, lerr := s.cache.LoadAndLockForRead(s.fileName(level), updated)
		if lerr != nil {
			return 0, 0, wrapErr("allocateSplitPair", lerr)
		}
		b, derr := decodeBucket(buf)
		relErr := s.cache.ReleaseReadLock(s.fileName(level), updated)
		if derr != nil {
			return 0, 0, derr
		}
		if relErr != nil {
			return 0, 0, wrapErr("allocateSplitPair", relErr)
		}

		lv.tombstoneIndex = b.nextRemovedBucketPair
		lv.bucketsCount += 2
		return updated, created, nil
	}

	filled, ferr := s.cache.GetFilledUpTo(s.fileName(level))
	if ferr != nil {
		return 0, 0, wrapErr("allocateSplitPair", ferr)
	}
	// Grow the file over both pages now: they are only staged, and the next
	// split at this level must not be handed the same pair.
	if gerr := s.cache.FlushData(s.fileName(level), filled+1, make([]byte, s.pageSize)); gerr != nil {
		return 0, 0, wrapErr("allocateSplitPair", gerr)
	}
	lv.bucketsCount += 2
	return filled, filled + 1, nil
}

/*
freeMergedPair threads lowerIdx onto level's tombstone chain after a
merge frees the pair it anchors, pushing the lower-indexed page of the
pair onto the old level's chain.
*/
func (s *bucketStore) freeMergedPair(level int, lowerIdx uint64) error {
	if err := s.ensureLevel(level); err != nil {
		return err
	}
	lv := s.levelMeta(level)

	buf, err := s.cache.LoadAndLockForWrite(s.fileName(level), lowerIdx)
	if err != nil {
		return wrapErr("freeMergedPair", err)
	}
	b, derr := decodeBucket(buf)
	if derr != nil {
		s.cache.ReleaseWriteLock(s.fileName(level), lowerIdx)
		return derr
	}
	b.nextRemovedBucketPair = lv.tombstoneIndex
	if eerr := encodeBucket(b, buf); eerr != nil {
		s.cache.ReleaseWriteLock(s.fileName(level), lowerIdx)
		return eerr
	}
	if err := s.cache.ReleaseWriteLock(s.fileName(level), lowerIdx); err != nil {
		return wrapErr("freeMergedPair", err)
	}

	lv.tombstoneIndex = int64(lowerIdx)
	if lv.bucketsCount >= 2 {
		lv.bucketsCount -= 2
	}
	return nil
}

func (s *bucketStore) close() error {
	for level, open := range s.opened {
		if !open {
			continue
		}
		if err := s.cache.CloseFile(s.fileName(level)); err != nil {
			return wrapErr("close", err)
		}
	}
	return nil
}
