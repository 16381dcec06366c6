/*
Package pagecache implements the page cache interface the hash index
consumes: a narrow abstraction over page-granular file I/O with
per-page read/write locks and an LRU eviction policy, mirroring how the
source layers a cache wrapper (CachedDiskStorageManager) over a
disk-backed manager.

The index never touches *os.File directly: it opens a named page file
once, then loads, allocates and releases pages by (name, pageIndex)
through the Cache interface. This keeps the index portable to an
in-memory Cache for tests and lets a host database swap in its own
cache/buffer-pool implementation.
*/
package pagecache

import "errors"

/*
Cache related errors.
*/
var (
	ErrFileNotOpen  = errors.New("pagecache: file is not open")
	ErrFileExists   = errors.New("pagecache: file is already open")
	ErrPageNotFound = errors.New("pagecache: page does not exist")
	ErrPageInUse    = errors.New("pagecache: page is already locked")
	ErrNotLocked    = errors.New("pagecache: page is not locked by the caller")
)

/*
Cache is the page cache interface the hash index's bucket store and
split buffer consume. All page-index arguments are zero-based within
their named file.
*/
type Cache interface {

	/*
		OpenFile opens (creating if necessary) a named page file with a
		fixed page size. Opening an already-open name returns
		ErrFileExists.
	*/
	OpenFile(name string, pageSize int) error

	/*
		LoadAndLockForRead returns the bytes of a page under a shared read
		lock. The lock must be released with ReleaseReadLock.
	*/
	LoadAndLockForRead(name string, pageIndex uint64) ([]byte, error)

	/*
		LoadAndLockForWrite returns the bytes of a page under an exclusive
		write lock. The lock must be released with ReleaseWriteLock.
	*/
	LoadAndLockForWrite(name string, pageIndex uint64) ([]byte, error)

	/*
		AllocateAndLockForWrite grows the file if necessary so pageIndex
		exists, zeroes it if newly created, and returns it locked for write.
	*/
	AllocateAndLockForWrite(name string, pageIndex uint64) ([]byte, error)

	/*
		GetAndLockForWrite returns a page locked for write only if it is
		already cache-resident, without touching disk; it returns (nil, nil)
		if the page is not resident rather than loading it.
	*/
	GetAndLockForWrite(name string, pageIndex uint64) ([]byte, error)

	/*
		ReleaseReadLock releases a lock taken by LoadAndLockForRead.
	*/
	ReleaseReadLock(name string, pageIndex uint64) error

	/*
		ReleaseWriteLock releases a lock taken by LoadAndLockForWrite,
		AllocateAndLockForWrite or GetAndLockForWrite, marking the page
		dirty so it is written back on the next FlushFile.
	*/
	ReleaseWriteLock(name string, pageIndex uint64) error

	/*
		ClearDirtyFlag marks a page clean without writing it back - used
		once a page's content has been superseded (e.g. the source page of
		a completed split) and no longer needs to reach disk.
	*/
	ClearDirtyFlag(name string, pageIndex uint64) error

	/*
		ClearExternalManagementFlag un-marks a page that was published into
		the cache via CacheHit, returning it to the cache's normal eviction
		accounting.
	*/
	ClearExternalManagementFlag(name string, pageIndex uint64) error

	/*
		FlushData writes an explicit byte slice to a page location,
		bypassing the cache's own copy - used by the split buffer to drain
		a staged, off-cache page straight to disk.
	*/
	FlushData(name string, pageIndex uint64, data []byte) error

	/*
		FlushFile writes every dirty page of a file to disk and clears
		their dirty flags.
	*/
	FlushFile(name string) error

	/*
		TruncateFile shrinks a file to exactly pageCount pages.
	*/
	TruncateFile(name string, pageCount uint64) error

	/*
		DeleteFile closes and removes a file and all of its cached pages.
	*/
	DeleteFile(name string) error

	/*
		CloseFile flushes and closes a file, evicting its cached pages.
	*/
	CloseFile(name string) error

	/*
		GetFilledUpTo returns the number of pages currently allocated in a
		file.
	*/
	GetFilledUpTo(name string) (uint64, error)

	/*
		CacheHit informs the cache that a caller holds an externally
		managed page (e.g. one staged in the split buffer) so the cache's
		replacement policy accounts for it without owning its storage. The
		page is marked externally managed until ClearExternalManagementFlag
		is called.
	*/
	CacheHit(name string, pageIndex uint64, data []byte) error
}
