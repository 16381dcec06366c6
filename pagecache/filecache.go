package pagecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/krotik/exthash/internal/elog"
)

var log = elog.Get("pagecache")

/*
lockState is the per-page lock state: zero means unlocked, -1 means
exclusively write-locked, and a positive count means that many
concurrent read locks are held - the same encoding the RW spin-lock uses
for its shared "holds" counter, scoped here to a single page instead of
the whole index.
*/
type lockState int

const (
	unlocked    lockState = 0
	writeLocked lockState = -1
)

type pageKey struct {
	name string
	page uint64
}

type pageEntry struct {
	key       pageKey
	data      []byte
	dirty     bool
	external  bool
	lock      lockState
	prev      *pageEntry
	next      *pageEntry
}

type pageFile struct {
	name       string
	pageSize   int
	osFile     *os.File
	filledUpTo uint64
}

/*
FileCache is a Cache backed by real files on disk, with a bounded LRU of
in-memory page entries - grounded on the source's CachedDiskStorageManager
eviction list layered over a disk-backed manager, generalized from
whole-object caching to fixed-size page caching.
*/
type FileCache struct {
	mutex sync.Mutex

	dir       string
	maxPages  int
	files     map[string]*pageFile
	entries   map[pageKey]*pageEntry
	lruFirst  *pageEntry
	lruLast   *pageEntry
}

/*
NewFileCache creates a FileCache rooted at dir, holding at most maxPages
clean pages in memory before evicting the least recently touched one.
Dirty and locked pages are never evicted.
*/
func NewFileCache(dir string, maxPages int) *FileCache {
	return &FileCache{
		dir:      dir,
		maxPages: maxPages,
		files:    make(map[string]*pageFile),
		entries:  make(map[pageKey]*pageEntry),
	}
}

func (c *FileCache) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *FileCache) OpenFile(name string, pageSize int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.files[name]; ok {
		return ErrFileExists
	}

	f, err := os.OpenFile(c.path(name), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("pagecache: open %q: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("pagecache: stat %q: %w", name, err)
	}

	c.files[name] = &pageFile{
		name:       name,
		pageSize:   pageSize,
		osFile:     f,
		filledUpTo: uint64(info.Size()) / uint64(pageSize),
	}

	return nil
}

func (c *FileCache) file(name string) (*pageFile, error) {
	f, ok := c.files[name]
	if !ok {
		return nil, ErrFileNotOpen
	}
	return f, nil
}

/*
lookupOrRead returns the entry for a page, reading it from disk into a
fresh cache entry if it is not already resident. Caller must hold
c.mutex.
*/
func (c *FileCache) lookupOrRead(f *pageFile, pageIndex uint64) (*pageEntry, error) {
	key := pageKey{f.name, pageIndex}

	if e, ok := c.entries[key]; ok {
		return e, nil
	}

	if pageIndex >= f.filledUpTo {
		return nil, ErrPageNotFound
	}

	buf := make([]byte, f.pageSize)
	if _, err := f.osFile.ReadAt(buf, int64(pageIndex)*int64(f.pageSize)); err != nil {
		return nil, fmt.Errorf("pagecache: read %q page %d: %w", f.name, pageIndex, err)
	}

	e := &pageEntry{key: key, data: buf}
	c.insertEntry(e)

	return e, nil
}

func (c *FileCache) insertEntry(e *pageEntry) {
	c.entries[e.key] = e
	c.lruTouch(e)
	c.evictIfNeeded()
}

func (c *FileCache) lruTouch(e *pageEntry) {
	c.lruRemove(e)

	if c.lruLast == nil {
		c.lruFirst, c.lruLast = e, e
		e.prev, e.next = nil, nil
		return
	}

	c.lruLast.next = e
	e.prev = c.lruLast
	e.next = nil
	c.lruLast = e
}

func (c *FileCache) lruRemove(e *pageEntry) {
	if e.prev == nil && e.next == nil && c.lruFirst != e {
		return // never inserted
	}

	if e.prev != nil {
		e.prev.next = e.next
	} else if c.lruFirst == e {
		c.lruFirst = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else if c.lruLast == e {
		c.lruLast = e.prev
	}

	e.prev, e.next = nil, nil
}

/*
evictIfNeeded drops clean, unlocked, non-externally-managed entries from
the front of the LRU list until the cache is back under its budget.
Dirty pages are left alone: they are only ever written back explicitly
via FlushFile/FlushData, matching the source's write-back-on-flush
discipline rather than write-back-on-eviction.
*/
func (c *FileCache) evictIfNeeded() {
	if c.maxPages <= 0 {
		return
	}

	e := c.lruFirst
	for len(c.entries) > c.maxPages && e != nil {
		next := e.next

		if !e.dirty && !e.external && e.lock == unlocked {
			c.lruRemove(e)
			delete(c.entries, e.key)
		}

		e = next
	}
}

func (c *FileCache) LoadAndLockForRead(name string, pageIndex uint64) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return nil, err
	}

	e, err := c.lookupOrRead(f, pageIndex)
	if err != nil {
		return nil, err
	}

	if e.lock == writeLocked {
		return nil, ErrPageInUse
	}

	e.lock++
	c.lruTouch(e)

	return e.data, nil
}

func (c *FileCache) LoadAndLockForWrite(name string, pageIndex uint64) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return nil, err
	}

	e, err := c.lookupOrRead(f, pageIndex)
	if err != nil {
		return nil, err
	}

	if e.lock != unlocked {
		return nil, ErrPageInUse
	}

	e.lock = writeLocked
	c.lruTouch(e)

	return e.data, nil
}

func (c *FileCache) AllocateAndLockForWrite(name string, pageIndex uint64) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return nil, err
	}

	if pageIndex >= f.filledUpTo {
		f.filledUpTo = pageIndex + 1

		if err := f.osFile.Truncate(int64(f.filledUpTo) * int64(f.pageSize)); err != nil {
			return nil, fmt.Errorf("pagecache: grow %q: %w", name, err)
		}
	}

	key := pageKey{name, pageIndex}
	e, ok := c.entries[key]
	if !ok {
		e = &pageEntry{key: key, data: make([]byte, f.pageSize)}
		c.insertEntry(e)
	} else if e.lock != unlocked {
		return nil, ErrPageInUse
	} else {
		for i := range e.data {
			e.data[i] = 0
		}
	}

	e.lock = writeLocked
	e.dirty = true
	c.lruTouch(e)

	log.Debug("allocated page", "file", name, "page", pageIndex)

	return e.data, nil
}

func (c *FileCache) GetAndLockForWrite(name string, pageIndex uint64) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.file(name); err != nil {
		return nil, err
	}

	e, ok := c.entries[pageKey{name, pageIndex}]
	if !ok {
		return nil, nil
	}

	if e.lock != unlocked {
		return nil, ErrPageInUse
	}

	e.lock = writeLocked
	c.lruTouch(e)

	return e.data, nil
}

func (c *FileCache) entry(name string, pageIndex uint64) (*pageEntry, error) {
	e, ok := c.entries[pageKey{name, pageIndex}]
	if !ok {
		return nil, ErrPageNotFound
	}
	return e, nil
}

func (c *FileCache) ReleaseReadLock(name string, pageIndex uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, err := c.entry(name, pageIndex)
	if err != nil {
		return err
	}

	if e.lock <= unlocked {
		return ErrNotLocked
	}

	e.lock--
	c.evictIfNeeded()

	return nil
}

func (c *FileCache) ReleaseWriteLock(name string, pageIndex uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, err := c.entry(name, pageIndex)
	if err != nil {
		return err
	}

	if e.lock != writeLocked {
		return ErrNotLocked
	}

	e.lock = unlocked
	e.dirty = true
	c.evictIfNeeded()

	return nil
}

func (c *FileCache) ClearDirtyFlag(name string, pageIndex uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, err := c.entry(name, pageIndex)
	if err != nil {
		return err
	}

	e.dirty = false
	c.evictIfNeeded()

	return nil
}

func (c *FileCache) ClearExternalManagementFlag(name string, pageIndex uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, err := c.entry(name, pageIndex)
	if err != nil {
		return err
	}

	e.external = false
	c.evictIfNeeded()

	return nil
}

func (c *FileCache) FlushData(name string, pageIndex uint64, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return err
	}

	if pageIndex >= f.filledUpTo {
		f.filledUpTo = pageIndex + 1
		if err := f.osFile.Truncate(int64(f.filledUpTo) * int64(f.pageSize)); err != nil {
			return fmt.Errorf("pagecache: grow %q: %w", name, err)
		}
	}

	if _, err := f.osFile.WriteAt(data, int64(pageIndex)*int64(f.pageSize)); err != nil {
		return fmt.Errorf("pagecache: flush %q page %d: %w", name, pageIndex, err)
	}

	if e, ok := c.entries[pageKey{name, pageIndex}]; ok {
		e.dirty = false
	}

	return nil
}

func (c *FileCache) FlushFile(name string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return err
	}

	for key, e := range c.entries {
		if key.name != name || !e.dirty {
			continue
		}

		if _, err := f.osFile.WriteAt(e.data, int64(key.page)*int64(f.pageSize)); err != nil {
			return fmt.Errorf("pagecache: flush %q page %d: %w", name, key.page, err)
		}

		e.dirty = false
	}

	return f.osFile.Sync()
}

func (c *FileCache) TruncateFile(name string, pageCount uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return err
	}

	if err := f.osFile.Truncate(int64(pageCount) * int64(f.pageSize)); err != nil {
		return fmt.Errorf("pagecache: truncate %q: %w", name, err)
	}

	f.filledUpTo = pageCount

	for key := range c.entries {
		if key.name == name && key.page >= pageCount {
			e := c.entries[key]
			c.lruRemove(e)
			delete(c.entries, key)
		}
	}

	return nil
}

func (c *FileCache) DeleteFile(name string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, ok := c.files[name]
	if !ok {
		return ErrFileNotOpen
	}

	f.osFile.Close()
	delete(c.files, name)

	for key := range c.entries {
		if key.name == name {
			e := c.entries[key]
			c.lruRemove(e)
			delete(c.entries, key)
		}
	}

	return os.Remove(c.path(name))
}

func (c *FileCache) CloseFile(name string) error {
	c.mutex.Lock()
	f, ok := c.files[name]
	c.mutex.Unlock()

	if !ok {
		return ErrFileNotOpen
	}

	if err := c.FlushFile(name); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key := range c.entries {
		if key.name == name {
			e := c.entries[key]
			c.lruRemove(e)
			delete(c.entries, key)
		}
	}

	delete(c.files, name)

	return f.osFile.Close()
}

func (c *FileCache) GetFilledUpTo(name string) (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	f, err := c.file(name)
	if err != nil {
		return 0, err
	}

	return f.filledUpTo, nil
}

func (c *FileCache) CacheHit(name string, pageIndex uint64, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.file(name); err != nil {
		return err
	}

	key := pageKey{name, pageIndex}

	e, ok := c.entries[key]
	if !ok {
		e = &pageEntry{key: key, data: data}
		c.insertEntry(e)
	} else {
		e.data = data
	}

	e.external = true
	c.lruTouch(e)

	return nil
}
