/*
Package rwlock implements the reader-writer synchronization primitive
the operation engine (hash.Index) uses to gate lookups against inserts
and removes. It supports many concurrent readers, at most one
concurrent writer, and no writer-reader overlap.

Writers queue on an MCS-style linked list built with compare-and-swap on
a tail pointer: each writer spins on its predecessor's node until it is
released, then waits for the live reader count to drain to zero before
taking ownership. Readers observe the queue tail before incrementing the
shared reader count; if a writer is queued or active they park instead of
barging ahead of it, so a steady stream of readers cannot starve a
writer.

Go gives no portable way to ask "does the calling goroutine already hold
this lock" (no goroutine-local storage), so the source's implicit
thread-local holds counter is modeled explicitly here: Lock and RLock
return a token, and re-entrant acquisition is requested by passing the
token you already hold to LockNested/RLockNested instead of relying on
the runtime to recognize the caller.
*/
package rwlock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

type mcsNode struct {
	locked atomic.Bool
	next   atomic.Pointer[mcsNode]
}

/*
WriteToken is returned by Lock/LockNested and must be passed to Unlock.
Passing it to LockNested from the same goroutine re-enters the write
lock instead of deadlocking against yourself.
*/
type WriteToken struct {
	lock  *RWLock
	node  *mcsNode
	depth int
}

/*
ReadToken is returned by RLock/RLockNested and must be passed to
RUnlock.
*/
type ReadToken struct {
	lock   *RWLock
	nested bool // acquired while already holding the write lock: a no-op
}

/*
RWLock is a reader-writer lock with the contract described in the
package doc comment.
*/
type RWLock struct {
	tail atomic.Pointer[mcsNode]

	// holds is positive for each active reader, and goes negative in
	// single steps for each (possibly nested) writer hold - mirroring
	// the source's single thread-local "holds" counter with one atomic
	// word shared across goroutines instead of one per OS thread.
	holds atomic.Int64

	parkMu      sync.Mutex
	parkCond    *sync.Cond
	clock       clock.Clock
	spinBackoff time.Duration
}

/*
New creates an unlocked RWLock.
*/
func New() *RWLock {
	l := &RWLock{clock: clock.New(), spinBackoff: 50 * time.Microsecond}
	l.parkCond = sync.NewCond(&l.parkMu)
	return l
}

/*
park blocks the calling goroutine until the next Unlock/RUnlock call
broadcasts. Used both by readers waiting out a queued writer and by
writers waiting out a reader drain that the bounded spin gave up on.
*/
func (l *RWLock) park() {
	l.parkMu.Lock()
	l.parkCond.Wait()
	l.parkMu.Unlock()
}

func (l *RWLock) unparkAll() {
	l.parkMu.Lock()
	l.parkCond.Broadcast()
	l.parkMu.Unlock()
}

/*
Lock acquires the write lock, blocking until no reader and no other
writer holds it. The returned token must be passed to Unlock.
*/
func (l *RWLock) Lock() *WriteToken {
	node := &mcsNode{}
	node.locked.Store(true)

	prev := l.tail.Swap(node)
	if prev != nil {
		prev.next.Store(node)
		l.spinUntilClear(&node.locked)
	}

	// We are now at the head of the writer queue. Wait for every active
	// reader to drain before taking ownership.
	l.waitForReaderDrain()
	l.holds.Add(-1)

	return &WriteToken{lock: l, node: node, depth: 1}
}

/*
LockNested re-enters the write lock using a token the calling goroutine
already holds. It never blocks and never touches the MCS queue.
*/
func (l *RWLock) LockNested(tok *WriteToken) *WriteToken {
	if tok == nil || tok.lock != l {
		return l.Lock()
	}

	tok.depth++
	l.holds.Add(-1)

	return tok
}

/*
waitForReaderDrain bounded-spins on the reader count, falling back to a
park/broadcast cycle if readers are slow to leave - the parked wait is
woken by every RUnlock, not just the last one, so it re-checks the count
each time it wakes.
*/
func (l *RWLock) waitForReaderDrain() {
	const spinIterations = 256

	for i := 0; i < spinIterations; i++ {
		if l.holds.Load() == 0 {
			return
		}
		l.clock.Sleep(l.spinBackoff)
	}

	for l.holds.Load() != 0 {
		l.park()
	}
}

func (l *RWLock) spinUntilClear(flag *atomic.Bool) {
	const spinIterations = 256

	for i := 0; i < spinIterations; i++ {
		if !flag.Load() {
			return
		}
		l.clock.Sleep(l.spinBackoff)
	}

	for flag.Load() {
		l.park()
	}
}

/*
Unlock releases the write lock acquired by Lock/LockNested. Nested holds
only release the underlying lock once the outermost Unlock call has been
made.
*/
func (l *RWLock) Unlock(tok *WriteToken) {
	tok.depth--
	l.holds.Add(1)

	if tok.depth > 0 {
		return
	}

	node := tok.node

	if node.next.Load() == nil {
		if l.tail.CompareAndSwap(node, nil) {
			l.unparkAll()
			return
		}

		// A successor is mid-enqueue: wait for it to finish linking.
		for node.next.Load() == nil {
			l.clock.Sleep(l.spinBackoff)
		}
	}

	node.next.Load().locked.Store(false)
	l.unparkAll()
}

/*
RLock acquires a shared read lock, blocking while a writer holds or is
queued for the lock. The returned token must be passed to RUnlock.
*/
func (l *RWLock) RLock() *ReadToken {
	for {
		if l.tail.Load() == nil {
			l.holds.Add(1)

			if l.tail.Load() == nil {
				return &ReadToken{lock: l}
			}

			// A writer slipped in after our increment: fairness says we
			// back off rather than hold the reader count up against it.
			l.holds.Add(-1)
		}

		l.park()
	}
}

/*
RLockNested acquires a read lock using a write token the calling
goroutine already holds. This is a no-op: a writer already excludes
every other reader and writer, so no additional bookkeeping is needed.
*/
func (l *RWLock) RLockNested(_ *WriteToken) *ReadToken {
	return &ReadToken{lock: l, nested: true}
}

/*
RUnlock releases a read lock acquired by RLock/RLockNested.
*/
func (l *RWLock) RUnlock(tok *ReadToken) {
	if tok.nested {
		return
	}

	l.holds.Add(-1)
	l.unparkAll()
}
