/*
Package hashfunc provides the hash function contract the directory tree
(hash.Index) routes on, plus a default implementation.

The structure routes on the high bits of the hash first (it consumes a
prefix, growing it one MAX_LEVEL_DEPTH-sized node at a time), so the
chosen function must distribute its output uniformly across the full
64-bit range, not just in its low bits. A reference implementation of
Austin Appleby's MurmurHash3 would need an explicit 64-bit finalizer on
top of the textbook 32-bit algorithm to meet that bar; xxhash64 already
provides a well-studied 64-bit avalanche and is the obvious off-the-shelf
choice, so Bytes and the typed helpers below wrap it instead of
hand-rolling a finalizer.
*/
package hashfunc

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

/*
Func maps a key of type K to a 64-bit hash, uniformly distributed over
the high bits.
*/
type Func[K any] func(key K) uint64

/*
Bytes hashes a byte slice with xxhash64.
*/
func Bytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

/*
String hashes a string with xxhash64, without a copy to []byte.
*/
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

/*
Uint64 hashes a uint64 key by running its big-endian encoding through
xxhash64, rather than using the key's bit pattern directly: a raw uint64
used as the top bits of a hash-prefix router would make every key that
differs only in its low bits collide in the first directory node.
*/
func Uint64(v uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}

/*
Int64 hashes an int64 key the same way as Uint64.
*/
func Int64(v int64) uint64 {
	return Uint64(uint64(v))
}

/*
Float64 hashes a float64 key the same way as Uint64.
*/
func Float64(v float64) uint64 {
	return Uint64(math.Float64bits(v))
}
