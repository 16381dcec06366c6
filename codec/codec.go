/*
Package codec defines the binary serializer contract the hash index uses
to turn typed keys and values into the byte strings it stores in
buckets, plus a handful of ready-made codecs for the types a key-value
store is normally asked to index.

A Codec never allocates more than it has to: Size tells the bucket how
many bytes a value needs before it writes it, so the bucket can do a
single bounds check instead of growing and retrying.
*/
package codec

import (
	"bytes"
	"encoding/binary"
	"math"
)

/*
Codec describes how a typed value is measured, written to and read back
from a byte slice, and how two values of the same type compare for the
purpose of range scans. Package hash calls only Size/Encode/Decode: it
orders entries, and bounds its range scans, by bytes.Compare on the
encoded form, which every codec here keeps consistent with Compare.
*/
type Codec[T any] interface {

	/*
		Size returns the number of bytes Encode will write for v.
	*/
	Size(v T) int

	/*
		FixedLen returns a fixed encoded length and true if every value of
		this type encodes to the same number of bytes. Package hash's bucket
		layout does not consult it: every entry stores explicit key and
		value length prefixes.
	*/
	FixedLen() (int, bool)

	/*
		Encode writes v into buf, which is guaranteed to be at least Size(v)
		bytes long.
	*/
	Encode(v T, buf []byte)

	/*
		Decode reads a value of type T from the front of buf.
	*/
	Decode(buf []byte) T

	/*
		Compare returns a negative number if a orders before b, zero if they
		are equal, and a positive number otherwise.
	*/
	Compare(a, b T) int
}

/*
Uint64Codec is a fixed-length, big-endian codec for uint64 keys. Big-endian
encoding is used deliberately so that byte-wise comparison of the encoded
form agrees with numeric Compare order, which lets a future on-disk
merge/compaction tool sort raw bucket bytes without decoding them.
*/
type Uint64Codec struct{}

func (Uint64Codec) Size(uint64) int            { return 8 }
func (Uint64Codec) FixedLen() (int, bool)      { return 8, true }
func (Uint64Codec) Encode(v uint64, buf []byte) { binary.BigEndian.PutUint64(buf, v) }
func (Uint64Codec) Decode(buf []byte) uint64   { return binary.BigEndian.Uint64(buf) }
func (Uint64Codec) Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

/*
Int64Codec is a fixed-length codec for int64 keys. The sign bit is
flipped on encode/decode so the big-endian byte order still agrees with
numeric order across negative and positive values.
*/
type Int64Codec struct{}

func (Int64Codec) Size(int64) int       { return 8 }
func (Int64Codec) FixedLen() (int, bool) { return 8, true }
func (Int64Codec) Encode(v int64, buf []byte) {
	binary.BigEndian.PutUint64(buf, uint64(v)^(1<<63))
}
func (Int64Codec) Decode(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf) ^ (1 << 63))
}
func (Int64Codec) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

/*
Float64Codec is a fixed-length codec for float64 keys, ordering by IEEE
754 numeric value (NaN excluded from any ordering guarantee, matching
float64's own incomparability).
*/
type Float64Codec struct{}

func (Float64Codec) Size(float64) int        { return 8 }
func (Float64Codec) FixedLen() (int, bool)   { return 8, true }
func (Float64Codec) Encode(v float64, buf []byte) {
	bits := math.Float64bits(v)
	if v < 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	binary.BigEndian.PutUint64(buf, bits)
}
func (Float64Codec) Decode(buf []byte) float64 {
	bits := binary.BigEndian.Uint64(buf)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
func (Float64Codec) Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

/*
BytesCodec is a variable-length codec for []byte keys/values, compared
lexicographically. The encoded form has no length prefix: the bucket
layout in package hash stores entry lengths itself, so Decode is always
handed a slice of exactly Size(v) bytes.
*/
type BytesCodec struct{}

func (BytesCodec) Size(v []byte) int          { return len(v) }
func (BytesCodec) FixedLen() (int, bool)      { return 0, false }
func (BytesCodec) Encode(v []byte, buf []byte) { copy(buf, v) }
func (BytesCodec) Decode(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}
func (BytesCodec) Compare(a, b []byte) int { return bytes.Compare(a, b) }

/*
StringCodec is a variable-length codec for string keys/values, compared
lexicographically by byte value.
*/
type StringCodec struct{}

func (StringCodec) Size(v string) int           { return len(v) }
func (StringCodec) FixedLen() (int, bool)       { return 0, false }
func (StringCodec) Encode(v string, buf []byte) { copy(buf, v) }
func (StringCodec) Decode(buf []byte) string    { return string(buf) }
func (StringCodec) Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
