package hash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	atomicfile "github.com/natefinch/atomic"
)

/*
stateStore persists an index's metadata and directory tree state into a
single checkpoint file (indexName + ".state"), written atomically via
github.com/natefinch/atomic, since nothing in this module ever updates
one without the other - both are rewritten wholesale on every
Checkpoint/Close, never incrementally.

The persisted directory layout mirrors directory.go's in-memory shape
rather than a fixed-size-per-node format: each node is written with an
explicit slot count (2^localDepth, so anywhere from 2 to
2^maxLevelDepth entries)
followed by exactly that many pointer slots, not a canonical
fixed-width region padded out with duplicates. See directory.go's doc
comment for why nodes are sized this way in memory.
*/
type stateStore struct {
	path string
}

func newStateStore(indexName string) *stateStore {
	return &stateStore{path: indexName + ".state"}
}

/*
loadedState is what load() reconstructs: the directory tree, the live
key count, and per-level bucket-store bookkeeping.
*/
type loadedState struct {
	dir    *directory
	size   uint64
	levels []levelMeta
}

const stateMagic = "EXTHASH1"

/*
save persists dir, size and levels to the checkpoint file, replacing it
atomically (temp file + rename) so a crash mid-write never leaves a
torn file behind.
*/
func (s *stateStore) save(dir *directory, size uint64, levels []levelMeta) error {
	var buf bytes.Buffer

	buf.WriteString(stateMagic)
	writeUint64(&buf, size)

	writeUint32(&buf, uint32(len(levels)))
	for _, lv := range levels {
		writeUint64(&buf, lv.bucketsCount)
		writeInt64(&buf, lv.tombstoneIndex)
	}

	writeUint8(&buf, dir.maxLevelDepth)
	writeInt32(&buf, dir.tombstoneHead)
	writeUint32(&buf, uint32(len(dir.nodes)))

	for _, n := range dir.nodes {
		if n == nil {
			writeUint8(&buf, 0) // tombstoned marker
			continue
		}
		writeUint8(&buf, 1)
		writeUint8(&buf, n.localDepth)
		writeUint8(&buf, n.maxLeftChildDepth)
		writeUint8(&buf, n.maxRightChildDepth)
		writeUint32(&buf, uint32(len(n.slots)))
		for _, p := range n.slots {
			writeUint64(&buf, uint64(p))
		}
	}
	for i, n := range dir.nodes {
		if n == nil {
			writeInt32(&buf, dir.tombstoneNext[i])
		}
	}

	return atomicfile.WriteFile(s.path, bytes.NewReader(buf.Bytes()))
}

/*
load reconstructs a checkpoint written by save. maxLevelDepth is only
used to sanity-check the stored directory matches the Options the index
was opened with.
*/
func (s *stateStore) load(maxLevelDepth uint8) (loadedState, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return loadedState{}, err
	}
	defer f.Close()

	r := &reader{f: f}

	magic := make([]byte, len(stateMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return loadedState{}, wrapErr("load", err)
	}
	if string(magic) != stateMagic {
		return loadedState{}, &CorruptionError{Detail: "state file has an unrecognized magic header"}
	}

	var st loadedState
	st.size = r.uint64()

	levelCount := r.uint32()
	st.levels = make([]levelMeta, levelCount)
	for i := range st.levels {
		st.levels[i].bucketsCount = r.uint64()
		st.levels[i].tombstoneIndex = r.int64()
	}

	storedDepth := r.uint8()
	if storedDepth != maxLevelDepth {
		return loadedState{}, &ConfigurationError{Reason: fmt.Sprintf(
			"state file was written with maxLevelDepth=%d, opened with %d", storedDepth, maxLevelDepth)}
	}

	d := &directory{maxLevelDepth: storedDepth}
	d.tombstoneHead = r.int32()

	nodeCount := r.uint32()
	d.nodes = make([]*node, nodeCount)
	d.tombstoneNext = make([]int32, nodeCount)

	for i := range d.nodes {
		live := r.uint8()
		if live == 0 {
			continue
		}
		n := &node{}
		n.localDepth = r.uint8()
		n.maxLeftChildDepth = r.uint8()
		n.maxRightChildDepth = r.uint8()
		slotCount := r.uint32()
		n.slots = make([]pointer, slotCount)
		for j := range n.slots {
			n.slots[j] = pointer(r.uint64())
		}
		d.nodes[i] = n
	}
	for i := range d.nodes {
		if d.nodes[i] == nil {
			d.tombstoneNext[i] = r.int32()
		}
	}

	if r.err != nil {
		return loadedState{}, wrapErr("load", r.err)
	}
	st.dir = d
	return st, nil
}

// --- small fixed-width encode/decode helpers -------------------------------

func writeUint8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func writeUint32(buf *bytes.Buffer, v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); buf.Write(b[:]) }
func writeUint64(buf *bytes.Buffer, v uint64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); buf.Write(b[:]) }
func writeInt32(buf *bytes.Buffer, v int32)   { writeUint32(buf, uint32(v)) }
func writeInt64(buf *bytes.Buffer, v int64)   { writeUint64(buf, uint64(v)) }

type reader struct {
	f   *os.File
	err error
}

func (r *reader) read(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.f, b); err != nil {
		r.err = err
	}
	return b
}

func (r *reader) uint8() uint8   { return r.read(1)[0] }
func (r *reader) uint32() uint32 { return binary.BigEndian.Uint32(r.read(4)) }
func (r *reader) uint64() uint64 { return binary.BigEndian.Uint64(r.read(8)) }
func (r *reader) int32() int32   { return int32(r.uint32()) }
func (r *reader) int64() int64   { return int64(r.uint64()) }
