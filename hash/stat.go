package hash

import (
	"fmt"
	"io"
)

/*
LevelStat reports the bookkeeping bucketStore keeps for one file level:
how many bucket pages are live, and whether that level's tombstone chain
is currently non-empty.
*/
type LevelStat struct {
	Level          int
	BucketsCount   uint64
	TombstoneChain bool
}

/*
Stats is a point-in-time snapshot of an Index's shape, grounded on the
source's own HTree.String() tree dump (htree.go) - a read-only summary
meant for an operator, not for driving further index operations.
*/
type Stats struct {
	Size          uint64
	MaxLevelDepth uint8
	NodeCount     int
	Levels        []LevelStat
}

/*
Stat returns a snapshot of idx's current size, directory shape and
per-level bucket bookkeeping.
*/
func (idx *Index[K, V]) Stat() Stats {
	tok := idx.lock.RLock()
	defer idx.lock.RUnlock(tok)

	nodeCount := 0
	for _, n := range idx.dir.nodes {
		if n != nil {
			nodeCount++
		}
	}

	levels := make([]LevelStat, len(idx.store.levels))
	for i, lv := range idx.store.levels {
		levels[i] = LevelStat{
			Level:          i,
			BucketsCount:   lv.bucketsCount,
			TombstoneChain: lv.tombstoneIndex != -1,
		}
	}

	return Stats{
		Size:          idx.size,
		MaxLevelDepth: idx.dir.maxLevelDepth,
		NodeCount:     nodeCount,
		Levels:        levels,
	}
}

/*
Dump walks the directory depth-first and writes a human-readable tree of
its nodes and the buckets they resolve to, mirroring the indentation
style of the source's own htreePage.String(). Bucket contents are not
read back from disk - only the pointer each slot holds - so Dump never
takes the write lock a live Lookup/Insert/Remove would contend with.
*/
func (idx *Index[K, V]) Dump(w io.Writer) error {
	tok := idx.lock.RLock()
	defer idx.lock.RUnlock(tok)

	return idx.dumpNode(w, 0, 0, 0)
}

func (idx *Index[K, V]) dumpNode(w io.Writer, nodeIndex int32, globalDepth uint8, indent int) error {
	n := idx.dir.nodes[nodeIndex]
	if n == nil {
		return &CorruptionError{Detail: "dump reached a tombstoned directory node"}
	}

	pad := func(extra int) {
		for i := 0; i < indent+extra; i++ {
			fmt.Fprint(w, "  ")
		}
	}

	pad(0)
	fmt.Fprintf(w, "node %d (globalDepth=%d localDepth=%d)\n", nodeIndex, globalDepth, n.localDepth)

	for slot, p := range n.slots {
		pad(1)
		if p.isChildRef() {
			fmt.Fprintf(w, "slot %d -> child node\n", slot)
			if err := idx.dumpNode(w, p.childNodeIndex(), globalDepth+n.localDepth, indent+2); err != nil {
				return err
			}
			continue
		}
		if p.isEmpty() {
			fmt.Fprintf(w, "slot %d -> (empty)\n", slot)
			continue
		}
		fmt.Fprintf(w, "slot %d -> bucket page=%d level=%d\n", slot, p.pageIndex(), p.fileLevel())
	}
	return nil
}
