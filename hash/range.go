package hash

import (
	"bytes"
)

/*
Pair is a decoded key/value result from a range scan.
*/
type Pair[K any, V any] struct {
	Key   K
	Value V
}

/*
walk collects every entry reached by repeatedly stepping through the
directory in one direction starting from the bucket key resolves to,
applying startFilter only to the entries of that first bucket (to
implement each range method's own inclusive/exclusive boundary) and
taking every entry of every bucket visited after it. A bucket with zero
entries contributes nothing and the walk simply continues past it.
*/
func (idx *Index[K, V]) walk(key K, forward bool, startFilter func(e entry) bool) ([]Pair[K, V], error) {
	keyBytes := idx.encodeKey(key)
	h := idx.hashFn(keyBytes)

	tok := idx.lock.RLock()
	defer idx.lock.RUnlock(tok)

	path, ptr, err := idx.dir.resolve(h)
	if err != nil {
		return nil, wrapErr("walk", err)
	}
	if ptr.isEmpty() {
		return nil, nil
	}

	var out []Pair[K, V]
	nodeIndex, slotIndex := path.nodeIndex, path.slotIndex
	first := true

	for {
		var p pointer
		if forward {
			p = idx.dir.descendFirst(nodeIndex, slotIndex)
		} else {
			p = idx.dir.descendLast(nodeIndex, slotIndex)
		}

		if !p.isEmpty() {
			b, err := idx.sb.read(int(p.fileLevel()), p.pageIndex())
			if err != nil {
				return nil, wrapErr("walk", err)
			}
			entries := b.entries
			if !forward {
				// Bucket entries are stored ascending by key; walking
				// backward presents them descending, matching the
				// direction of the bucket-to-bucket walk itself.
				entries = reversedEntries(b.entries)
			}
			for _, e := range entries {
				if first && startFilter != nil && !startFilter(e) {
					continue
				}
				out = append(out, Pair[K, V]{
					Key:   idx.keyCodec.Decode(e.key),
					Value: idx.valCodec.Decode(e.value),
				})
			}
		}
		first = false

		var ok bool
		if forward {
			nodeIndex, slotIndex, ok = idx.dir.advance(nodeIndex, slotIndex)
		} else {
			nodeIndex, slotIndex, ok = idx.dir.retreat(nodeIndex, slotIndex)
		}
		if !ok {
			break
		}
	}

	return out, nil
}

func reversedEntries(entries []entry) []entry {
	out := make([]entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

/*
HigherEntries returns every entry strictly greater than key within its
bucket, followed by every entry of every bucket reached walking forward
through the directory.
*/
func (idx *Index[K, V]) HigherEntries(key K) ([]Pair[K, V], error) {
	keyBytes := idx.encodeKey(key)
	return idx.walk(key, true, func(e entry) bool {
		return bytes.Compare(e.key, keyBytes) > 0
	})
}

/*
CeilingEntries returns key's own entry if present, plus every entry
HigherEntries would.
*/
func (idx *Index[K, V]) CeilingEntries(key K) ([]Pair[K, V], error) {
	keyBytes := idx.encodeKey(key)
	return idx.walk(key, true, func(e entry) bool {
		return bytes.Compare(e.key, keyBytes) >= 0
	})
}

/*
LowerEntries returns every entry strictly less than key within its
bucket, followed by every entry of every bucket reached walking
backward through the directory.
*/
func (idx *Index[K, V]) LowerEntries(key K) ([]Pair[K, V], error) {
	keyBytes := idx.encodeKey(key)
	return idx.walk(key, false, func(e entry) bool {
		return bytes.Compare(e.key, keyBytes) < 0
	})
}

/*
FloorEntries returns key's own entry if present, plus every entry
LowerEntries would.
*/
func (idx *Index[K, V]) FloorEntries(key K) ([]Pair[K, V], error) {
	keyBytes := idx.encodeKey(key)
	return idx.walk(key, false, func(e entry) bool {
		return bytes.Compare(e.key, keyBytes) <= 0
	})
}
