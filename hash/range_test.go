package hash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krotik/exthash/config"
)

// keysOf extracts the Key field from a slice of Pairs for compact
// assertions against an expected ordering.
func keysOf(pairs []Pair[uint64, string]) []uint64 {
	out := make([]uint64, len(pairs))
	for i, p := range pairs {
		out[i] = p.Key
	}
	return out
}

// TestRangeScansAgainstIdentityHash uses an identity hash so hash-prefix
// order coincides with key order, letting the four range scans be
// checked against a plain sorted key sequence instead of having to
// reason about directory layout.
func TestRangeScansAgainstIdentityHash(t *testing.T) {
	idx := newTestIndex(t, config.Defaults())
	idx.SetHashFunc(identityHash)

	var want []uint64
	for i := uint64(10); i < 100; i += 10 {
		require.NoError(t, idx.Insert(i, "v"))
		want = append(want, i)
	}
	// want = [10, 20, 30, ..., 90]

	higher, err := idx.HigherEntries(30)
	require.NoError(t, err)
	require.Equal(t, []uint64{40, 50, 60, 70, 80, 90}, keysOf(higher))

	ceiling, err := idx.CeilingEntries(30)
	require.NoError(t, err)
	require.Equal(t, []uint64{30, 40, 50, 60, 70, 80, 90}, keysOf(ceiling))

	// CeilingEntries on a key that falls between two present keys behaves
	// like HigherEntries, since there is no exact match to include.
	ceilingBetween, err := idx.CeilingEntries(35)
	require.NoError(t, err)
	require.Equal(t, []uint64{40, 50, 60, 70, 80, 90}, keysOf(ceilingBetween))

	lower, err := idx.LowerEntries(30)
	require.NoError(t, err)
	require.Equal(t, []uint64{20, 10}, keysOf(lower))

	floor, err := idx.FloorEntries(30)
	require.NoError(t, err)
	require.Equal(t, []uint64{30, 20, 10}, keysOf(floor))

	floorBetween, err := idx.FloorEntries(35)
	require.NoError(t, err)
	require.Equal(t, []uint64{30, 20, 10}, keysOf(floorBetween))

	// Scanning from below/above the entire populated range visits
	// everything, in the appropriate direction.
	all, err := idx.HigherEntries(0)
	require.NoError(t, err)
	require.Equal(t, want, keysOf(all))

	none, err := idx.LowerEntries(0)
	require.NoError(t, err)
	require.Empty(t, none)
}

// TestRangeScansSkipEmptyBuckets forces a split (so the directory has
// more than one bucket to walk across) and confirms a forward scan still
// recovers every surviving entry in order, including across the empty
// root buckets that follow the split one.
func TestRangeScansSkipEmptyBuckets(t *testing.T) {
	idx := newTestIndex(t, smallOptions())
	idx.SetHashFunc(identityHash)

	groupA := []uint64{0, 1, 2, 3}
	groupB := []uint64{bit61, bit61 + 1, bit61 + 2, bit61 + 3, bit61 + 4}

	// 10-byte values: nine entries fit a 256 byte page, the tenth splits it.
	for _, k := range groupA {
		require.NoError(t, idx.Insert(k, "abcdefghij"))
	}
	for _, k := range groupB {
		require.NoError(t, idx.Insert(k, "abcdefghij"))
	}
	require.NoError(t, idx.Insert(bit61+5, "abcdefghij"))

	results, err := idx.HigherEntries(0)
	require.NoError(t, err)

	want := []uint64{1, 2, 3, bit61, bit61 + 1, bit61 + 2, bit61 + 3, bit61 + 4, bit61 + 5}
	require.Equal(t, want, keysOf(results))
}
