package shardedfilter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysFor(shard uint32, kbits uint, n int) []uint64 {
	keys := make([]uint64, n)
	base := uint64(shard) << (64 - kbits)
	for i := range keys {
		// keep within this shard's prefix range: vary the low bits only.
		keys[i] = base | (uint64(i)*0x9E3779B1+1)&((uint64(1)<<(64-kbits))-1)
	}
	return keys
}

func TestBuildAndQuerySmallShardedFilter(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	const kbits = 3 // 8 shards, small enough for a fast test
	path := filepath.Join(t.TempDir(), "shards.bin")

	w, err := Create(path, kbits, Width8)
	require.NoError(err)

	allKeys := make(map[uint32][]uint64)
	for p := uint32(0); p < 8; p++ {
		keys := keysFor(p, kbits, 500)
		require.NoError(w.AddKeys(p, keys))
		allKeys[p] = keys
	}
	require.NoError(w.Close())

	r, err := Open(path, kbits, Width8)
	require.NoError(err)
	defer r.Close()

	for p, keys := range allKeys {
		for _, k := range keys {
			ok, err := r.Contains(k)
			require.NoError(err)
			assert.True(ok, "shard %d key %x should be contained", p, k)
		}
	}
}

func TestShardOrderEnforced(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "shards.bin")
	w, err := Create(path, 2, Width8)
	require.NoError(err)

	err = w.AddKeys(1, keysFor(1, 2, 100))
	require.ErrorIs(err, ErrShardOrder)
}

func TestShardDuplicateRejected(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "shards.bin")
	w, err := Create(path, 2, Width8)
	require.NoError(err)

	require.NoError(w.AddKeys(0, keysFor(0, 2, 100)))

	w2, err := Create(path, 2, Width8)
	require.NoError(err)
	err = w2.AddKeys(0, keysFor(0, 2, 100))
	require.ErrorIs(err, ErrShardDuplicate)
}

func TestCapacityExhausted(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "shards.bin")
	w, err := Create(path, 1, Width8) // capacity 2
	require.NoError(err)

	require.NoError(w.AddKeys(0, keysFor(0, 1, 50)))
	require.NoError(w.AddKeys(1, keysFor(1, 1, 50)))

	err = w.AddKeys(2, keysFor(0, 1, 50))
	require.ErrorIs(err, ErrCapacity)
}

func TestMissingShard(t *testing.T) {
	require := require.New(t)

	const kbits = 2
	path := filepath.Join(t.TempDir(), "shards.bin")
	w, err := Create(path, kbits, Width8)
	require.NoError(err)
	require.NoError(w.AddKeys(0, keysFor(0, kbits, 100)))
	require.NoError(w.Close())

	r, err := Open(path, kbits, Width8)
	require.NoError(err)
	defer r.Close()

	// shard 1 was never populated
	key := uint64(1) << (64 - kbits)
	_, err = r.Contains(key)
	require.ErrorIs(err, ErrMissingShard)
}
