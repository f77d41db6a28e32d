package toc

import (
	"path/filepath"
	"testing"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefix4(v record.SHA1, bits uint) uint32 {
	h := uint32(v.Hash[0])<<24 | uint32(v.Hash[1])<<16
	return h >> (32 - bits)
}

func writeDenseCorpus(t *testing.T, bits uint) string {
	t.Helper()
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "corpus.bin")
	w, err := flatfile.Create(path, record.SHA1Codec)
	require.NoError(err)

	entries := 1 << bits
	for p := 0; p < entries; p++ {
		var rec record.SHA1
		h := p << (16 - bits)
		rec.Hash[0] = byte(h >> 8)
		rec.Hash[1] = byte(h)
		rec.Count = int32(p)
		require.NoError(w.Append(rec))
	}
	require.NoError(w.Close())
	return path
}

func TestBuildAndSearch(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	const bits = 4
	path := writeDenseCorpus(t, bits)

	idx, err := Open(path, record.SHA1Codec, bits, prefix4)
	require.NoError(err)
	assert.Equal(1<<bits, idx.Entries())

	start, end := idx.Span(5, 1<<bits)
	assert.EqualValues(5, start)
	assert.EqualValues(6, end)
}

func TestLoadUsesCachedToc(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	const bits = 3
	path := writeDenseCorpus(t, bits)

	idx1, err := Open(path, record.SHA1Codec, bits, prefix4)
	require.NoError(err)

	idx2, err := Open(path, record.SHA1Codec, bits, prefix4)
	require.NoError(err)

	assert.Equal(idx1.table, idx2.table)
}

func TestPartialCorpusShortensToc(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	const bits = 4
	path := filepath.Join(t.TempDir(), "partial.bin")
	w, err := flatfile.Create(path, record.SHA1Codec)
	require.NoError(err)

	// only populate prefixes 0..4 out of 16
	for p := 0; p <= 4; p++ {
		var rec record.SHA1
		h := p << (16 - bits)
		rec.Hash[0] = byte(h >> 8)
		rec.Hash[1] = byte(h)
		require.NoError(w.Append(rec))
	}
	require.NoError(w.Close())

	idx, err := Open(path, record.SHA1Codec, bits, prefix4)
	require.NoError(err)
	assert.Equal(5, idx.Entries())
}

func TestGapIsFatal(t *testing.T) {
	require := require.New(t)

	const bits = 4
	path := filepath.Join(t.TempDir(), "gappy.bin")
	w, err := flatfile.Create(path, record.SHA1Codec)
	require.NoError(err)

	// prefix 0 then jump to prefix 2, skipping prefix 1 entirely, but the
	// last record's prefix (2) is not 15, so the table still spans 0..2
	// inclusive and the missing prefix 1 must be detected as a gap.
	var r0, r2 record.SHA1
	r0.Hash[0], r0.Hash[1] = 0, 0
	r2.Hash[0], r2.Hash[1] = 2<<4, 0
	require.NoError(w.Append(r0))
	require.NoError(w.Append(r2))
	require.NoError(w.Close())

	_, err = Open(path, record.SHA1Codec, bits, prefix4)
	require.ErrorIs(err, ErrGap)
}
