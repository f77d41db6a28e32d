package flatfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/go-hibp/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpus(t *testing.T, recs []record.SHA1) string {
	t.Helper()
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "corpus.bin")
	w, err := Create(path, record.SHA1Codec)
	require.NoError(err)
	for _, r := range recs {
		require.NoError(w.Append(r))
	}
	require.NoError(w.Close())
	return path
}

func mustSHA1(t *testing.T, hex string) record.SHA1 {
	t.Helper()
	r, err := record.ParseSHA1(hex)
	require.NoError(t, err)
	return r
}

func TestReaderRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	recs := []record.SHA1{
		mustSHA1(t, "000000000000000000000000000000000000000A:1"),
		mustSHA1(t, "000000000000000000000000000000000000000B:2"),
		mustSHA1(t, "000000000000000000000000000000000000000C:3"),
	}
	path := writeCorpus(t, recs)

	r, err := Open(path, record.SHA1Codec)
	require.NoError(err)
	defer r.Close()

	assert.EqualValues(3, r.Len())
	for i, want := range recs {
		got, err := r.At(int64(i))
		require.NoError(err)
		assert.Equal(want, got)
	}
}

func TestReaderWindowRefill(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	n := defaultWindow*2 + 17
	recs := make([]record.SHA1, n)
	for i := 0; i < n; i++ {
		recs[i].Count = int32(i)
		recs[i].Hash[19] = byte(i)
		recs[i].Hash[18] = byte(i >> 8)
	}
	path := writeCorpus(t, recs)

	r, err := Open(path, record.SHA1Codec)
	require.NoError(err)
	defer r.Close()

	// force several window refills by jumping around
	for _, pos := range []int64{0, int64(n - 1), int64(defaultWindow), 5, int64(defaultWindow * 2)} {
		got, err := r.At(pos)
		require.NoError(err)
		assert.Equal(int32(pos), got.Count)
	}
}

func TestReaderOutOfRange(t *testing.T) {
	require := require.New(t)

	path := writeCorpus(t, []record.SHA1{mustSHA1(t, "000000000000000000000000000000000000000A:1")})
	r, err := Open(path, record.SHA1Codec)
	require.NoError(err)
	defer r.Close()

	_, err = r.At(-1)
	require.ErrorIs(err, ErrOutOfRange)

	_, err = r.At(1)
	require.ErrorIs(err, ErrOutOfRange)
}

func TestReaderFormatError(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := Open(path, record.SHA1Codec)
	require.ErrorIs(err, ErrFormat)
}

func TestSearch(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	recs := []record.SHA1{
		mustSHA1(t, "000000000000000000000000000000000000000A:1"),
		mustSHA1(t, "000000000000000000000000000000000000000B:2"),
		mustSHA1(t, "000000000000000000000000000000000000000D:3"),
	}
	path := writeCorpus(t, recs)

	r, err := Open(path, record.SHA1Codec)
	require.NoError(err)
	defer r.Close()

	target := mustSHA1(t, "000000000000000000000000000000000000000B:0")
	pos, found, err := r.Search(func(v record.SHA1) int {
		return record.SHA1Codec.Compare(target, v)
	})
	require.NoError(err)
	assert.True(found)
	assert.EqualValues(1, pos)

	miss := mustSHA1(t, "000000000000000000000000000000000000000C:0")
	pos, found, err = r.Search(func(v record.SHA1) int {
		return record.SHA1Codec.Compare(miss, v)
	})
	require.NoError(err)
	assert.False(found)
	assert.EqualValues(2, pos)
}
