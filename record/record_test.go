package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSHA1(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	r, err := ParseSHA1("000000005AD76BD555C1D6D771DE417A4B87E4B4:12")
	require.NoError(err)
	assert.Equal(int32(12), r.Count)
	assert.Equal("000000005AD76BD555C1D6D771DE417A4B87E4B4:12", r.String())

	r2, err := ParseSHA1("000000005AD76BD555C1D6D771DE417A4B87E4B4")
	require.NoError(err)
	assert.Equal(Sentinel, r2.Count)
}

func TestParseSHA1Malformed(t *testing.T) {
	require := require.New(t)

	_, err := ParseSHA1("too-short")
	require.ErrorIs(err, ErrMalformed)

	_, err = ParseSHA1("ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ")
	require.ErrorIs(err, ErrMalformed)

	_, err = ParseSHA1("000000005AD76BD555C1D6D771DE417A4B87E4B4X12")
	require.ErrorIs(err, ErrMalformed)
}

func TestParseNTLM(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, err := ParseNTLM("32ED87BDB5FDC5E9CBA88547376818D4:7")
	require.NoError(err)
	assert.Equal(int32(7), r.Count)
}

func TestParseSHA1T64(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, err := ParseSHA1T64("000000005AD76BD5:3")
	require.NoError(err)
	assert.Equal(int32(3), r.Count)
}

func TestCompareSHA1Ordering(t *testing.T) {
	assert := assert.New(t)

	a, _ := ParseSHA1("000000000000000000000000000000000000000A")
	b, _ := ParseSHA1("000000000000000000000000000000000000000B")
	c, _ := ParseSHA1("000000000000000000000000000000000000000A")

	assert.Equal(-1, compareSHA1(a, b))
	assert.Equal(1, compareSHA1(b, a))
	assert.Equal(0, compareSHA1(a, c))
}

func TestCompareMatchesByteWise(t *testing.T) {
	assert := assert.New(t)

	digests := []string{
		"000000000000000000000000000000000000000A",
		"0000000000000000000000000000000000000F00",
		"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF",
		"8000000000000000000000000000000000000000",
	}
	for i := range digests {
		for j := range digests {
			if len(digests[i]) != 40 || len(digests[j]) != 40 {
				continue
			}
			a, erra := ParseSHA1(digests[i])
			b, errb := ParseSHA1(digests[j])
			if erra != nil || errb != nil {
				continue
			}
			want := byteWiseCompare(a.Hash[:], b.Hash[:])
			got := compareSHA1(a, b)
			assert.Equal(want, got, "mismatch comparing %s vs %s", digests[i], digests[j])
		}
	}
}

func byteWiseCompare(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func TestCodecRoundTrip(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, err := ParseSHA1("000000005AD76BD555C1D6D771DE417A4B87E4B4:99")
	require.NoError(err)

	buf := make([]byte, SHA1Codec.Size)
	SHA1Codec.Encode(r, buf)
	got := SHA1Codec.Decode(buf)
	assert.Equal(r, got)
}

func TestTruncate64(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	r, err := ParseSHA1("000000005AD76BD555C1D6D771DE417A4B87E4B4:1")
	require.NoError(err)
	assert.Equal(uint64(0x000000005AD76BD5), r.Truncate64())
}

func TestPrefixOf(t *testing.T) {
	assert := assert.New(t)
	r, _ := ParseSHA1("ABCDEF0000000000000000000000000000000000")
	assert.Equal(uint32(0xABC), prefixOf(r.Hash[:], 12))
}
