package dnl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
)

func writeCorpusSHA1(t *testing.T, path string, recs []record.SHA1) {
	t.Helper()
	w, err := flatfile.Create(path, record.SHA1Codec)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())
}

// sha1Rec builds a deterministic digest: the top 20 bits (5 hex digits) hold
// shard and the remaining bits are filler, so prefixBits=20 equals the shard.
func sha1Rec(shard uint32, filler byte, count int32) record.SHA1 {
	var r record.SHA1
	r.Hash[0] = byte(shard >> 12)
	r.Hash[1] = byte(shard >> 4)
	r.Hash[2] = byte(shard<<4) | (filler >> 4)
	for i := 3; i < 20; i++ {
		r.Hash[i] = filler
	}
	r.Count = count
	return r
}

func TestResumeCompleteShardAdvances(t *testing.T) {
	require := require.New(t)

	recs := []record.SHA1{
		sha1Rec(0, 0xAA, 1),
		sha1Rec(1, 0xBB, 2),
	}
	path := filepath.Join(t.TempDir(), "corpus.sha1")
	writeCorpusSHA1(t, path, recs)

	hexOf := func(r record.SHA1) string { return r.String()[:40] }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shard := r.URL.Path[1:]
		if shard == "00001" {
			fmt.Fprintf(w, "%s:2\r\n", hexOf(recs[1])[5:])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	next, err := Resume(context.Background(), srv.Client(), srv.URL+"/", path, record.SHA1Codec, ParseSHA1Line)
	require.NoError(err)
	require.EqualValues(2, next)
}

func TestResumePartialShardTruncates(t *testing.T) {
	require := require.New(t)

	recs := []record.SHA1{
		sha1Rec(0, 0xAA, 1),
		sha1Rec(1, 0xBB, 2), // only the first line of shard 1 made it to disk
	}
	path := filepath.Join(t.TempDir(), "corpus.sha1")
	writeCorpusSHA1(t, path, recs)

	hexOf := func(r record.SHA1) string { return r.String()[:40] }
	shard1Second := sha1Rec(1, 0xCC, 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shard := r.URL.Path[1:]
		if shard == "00001" {
			// upstream shard 1 actually has two lines; only the first was written.
			fmt.Fprintf(w, "%s:2\r\n%s:3\r\n", hexOf(recs[1])[5:], hexOf(shard1Second)[5:])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	next, err := Resume(context.Background(), srv.Client(), srv.URL+"/", path, record.SHA1Codec, ParseSHA1Line)
	require.NoError(err)
	require.EqualValues(1, next)

	r, err := flatfile.Open(path, record.SHA1Codec)
	require.NoError(err)
	defer r.Close()
	require.EqualValues(1, r.Len())
}

func TestResumeImpossibleWhenShardChanged(t *testing.T) {
	require := require.New(t)

	recs := []record.SHA1{
		sha1Rec(0, 0xAA, 1),
		sha1Rec(1, 0xBB, 2),
	}
	path := filepath.Join(t.TempDir(), "corpus.sha1")
	writeCorpusSHA1(t, path, recs)

	unrelated := sha1Rec(1, 0xEE, 9)
	hexOf := func(r record.SHA1) string { return r.String()[:40] }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shard := r.URL.Path[1:]
		if shard == "00001" {
			fmt.Fprintf(w, "%s:9\r\n", hexOf(unrelated)[5:])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Resume(context.Background(), srv.Client(), srv.URL+"/", path, record.SHA1Codec, ParseSHA1Line)
	require.Error(err)
	require.True(errors.Is(err, ErrResumeImpossible))
}

func TestResumeMissingFileStartsAtZero(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "does-not-exist.sha1")
	next, err := Resume(context.Background(), http.DefaultClient, "https://example.test/range/", path, record.SHA1Codec, ParseSHA1Line)
	require.NoError(err)
	require.EqualValues(0, next)
}
