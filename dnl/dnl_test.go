package dnl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencoff/go-hibp/record"
)

// fixtureServer serves a canned body per 5-hex prefix, the "test mode" mock
// upstream from spec 4.3.4.
func fixtureServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Path[1:]
		body, ok := bodies[prefix]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
}

type sliceSink struct {
	recs []record.SHA1
}

func (s *sliceSink) Append(v record.SHA1) error {
	s.recs = append(s.recs, v)
	return nil
}

func TestRunFetchesInOrder(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	bodies := map[string]string{
		"00000": "00000000000000000000000000000000000:3\r\n",
		"00001": "11111111111111111111111111111111111:7\r\n",
		"00002": "22222222222222222222222222222222222:1\r\n",
	}
	srv := fixtureServer(t, bodies)
	defer srv.Close()

	cfg := DefaultConfig(srv.URL + "/")
	cfg.IndexLimit = 3
	cfg.ParallelMax = 2

	sink := &sliceSink{}
	err := Run(context.Background(), cfg, 0, sink, ParseSHA1Line)
	require.NoError(err)
	require.Len(sink.recs, 3)

	assert.Equal(int32(3), sink.recs[0].Count)
	assert.Equal(int32(7), sink.recs[1].Count)
	assert.Equal(int32(1), sink.recs[2].Count)
	assert.Equal(byte(0x00), sink.recs[0].Hash[2])
	assert.Equal(byte(0x11), sink.recs[1].Hash[2])
}

func TestRunPropagatesUpstreamFailure(t *testing.T) {
	require := require.New(t)

	srv := fixtureServer(t, map[string]string{
		"00000": "00000000000000000000000000000000000:1\r\n",
		// "00001" deliberately missing -> 404
	})
	defer srv.Close()

	cfg := DefaultConfig(srv.URL + "/")
	cfg.IndexLimit = 2
	cfg.MaxRetries = 1

	sink := &sliceSink{}
	err := Run(context.Background(), cfg, 0, sink, ParseSHA1Line)
	require.Error(err)
}

func TestRunHonoursCancellation(t *testing.T) {
	require := require.New(t)

	blocking := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocking
	}))
	defer srv.Close()
	defer close(blocking)

	cfg := DefaultConfig(srv.URL + "/")
	cfg.IndexLimit = 1
	cfg.MaxRetries = 1

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sink := &sliceSink{}
	err := Run(ctx, cfg, 0, sink, ParseSHA1Line)
	require.Error(err)
}

func TestSplitLines(t *testing.T) {
	assert := assert.New(t)
	lines := splitLines("a\r\nb\n\nc")
	assert.Equal([]string{"a", "b", "c"}, lines)
}

func TestLowSpeedAbort(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("00"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("000000000000000000000000000000000:1\r\n"))
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL + "/")
	cfg.IndexLimit = 1
	cfg.MaxRetries = 1
	cfg.LowSpeedBytes = 1_000_000
	cfg.LowSpeedWindow = 50 * time.Millisecond

	sink := &sliceSink{}
	err := Run(context.Background(), cfg, 0, sink, ParseSHA1Line)
	require.Error(err)
}

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)
	cfg := DefaultConfig("https://example.test/range/")
	assert.EqualValues(300, cfg.ParallelMax)
	assert.Equal(5, cfg.MaxRetries)
	assert.EqualValues(1<<20, cfg.IndexLimit)
}
