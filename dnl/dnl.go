// Package dnl fetches the upstream HIBP range API in parallel and writes
// the responses to a flat-file corpus in strict ascending prefix order.
//
// Grounded on two execution contexts from include/dnl/queuemgt.hpp and
// include/dnl/requests.hpp: a requests side that keeps up to P_max GETs
// in flight and retries transient failures, and a writer side that holds
// completed shards in a min-heap keyed by prefix index until they can be
// appended in order. The concurrency idiom (bounded worker pool feeding a
// single writer goroutine over a channel, cancellation via context) follows
// the worker/collector shape in the APTlantis crates-mirror downloader and
// rockstar-0000-aistore's errgroup-based fan-out; retries wait with a
// quadratic backoff (200ms * attempt^2) plus jitter.
package dnl

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opencoff/go-hibp/record"
)

// Error kinds surfaced by this package. Callers use errors.Is.
var (
	ErrTransport      = errors.New("dnl: transport error")
	ErrRetryExhausted = errors.New("dnl: retry attempts exhausted")
)

// Config tunes the downloader. Zero value is not usable; see DefaultConfig.
type Config struct {
	// BaseURL is the range-API root; a 5-hex-digit prefix is appended
	// directly (no separator), e.g. BaseURL + "ABCDE". Pointing this at
	// an httptest.Server is how tests exercise "test mode" (spec 4.3.4)
	// without a real upstream.
	BaseURL string

	// ParallelMax bounds concurrent in-flight requests (P_max).
	ParallelMax int64

	// MaxRetries is the number of attempts per shard before the whole
	// run is cancelled (FailedFatal).
	MaxRetries int

	// LowSpeedBytes/LowSpeedWindow: a request whose body delivers fewer
	// than LowSpeedBytes within any LowSpeedWindow is aborted and
	// retried.
	LowSpeedBytes  int64
	LowSpeedWindow time.Duration

	// IndexLimit is the exclusive upper bound on the prefix space
	// (0x100000 for the full 5-hex-digit range).
	IndexLimit uint32

	// HTTPClient overrides the client used for requests. Nil selects a
	// client with HTTP/2 enabled via Transport.ForceAttemptHTTP2, the
	// same tuning used by the crates-mirror reference downloader.
	HTTPClient *http.Client
}

// DefaultConfig returns the spec's defaults: P_max=300, 5 retries, a
// 1000B/s-for-5s low speed threshold, full prefix range.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		ParallelMax:    300,
		MaxRetries:     5,
		LowSpeedBytes:  5 * 1000,
		LowSpeedWindow: 5 * time.Second,
		IndexLimit:     1 << 20,
	}
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Transport: &http.Transport{
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: int(c.ParallelMax),
		},
	}
}

// shardResult is one completed download, queued for the writer side.
type shardResult struct {
	prefix uint32
	lines  []string
}

// shardHeap is a min-heap of shardResult ordered by prefix, the writer
// context's "process heap" (4.3.1, queue 3).
type shardHeap []shardResult

func (h shardHeap) Len() int            { return len(h) }
func (h shardHeap) Less(i, j int) bool  { return h[i].prefix < h[j].prefix }
func (h shardHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *shardHeap) Push(x interface{}) { *h = append(*h, x.(shardResult)) }
func (h *shardHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Sink receives parsed records in strict ascending order, one shard at a
// time. *flatfile.Writer[T] satisfies this directly; cmd/hibp-download
// wraps it only to drive its progress bar.
type Sink[T any] interface {
	Append(v T) error
}

// Run fetches prefixes [start, cfg.IndexLimit) and feeds parsed records to
// sink in strict ascending prefix order, per 4.3.2's ordering guarantee.
// parse turns one response line (prefix hex + upstream suffix line,
// concatenated) into a record of type T.
func Run[T any](ctx context.Context, cfg Config, start uint32, sink Sink[T], parse func(line string) (T, error)) error {
	if cfg.ParallelMax <= 0 {
		cfg.ParallelMax = 300
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := cfg.client()
	sem := semaphore.NewWeighted(cfg.ParallelMax)

	results := make(chan shardResult)
	fatal := make(chan error, 1)

	go func() {
		defer close(results)
		var wg sync.WaitGroup
		for p := start; p < cfg.IndexLimit; p++ {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(prefix uint32) {
				defer sem.Release(1)
				defer wg.Done()
				lines, err := fetchShard(ctx, client, cfg, prefix)
				if err != nil {
					select {
					case fatal <- fmt.Errorf("dnl: prefix %05X: %w", prefix, err):
					default:
					}
					cancel()
					return
				}
				select {
				case results <- shardResult{prefix: prefix, lines: lines}:
				case <-ctx.Done():
				}
			}(p)
		}
		wg.Wait()
	}()

	h := &shardHeap{}
	next := start
	for next < cfg.IndexLimit {
		select {
		case err := <-fatal:
			return err
		case res, ok := <-results:
			if !ok {
				select {
				case err := <-fatal:
					return err
				default:
				}
				if next < cfg.IndexLimit {
					return fmt.Errorf("dnl: download cancelled before prefix %05X", next)
				}
				return nil
			}
			heap.Push(h, res)
			for h.Len() > 0 && (*h)[0].prefix == next {
				top := heap.Pop(h).(shardResult)
				for _, line := range top.lines {
					rec, err := parse(fmt.Sprintf("%05X%s", top.prefix, line))
					if err != nil {
						cancel()
						return fmt.Errorf("dnl: prefix %05X: %w", top.prefix, err)
					}
					if err := sink.Append(rec); err != nil {
						cancel()
						return fmt.Errorf("dnl: writing prefix %05X: %w", top.prefix, err)
					}
				}
				next++
			}
		case <-ctx.Done():
			select {
			case err := <-fatal:
				return err
			default:
			}
			return ctx.Err()
		}
	}
	return nil
}

// fetchShard GETs one shard with retry, returning its body split into
// lines (LF-split, CR stripped, empty lines dropped), per 4.3.2.
func fetchShard(ctx context.Context, client *http.Client, cfg Config, prefix uint32) ([]string, error) {
	url := fmt.Sprintf("%s%05X", cfg.BaseURL, prefix)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		lines, err := tryFetch(ctx, client, url, cfg.LowSpeedBytes, cfg.LowSpeedWindow)
		if err == nil {
			return lines, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt < cfg.MaxRetries {
			backoff := time.Duration(200*attempt*attempt) * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

func tryFetch(ctx context.Context, client *http.Client, url string, lowSpeedBytes int64, lowSpeedWindow time.Duration) ([]string, error) {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %s", ErrTransport, resp.Status)
	}

	guarded := newLowSpeedReader(attemptCtx, cancelAttempt, resp.Body, lowSpeedBytes, lowSpeedWindow)
	defer guarded.stop()

	body, err := io.ReadAll(guarded)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: low-speed abort", ErrTransport)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return splitLines(string(body)), nil
}

// splitLines implements 4.3.2's line parsing: split on LF, strip a trailing
// CR, drop empty lines.
func splitLines(body string) []string {
	raw := strings.Split(body, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseSHA1Line and friends adapt record.ParseXxx to dnl.Run's parse
// signature (prefix+suffix already concatenated by Run).
func ParseSHA1Line(line string) (record.SHA1, error)       { return record.ParseSHA1(line) }
func ParseNTLMLine(line string) (record.NTLM, error)       { return record.ParseNTLM(line) }
func ParseSHA1T64Line(line string) (record.SHA1T64, error) { return record.ParseSHA1T64(line) }
