package dnl

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// lowSpeedReader wraps a response body and cancels the request's context if
// fewer than thresholdBytes arrive within any window-length interval,
// implementing 4.3.2's "body slower than 1000 B/s for 5 seconds" abort
// rule. Grounded on the same shape as a download progress watchdog: a
// ticker sampling a byte counter, cancelling on stall.
type lowSpeedReader struct {
	io.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// newLowSpeedReader watches ctx (the per-attempt context whose cancel func
// is also attached to the in-flight request) and calls cancel if progress
// stalls below the threshold; cancelling the request context is what
// actually unblocks a stuck Read, same as an http.Client timeout would.
func newLowSpeedReader(ctx context.Context, cancel context.CancelFunc, r io.Reader, thresholdBytes int64, window time.Duration) *lowSpeedReader {
	var total int64

	lr := &lowSpeedReader{cancel: cancel, done: make(chan struct{})}
	lr.Reader = countingReader{r: r, n: &total}

	if thresholdBytes > 0 && window > 0 {
		go lr.watch(ctx, &total, thresholdBytes, window)
	} else {
		close(lr.done)
	}

	return lr
}

func (lr *lowSpeedReader) watch(ctx context.Context, total *int64, thresholdBytes int64, window time.Duration) {
	defer close(lr.done)
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := atomic.LoadInt64(total)
			if now-last < thresholdBytes {
				lr.cancel()
				return
			}
			last = now
		}
	}
}

func (lr *lowSpeedReader) stop() {
	lr.cancel()
	<-lr.done
}

// countingReader tallies bytes read so the watchdog can sample progress
// without racing the Read call itself.
type countingReader struct {
	r io.Reader
	n *int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		atomic.AddInt64(c.n, int64(n))
	}
	return n, err
}
