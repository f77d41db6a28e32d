// Package corpusio holds the small pieces of ambient plumbing every
// cmd/hibp-* tool shares: naming a corpus's hash kind, rendering a
// progress bar, formatting sizes for humans, and writing records atomically.
// Grounded on the teacher's humansize.go (kept in spirit, generalised to
// dustin/go-humanize) and on vbauerster/mpb/v8, which the pack's
// compactindexsized/build*_test.go and dolthub-dolt's cli package both
// import for exactly this kind of long-running-build progress reporting.
package corpusio

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	atomicfile "github.com/natefinch/atomic"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/opencoff/go-hibp/record"
)

// Kind names the three corpora this module understands.
type Kind string

const (
	SHA1    Kind = "sha1"
	NTLM    Kind = "ntlm"
	SHA1T64 Kind = "sha1t64"
)

// ParseKind maps a --kind flag value to a Kind, defaulting to an error for
// anything else so cmd/ binaries can fail fast on a typo'd flag.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case SHA1, NTLM, SHA1T64:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("corpusio: unknown hash kind %q (want sha1, ntlm, or sha1t64)", s)
	}
}

// RecordSize returns the on-disk record width for a kind, without needing
// the caller to thread around a record.Codec[T] of unknown T.
func (k Kind) RecordSize() int {
	switch k {
	case SHA1:
		return record.SHA1Codec.Size
	case NTLM:
		return record.NTLMCodec.Size
	default:
		return record.SHA1T64Codec.Size
	}
}

// Progress wraps an mpb progress container for a single long-running pass
// over a known total (a build, a diff, a download). The counters are
// printed as bare integers ("current / total"); FormatCount is the
// comma-separated form for summary lines.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
}

// NewProgress starts a progress bar titled name over total records,
// rendered to stderr so stdout stays clean for piped output.
func NewProgress(name string, total int64) *Progress {
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(48), mpb.WithRefreshRate(200*time.Millisecond))
	bar := p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageSpeed(0, " % .1f rec/s"),
		),
	)
	return &Progress{container: p, bar: bar}
}

// Add advances the bar by n records.
func (pr *Progress) Add(n int) {
	pr.bar.IncrBy(n)
}

// SetCurrent moves the bar to an absolute position, for callers (like the
// downloader) whose natural progress signal is "highest prefix reached"
// rather than a monotonically incrementing record count.
func (pr *Progress) SetCurrent(n int64) {
	pr.bar.SetCurrent(n)
}

// Done ends the bar (stopping it at its current position if it has not
// reached its total) and waits for the renderer to flush.
func (pr *Progress) Done() {
	pr.bar.Abort(false)
	pr.container.Wait()
}

// FormatBytes renders a byte count the way every cmd/hibp-* tool reports
// corpus sizes in its summary line.
func FormatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

// FormatCount renders a record count with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// WriteAtomicRecords encodes items and replaces outfile's contents in one
// atomic rename, mirroring the original's get_output_stream pattern (never
// leave a half-written corpus behind a crashed or interrupted tool).
func WriteAtomicRecords[T any](outfile string, codec record.Codec[T], items []T) error {
	buf := make([]byte, 0, len(items)*codec.Size)
	rec := make([]byte, codec.Size)
	for _, v := range items {
		codec.Encode(v, rec)
		buf = append(buf, rec...)
	}
	return atomicfile.WriteFile(outfile, bytes.NewReader(buf))
}
