// hibp-download drives the C3/C4 concurrent downloader: fetch the upstream
// range-API shards in parallel and write the sorted corpus to disk, with
// resume support. Flag shape follows the teacher's example/mphdb.go
// (package-level flag targets, flag.Usage closure) generalised from
// app/hibp_download.cpp, which took no CLI arguments at all.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/corpusio"
	"github.com/opencoff/go-hibp/dnl"
	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
)

const (
	sha1BaseURL = "https://api.pwnedpasswords.com/range/"
	ntlmBaseURL = "https://api.pwnedpasswords.com/range/ntlm/"
)

var (
	ntlm     bool
	resume   bool
	baseURL  string
	parallel int64
	retries  int
	limit    uint32
	progress bool
)

func main() {
	usage := fmt.Sprintf("%s [options] corpus.bin", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Fetch the NTLM corpus rather than sha1.")
	flag.BoolVarP(&resume, "resume", "r", false, "Resume an interrupted download from the end of an existing corpus file.")
	flag.StringVar(&baseURL, "base-url", "", "Override the upstream range-API base URL (test mode).")
	flag.Int64VarP(&parallel, "parallel", "P", 300, "Maximum in-flight requests.")
	flag.IntVarP(&retries, "retries", "R", 5, "Retry attempts per shard before giving up.")
	flag.Uint32VarP(&limit, "limit", "l", 1<<20, "Exclusive upper bound on the prefix range (default: full range).")
	flag.BoolVarP(&progress, "progress", "p", false, "Emit a repainting progress line to standard error.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-download - fetch the HIBP range API in parallel\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		cliutil.Dief("expected exactly one corpus path\nUsage: %s", usage)
	}
	dbfile := args[0]

	if err := run(dbfile); err != nil {
		cliutil.Die(err)
	}
}

func run(dbfile string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if ntlm {
		return runKind(ctx, dbfile, record.NTLMCodec, ntlmBaseURL, dnl.ParseNTLMLine)
	}
	return runKind(ctx, dbfile, record.SHA1Codec, sha1BaseURL, dnl.ParseSHA1Line)
}

func runKind[T any](ctx context.Context, dbfile string, codec record.Codec[T], defaultBase string, parse func(string) (T, error)) error {
	cfg := dnl.DefaultConfig(defaultBase)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.ParallelMax = parallel
	cfg.MaxRetries = retries
	cfg.IndexLimit = limit

	start := uint32(0)
	if resume {
		next, err := dnl.Resume(ctx, cfg.HTTPClient, cfg.BaseURL, dbfile, codec, parse)
		if err != nil {
			return err
		}
		start = next
	}

	if start >= cfg.IndexLimit {
		// 4.8/I8: corpus is already complete through the requested limit.
		return nil
	}

	var w *flatfile.Writer[T]
	var err error
	if resume {
		w, err = flatfile.OpenAppend(dbfile, codec)
	} else {
		w, err = flatfile.Create(dbfile, codec)
	}
	if err != nil {
		return err
	}
	defer w.Close()

	if !progress {
		return dnl.Run(ctx, cfg, start, w, parse)
	}

	bar := corpusio.NewProgress("download", int64(cfg.IndexLimit))
	defer bar.Done()
	sink := progressSink[T]{Writer: w, bar: bar, codec: codec}
	return dnl.Run(ctx, cfg, start, sink, parse)
}

// progressSink wraps a *flatfile.Writer[T] to drive the bar's position from
// the highest prefix reached so far, matching the spec's "percentage
// complete" framing for the downloader's status line (4.3.4/§6).
type progressSink[T any] struct {
	*flatfile.Writer[T]
	bar   *corpusio.Progress
	codec record.Codec[T]
}

func (p progressSink[T]) Append(v T) error {
	if err := p.Writer.Append(v); err != nil {
		return err
	}
	p.bar.SetCurrent(int64(p.codec.HexPrefix(v, prefixBits)) + 1)
	return nil
}

const prefixBits = 20
