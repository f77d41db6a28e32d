// hibp-buildfilter is the C9 driver: build a sharded binary-fuse filter
// from a corpus. Flag shape follows app/hibp_build_filter.cpp (-i/--input,
// -o/--output, -l/--limit, -f/--force). The corpus is scanned once; since
// it is sorted by full digest, the truncated 64-bit key's top-kbits prefix
// only ever increases, so shards are handed to shardedfilter.Writer in the
// strictly ascending order it requires without a separate sort pass.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
	"github.com/opencoff/go-hibp/shardedfilter"
)

var (
	input  string
	output string
	limit  int64
	force  bool
	kbits  uint
	width  int
	source string
)

func main() {
	usage := fmt.Sprintf("%s -i input.bin -o output.filter [options]", os.Args[0])

	flag.StringVarP(&input, "input", "i", "", "The corpus the filter is built from.")
	flag.StringVarP(&output, "output", "o", "", "The sharded filter file to write.")
	flag.Int64VarP(&limit, "limit", "l", -1, "Maximum number of records to include (default: all).")
	flag.BoolVarP(&force, "force", "f", false, "Overwrite an existing output file.")
	flag.UintVar(&kbits, "kbits", 8, "log2 of the number of filter shards (default k=8).")
	flag.IntVar(&width, "width", 8, "Fingerprint width in bits: 8 or 16.")
	flag.StringVar(&source, "source", "sha1", "Corpus kind to read keys from: sha1 or sha1t64.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-buildfilter - build a sharded binary-fuse filter\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if input == "" || output == "" {
		cliutil.Dief("expected -i/--input and -o/--output\nUsage: %s", usage)
	}
	if !force {
		if _, err := os.Stat(output); err == nil {
			cliutil.Dief("%s already exists. Use -f/--force to overwrite.", output)
		}
	}

	var w shardedfilter.Width
	switch width {
	case 8:
		w = shardedfilter.Width8
	case 16:
		w = shardedfilter.Width16
	default:
		cliutil.Dief("--width must be 8 or 16, got %d", width)
	}

	var err error
	switch source {
	case "sha1":
		err = build(input, output, kbits, w, limit, record.SHA1Codec, func(v record.SHA1) uint64 { return v.Truncate64() })
	case "sha1t64":
		err = build(input, output, kbits, w, limit, record.SHA1T64Codec, func(v record.SHA1T64) uint64 { return v.Key() })
	default:
		cliutil.Dief("--source must be sha1 or sha1t64, got %q", source)
		return
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func build[T any](input, output string, kbits uint, w shardedfilter.Width, limit int64, codec record.Codec[T], key func(T) uint64) error {
	r, err := flatfile.Open(input, codec)
	if err != nil {
		return err
	}
	defer r.Close()

	n := r.Len()
	if limit >= 0 && limit < n {
		n = limit
	}

	sw, err := shardedfilter.Create(output, kbits, w)
	if err != nil {
		return err
	}
	defer sw.Close()

	shardBits := kbits
	next := uint32(0)
	var keys []uint64

	// flushTo emits every shard from next up to (but not including) upto,
	// in the strictly sequential order AddKeys requires. A shard the corpus
	// has no keys for is passed as an empty key set, which AddKeys rejects
	// (a filter cannot be built over no keys), so such a gap ends the build
	// with an error.
	flushTo := func(upto uint32) error {
		for ; next < upto; next++ {
			if err := sw.AddKeys(next, keys); err != nil {
				return err
			}
			keys = keys[:0]
		}
		return nil
	}

	for pos := int64(0); pos < n; pos++ {
		v, err := r.At(pos)
		if err != nil {
			return err
		}
		k := key(v)
		shard := uint32(k >> (64 - shardBits))

		if shard != next {
			if err := flushTo(shard); err != nil {
				return err
			}
		}
		keys = append(keys, k)
	}
	return flushTo(uint32(1) << shardBits)
}
