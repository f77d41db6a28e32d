// hibp-search is the C2+C7 driver: look up a single needle, either a
// plaintext password (hashed locally, supplemented from app/hibp_search.cpp)
// or a hex digest (--hash, matching app/hibp_query_filter.cpp's --hash
// flag), by full binary search or, with --toc, a ToC-narrowed one.
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/pwhash"
	"github.com/opencoff/go-hibp/record"
	"github.com/opencoff/go-hibp/toc"
)

var (
	ntlm    bool
	useHash bool
	useToc  bool
	bits    uint
)

func main() {
	usage := fmt.Sprintf("%s [options] dbfile.bin needle", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Search the NTLM corpus rather than sha1.")
	flag.BoolVar(&useHash, "hash", false, "needle is a hex HASH[:COUNT] rather than a plaintext password.")
	flag.BoolVar(&useToc, "toc", false, "Narrow the search with a table-of-contents index first.")
	flag.UintVar(&bits, "bits", 20, "ToC bucket bits, only meaningful with --toc.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-search - look up one needle in a corpus\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		cliutil.Dief("expected dbfile and needle\nUsage: %s", usage)
	}
	dbfile, needle := args[0], args[1]

	var err error
	if ntlm {
		err = search(dbfile, needle, record.NTLMCodec, record.ParseNTLM, pwhash.NTLMOf)
	} else {
		err = search(dbfile, needle, record.SHA1Codec, record.ParseSHA1, pwhash.SHA1Of)
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func search[T any](dbfile, needle string, codec record.Codec[T], parseHash func(string) (T, error), hashOf func(string) T) error {
	var target T
	if useHash {
		v, err := parseHash(needle)
		if err != nil {
			return fmt.Errorf("hibp-search: parsing needle: %w", err)
		}
		target = v
	} else {
		target = hashOf(needle)
	}

	r, err := flatfile.Open(dbfile, codec)
	if err != nil {
		return err
	}
	defer r.Close()

	cmp := func(v T) int { return codec.Compare(target, v) }

	start := time.Now()
	var pos int64
	var found bool
	if useToc {
		idx, err := toc.Open(dbfile, codec, bits, codec.HexPrefix)
		if err != nil {
			return err
		}
		lo, hi := idx.Span(codec.HexPrefix(target, bits), r.Len())
		pos, found, err = r.SearchRange(lo, hi, cmp)
		if err != nil {
			return err
		}
	} else {
		pos, found, err = r.Search(cmp)
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("search took %.1fms\n", float64(elapsed.Microseconds())/1000.0)
	fmt.Printf("needle = %s\n", any(target).(interface{ String() string }).String())
	if found {
		v, err := r.At(pos)
		if err != nil {
			return err
		}
		fmt.Printf("found  = %s\n", any(v).(interface{ String() string }).String())
	} else {
		fmt.Println("not found")
	}
	return nil
}
