// hibp-queryfilter is the C9 driver: check one key's membership in a
// sharded binary-fuse filter. Flag shape follows app/hibp_query_filter.cpp
// (positional filter_filename/plain-text-password, --hash).
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/pwhash"
	"github.com/opencoff/go-hibp/record"
	"github.com/opencoff/go-hibp/shardedfilter"
)

var (
	useHash bool
	kbits   uint
	width   int
)

func main() {
	usage := fmt.Sprintf("%s [options] filter_filename needle", os.Args[0])

	flag.BoolVar(&useHash, "hash", false, "needle is a hex sha1t64 digest rather than a plaintext password.")
	flag.UintVar(&kbits, "kbits", 8, "log2 of the number of filter shards the file was built with.")
	flag.IntVar(&width, "width", 8, "Fingerprint width the file was built with: 8 or 16.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-queryfilter - check one key's membership in a sharded filter\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		cliutil.Dief("expected filter_filename and needle\nUsage: %s", usage)
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

	if err := run(args[0], args[1], w); err != nil {
		cliutil.Die(err)
	}
}

func run(filterFile, needle string, w shardedfilter.Width) error {
	var key uint64
	if useHash {
		v, err := record.ParseSHA1T64(needle)
		if err != nil {
			return fmt.Errorf("hibp-queryfilter: parsing needle: %w", err)
		}
		key = v.Key()
	} else {
		key = pwhash.SHA1Of(needle).Truncate64()
	}

	fmt.Printf("needle = %016X\n", key)

	r, err := shardedfilter.Open(filterFile, kbits, w)
	if err != nil {
		return err
	}
	defer r.Close()

	found, err := r.Contains(key)
	if err != nil {
		return err
	}
	if found {
		fmt.Println("FOUND")
	} else {
		fmt.Println("NOT FOUND")
	}
	return nil
}
