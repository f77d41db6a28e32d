// hibp-toc is the C7 driver: build (or rebuild) and inspect a corpus's
// table-of-contents sidecar. Not present as a standalone tool in
// original_source/ (the original always builds the ToC inline inside its
// server process); split out here because SPEC_FULL's ToC is a
// general-purpose sidecar any tool can consume, and operators need a way to
// force a rebuild or just check staleness without running the server.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
	"github.com/opencoff/go-hibp/toc"
)

var (
	ntlm  bool
	bits  uint
	check bool
)

func main() {
	usage := fmt.Sprintf("%s [options] dbfile.bin", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Index an NTLM corpus rather than sha1.")
	flag.UintVar(&bits, "bits", 20, "Number of prefix bits the ToC indexes.")
	flag.BoolVar(&check, "check", false, "Report whether the ToC sidecar is stale, without rebuilding it.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-toc - build, rebuild, or inspect a corpus's table of contents\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		cliutil.Dief("expected exactly one dbfile\nUsage: %s", usage)
	}
	dbfile := args[0]

	if check {
		stale, err := toc.Age(dbfile, bits)
		if err != nil {
			cliutil.Die(err)
		}
		if stale {
			fmt.Printf("%s: stale (rebuild needed)\n", toc.FileName(dbfile, bits))
		} else {
			fmt.Printf("%s: up to date\n", toc.FileName(dbfile, bits))
		}
		return
	}

	var err error
	if ntlm {
		err = build(dbfile, record.NTLMCodec)
	} else {
		err = build(dbfile, record.SHA1Codec)
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func build[T any](dbfile string, codec record.Codec[T]) error {
	idx, err := toc.Open(dbfile, codec, bits, codec.HexPrefix)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d entries\n", toc.FileName(dbfile, bits), idx.Entries())
	return nil
}
