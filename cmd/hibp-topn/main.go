// hibp-topn is the C6 driver: reduce a corpus to its N highest-count
// records. Flag shape follows app/hibp_topn.cpp (-N/--topn, -o/--output,
// --stdout, -f/--force), adapted to write straight to a file via topn.Reduce
// rather than an in-memory stream (the output-to-stdout mode isn't
// meaningful for a re-sorted binary corpus, so it is dropped in favour of
// always requiring -o).
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
	"github.com/opencoff/go-hibp/topn"
)

var (
	ntlm   bool
	output string
	topN   int
	force  bool
)

func main() {
	usage := fmt.Sprintf("%s [options] -o output.bin db_filename", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Reduce an NTLM corpus rather than sha1.")
	flag.StringVarP(&output, "output", "o", "", "The file the top-N corpus will be written to.")
	flag.IntVarP(&topN, "topn", "N", 50_000_000, "Number of highest-count records to keep.")
	flag.BoolVarP(&force, "force", "f", false, "Overwrite an existing output file.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-topn - reduce a corpus to its N most common records\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || output == "" {
		cliutil.Dief("expected a db_filename and -o/--output\nUsage: %s", usage)
	}
	if !force {
		if _, err := os.Stat(output); err == nil {
			cliutil.Dief("%s already exists. Use -f/--force to overwrite.", output)
		}
	}

	var err error
	if ntlm {
		err = topn.Reduce(args[0], output, record.NTLMCodec, topN, countOfNTLM, compareNTLM)
	} else {
		err = topn.Reduce(args[0], output, record.SHA1Codec, topN, countOfSHA1, compareSHA1)
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func countOfSHA1(v record.SHA1) int32 { return v.Count }
func countOfNTLM(v record.NTLM) int32 { return v.Count }
func compareSHA1(a, b record.SHA1) int { return record.SHA1Codec.Compare(a, b) }
func compareNTLM(a, b record.NTLM) int { return record.NTLMCodec.Compare(a, b) }
