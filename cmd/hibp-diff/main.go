// hibp-diff is the C5 driver: print an edit script between two corpora of
// the same record kind. Flag shape and output format follow
// app/hibp_diff.cpp (two positional files, --ntlm, `I:`/`U:` lines).
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/diff"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
)

var ntlm bool

func main() {
	usage := fmt.Sprintf("%s [options] db_file_old db_file_new", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Diff NTLM corpora rather than sha1.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-diff - print an edit script between two corpora\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		cliutil.Dief("expected db_file_old and db_file_new\nUsage: %s", usage)
	}

	var err error
	if ntlm {
		err = diff.WriteTo(os.Stdout, args[0], args[1], record.NTLMCodec, countOfNTLM, formatNTLM)
	} else {
		err = diff.WriteTo(os.Stdout, args[0], args[1], record.SHA1Codec, countOfSHA1, formatSHA1)
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func countOfSHA1(v record.SHA1) int32 { return v.Count }
func countOfNTLM(v record.NTLM) int32 { return v.Count }
func formatSHA1(v record.SHA1) string { return v.String() }
func formatNTLM(v record.NTLM) string { return v.String() }
