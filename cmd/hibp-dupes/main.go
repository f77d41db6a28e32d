// hibp-dupes is a supplemented repo-health check, from app/hibp_dupes.cpp:
// scan a corpus and report any adjacent pair that is out of order or an
// exact duplicate, directly exercising invariant I1 against a real file.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
)

var ntlm bool

func main() {
	usage := fmt.Sprintf("%s [options] db_filename", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Check an NTLM corpus rather than sha1.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-dupes - report out-of-order or duplicate records in a corpus\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		cliutil.Dief("expected exactly one db_filename\nUsage: %s", usage)
	}

	var bad int
	var err error
	if ntlm {
		bad, err = scan(args[0], record.NTLMCodec)
	} else {
		bad, err = scan(args[0], record.SHA1Codec)
	}
	if err != nil {
		cliutil.Die(err)
	}
	if bad > 0 {
		os.Exit(1)
	}
}

func scan[T any](dbfile string, codec record.Codec[T]) (int, error) {
	r, err := flatfile.Open(dbfile, codec)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := r.Len()
	if n == 0 {
		return 0, nil
	}

	bad := 0
	prev, err := r.At(0)
	if err != nil {
		return 0, err
	}
	for pos := int64(1); pos < n; pos++ {
		cur, err := r.At(pos)
		if err != nil {
			return 0, err
		}
		switch c := codec.Compare(prev, cur); {
		case c == 0:
			bad++
			fmt.Printf("%08X is a duplicate of the previous record: %s\n", pos, any(cur).(interface{ String() string }).String())
		case c > 0:
			bad++
			fmt.Printf("%08X is out of order after: %s\n", pos, any(prev).(interface{ String() string }).String())
		}
		prev = cur
	}
	return bad, nil
}
