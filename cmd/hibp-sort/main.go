// hibp-sort assembles a loose dump into the sorted binary corpus the rest
// of the pipeline assumes. Supplemented from app/hibp_sort.cpp (read a
// whole database into memory, sort, write back out) and app/hibp_convert.cpp
// (text HASH[:COUNT] lines -> binary records), combined into one tool since
// both are one-shot, whole-file operations over the same record type.
//
// Unlike hibp_sort.cpp, which sorted by descending count (a different
// operation, now covered by hibp-topn), this tool sorts by ascending
// digest -- the ordering invariant (I1) every other tool in this module
// requires of a corpus file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/opencoff/go-hibp/corpusio"
	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/internal/cliutil"
	"github.com/opencoff/go-hibp/record"
)

var (
	ntlm   bool
	text   bool
	output string
	force  bool
)

func main() {
	usage := fmt.Sprintf("%s [options] -o output.bin input", os.Args[0])

	flag.BoolVarP(&ntlm, "ntlm", "n", false, "Treat records as NTLM rather than sha1.")
	flag.BoolVarP(&text, "text", "t", true, "Input is loose HASH[:COUNT] text lines rather than unsorted binary records.")
	flag.StringVarP(&output, "output", "o", "", "The sorted binary corpus to write.")
	flag.BoolVarP(&force, "force", "f", false, "Overwrite an existing output file.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hibp-sort - assemble a loose dump into a sorted binary corpus\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || output == "" {
		cliutil.Dief("expected exactly one input path and -o/--output\nUsage: %s", usage)
	}
	if !force {
		if _, err := os.Stat(output); err == nil {
			cliutil.Dief("%s already exists. Use -f/--force to overwrite.", output)
		}
	}

	var err error
	if ntlm {
		err = run(args[0], record.NTLMCodec, record.ParseNTLM)
	} else {
		err = run(args[0], record.SHA1Codec, record.ParseSHA1)
	}
	if err != nil {
		cliutil.Die(err)
	}
}

func run[T any](input string, codec record.Codec[T], parse func(string) (T, error)) error {
	var items []T
	var err error
	if text {
		items, err = readText(input, parse)
	} else {
		items, err = readBinary(input, codec)
	}
	if err != nil {
		return err
	}

	sort.Slice(items, func(i, j int) bool { return codec.Compare(items[i], items[j]) < 0 })

	return corpusio.WriteAtomicRecords(output, codec, items)
}

func readText[T any](path string, parse func(string) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		v, err := parse(line)
		if err != nil {
			return nil, fmt.Errorf("hibp-sort: %w", err)
		}
		items = append(items, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func readBinary[T any](path string, codec record.Codec[T]) ([]T, error) {
	r, err := flatfile.Open(path, codec)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	items := make([]T, 0, r.Len())
	for pos := int64(0); pos < r.Len(); pos++ {
		v, err := r.At(pos)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}
