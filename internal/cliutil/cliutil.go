// Package cliutil holds the die/warn idiom shared by every cmd/hibp-*
// binary, adapted from the teacher's example/mphdb.go: a tiny wrapper that
// renders an error and exits non-zero, the same shape CLI11's exception
// catch-and-print does in the original C++ tools.
package cliutil

import (
	"errors"
	"fmt"
	"os"

	"github.com/opencoff/go-hibp/dnl"
)

// Warn prints "Error: <message>" to standard error, per spec.md's
// user-visible-behaviour contract (4.3.4/7). Unlike the teacher's own
// warn(), which prefixes os.Args[0], the spec fixes the literal "Error: "
// prefix across every tool.
func Warn(f string, v ...interface{}) {
	s := fmt.Sprintf(f, v...)
	if n := len(s); n == 0 || s[n-1] != '\n' {
		s += "\n"
	}
	fmt.Fprint(os.Stderr, "Error: "+s)
}

// Die renders err (specialising the ResumeImpossible hint the spec
// requires) and exits with status 1.
func Die(err error) {
	if errors.Is(err, dnl.ErrResumeImpossible) {
		Warn("%s (restart without --resume)", err)
	} else {
		Warn("%s", err)
	}
	os.Exit(1)
}

// Dief formats a message directly, for argument-validation failures that
// have no underlying error value.
func Dief(f string, v ...interface{}) {
	Warn(f, v...)
	os.Exit(1)
}
