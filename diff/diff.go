// diff.go -- produce an edit script between two sorted corpora of the same
// record kind, old and new, as a stream of `I:` (insert) and `U:` (update)
// lines. Grounded on src/diffutils.cpp's run_diff: walk both corpora in
// lockstep with a mismatch scan, and reason about the single record where
// they first disagree.
//
// Corpora only grow and counts only increase, so a record present in OLD
// but absent from NEW is impossible in valid input; run_diff treats that
// as fatal rather than silently producing a deletion.
package diff

import (
	"fmt"
	"io"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
)

// ErrDeletionImplied is fatal: OLD is not a subset of NEW.
var ErrDeletionImplied = fmt.Errorf("diff: new corpus is missing a record present in old corpus (implied deletion)")

// ErrNewShorter is fatal: NEW has fewer records than OLD at the point of
// first disagreement, which can only happen if records were deleted.
var ErrNewShorter = fmt.Errorf("diff: new corpus is shorter than old corpus")

// Op is one edit-script operation. Pos is the OLD-corpus index the edit
// applies at (diffutils.cpp's diff_iter_old - db_old.begin()), not the
// NEW-corpus index -- a tail insert always reports oldN, the constant
// end-of-OLD position, for every record appended after OLD is exhausted.
type Op[T any] struct {
	Insert bool // false => Update
	Pos    int64
	Rec    T
}

// Run walks oldPath and newPath in lockstep and calls emit for every
// insert/update found, in ascending NEW-corpus order (though each Op's Pos
// is an OLD-corpus index; see Op). count extracts the occurrence count
// (digest equality alone isn't enough: a record whose count changed is an
// update, not a no-op).
func Run[T any](oldPath, newPath string, codec record.Codec[T], count func(T) int32, emit func(Op[T]) error) error {
	oldR, err := flatfile.Open(oldPath, codec)
	if err != nil {
		return err
	}
	defer oldR.Close()

	newR, err := flatfile.Open(newPath, codec)
	if err != nil {
		return err
	}
	defer newR.Close()

	oldPos, newPos := int64(0), int64(0)
	oldN, newN := oldR.Len(), newR.Len()

	deepEqual := func(a, b T) (bool, error) {
		return codec.Compare(a, b) == 0 && count(a) == count(b), nil
	}

	for {
		mOld, mNew, err := mismatch(oldR, newR, oldPos, newPos, oldN, newN, codec, count)
		if err != nil {
			return err
		}

		if mOld == oldN {
			// OLD exhausted: every remaining NEW record is an insert at the
			// (constant) end of OLD, matching diffutils.cpp's
			// diff_iter_old - db_old.begin() for a tail insert.
			for p := mNew; p < newN; p++ {
				v, err := newR.At(p)
				if err != nil {
					return err
				}
				if err := emit(Op[T]{Insert: true, Pos: oldN, Rec: v}); err != nil {
					return err
				}
			}
			return nil
		}
		if mNew == newN {
			return ErrNewShorter
		}

		oldV, err := oldR.At(mOld)
		if err != nil {
			return err
		}
		newV, err := newR.At(mNew)
		if err != nil {
			return err
		}

		if mOld+1 < oldN {
			nextOld, err := oldR.At(mOld + 1)
			if err != nil {
				return err
			}
			if eq, _ := deepEqual(nextOld, newV); eq {
				return ErrDeletionImplied
			}
		}

		if mNew+1 < newN {
			nextNew, err := newR.At(mNew + 1)
			if err != nil {
				return err
			}
			if eq, _ := deepEqual(oldV, nextNew); eq {
				if err := emit(Op[T]{Insert: true, Pos: mOld, Rec: newV}); err != nil {
					return err
				}
				oldPos, newPos = mOld, mNew+1
				continue
			}
		}

		if codec.Compare(oldV, newV) != 0 {
			return ErrDeletionImplied
		}

		if err := emit(Op[T]{Insert: false, Pos: mOld, Rec: newV}); err != nil {
			return err
		}
		oldPos, newPos = mOld+1, mNew+1
	}
}

// mismatch finds the first position, scanning both corpora in parallel
// from (oldFrom, newFrom), where the records differ in digest or count.
// Mirrors std::mismatch with a deep-equality predicate.
func mismatch[T any](oldR, newR *flatfile.Reader[T], oldFrom, newFrom, oldN, newN int64, codec record.Codec[T], count func(T) int32) (int64, int64, error) {
	o, n := oldFrom, newFrom
	for o < oldN && n < newN {
		ov, err := oldR.At(o)
		if err != nil {
			return 0, 0, err
		}
		nv, err := newR.At(n)
		if err != nil {
			return 0, 0, err
		}
		if codec.Compare(ov, nv) != 0 || count(ov) != count(nv) {
			break
		}
		o++
		n++
	}
	return o, n, nil
}

// FormatOp renders an edit-script op as the canonical `I:idx8hex:record`
// or `U:idx8hex:record` line (without trailing newline).
func FormatOp[T any](op Op[T], format func(T) string) string {
	kind := "U"
	if op.Insert {
		kind = "I"
	}
	return fmt.Sprintf("%s:%08X:%s", kind, op.Pos, format(op.Rec))
}

// WriteTo runs Run and writes each op as a line to w, in the canonical
// text format consumed by downstream tooling.
func WriteTo[T any](w io.Writer, oldPath, newPath string, codec record.Codec[T], count func(T) int32, format func(T) string) error {
	return Run(oldPath, newPath, codec, count, func(op Op[T]) error {
		_, err := fmt.Fprintln(w, FormatOp(op, format))
		return err
	})
}
