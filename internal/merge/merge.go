// Package merge implements the odd-sided merge value used to represent
// conflicts as first-class data instead of as failures.
//
// A [Merge] conceptually holds a₀ − b₁ + a₁ − b₂ + … : an alternating
// sequence of "positive" (added) and "negative" (removed) terms, always
// one more positive term than negative. A single-sided Merge is a
// resolved value; a wider one is a conflict. Every tree- and
// ref-producing operation in this engine builds and combines values
// through this type rather than failing when inputs disagree, which is
// what lets conflicts survive further rewrites (rebases, merges,
// squashes) instead of blocking them.
package merge

import (
	"fmt"

	"go.abhg.dev/opvc/internal/must"
)

// Merge is an odd-sided merge of values of type T: len(adds) is always
// exactly len(removes)+1.
//
// The zero value is not valid; use [Resolved] or [New].
type Merge[T any] struct {
	adds    []T
	removes []T
}

// Resolved returns a single-sided Merge: a resolved value with no
// conflict.
func Resolved[T any](v T) Merge[T] {
	return Merge[T]{adds: []T{v}}
}

// New builds a Merge from explicit added and removed terms. It panics
// if len(adds) != len(removes)+1, since that would violate the type's
// central invariant (number of sides is always odd, one more add than
// remove).
func New[T any](adds, removes []T) Merge[T] {
	must.BeEqualf(len(adds), len(removes)+1,
		"merge: %d adds and %d removes is not a valid odd-sided merge", len(adds), len(removes))
	return Merge[T]{adds: adds, removes: removes}
}

// NumSides reports the number of sides (terms) in the merge. It is
// always odd and always at least 1.
func (m Merge[T]) NumSides() int {
	return len(m.adds) + len(m.removes)
}

// IsResolved reports whether the merge has exactly one side.
func (m Merge[T]) IsResolved() bool {
	return len(m.adds) == 1 && len(m.removes) == 0
}

// Added returns the positive terms of the merge, in order. For a
// resolved value, this is the single value it holds.
func (m Merge[T]) Added() []T {
	return m.adds
}

// Removed returns the negative terms of the merge, in order. A
// resolved value has no removed terms.
func (m Merge[T]) Removed() []T {
	return m.removes
}

// Values returns the terms interleaved as a₀, b₁, a₁, b₂, …, in the
// alternating positive/negative order the algebra is defined over.
func (m Merge[T]) Values() []T {
	out := make([]T, 0, m.NumSides())
	for i, a := range m.adds {
		out = append(out, a)
		if i < len(m.removes) {
			out = append(out, m.removes[i])
		}
	}
	return out
}

// Resolve returns the single value of a resolved merge, and true. If
// the merge is conflicted (more than one side), it returns the zero
// value and false, mirroring the "into_resolved" contract from the
// algebra this type implements: callers are expected to check ok
// rather than treating a conflict as an error.
func (m Merge[T]) Resolve() (v T, ok bool) {
	if !m.IsResolved() {
		return v, false
	}
	return m.adds[0], true
}

// PadTo pads the merge to n sides by repeating (absent, absent) pairs
// until it reaches that width. n must be odd and at least
// m.NumSides(); padding to a narrower or even width panics, since
// either would violate the odd-sides invariant it exists to preserve.
func (m Merge[T]) PadTo(n int, absent T) Merge[T] {
	if n%2 == 0 {
		panic(fmt.Sprintf("merge: cannot pad to even width %d", n))
	}
	if n < m.NumSides() {
		panic(fmt.Sprintf("merge: cannot pad %d sides down to %d", m.NumSides(), n))
	}

	wantRemoves := (n - 1) / 2
	adds := append([]T(nil), m.adds...)
	removes := append([]T(nil), m.removes...)
	for len(removes) < wantRemoves {
		removes = append(removes, absent)
		adds = append(adds, absent)
	}
	return Merge[T]{adds: adds, removes: removes}
}

// Map applies f to every term of the merge, preserving shape, and
// returns the resulting merge.
func Map[T, U any](m Merge[T], f func(T) U) Merge[U] {
	adds := make([]U, len(m.adds))
	for i, v := range m.adds {
		adds[i] = f(v)
	}
	removes := make([]U, len(m.removes))
	for i, v := range m.removes {
		removes[i] = f(v)
	}
	return Merge[U]{adds: adds, removes: removes}
}

// Simplify cancels a removed term against an adjacent added term (the
// add immediately before or immediately after it in the interleaved
// sequence) whenever eq reports them equal, repeating until no more
// pairs cancel. A merge that collapses to a single side becomes a
// resolved value. Simplify is idempotent: simplifying an
// already-simplified merge returns it unchanged.
func Simplify[T any](m Merge[T], eq func(T, T) bool) Merge[T] {
	adds := append([]T(nil), m.adds...)
	removes := append([]T(nil), m.removes...)

	for {
		cancelled := false
		for i := range removes {
			switch {
			case eq(removes[i], adds[i]):
				adds = append(adds[:i:i], adds[i+1:]...)
				removes = append(removes[:i:i], removes[i+1:]...)
			case eq(removes[i], adds[i+1]):
				adds = append(adds[:i+1:i+1], adds[i+2:]...)
				removes = append(removes[:i:i], removes[i+1:]...)
			default:
				continue
			}
			cancelled = true
			break
		}
		if !cancelled {
			break
		}
	}

	return Merge[T]{adds: adds, removes: removes}
}

// AddedContains reports whether any positive side of m equals v
// according to eq.
func AddedContains[T any](m Merge[T], v T, eq func(T, T) bool) bool {
	for _, a := range m.adds {
		if eq(a, v) {
			return true
		}
	}
	return false
}

// Merge3 combines three (possibly already-conflicted) merges into one,
// following left − base + right: every positive term of left and right
// stays positive, every negative term of base joins them, and
// everything negative in left or right or positive in base becomes a
// negative term of the result. This is the "merge of merges" used to
// three-way merge trees whose inputs may themselves carry unresolved
// conflicts, not just single values.
func Merge3[T any](base, left, right Merge[T]) Merge[T] {
	adds := make([]T, 0, len(left.adds)+len(right.adds)+len(base.removes))
	adds = append(adds, left.adds...)
	adds = append(adds, right.adds...)
	adds = append(adds, base.removes...)

	removes := make([]T, 0, len(left.removes)+len(right.removes)+len(base.adds))
	removes = append(removes, left.removes...)
	removes = append(removes, right.removes...)
	removes = append(removes, base.adds...)

	return New(adds, removes)
}
