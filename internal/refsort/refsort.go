// Package refsort implements the multi-key stable sort over bookmark
// and tag listings.
package refsort

import (
	"sort"
	"time"
)

// Signature is the author/committer identity and timestamp attached
// to the commit a ref points at.
type Signature struct {
	Name  string
	Email string
	Time  time.Time
}

// RefListItem is one row of a bookmark or tag listing: the ref's name,
// the author/committer of the commit it points at (nil if the ref's
// primary target has no commit — e.g. a deleted ref kept around only
// for its tracked remotes), and the remotes tracking it.
type RefListItem struct {
	Name      string
	Author    *Signature
	Committer *Signature
	Tracked   []string
}

// Key is one sort key with a direction. The zero value is invalid;
// use the named constants.
type Key int

const (
	NameAsc Key = iota
	NameDesc
	AuthorNameAsc
	AuthorNameDesc
	AuthorEmailAsc
	AuthorEmailDesc
	AuthorTimestampAsc
	AuthorTimestampDesc
	CommitterNameAsc
	CommitterNameDesc
	CommitterEmailAsc
	CommitterEmailDesc
	CommitterTimestampAsc
	CommitterTimestampDesc
)

// Sort reorders items in place according to keys, the first key being
// the most significant: sort by the *last* key
// first with a stable sort, then the next-to-last, and so on, so that
// each later pass's stable ordering is preserved wherever an earlier
// (more significant) pass considers two items equal.
//
// items must already be sorted by name in ascending order; if keys[0]
// is NameAsc this precondition makes that pass a no-op and it is
// skipped. Any other first key (including NameDesc, which reorders
// relative to the precondition) still runs its pass.
func Sort(items []RefListItem, keys []Key) {
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		if i == 0 && key == NameAsc {
			continue
		}
		k := key
		sort.SliceStable(items, func(a, b int) bool {
			return less(items[a], items[b], k)
		})
	}
}

func less(a, b RefListItem, key Key) bool {
	switch key {
	case NameAsc:
		return a.Name < b.Name
	case NameDesc:
		return a.Name > b.Name
	case AuthorNameAsc:
		av, aok := sigName(a.Author)
		bv, bok := sigName(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case AuthorNameDesc:
		av, aok := sigName(a.Author)
		bv, bok := sigName(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	case AuthorEmailAsc:
		av, aok := sigEmail(a.Author)
		bv, bok := sigEmail(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case AuthorEmailDesc:
		av, aok := sigEmail(a.Author)
		bv, bok := sigEmail(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	case AuthorTimestampAsc:
		av, aok := millis(a.Author)
		bv, bok := millis(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case AuthorTimestampDesc:
		av, aok := millis(a.Author)
		bv, bok := millis(b.Author)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	case CommitterNameAsc:
		av, aok := sigName(a.Committer)
		bv, bok := sigName(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case CommitterNameDesc:
		av, aok := sigName(a.Committer)
		bv, bok := sigName(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	case CommitterEmailAsc:
		av, aok := sigEmail(a.Committer)
		bv, bok := sigEmail(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case CommitterEmailDesc:
		av, aok := sigEmail(a.Committer)
		bv, bok := sigEmail(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	case CommitterTimestampAsc:
		av, aok := millis(a.Committer)
		bv, bok := millis(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, true)
	case CommitterTimestampDesc:
		av, aok := millis(a.Committer)
		bv, bok := millis(b.Committer)
		return orderAbsentExtreme(av, aok, bv, bok, false)
	default:
		return false
	}
}

func sigName(s *Signature) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Name, true
}

func sigEmail(s *Signature) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Email, true
}

func millis(s *Signature) (int64, bool) {
	if s == nil {
		return 0, false
	}
	return s.Time.UnixMilli(), true
}

// orderAbsentExtreme implements "absent < any present value ascending,
// absent > any present value descending" for any ordered value type.
func orderAbsentExtreme[T int64 | string](aVal T, aPresent bool, bVal T, bPresent bool, asc bool) bool {
	switch {
	case !aPresent && !bPresent:
		return false
	case !aPresent:
		return asc
	case !bPresent:
		return !asc
	default:
		if asc {
			return aVal < bVal
		}
		return aVal > bVal
	}
}
