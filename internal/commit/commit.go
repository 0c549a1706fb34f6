// Package commit defines the immutable commit value and the rewriter
// that produces new commits from it, remerging the root tree through
// [go.abhg.dev/opvc/internal/tree] rather than failing on conflicts.
package commit

import (
	"time"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/tree"
)

// Signature is an author or committer identity attached to a commit.
type Signature struct {
	Name  string
	Email string
	Time  time.Time
}

// Commit is an immutable snapshot: a root tree plus the history
// metadata needed to present and re-sign it. Rewriting a commit never
// mutates a Commit value in place — it produces a new one, usually
// with the same [ids.ChangeId] but always a new [ids.CommitId].
type Commit struct {
	ID       ids.CommitId
	Parents  []ids.CommitId
	ChangeID ids.ChangeId
	Tree     tree.MergedTree

	Author    Signature
	Committer Signature

	Description string

	// Signature is the raw cryptographic signature over the commit, if
	// any. Rewriting preserves it verbatim; the engine does not verify
	// or produce signatures itself.
	Signature []byte
}

func sameParents(a, b []ids.CommitId) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
