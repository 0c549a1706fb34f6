package tree

import (
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// MergedTree is the root tree of a commit: either one resolved TreeId,
// or an odd-sided merge of TreeIds representing an unresolved conflict.
//
// If Labels is non-nil, its length must equal the merge's NumSides —
// that invariant is enforced by [NewConflicted].
// Labels are diagnostic only: they carry human-readable names for each
// side ("base", "left", "right", ...) and are never consulted by the
// algebra itself.
type MergedTree struct {
	value  merge.Merge[ids.TreeId]
	labels []string
}

// Resolved returns a MergedTree holding a single, non-conflicted tree.
func Resolved(id ids.TreeId) MergedTree {
	return MergedTree{value: merge.Resolved(id)}
}

// NewConflicted builds a conflicted MergedTree from explicit add/remove
// sides. labels, if non-nil, must have len(adds)+len(removes) entries.
func NewConflicted(adds, removes []ids.TreeId, labels []string) MergedTree {
	v := merge.New(adds, removes)
	if labels != nil && len(labels) != v.NumSides() {
		panic(fmt.Sprintf("tree: %d labels for a %d-sided merge", len(labels), v.NumSides()))
	}
	return MergedTree{value: v, labels: labels}
}

// Value returns the underlying odd-sided merge of tree ids.
func (t MergedTree) Value() merge.Merge[ids.TreeId] { return t.value }

// NumSides reports how many sides the tree's conflict has. 1 means
// resolved.
func (t MergedTree) NumSides() int { return t.value.NumSides() }

// IsResolved reports whether the tree has no conflict.
func (t MergedTree) IsResolved() bool { return t.value.IsResolved() }

// Resolve returns the tree id, and true, if the tree is resolved.
func (t MergedTree) Resolve() (ids.TreeId, bool) { return t.value.Resolve() }

// Labels returns the conflict labels, or nil if none were set or the
// tree is resolved.
func (t MergedTree) Labels() []string { return t.labels }

// Simplify cancels matching add/remove pairs of tree ids and, if it
// collapses to one side, returns a resolved tree. Labels are dropped
// whenever simplification changes the arity, since a label sequence
// keyed to the old arity would no longer line up with the sides it
// describes.
func (t MergedTree) Simplify() MergedTree {
	simplified := merge.Simplify(t.value, ids.TreeId.Equal)
	out := MergedTree{value: simplified}
	if simplified.NumSides() == t.NumSides() {
		out.labels = t.labels
	}
	return out
}
