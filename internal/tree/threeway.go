package tree

import (
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// MergeTrees three-way merges left and right against base, producing
// left − base + right as an odd-sided tree. base, left, and right may
// each already be conflicted; the result folds their sides together
// rather than requiring any of them to be resolved first. The result
// is simplified before it is returned, so sides that cancel out (for
// example when left and right agree on a path's ancestor) collapse
// automatically.
//
// Labels are never preserved across a three-way merge: the resulting
// sides don't correspond one-to-one with any single input's labels.
func MergeTrees(base, left, right MergedTree) MergedTree {
	merged := merge.Merge3(base.value, left.value, right.value)
	return MergedTree{value: merge.Simplify(merged, ids.TreeId.Equal)}
}
