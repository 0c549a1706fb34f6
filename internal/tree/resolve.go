package tree

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// Lister flattens a tree into its full set of file paths and their
// entries. A git-backed store implements this with a recursive
// ls-tree; the built-in store reads its flat tree encoding directly.
type Lister interface {
	ListPaths(ctx context.Context, id ids.TreeId) (map[string]Entry, error)
}

// ContentMerger resolves a conflicted file at one path, given the
// merge of entries present at that path across all sides of the tree.
// File-content diffing and merging itself is out of scope for this
// package — ContentMerger is the pluggable seam the core calls into,
// and the tree algebra only ever consumes its yes/no answer.
type ContentMerger interface {
	MergeFiles(ctx context.Context, path string, sides merge.Merge[Entry]) (Entry, bool, error)
}

// ResolveConflicts attempts to reduce a conflicted tree by resolving
// individual paths where the sides disagree: first by simple
// simplification (paths that happen to already agree across all
// sides), then, for paths that still disagree, by delegating to
// merger. Paths it cannot resolve remain conflicted in the returned
// tree.
//
// ResolveConflicts is a no-op (returns t unchanged) if t is already
// resolved.
func (t MergedTree) ResolveConflicts(ctx context.Context, backend Backend, lister Lister, merger ContentMerger) (MergedTree, error) {
	if t.IsResolved() {
		return t, nil
	}

	sideIDs := t.value.Values()
	sideEntries := make([]map[string]Entry, len(sideIDs))
	allPaths := make(map[string]struct{})
	for i, id := range sideIDs {
		entries, err := lister.ListPaths(ctx, id)
		if err != nil {
			return MergedTree{}, fmt.Errorf("list side %d: %w", i, err)
		}
		sideEntries[i] = entries
		for p := range entries {
			allPaths[p] = struct{}{}
		}
	}

	b := NewMergedTreeBuilder(backend, t)
	for path := range allPaths {
		entries := make([]Entry, len(sideIDs))
		for i, m := range sideEntries {
			entries[i] = m[path] // zero value is Absent
		}

		adds := make([]Entry, 0, (len(entries)+1)/2)
		removes := make([]Entry, 0, len(entries)/2)
		for i, e := range entries {
			if i%2 == 0 {
				adds = append(adds, e)
			} else {
				removes = append(removes, e)
			}
		}
		pathMerge := merge.Simplify(merge.New(adds, removes), Entry.Equal)

		if resolved, ok := pathMerge.Resolve(); ok {
			b.SetOrReplace(path, merge.Resolved(resolved))
			continue
		}

		if merger == nil {
			continue
		}
		resolved, ok, err := merger.MergeFiles(ctx, path, pathMerge)
		if err != nil {
			return MergedTree{}, fmt.Errorf("merge file %q: %w", path, err)
		}
		if ok {
			b.SetOrReplace(path, merge.Resolved(resolved))
		}
		// Otherwise leave the path unoverridden: every side builder is
		// already rooted at the corresponding side of the base tree,
		// so the conflicting entries are preserved as-is.
	}

	return b.Build(ctx)
}
