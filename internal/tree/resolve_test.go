package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// stubMerger resolves any file merge to a fixed entry, unless told not
// to resolve a given path.
type stubMerger struct {
	skip map[string]bool
	id   ids.FileId
}

func (m *stubMerger) MergeFiles(_ context.Context, path string, _ merge.Merge[Entry]) (Entry, bool, error) {
	if m.skip[path] {
		return Entry{}, false, nil
	}
	return FileEntry(m.id, RegularMode), true, nil
}

func conflictedTreeWithPaths(t *testing.T, store *memStore, agree, disagree map[string][2]ids.FileId) MergedTree {
	t.Helper()
	ctx := context.Background()

	left := NewMergedTreeBuilder(store, Resolved(store.EmptyTreeID()))
	right := NewMergedTreeBuilder(store, Resolved(store.EmptyTreeID()))
	base := NewMergedTreeBuilder(store, Resolved(store.EmptyTreeID()))
	for path, id := range agree {
		// Agreeing paths also agree with base, so that cancellation in
		// the merge algebra below leaves the shared content behind
		// rather than whatever base happens to hold.
		left.SetOrReplace(path, merge.Resolved(FileEntry(id[0], RegularMode)))
		right.SetOrReplace(path, merge.Resolved(FileEntry(id[0], RegularMode)))
		base.SetOrReplace(path, merge.Resolved(FileEntry(id[0], RegularMode)))
	}
	for path, ids2 := range disagree {
		left.SetOrReplace(path, merge.Resolved(FileEntry(ids2[0], RegularMode)))
		right.SetOrReplace(path, merge.Resolved(FileEntry(ids2[1], RegularMode)))
	}
	leftTree, err := left.Build(ctx)
	require.NoError(t, err)
	rightTree, err := right.Build(ctx)
	require.NoError(t, err)
	baseTree, err := base.Build(ctx)
	require.NoError(t, err)

	leftID, _ := leftTree.Resolve()
	rightID, _ := rightTree.Resolve()
	baseID, _ := baseTree.Resolve()

	// left − right + base: an arbitrary but internally consistent
	// 3-sided conflict, not a claim about real diff3 ordering.
	return NewConflicted([]ids.TreeId{leftID, baseID}, []ids.TreeId{rightID}, nil)
}

func TestResolve_NoOpWhenAlreadyResolved(t *testing.T) {
	store := newMemStore()
	r := Resolved(store.EmptyTreeID())

	out, err := r.ResolveConflicts(context.Background(), store, store, nil)
	require.NoError(t, err)
	assert.Equal(t, r, out)
}

func TestResolve_AgreeingPathsCollapseViaSimplify(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	conflicted := conflictedTreeWithPaths(t, store,
		map[string][2]ids.FileId{"shared.txt": {ids.FileId("same"), ids.FileId("same")}},
		nil,
	)
	require.False(t, conflicted.IsResolved())

	out, err := conflicted.ResolveConflicts(ctx, store, store, nil)
	require.NoError(t, err)
	require.True(t, out.IsResolved(), "a tree whose only path agrees across every side must resolve")
}

func TestResolve_ContentMergerResolvesConflictingPath(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	conflicted := conflictedTreeWithPaths(t, store, nil,
		map[string][2]ids.FileId{"f.txt": {ids.FileId("left"), ids.FileId("right")}},
	)
	require.False(t, conflicted.IsResolved())

	merger := &stubMerger{id: ids.FileId("merged")}
	out, err := conflicted.ResolveConflicts(ctx, store, store, merger)
	require.NoError(t, err)
	require.True(t, out.IsResolved())

	id, _ := out.Resolve()
	entries, err := store.ListPaths(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, FileEntry(ids.FileId("merged"), RegularMode), entries["f.txt"])
}

func TestResolve_UnresolvablePathStaysConflicted(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	conflicted := conflictedTreeWithPaths(t, store, nil,
		map[string][2]ids.FileId{"f.txt": {ids.FileId("left"), ids.FileId("right")}},
	)

	merger := &stubMerger{id: ids.FileId("merged"), skip: map[string]bool{"f.txt": true}}
	out, err := conflicted.ResolveConflicts(ctx, store, store, merger)
	require.NoError(t, err)
	assert.False(t, out.IsResolved(), "a path the merger declines to resolve must keep the tree conflicted")
}

func TestResolve_MixedPathsResolveIndependently(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	conflicted := conflictedTreeWithPaths(t, store,
		map[string][2]ids.FileId{"shared.txt": {ids.FileId("same"), ids.FileId("same")}},
		map[string][2]ids.FileId{"f.txt": {ids.FileId("left"), ids.FileId("right")}},
	)
	require.False(t, conflicted.IsResolved())

	merger := &stubMerger{id: ids.FileId("merged"), skip: map[string]bool{"f.txt": true}}
	out, err := conflicted.ResolveConflicts(ctx, store, store, merger)
	require.NoError(t, err)
	require.False(t, out.IsResolved())

	for _, sideID := range out.Value().Added() {
		entries, err := store.ListPaths(ctx, sideID)
		require.NoError(t, err)
		assert.Equal(t, FileEntry(ids.FileId("same"), RegularMode), entries["shared.txt"],
			"the agreeing path must have resolved on every side even though f.txt remains conflicted")
	}
}
