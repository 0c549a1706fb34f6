package arrange

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/tree"
)

// fakeTreeStore is a minimal content-addressed flat-map tree store,
// the same shape as internal/commit's own test double.
type fakeTreeStore struct {
	trees map[string]map[string]tree.Entry
}

func newFakeTreeStore() *fakeTreeStore {
	s := &fakeTreeStore{trees: make(map[string]map[string]tree.Entry)}
	s.trees["empty"] = map[string]tree.Entry{}
	return s
}

func (s *fakeTreeStore) EmptyTreeID() ids.TreeId { return ids.TreeId("empty") }

func (s *fakeTreeStore) NewSideBuilder(_ context.Context, base ids.TreeId) (tree.SideBuilder, error) {
	entries, ok := s.trees[string(base)]
	if !ok {
		return nil, fmt.Errorf("unknown tree %q", base)
	}
	clone := make(map[string]tree.Entry, len(entries))
	for k, v := range entries {
		clone[k] = v
	}
	return &fakeSideBuilder{store: s, entries: clone}, nil
}

func (s *fakeTreeStore) tree(path, file string) (ids.TreeId, map[string]tree.Entry) {
	entries := map[string]tree.Entry{path: tree.FileEntry(ids.FileId(file), tree.RegularMode)}
	key := fmt.Sprintf("%s=%s", path, file)
	s.trees[key] = entries
	return ids.TreeId(key), entries
}

type fakeSideBuilder struct {
	store   *fakeTreeStore
	entries map[string]tree.Entry
}

func (b *fakeSideBuilder) Set(path string, entry tree.Entry) error {
	if entry.Type == tree.Absent {
		delete(b.entries, path)
	} else {
		b.entries[path] = entry
	}
	return nil
}

func (b *fakeSideBuilder) Write(context.Context) (ids.TreeId, error) {
	paths := make([]string, 0, len(b.entries))
	for p := range b.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var key string
	for _, p := range paths {
		key += fmt.Sprintf("%s=%x;", p, b.entries[p].File)
	}
	if key == "" {
		key = "empty"
	}
	if _, ok := b.store.trees[key]; !ok {
		clone := make(map[string]tree.Entry, len(b.entries))
		for k, v := range b.entries {
			clone[k] = v
		}
		b.store.trees[key] = clone
	}
	return ids.TreeId(key), nil
}

// fakeRepo is an in-memory [commit.Repo] plus [commit.Backend].
type fakeRepo struct {
	*fakeTreeStore
	commits map[string]commit.Commit
	nextID  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{fakeTreeStore: newFakeTreeStore(), commits: make(map[string]commit.Commit)}
}

func (r *fakeRepo) Commit(_ context.Context, id ids.CommitId) (commit.Commit, error) {
	c, ok := r.commits[string(id)]
	if !ok {
		return commit.Commit{}, fmt.Errorf("no such commit %s", id)
	}
	return c, nil
}

func (r *fakeRepo) WriteCommit(_ context.Context, c commit.Commit) (ids.CommitId, error) {
	r.nextID++
	id := ids.CommitId(fmt.Sprintf("new%d", r.nextID))
	c.ID = id
	r.commits[string(id)] = c
	return id, nil
}

func (r *fakeRepo) put(id ids.CommitId, c commit.Commit) {
	c.ID = id
	r.commits[string(id)] = c
}

// fakeRebaser records the rewrite map it was invoked with.
type fakeRebaser struct {
	called    int
	rewritten map[string]ids.CommitId
	rebased   int
}

func (f *fakeRebaser) RebaseDescendants(_ context.Context, rewritten map[string]ids.CommitId) (int, error) {
	f.called++
	f.rewritten = rewritten
	return f.rebased, nil
}

func TestApplyChanges_ReorderedStackRewritesBothCommits(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	baseTree, _ := repo.tree("base.txt", "base")
	repo.put(ids.CommitId("base"), commit.Commit{Tree: tree.Resolved(baseTree)})

	bTree, _ := repo.tree("b.txt", "b")
	repo.put(ids.CommitId("b"), commit.Commit{
		Parents:  []ids.CommitId{ids.CommitId("base")},
		ChangeID: ids.ChangeId("changeB"),
		Tree:     tree.Resolved(bTree),
	})

	cTree, _ := repo.tree("c.txt", "c")
	repo.put(ids.CommitId("c"), commit.Commit{
		Parents:  []ids.CommitId{ids.CommitId("b")},
		ChangeID: ids.ChangeId("changeC"),
		Tree:     tree.Resolved(cTree),
	})

	s := NewState(
		[]ids.CommitId{ids.CommitId("b"), ids.CommitId("c")},
		map[string][]ids.CommitId{
			ids.CommitId("c").String(): {ids.CommitId("b")},
			ids.CommitId("b").String(): {ids.CommitId("base")},
		},
		nil,
	)
	// Swap the stack order: c directly on base, b on top of c.
	s.SetParents(ids.CommitId("c"), []ids.CommitId{ids.CommitId("base")})
	s.SetParents(ids.CommitId("b"), []ids.CommitId{ids.CommitId("c")})

	rebaser := &fakeRebaser{}
	result, err := s.ApplyChanges(ctx, repo, repo, rebaser)
	require.NoError(t, err)

	newC, ok := result.Rewritten[ids.CommitId("c").String()]
	require.True(t, ok, "c's parent list changed from b to base")

	newB, ok := result.Rewritten[ids.CommitId("b").String()]
	require.True(t, ok, "b was rewritten onto c")
	rewrittenB, err := repo.Commit(ctx, newB)
	require.NoError(t, err)
	assert.Equal(t, []ids.CommitId{newC}, rewrittenB.Parents, "b must point at c's new id, not its old one")
	assert.Equal(t, ids.ChangeId("changeB"), rewrittenB.ChangeID, "ChangeId survives rewrite")

	assert.Equal(t, 1, rebaser.called)
	assert.Equal(t, result.Rewritten, rebaser.rewritten)
}

func TestApplyChanges_NoopWhenNothingChanged(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	aTree, _ := repo.tree("a.txt", "a")
	repo.put(ids.CommitId("a"), commit.Commit{Tree: tree.Resolved(aTree)})

	s := NewState([]ids.CommitId{ids.CommitId("a")}, map[string][]ids.CommitId{ids.CommitId("a").String(): nil}, nil)

	rebaser := &fakeRebaser{}
	result, err := s.ApplyChanges(ctx, repo, repo, rebaser)
	require.NoError(t, err)
	assert.Empty(t, result.Rewritten)
	assert.Equal(t, 0, rebaser.called, "nothing rewritten means no descendant rebase needed")
}

func TestApplyChanges_ExternalChildFollowsRewrittenParent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	baseTree, _ := repo.tree("base.txt", "base")
	repo.put(ids.CommitId("base"), commit.Commit{Tree: tree.Resolved(baseTree)})

	aTree, _ := repo.tree("a.txt", "a")
	repo.put(ids.CommitId("a"), commit.Commit{
		Parents:  []ids.CommitId{ids.CommitId("base")},
		ChangeID: ids.ChangeId("changeA"),
		Tree:     tree.Resolved(aTree),
	})

	bTree, _ := repo.tree("b.txt", "b")
	repo.put(ids.CommitId("b"), commit.Commit{
		Parents:  []ids.CommitId{ids.CommitId("a")},
		ChangeID: ids.ChangeId("changeB"),
		Tree:     tree.Resolved(bTree),
	})

	extTree, _ := repo.tree("ext.txt", "ext")
	repo.put(ids.CommitId("ext"), commit.Commit{
		Parents:  []ids.CommitId{ids.CommitId("b")},
		ChangeID: ids.ChangeId("changeExt"),
		Tree:     tree.Resolved(extTree),
	})

	// Edited set is {a, b}; dropping b's in-set parent and pointing it
	// straight at the fixed external base forces a real rewrite of b,
	// which "ext" (outside the set) must follow. "a" is left alone.
	s := NewState(
		[]ids.CommitId{ids.CommitId("a"), ids.CommitId("b")},
		map[string][]ids.CommitId{
			ids.CommitId("b").String(): {ids.CommitId("a")},
			ids.CommitId("a").String(): {ids.CommitId("base")},
		},
		[]ExternalChild{{Commit: ids.CommitId("ext"), Parents: []ids.CommitId{ids.CommitId("b")}}},
	)
	s.SetParents(ids.CommitId("b"), []ids.CommitId{ids.CommitId("base")})

	rebaser := &fakeRebaser{}
	result, err := s.ApplyChanges(ctx, repo, repo, rebaser)
	require.NoError(t, err)

	_, aRewritten := result.Rewritten[ids.CommitId("a").String()]
	assert.False(t, aRewritten, "a's parent list never changed")

	newB, ok := result.Rewritten[ids.CommitId("b").String()]
	require.True(t, ok, "b's parent list changed")

	newExt, ok := result.Rewritten[ids.CommitId("ext").String()]
	require.True(t, ok, "ext must follow b's rewrite even though ext is outside the edited set")

	rewrittenExt, err := repo.Commit(ctx, newExt)
	require.NoError(t, err)
	assert.Equal(t, []ids.CommitId{newB}, rewrittenExt.Parents)
	assert.Equal(t, ids.ChangeId("changeExt"), rewrittenExt.ChangeID)

	assert.Equal(t, 1, rebaser.called)
}
