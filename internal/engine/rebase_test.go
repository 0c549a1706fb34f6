package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
	"go.abhg.dev/opvc/internal/tree"
)

// chainFixture builds root <- a <- b <- c in a fresh store.
type chainFixture struct {
	store         *Store
	root, a, b, c ids.CommitId
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	s := testStore(t)
	ctx := context.Background()

	write := func(desc string, parents ...ids.CommitId) ids.CommitId {
		id, err := s.WriteCommit(ctx, commit.Commit{
			Parents:     parents,
			ChangeID:    ids.ChangeId(desc),
			Tree:        tree.Resolved(s.EmptyTreeID()),
			Description: desc,
		})
		require.NoError(t, err)
		return id
	}

	f := &chainFixture{store: s}
	f.root = write("root")
	f.a = write("a", f.root)
	f.b = write("b", f.a)
	f.c = write("c", f.b)
	return f
}

func TestViewRebaser_RebasesWholeChain(t *testing.T) {
	f := newChainFixture(t)
	ctx := context.Background()

	// Rewrite a to a': same change, new description.
	aCommit, err := f.store.Commit(ctx, f.a)
	require.NoError(t, err)
	aCommit.Description = "a, amended"
	aPrime, err := f.store.WriteCommit(ctx, aCommit)
	require.NoError(t, err)

	rebaser := &ViewRebaser{Objects: f.store, Heads: []ids.CommitId{f.c}}
	rebased, err := rebaser.RebaseDescendants(ctx, map[string]ids.CommitId{
		f.a.String(): aPrime,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rebased, "b and c must both be rebased")

	// Every descendant keeps its change id and follows its rewritten
	// parent.
	newB, ok := rebaser.Translations()[f.b.String()]
	require.True(t, ok)
	newC, ok := rebaser.Translations()[f.c.String()]
	require.True(t, ok)

	bCommit, err := f.store.Commit(ctx, newB)
	require.NoError(t, err)
	assert.Equal(t, ids.ChangeId("b"), bCommit.ChangeID)
	require.Len(t, bCommit.Parents, 1)
	assert.True(t, bCommit.Parents[0].Equal(aPrime))

	cCommit, err := f.store.Commit(ctx, newC)
	require.NoError(t, err)
	require.Len(t, cCommit.Parents, 1)
	assert.True(t, cCommit.Parents[0].Equal(newB))
}

func TestViewRebaser_RebasesEachDescendantOnce(t *testing.T) {
	f := newChainFixture(t)
	ctx := context.Background()

	// A merge commit with both a and b as parents: reachable from the
	// rewritten commit twice (directly and through b).
	mergeCommit, err := f.store.WriteCommit(ctx, commit.Commit{
		Parents:     []ids.CommitId{f.a, f.b},
		ChangeID:    ids.ChangeId("m"),
		Tree:        tree.Resolved(f.store.EmptyTreeID()),
		Description: "m",
	})
	require.NoError(t, err)

	aCommit, err := f.store.Commit(ctx, f.a)
	require.NoError(t, err)
	aCommit.Description = "a, amended"
	aPrime, err := f.store.WriteCommit(ctx, aCommit)
	require.NoError(t, err)

	rebaser := &ViewRebaser{Objects: f.store, Heads: []ids.CommitId{f.c, mergeCommit}}
	rebased, err := rebaser.RebaseDescendants(ctx, map[string]ids.CommitId{
		f.a.String(): aPrime,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rebased, "b, c, and the merge commit, once each")

	newMerge, ok := rebaser.Translations()[mergeCommit.String()]
	require.True(t, ok)
	m, err := f.store.Commit(ctx, newMerge)
	require.NoError(t, err)
	require.Len(t, m.Parents, 2)
	assert.True(t, m.Parents[0].Equal(aPrime))
	assert.True(t, m.Parents[1].Equal(rebaser.Translations()[f.b.String()]))
}

func TestViewRebaser_ApplyRetargetsView(t *testing.T) {
	f := newChainFixture(t)
	ctx := context.Background()

	aCommit, err := f.store.Commit(ctx, f.a)
	require.NoError(t, err)
	aCommit.Description = "a, amended"
	aPrime, err := f.store.WriteCommit(ctx, aCommit)
	require.NoError(t, err)

	rebaser := &ViewRebaser{Objects: f.store, Heads: []ids.CommitId{f.c}}
	_, err = rebaser.RebaseDescendants(ctx, map[string]ids.CommitId{
		f.a.String(): aPrime,
	})
	require.NoError(t, err)

	view := oplog.NewView()
	view.Workspaces["default"] = f.c
	view.Bookmarks["feature"] = oplog.ResolvedRef(f.b)
	view.Bookmarks["untouched"] = oplog.ResolvedRef(f.root)
	rebaser.Apply(&view)

	assert.True(t, view.Workspaces["default"].Equal(rebaser.Translations()[f.c.String()]))
	got, ok := view.Bookmarks["feature"].Resolve()
	require.True(t, ok)
	assert.True(t, got.Equal(rebaser.Translations()[f.b.String()]))
	got, ok = view.Bookmarks["untouched"].Resolve()
	require.True(t, ok)
	assert.True(t, got.Equal(f.root))
}

// TestReconcileRebasesDescendantsAcrossHeads plays out the concurrent
// divergence scenario end to end: two operations independently rewrote
// the same commit, one of them had already rebased a descendant onto
// its rewrite, and reconciliation must carry that descendant over to
// the winning rewrite.
func TestReconcileRebasesDescendantsAcrossHeads(t *testing.T) {
	f := newChainFixture(t)
	ctx := context.Background()

	store := f.store

	// p has a child q. Two writers rewrite p divergently: p1 and p2.
	p, q := f.a, f.b

	rewriteOf := func(id ids.CommitId, desc string) ids.CommitId {
		c, err := store.Commit(ctx, id)
		require.NoError(t, err)
		c.Description = desc
		newID, err := store.WriteCommit(ctx, c)
		require.NoError(t, err)
		return newID
	}
	p1 := rewriteOf(p, "p, rewritten by writer one")
	p2 := rewriteOf(p, "p, rewritten by writer two")

	// Writer one also rebased q onto its rewrite.
	qc, err := store.Commit(ctx, q)
	require.NoError(t, err)
	qc.Parents = []ids.CommitId{p1}
	q1, err := store.WriteCommit(ctx, qc)
	require.NoError(t, err)

	backend, err := oplog.NewFSBackend(t.TempDir())
	require.NoError(t, err)

	baseView := oplog.NewView()
	baseView.Workspaces["default"] = p
	baseView.Bookmarks["q"] = oplog.ResolvedRef(q)
	baseID, err := backend.WriteOperation(ctx, oplog.Operation{View: baseView})
	require.NoError(t, err)

	oneView := oplog.NewView()
	oneView.Workspaces["default"] = p1
	oneView.Bookmarks["q"] = oplog.ResolvedRef(q1)
	oneID, err := backend.WriteOperation(ctx, oplog.Operation{
		Parents: []ids.OperationId{baseID},
		View:    oneView,
	})
	require.NoError(t, err)

	twoView := oplog.NewView()
	twoView.Workspaces["default"] = p2
	twoView.Bookmarks["q"] = oplog.ResolvedRef(q)
	twoID, err := backend.WriteOperation(ctx, oplog.Operation{
		Parents: []ids.OperationId{baseID},
		View:    twoView,
	})
	require.NoError(t, err)

	rebaser := &ViewRebaser{
		Objects: store,
		Heads:   ViewHeads(oneView, twoView),
	}
	result, err := oplog.Reconcile(ctx, backend, []ids.OperationId{oneID, twoID}, nil, rebaser)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rebased, "writer one's rebase of q must follow the winning rewrite of p")

	rebaser.Apply(&result.View)

	// The workspace follows the incoming rewrite, and q's rebase now
	// sits on top of it.
	assert.True(t, result.View.Workspaces["default"].Equal(p2))
	qFinal, ok := result.View.Bookmarks["q"].Resolve()
	require.True(t, ok)
	final, err := store.Commit(ctx, qFinal)
	require.NoError(t, err)
	require.Len(t, final.Parents, 1)
	assert.True(t, final.Parents[0].Equal(p2))
	assert.Equal(t, ids.ChangeId("b"), final.ChangeID)
}
