package oplog

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
)

// ChangeIDResolver resolves a commit to the logical change it
// implements, letting [Reconcile] tell a genuine divergent rewrite
// (the same change, rewritten into two different commits by two
// racing operations) apart from two workspaces that simply point at
// unrelated commits.
type ChangeIDResolver interface {
	ChangeID(ctx context.Context, id ids.CommitId) (ids.ChangeId, error)
}

// DescendantRebaser is the auxiliary parent-map-aware hook that
// propagates a reconciled rewrite to a rewritten commit's descendants.
// It is supplied by the mutable repo view: propagating a rewrite to
// descendants is the caller's responsibility, not the log's.
type DescendantRebaser interface {
	RebaseDescendants(ctx context.Context, rewritten map[string]ids.CommitId) (rebased int, err error)
}

// ReconcileResult reports the outcome of merging one additional head
// into the accumulating view.
type ReconcileResult struct {
	View View

	// Divergent lists, per workspace entry, the set of commits the
	// same change was independently rewritten into.
	Divergent map[ids.ChangeId][]ids.CommitId

	// Rebased is the number of descendant commits rebased by the
	// supplied [DescendantRebaser], summed across every head merged in.
	Rebased int
}

// Reconcile merges divergent operation heads: it
// loads the operation at heads[0], then folds in every other head in
// turn, unioning their views via the three-way merge a reconciler
// would use for any other odd-sided value, and invoking rebaser for
// any commit whose parents were touched by a rewrite on either side.
//
// Reconcile is idempotent: reconciling a single head returns its view
// unchanged and no divergence.
func Reconcile(ctx context.Context, backend Backend, heads []ids.OperationId, changeIDs ChangeIDResolver, rebaser DescendantRebaser) (ReconcileResult, error) {
	if len(heads) == 0 {
		return ReconcileResult{View: NewView(), Divergent: map[ids.ChangeId][]ids.CommitId{}}, nil
	}

	first, err := backend.ReadOperation(ctx, heads[0])
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("read operation %s: %w", heads[0], err)
	}

	result := ReconcileResult{
		View:      first.View.clone(),
		Divergent: map[ids.ChangeId][]ids.CommitId{},
	}

	for _, h := range heads[1:] {
		op, err := backend.ReadOperation(ctx, h)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("read operation %s: %w", h, err)
		}

		base, err := commonAncestorView(ctx, backend, heads[0], h)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("find common ancestor: %w", err)
		}

		merged, rewritten, divergent, err := mergeViews(ctx, changeIDs, base, result.View, op.View)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("merge views: %w", err)
		}
		result.View = merged
		for changeID, commits := range divergent {
			result.Divergent[changeID] = commits
		}

		if rebaser != nil && len(rewritten) > 0 {
			n, err := rebaser.RebaseDescendants(ctx, rewritten)
			if err != nil {
				return ReconcileResult{}, fmt.Errorf("rebase descendants: %w", err)
			}
			result.Rebased += n
		}
	}

	return result, nil
}

// mergeViews unions two views on top of their common ancestor base,
// returning the merged view, the commits that were rewritten (old
// commit id, in hex, -> new commit) for the descendant rebaser to
// chase, and any commits whose change diverged.
func mergeViews(ctx context.Context, changeIDs ChangeIDResolver, base, left, right View) (View, map[string]ids.CommitId, map[ids.ChangeId][]ids.CommitId, error) {
	merged := NewView()
	rewritten := map[string]ids.CommitId{}
	divergent := map[ids.ChangeId][]ids.CommitId{}

	names := map[string]struct{}{}
	for n := range left.Workspaces {
		names[n] = struct{}{}
	}
	for n := range right.Workspaces {
		names[n] = struct{}{}
	}
	for name := range names {
		l, lok := left.Workspaces[name]
		r, rok := right.Workspaces[name]
		b := base.Workspaces[name]

		switch {
		case lok && rok && l.Equal(r):
			merged.Workspaces[name] = l
		case lok && rok && r.Equal(b):
			// Only the left (already-merged) side moved; keep it.
			merged.Workspaces[name] = l
		case lok && rok && l.Equal(b):
			// Only the incoming side moved. Descendants still based
			// on the old commit follow it.
			merged.Workspaces[name] = r
			rewritten[b.String()] = r
		case lok && rok:
			if changeIDs != nil {
				lc, err := changeIDs.ChangeID(ctx, l)
				if err != nil {
					return View{}, nil, nil, fmt.Errorf("change id of %s: %w", l, err)
				}
				rc, err := changeIDs.ChangeID(ctx, r)
				if err != nil {
					return View{}, nil, nil, fmt.Errorf("change id of %s: %w", r, err)
				}
				if lc.Equal(rc) {
					divergent[lc] = append(divergent[lc], l, r)
				}
			}
			// Both sides rewrote the workspace pointer: the incoming
			// side wins the pointer itself, while both commits are
			// retained above if divergent. Descendants of the losing
			// rewrite are rebased onto the winning one.
			merged.Workspaces[name] = r
			rewritten[l.String()] = r
		case lok:
			merged.Workspaces[name] = l
		case rok:
			// New workspace on the incoming side; nothing existed
			// before, so nothing was rewritten.
			merged.Workspaces[name] = r
		}
	}

	for name := range unionKeys(base.Bookmarks, left.Bookmarks, right.Bookmarks) {
		merged.Bookmarks[name] = mergeRefTargets(base.Bookmarks[name], left.Bookmarks[name], right.Bookmarks[name])
	}
	for name := range unionKeys(base.Tags, left.Tags, right.Tags) {
		merged.Tags[name] = mergeRefTargets(base.Tags[name], left.Tags[name], right.Tags[name])
	}

	remoteKeys := map[RemoteBookmarkKey]struct{}{}
	for k := range left.RemoteBookmarks {
		remoteKeys[k] = struct{}{}
	}
	for k := range right.RemoteBookmarks {
		remoteKeys[k] = struct{}{}
	}
	for k := range base.RemoteBookmarks {
		remoteKeys[k] = struct{}{}
	}
	for k := range remoteKeys {
		l, lok := left.RemoteBookmarks[k]
		r, rok := right.RemoteBookmarks[k]
		switch {
		case rok:
			merged.RemoteBookmarks[k] = r
		case lok:
			merged.RemoteBookmarks[k] = l
		}
	}

	return merged, rewritten, divergent, nil
}

func unionKeys(maps ...map[string]RefTarget) map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range maps {
		for k := range m {
			out[k] = struct{}{}
		}
	}
	return out
}

// commonAncestorView walks the operation DAG back from a and b to
// find their nearest common ancestor and returns its view, used as
// the three-way-merge base when reconciling the two heads. If a and b
// share no ancestor (a malformed, multi-rooted log), the empty view is
// used as the base.
func commonAncestorView(ctx context.Context, backend Backend, a, b ids.OperationId) (View, error) {
	ancestorID, err := commonAncestor(ctx, backend, a, b)
	if err != nil {
		return View{}, err
	}
	if ancestorID == nil {
		return NewView(), nil
	}
	op, err := backend.ReadOperation(ctx, ancestorID)
	if err != nil {
		return View{}, fmt.Errorf("read operation %s: %w", ancestorID, err)
	}
	return op.View, nil
}

func commonAncestor(ctx context.Context, backend Backend, a, b ids.OperationId) (ids.OperationId, error) {
	bAncestors, err := ancestorSet(ctx, backend, b)
	if err != nil {
		return nil, err
	}

	queue := []ids.OperationId{a}
	seen := map[string]struct{}{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}

		if _, ok := bAncestors[string(id)]; ok {
			return id, nil
		}

		op, err := backend.ReadOperation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read operation %s: %w", id, err)
		}
		queue = append(queue, op.Parents...)
	}
	return nil, nil
}

func ancestorSet(ctx context.Context, backend Backend, start ids.OperationId) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	queue := []ids.OperationId{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := out[string(id)]; ok {
			continue
		}
		out[string(id)] = struct{}{}

		op, err := backend.ReadOperation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read operation %s: %w", id, err)
		}
		queue = append(queue, op.Parents...)
	}
	return out, nil
}
