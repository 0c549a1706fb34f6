package arrange

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

// DescendantRebaser propagates a commit rewrite to its descendants
// outside the edited set.
// It is the same shape [oplog.DescendantRebaser] uses: arrange's final
// step is exactly that propagation pass, run once after every in-set
// and external-child commit has been rewritten.
type DescendantRebaser = oplog.DescendantRebaser

// ApplyResult reports the outcome of [State.ApplyChanges].
type ApplyResult struct {
	// Rewritten maps every original commit id (in-set or external
	// child) that was actually rewritten to its new id. Commits whose
	// parent list didn't change are omitted.
	Rewritten map[string]ids.CommitId

	// Rebased is the number of further descendants rebased by the
	// supplied [DescendantRebaser].
	Rebased int
}

// ApplyChanges materializes the edited arrangement: it walks the
// commits in forward topological order (parents before children,
// computed as the reverse of [State.CurrentOrder]), rewrites each onto
// its possibly-edited parent list translated through the accumulating
// old-to-new map, then does the same for every external child, and
// finally invokes rebaser to propagate the rewrite past the edited
// set's boundary.
func (s *State) ApplyChanges(ctx context.Context, backend commit.Backend, repo commit.Repo, rebaser DescendantRebaser) (ApplyResult, error) {
	rewrite := make(map[string]ids.CommitId, len(s.commits)+len(s.external))

	forward := make([]ids.CommitId, len(s.currentOrder))
	for i, c := range s.currentOrder {
		forward[len(forward)-1-i] = c
	}

	for _, c := range forward {
		old, err := repo.Commit(ctx, c)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("load %s: %w", c, err)
		}

		newParents := translateParents(s.parents[c.String()], rewrite)
		if _, err := rewriteOne(ctx, backend, repo, old, c, newParents, rewrite); err != nil {
			return ApplyResult{}, err
		}
	}

	for _, ec := range s.external {
		old, err := repo.Commit(ctx, ec.Commit)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("load external child %s: %w", ec.Commit, err)
		}

		newParents := translateParents(ec.Parents, rewrite)
		if _, err := rewriteOne(ctx, backend, repo, old, ec.Commit, newParents, rewrite); err != nil {
			return ApplyResult{}, err
		}
	}

	result := ApplyResult{Rewritten: make(map[string]ids.CommitId, len(rewrite))}
	for k, v := range rewrite {
		result.Rewritten[k] = v
	}

	if len(rewrite) > 0 {
		rebased, err := rebaser.RebaseDescendants(ctx, rewrite)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("rebase descendants: %w", err)
		}
		result.Rebased = rebased
	}

	return result, nil
}

// translateParents rewrites each parent id through rewrite, leaving
// ids that weren't themselves rewritten (because they kept their
// original parents, or lie outside the edited set entirely) as-is.
func translateParents(parents []ids.CommitId, rewrite map[string]ids.CommitId) []ids.CommitId {
	out := make([]ids.CommitId, len(parents))
	for i, p := range parents {
		if newID, ok := rewrite[p.String()]; ok {
			out[i] = newID
		} else {
			out[i] = p
		}
	}
	return out
}

// rewriteOne rewrites a single commit onto newParents via
// [commit.Rewriter], recording the old-to-new mapping only when the
// rewrite actually changed anything.
func rewriteOne(
	ctx context.Context,
	backend commit.Backend,
	repo commit.Repo,
	old commit.Commit,
	oldID ids.CommitId,
	newParents []ids.CommitId,
	rewrite map[string]ids.CommitId,
) (commit.Commit, error) {
	rewriter := commit.NewRewriter(backend, repo, old, newParents)
	if !rewriter.ParentsChanged() {
		return old, nil
	}

	builder, err := rewriter.Rebase(ctx)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("rebase %s: %w", oldID, err)
	}

	written, err := builder.Write(ctx)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("write rewrite of %s: %w", oldID, err)
	}

	rewrite[oldID.String()] = written.ID
	return written, nil
}
