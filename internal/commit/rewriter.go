package commit

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/tree"
)

// Backend is the narrow set of object-store operations the rewriter
// needs to write a rewritten commit.
type Backend interface {
	tree.Backend
	WriteCommit(ctx context.Context, c Commit) (ids.CommitId, error)
}

// Repo resolves a [ids.CommitId] to the [Commit] it names. The
// rewriter only ever looks up a new or old commit's parents, never the
// commit being rewritten itself.
type Repo interface {
	Commit(ctx context.Context, id ids.CommitId) (Commit, error)
}

// Rewriter rewrites a single commit onto a new parent set, remerging
// its root tree rather than discarding the old one. It corresponds to
// `CommitRewriter(mut_repo, old_commit, new_parents)`.
type Rewriter struct {
	backend    Backend
	repo       Repo
	old        Commit
	newParents []ids.CommitId
}

// NewRewriter starts a rewrite of old onto newParents.
func NewRewriter(backend Backend, repo Repo, old Commit, newParents []ids.CommitId) *Rewriter {
	return &Rewriter{backend: backend, repo: repo, old: old, newParents: newParents}
}

// ParentsChanged reports whether the new parent set differs from
// old_commit.parent_ids.
func (r *Rewriter) ParentsChanged() bool {
	return !sameParents(r.old.Parents, r.newParents)
}

// Rebase computes the rewritten commit's root tree and returns a
// [Builder] that writes it. It fails only on backend or lookup errors:
// a remerge that yields a conflicted tree is not itself an error.
//
// If the parent set is unchanged, Rebase returns a Builder whose Write
// returns old unchanged without writing anything.
func (r *Rewriter) Rebase(ctx context.Context) (*Builder, error) {
	if !r.ParentsChanged() {
		return &Builder{backend: r.backend, result: r.old, noop: true}, nil
	}

	oldUnion, err := parentUnionTree(ctx, r.backend, r.repo, r.old.Parents)
	if err != nil {
		return nil, fmt.Errorf("union of old parents: %w", err)
	}
	newUnion, err := parentUnionTree(ctx, r.backend, r.repo, r.newParents)
	if err != nil {
		return nil, fmt.Errorf("union of new parents: %w", err)
	}

	newTree := tree.MergeTrees(oldUnion, r.old.Tree, newUnion)

	return &Builder{
		backend: r.backend,
		result: Commit{
			Parents:     r.newParents,
			ChangeID:    r.old.ChangeID,
			Tree:        newTree,
			Author:      r.old.Author,
			Committer:   r.old.Committer,
			Description: r.old.Description,
			Signature:   r.old.Signature,
		},
	}, nil
}

// parentUnionTree computes the tree against which a commit's own tree
// should be three-way-merged: the first parent's tree unchanged for a
// single parent, or, for a merge commit, every additional parent
// folded in against the empty tree as base. Folding against empty
// rather than against the running result keeps every parent's content
// as its own side of the conflict instead of letting an earlier
// parent's tree silently cancel out when a later one touches
// unrelated paths.
func parentUnionTree(ctx context.Context, backend tree.Backend, repo Repo, parents []ids.CommitId) (tree.MergedTree, error) {
	if len(parents) == 0 {
		return tree.Resolved(backend.EmptyTreeID()), nil
	}

	first, err := repo.Commit(ctx, parents[0])
	if err != nil {
		return tree.MergedTree{}, fmt.Errorf("load %s: %w", parents[0], err)
	}

	result := first.Tree
	if len(parents) == 1 {
		return result, nil
	}

	empty := tree.Resolved(backend.EmptyTreeID())
	for _, id := range parents[1:] {
		c, err := repo.Commit(ctx, id)
		if err != nil {
			return tree.MergedTree{}, fmt.Errorf("load %s: %w", id, err)
		}
		result = tree.MergeTrees(empty, result, c.Tree)
	}
	return result, nil
}

// Builder writes the commit a [Rewriter.Rebase] call prepared. It
// exists as a separate step, mirroring the backend's own two-phase
// write; the prepared commit is not exposed before [Builder.Write].
type Builder struct {
	backend Backend
	result  Commit
	noop    bool
}

// Write flushes the rewritten commit to the backend and returns it
// with its new [ids.CommitId] populated. If the rewrite was a no-op
// (parents were unchanged), Write returns the original commit as-is
// without touching the backend.
func (b *Builder) Write(ctx context.Context) (Commit, error) {
	if b.noop {
		return b.result, nil
	}

	id, err := b.backend.WriteCommit(ctx, b.result)
	if err != nil {
		return Commit{}, fmt.Errorf("write commit: %w", err)
	}
	b.result.ID = id
	return b.result, nil
}
