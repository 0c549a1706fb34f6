package main

import (
	"context"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/gerrit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

type gerritCmd struct {
	Upload gerritUploadCmd `cmd:"" help:"Upload a commit chain to Gerrit for review"`
}

type gerritUploadCmd struct {
	Rev          string `short:"r" required:"" placeholder:"REV" help:"Commit to upload"`
	Remote       string `placeholder:"R" help:"Git remote to push to (defaults to gerrit.default-remote)"`
	RemoteBranch string `placeholder:"B" help:"Branch to request review for (defaults to gerrit.default-remote-branch)"`
}

func (cmd *gerritUploadCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}
	view := op.View

	target, err := repo.ResolveSingle(ctx, view, cmd.Rev)
	if err != nil {
		return err
	}

	targetCommit, err := repo.Objects.Commit(ctx, target)
	if err != nil {
		return err
	}
	empty, err := isEmptyCommit(ctx, repo, targetCommit)
	if err != nil {
		return err
	}
	if err := gerrit.ValidateTarget(gerrit.UploadCommit{
		ID:          target,
		ChangeID:    targetCommit.ChangeID,
		Description: targetCommit.Description,
		Empty:       empty,
	}); err != nil {
		return err
	}

	remote := cmd.Remote
	if remote == "" {
		remote = repo.Config.Gerrit.DefaultRemote
	}
	branch := cmd.RemoteBranch
	if branch == "" {
		branch = repo.Config.Gerrit.DefaultRemoteBranch
	}

	// Stamp tracking trailers onto the whole mutable chain below the
	// target, bottom-up, so every uploaded ancestor maps to a stable
	// Gerrit change.
	newTarget, stamped, err := stampTrailers(ctx, repo, view, target)
	if err != nil {
		return err
	}
	if stamped > 0 {
		log.Infof("Added tracking trailers to %d commits", stamped)
	}

	pusher := gerrit.NewPusher(repo.Root, log, nil)
	if err := pusher.Push(ctx, remote, newTarget.String(), branch); err != nil {
		return err
	}

	log.Info("Uploaded for review", "remote", remote, "branch", branch)
	return nil
}

// isEmptyCommit reports whether c carries no changes over its first
// parent.
func isEmptyCommit(ctx context.Context, repo *engine.Repo, c commit.Commit) (bool, error) {
	treeID, ok := c.Tree.Resolve()
	if !ok {
		return false, nil
	}
	if len(c.Parents) == 0 {
		return treeID.Equal(repo.Objects.EmptyTreeID()), nil
	}
	parent, err := repo.Objects.Commit(ctx, c.Parents[0])
	if err != nil {
		return false, err
	}
	parentTree, ok := parent.Tree.Resolve()
	return ok && treeID.Equal(parentTree), nil
}

// stampTrailers rewrites every mutable ancestor of target (and target
// itself) whose description lacks a Change-Id, in parent-before-child
// order, rebasing the rest of the chain over each rewrite. It returns
// the possibly-rewritten target id and how many commits were stamped.
func stampTrailers(ctx context.Context, repo *engine.Repo, view oplog.View, target ids.CommitId) (ids.CommitId, int, error) {
	chain, err := mutableChain(ctx, repo, view, target)
	if err != nil {
		return nil, 0, err
	}

	reviewURL := repo.Config.Gerrit.ReviewURL
	translations := make(map[string]ids.CommitId)
	stamped := 0

	for _, id := range chain { // parents before children
		c, err := repo.Objects.Commit(ctx, id)
		if err != nil {
			return nil, 0, err
		}

		newDesc, changed := gerrit.EnsureTrailers(c.Description, c.ChangeID, reviewURL)
		newParents := make([]ids.CommitId, len(c.Parents))
		parentsChanged := false
		for i, p := range c.Parents {
			if t, ok := translations[p.String()]; ok {
				newParents[i] = t
				parentsChanged = true
			} else {
				newParents[i] = p
			}
		}
		if !changed && !parentsChanged {
			continue
		}

		rewritten := c
		rewritten.Description = newDesc
		rewritten.Parents = newParents
		newID, err := repo.Objects.WriteCommit(ctx, rewritten)
		if err != nil {
			return nil, 0, err
		}
		translations[id.String()] = newID
		if changed {
			stamped++
		}
	}

	if len(translations) == 0 {
		return target, 0, nil
	}

	rebaser := &engine.ViewRebaser{Objects: repo.Objects, Heads: engine.ViewHeads(view)}
	if _, err := rebaser.RebaseDescendants(ctx, translations); err != nil {
		return nil, 0, err
	}
	if _, err := repo.Transact(ctx, "add gerrit trailers", func(v *oplog.View) error {
		rebaser.Apply(v)
		return nil
	}); err != nil {
		return nil, 0, err
	}

	newTarget := target
	if t, ok := translations[target.String()]; ok {
		newTarget = t
	}
	return newTarget, stamped, nil
}

// mutableChain lists target and its mutable ancestors in
// parent-before-child order.
func mutableChain(ctx context.Context, repo *engine.Repo, view oplog.View, target ids.CommitId) ([]ids.CommitId, error) {
	set, err := repo.ArrangeSet(ctx, view, "reachable(@, mutable())")
	if err != nil {
		return nil, err
	}
	mutable := make(map[string]struct{}, len(set))
	for _, c := range set {
		mutable[c.String()] = struct{}{}
	}

	var chain []ids.CommitId
	seen := make(map[string]struct{})
	var walk func(id ids.CommitId) error
	walk = func(id ids.CommitId) error {
		if _, ok := seen[string(id)]; ok {
			return nil
		}
		seen[string(id)] = struct{}{}
		if _, ok := mutable[id.String()]; !ok {
			return nil
		}

		c, err := repo.Objects.Commit(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range c.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		chain = append(chain, id)
		return nil
	}
	if err := walk(target); err != nil {
		return nil, err
	}
	return chain, nil
}
