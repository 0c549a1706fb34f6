package main

import (
	"context"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/bookmark"
	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

type bookmarkAdvanceCmd struct {
	Names []string `arg:"" optional:"" help:"Bookmarks to advance (default: all that can fast-forward)"`
	To    string   `short:"t" placeholder:"REV" help:"Target revision (defaults to revsets.bookmark-advance-to)"`
}

func (cmd *bookmarkAdvanceCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}

	to := cmd.To
	if to == "" {
		to = repo.Config.Revsets.BookmarkAdvanceTo
	}

	result, err := bookmark.Advance(ctx, &advanceRepo{
		repo: repo,
		view: op.View,
	}, to, repo.Config.Revsets.BookmarkAdvanceFrom, cmd.Names)
	if err != nil {
		return err
	}

	if len(result.Moved) == 0 {
		log.Info("No bookmarks to advance.")
		return nil
	}
	for name, target := range result.Moved {
		log.Info("Advanced bookmark", "name", name, "to", target.String()[:12])
	}
	if result.TargetDiscardable {
		log.Warn("Target commit is empty and has no description; it may be discarded by later operations.")
	}
	return nil
}

// advanceRepo adapts an opened repository to [bookmark.Repo].
type advanceRepo struct {
	repo *engine.Repo
	view oplog.View
}

var _ bookmark.Repo = (*advanceRepo)(nil)

func (a *advanceRepo) ResolveSingle(ctx context.Context, revset string) (ids.CommitId, error) {
	return a.repo.ResolveSingle(ctx, a.view, revset)
}

func (a *advanceRepo) ResolveSet(ctx context.Context, revset string, to ids.CommitId) ([]ids.CommitId, error) {
	return a.repo.AdvanceSources(ctx, a.view, revset, to)
}

func (a *advanceRepo) IsAncestor(ctx context.Context, ancestor, descendant ids.CommitId) (bool, error) {
	return a.repo.Objects.IsAncestor(ctx, ancestor, descendant)
}

func (a *advanceRepo) Bookmarks(context.Context) (map[string]oplog.RefTarget, error) {
	return a.view.Bookmarks, nil
}

// IsDiscardable reports whether the commit has no description and no
// changes of its own, the shape a later operation may silently drop.
func (a *advanceRepo) IsDiscardable(ctx context.Context, id ids.CommitId) (bool, error) {
	c, err := a.repo.Objects.Commit(ctx, id)
	if err != nil {
		return false, err
	}
	if c.Description != "" {
		return false, nil
	}

	treeID, ok := c.Tree.Resolve()
	if !ok {
		return false, nil
	}
	if len(c.Parents) == 0 {
		return treeID.Equal(a.repo.Objects.EmptyTreeID()), nil
	}
	parent, err := a.repo.Objects.Commit(ctx, c.Parents[0])
	if err != nil {
		return false, err
	}
	parentTree, ok := parent.Tree.Resolve()
	return ok && treeID.Equal(parentTree), nil
}

func (a *advanceRepo) MoveBookmarks(ctx context.Context, moves map[string]ids.CommitId) error {
	_, err := a.repo.Transact(ctx, "advance bookmarks", func(v *oplog.View) error {
		for name, target := range moves {
			v.Bookmarks[name] = oplog.ResolvedRef(target)
		}
		return nil
	})
	return err
}
