package main

import (
	"context"
	"fmt"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/arrange"
	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

type arrangeCmd struct {
	Revs string `short:"r" placeholder:"REVS" help:"Commits to arrange (defaults to revsets.arrange)"`
}

func (cmd *arrangeCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}
	view := op.View

	revset := cmd.Revs
	if revset == "" {
		revset = repo.Config.Revsets.Arrange
	}
	set, err := repo.ArrangeSet(ctx, view, revset)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		log.Info("Nothing to arrange.")
		return nil
	}

	state, err := buildArrangeState(ctx, repo, view, set)
	if err != nil {
		return err
	}

	model := arrange.NewModel(state, func(c ids.CommitId) string {
		return summarizeCommit(ctx, repo, c)
	})
	if err := arrange.Run(model, nil); err != nil {
		return fmt.Errorf("run arrange UI: %w", err)
	}
	if !model.Committed() {
		return errCanceled
	}

	rebaser := &engine.ViewRebaser{Objects: repo.Objects, Heads: engine.ViewHeads(view)}
	result, err := state.ApplyChanges(ctx, repo.Objects, repo.Objects, rebaser)
	if err != nil {
		return fmt.Errorf("apply arrangement: %w", err)
	}
	if len(result.Rewritten) == 0 {
		log.Info("Nothing changed.")
		return nil
	}

	if _, err := repo.Transact(ctx, "arrange commits", func(v *oplog.View) error {
		rebaser.Apply(v)
		return nil
	}); err != nil {
		return err
	}

	log.Info("Arranged commits",
		"rewritten", len(result.Rewritten),
		"rebased", result.Rebased)
	return nil
}

// buildArrangeState assembles the arrange state machine's inputs: the
// original parent lists of the edited set, and every commit outside
// the set that has a parent inside it. The set must be connected: a
// commit other than a root of the set must reach the rest of it
// through its parents.
func buildArrangeState(ctx context.Context, repo *engine.Repo, view oplog.View, set []ids.CommitId) (*arrange.State, error) {
	inSet := make(map[string]struct{}, len(set))
	for _, c := range set {
		inSet[c.String()] = struct{}{}
	}

	parents := make(map[string][]ids.CommitId, len(set))
	connected := 0
	for _, c := range set {
		commit, err := repo.Objects.Commit(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", c, err)
		}
		parents[c.String()] = commit.Parents
		for _, p := range commit.Parents {
			if _, ok := inSet[p.String()]; ok {
				connected++
				break
			}
		}
	}
	if len(set) > 1 && connected < len(set)-1 {
		return nil, fmt.Errorf("revset resolves to a non-connected set of %d commits", len(set))
	}

	external, err := externalChildren(ctx, repo, view, inSet)
	if err != nil {
		return nil, err
	}

	return arrange.NewState(set, parents, external), nil
}

func externalChildren(ctx context.Context, repo *engine.Repo, view oplog.View, inSet map[string]struct{}) ([]arrange.ExternalChild, error) {
	var out []arrange.ExternalChild
	seen := make(map[string]struct{})
	queue := engine.ViewHeads(view)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}

		c, err := repo.Objects.Commit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		queue = append(queue, c.Parents...)

		if _, ok := inSet[id.String()]; ok {
			continue
		}
		for _, p := range c.Parents {
			if _, ok := inSet[p.String()]; ok {
				out = append(out, arrange.ExternalChild{Commit: id, Parents: c.Parents})
				break
			}
		}
	}
	return out, nil
}

// summarizeCommit renders one line of the arrange tree: a short
// change id and the description's first line.
func summarizeCommit(ctx context.Context, repo *engine.Repo, id ids.CommitId) string {
	c, err := repo.Objects.Commit(ctx, id)
	if err != nil {
		return id.String()
	}

	subject := c.Description
	for i, r := range subject {
		if r == '\n' {
			subject = subject[:i]
			break
		}
	}
	if subject == "" {
		subject = "(no description)"
	}

	change := c.ChangeID.String()
	if len(change) > 8 {
		change = change[:8]
	}
	return fmt.Sprintf("%s %s", change, subject)
}
