package main

import (
	"context"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/refsort"
)

type tagListCmd struct {
	Patterns []string `arg:"" optional:"" help:"Glob patterns to filter tag names"`

	Sort       []string `help:"Sort keys, most significant first"`
	Conflicted bool     `help:"List only conflicted tags"`
}

func (cmd *tagListCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}

	items, err := collectRefItems(ctx, repo, op.View.Tags, nil, refFilter{
		patterns:   cmd.Patterns,
		conflicted: cmd.Conflicted,
	})
	if err != nil {
		return err
	}

	sortKeys := cmd.Sort
	if len(sortKeys) == 0 {
		sortKeys = []string{"name"}
	}
	keys, err := refsort.ParseKeys(sortKeys)
	if err != nil {
		return err
	}
	refsort.Sort(items, keys)

	return printRefItems(items)
}
