package main

import (
	"context"
	"fmt"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/engine"
)

type repoCmd struct {
	Init repoInitCmd `cmd:"" help:"Initialize a repository in the current directory"`
}

type repoInitCmd struct{}

func (cmd *repoInitCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	repo, err := engine.Init(ctx, dir, log)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}

	log.Info("Initialized repository", "root", repo.Root)
	return nil
}
