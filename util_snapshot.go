package main

import (
	"context"

	"go.abhg.dev/log/silog"
)

type utilCmd struct {
	Snapshot utilSnapshotCmd `cmd:"" help:"Snapshot the working copy if it changed"`
}

type utilSnapshotCmd struct{}

func (cmd *utilSnapshotCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	result, err := repo.Snapshot(ctx)
	if err != nil {
		return err
	}

	if !result.Changed {
		log.Info("Working copy unchanged; nothing to snapshot.")
		return nil
	}
	log.Info("Snapshotted working copy", "commit", result.Commit.String()[:12])
	return nil
}
