package main

import (
	"context"

	"go.abhg.dev/log/silog"
)

type redoCmd struct{}

func (cmd *redoCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	current, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}

	newID, err := repo.Oplog.Redo(ctx, current.ID, repo.NewMetadata("redo"))
	if err != nil {
		return err
	}

	log.Info("Redid operation", "new", newID.String()[:12])
	return nil
}
