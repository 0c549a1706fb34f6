package main

import (
	"context"

	"go.abhg.dev/log/silog"
)

type undoCmd struct {
	// Op is deprecated: `undo OP` restores an arbitrary operation's
	// state, which is what `op revert` does. It is accepted for
	// compatibility and handled exactly like `op revert OP`.
	Op string `arg:"" optional:"" help:"Deprecated: use 'op revert OP' instead"`
}

func (cmd *undoCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	if cmd.Op != "" {
		log.Warn("undo with an operation argument is deprecated; use 'op revert' instead")
		revert := opRevertCmd{Op: cmd.Op}
		return revert.Run(ctx, log, opts)
	}

	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	current, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}

	newID, err := repo.Oplog.Undo(ctx, current.ID, repo.NewMetadata("undo operation "+current.ID.String()))
	if err != nil {
		return err
	}

	log.Info("Undid operation", "operation", current.ID.String()[:12], "new", newID.String()[:12])
	return nil
}
