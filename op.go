package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

type opCmd struct {
	Integrate opIntegrateCmd `cmd:"" help:"Bring an unreferenced operation into the current heads"`
	Revert    opRevertCmd    `cmd:"" help:"Create an operation restoring an earlier operation's state"`
	Log       opLogCmd       `cmd:"" help:"List operations, newest first"`
}

type opIntegrateCmd struct {
	Op string `arg:"" help:"Operation to integrate"`
}

func (cmd *opIntegrateCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	opID, err := parseOperationID(cmd.Op)
	if err != nil {
		return err
	}

	heads, err := repo.Oplog.Heads(ctx)
	if err != nil {
		return err
	}
	views := make([]oplog.View, 0, len(heads)+1)
	for _, h := range append(heads, opID) {
		op, err := repo.Backend.ReadOperation(ctx, h)
		if err != nil {
			return err
		}
		views = append(views, op.View)
	}

	rebaser := &engine.ViewRebaser{Objects: repo.Objects, Heads: engine.ViewHeads(views...)}
	result, err := repo.Oplog.Integrate(ctx, opID, repo, rebaser)
	if err != nil {
		return fmt.Errorf("integrate %s: %w", cmd.Op, err)
	}

	if result.Rebased > 0 {
		log.Infof("Rebased %d descendant commits", result.Rebased)
	}
	for changeID, commits := range result.Divergent {
		log.Warn("Change is divergent",
			"change", changeID.String(),
			"commits", len(commits))
	}
	return nil
}

type opRevertCmd struct {
	Op string `arg:"" optional:"" help:"Operation to revert (defaults to the current one)"`
}

func (cmd *opRevertCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	target, err := resolveOperation(ctx, repo, cmd.Op)
	if err != nil {
		return err
	}

	newID, err := repo.Oplog.Revert(ctx, target, repo.NewMetadata("revert operation "+target.String()))
	if err != nil {
		return err
	}

	log.Info("Reverted operation", "operation", target.String()[:12], "new", newID.String()[:12])
	return nil
}

type opLogCmd struct {
	Limit int `short:"n" default:"20" help:"Show at most this many operations"`
}

func (cmd *opLogCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	heads, err := repo.Oplog.Heads(ctx)
	if err != nil {
		return err
	}

	ops, err := oplog.Walk(ctx, repo.Backend, heads)
	if err != nil {
		return err
	}
	if cmd.Limit > 0 && len(ops) > cmd.Limit {
		ops = ops[:cmd.Limit]
	}

	for _, op := range ops {
		id := op.ID.String()
		if len(id) > 12 {
			id = id[:12]
		}
		desc := op.Metadata.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("%s  %s  %s@%s  %s\n",
			id,
			op.Metadata.Time.Format("2006-01-02 15:04:05"),
			op.Metadata.User,
			op.Metadata.Hostname,
			desc,
		)
	}
	return nil
}

// resolveOperation parses an operation argument, defaulting to the
// current single head.
func resolveOperation(ctx context.Context, repo *engine.Repo, arg string) (ids.OperationId, error) {
	if arg != "" {
		return parseOperationID(arg)
	}
	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return nil, err
	}
	return op.ID, nil
}

func parseOperationID(s string) (ids.OperationId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed operation id %q: %w", s, err)
	}
	return ids.OperationId(b), nil
}
