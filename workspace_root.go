package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/engine"
)

type workspaceCmd struct {
	Root workspaceRootCmd `cmd:"" help:"Print the root path of a workspace"`
}

type workspaceRootCmd struct {
	Name string `help:"Workspace to look up (defaults to the current one)"`
}

func (cmd *workspaceRootCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	name := cmd.Name
	if name == "" {
		name = engine.DefaultWorkspace
	}

	path, ok, err := repo.Workspaces.GetWorkspacePath(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("workspace %q is not registered", name)
	}

	// Canonicalize: resolve symlinks and normalize the path before
	// printing, so output is stable wherever the command runs from.
	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		canonical = filepath.Clean(path)
	}
	fmt.Println(canonical)
	return nil
}
