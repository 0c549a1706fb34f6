package main

import (
	"context"
	"errors"

	"github.com/alecthomas/kong"
	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/engine"
)

// errCanceled reports that the user backed out of an interactive
// command; the repository was not touched.
var errCanceled = errors.New("canceled")

type globalOptions struct {
	// Dir is the directory commands open or initialize the repository
	// from, in place of the current directory; the process does not
	// change its working directory.
	Dir string `short:"C" placeholder:"DIR" help:"Run as if started in DIR"`
}

type rootCmd struct {
	globalOptions

	Verbose bool `short:"v" help:"Enable verbose output"`

	Repo      repoCmd      `cmd:"" group:"Repository"`
	Arrange   arrangeCmd   `cmd:"" group:"Commits" help:"Interactively rearrange commits"`
	Bookmark  bookmarkCmd  `cmd:"" group:"Refs"`
	Tag       tagCmd       `cmd:"" group:"Refs"`
	Op        opCmd        `cmd:"" group:"Operations"`
	Undo      undoCmd      `cmd:"" group:"Operations" help:"Undo the most recent operation"`
	Redo      redoCmd      `cmd:"" group:"Operations" help:"Redo the most recently undone operation"`
	Util      utilCmd      `cmd:"" group:"Utilities"`
	Workspace workspaceCmd `cmd:"" group:"Utilities"`
	Gerrit    gerritCmd    `cmd:"" group:"Review"`

	Version    versionFlag `help:"Print version information and quit"`
	VersionCmd versionCmd  `cmd:"version" name:"version" help:"Print version information"`
}

func (cmd *rootCmd) AfterApply(kctx *kong.Context, log *silog.Logger) error {
	if cmd.Verbose {
		log.SetLevel(silog.LevelDebug)
	}
	return nil
}

// openRepo opens the repository for a command, surfacing any
// secure-config repairs as warnings first.
func openRepo(ctx context.Context, opts *globalOptions, log *silog.Logger) (*engine.Repo, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	repo, err := engine.Open(ctx, dir, log)
	if err != nil {
		return nil, err
	}
	for _, w := range repo.ConfigWarnings {
		log.Warn(w.Message)
	}
	return repo, nil
}
