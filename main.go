// opvc is a version-control engine built around an append-only
// operation log, a commit DAG whose trees can carry unresolved
// conflicts as data, and deterministic reconciliation of concurrent
// repository mutations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/bookmark"
	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/gerrit"
	"go.abhg.dev/opvc/internal/oplog"
	"go.abhg.dev/opvc/internal/secureconfig"
	"go.abhg.dev/opvc/internal/snapshot"
)

// Exit codes: 0 on success, 1 on user error, 255 on internal error.
const (
	exitOK       = 0
	exitUser     = 1
	exitInternal = 255
)

func main() {
	log := silog.New(os.Stderr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		log.Warn("Cleaning up. Press Ctrl-C again to exit immediately.")
		cancel()
	}()

	var cmd rootCmd
	kctx := kong.Parse(
		&cmd,
		kong.Name("opvc"),
		kong.Description("opvc manages a repository as an operation log over a conflict-carrying commit DAG."),
		kong.Bind(log, &cmd.globalOptions),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
	)

	if err := kctx.Run(); err != nil {
		if errors.Is(err, errCanceled) {
			fmt.Fprintln(os.Stderr, "Canceled.")
			os.Exit(exitUser)
		}
		log.Error(err.Error())
		if isUserError(err) {
			os.Exit(exitUser)
		}
		os.Exit(exitInternal)
	}
	os.Exit(exitOK)
}

// isUserError separates bad input and refused-but-well-formed
// requests from genuine internal failures.
func isUserError(err error) bool {
	switch {
	case errors.Is(err, engine.ErrNotARepo),
		errors.Is(err, oplog.ErrNothingToRedo):
		return true
	}

	var (
		badID       *secureconfig.BadConfigIdError
		notFF       *bookmark.NotFastForwardError
		noDesc      *gerrit.MissingDescriptionError
		emptyCommit *gerrit.EmptyCommitError
		tooLarge    *snapshot.NewFilesTooLargeError
		badRevset   *engine.UnsupportedRevsetError
		ambiguous   *engine.AmbiguousRevsetError
	)
	return errors.As(err, &badID) ||
		errors.As(err, &notFF) ||
		errors.As(err, &noDesc) ||
		errors.As(err, &emptyCommit) ||
		errors.As(err, &tooLarge) ||
		errors.As(err, &badRevset) ||
		errors.As(err, &ambiguous)
}
