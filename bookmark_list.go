package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"text/tabwriter"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/engine"
	"go.abhg.dev/opvc/internal/oplog"
	"go.abhg.dev/opvc/internal/refsort"
)

type bookmarkListCmd struct {
	Patterns []string `arg:"" optional:"" help:"Glob patterns to filter bookmark names"`

	Sort       []string `help:"Sort keys, most significant first (defaults to ui.bookmark-list-sort-keys)"`
	Conflicted bool     `help:"List only conflicted bookmarks"`
	Tracked    bool     `help:"List only bookmarks with tracked remotes"`
	Untracked  bool     `help:"List only bookmarks without tracked remotes"`
}

func (cmd *bookmarkListCmd) Run(ctx context.Context, log *silog.Logger, opts *globalOptions) error {
	repo, err := openRepo(ctx, opts, log)
	if err != nil {
		return err
	}

	op, err := repo.CurrentOp(ctx)
	if err != nil {
		return err
	}

	items, err := collectRefItems(ctx, repo, op.View.Bookmarks, func(name string) []oplog.NamedRemoteRef {
		return op.View.Bookmark(name).Remotes
	}, refFilter{
		patterns:   cmd.Patterns,
		conflicted: cmd.Conflicted,
		tracked:    cmd.Tracked,
		untracked:  cmd.Untracked,
	})
	if err != nil {
		return err
	}

	sortKeys := cmd.Sort
	if len(sortKeys) == 0 {
		sortKeys = repo.Config.UI.BookmarkListSortKeys
	}
	keys, err := refsort.ParseKeys(sortKeys)
	if err != nil {
		return err
	}
	refsort.Sort(items, keys)

	return printRefItems(items)
}

// refFilter selects which refs a listing shows.
type refFilter struct {
	patterns   []string
	conflicted bool
	tracked    bool
	untracked  bool
}

func (f refFilter) matchName(name string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// collectRefItems builds the sortable listing rows for refs, already
// sorted by name: the precondition [refsort.Sort] requires. remotesOf
// is nil for ref kinds that have no remote counterpart (tags).
func collectRefItems(ctx context.Context, repo *engine.Repo, refs map[string]oplog.RefTarget, remotesOf func(string) []oplog.NamedRemoteRef, filter refFilter) ([]refsort.RefListItem, error) {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	var items []refsort.RefListItem
	for _, name := range names {
		rt := refs[name]
		if !filter.matchName(name) {
			continue
		}
		if filter.conflicted && rt.IsResolved() {
			continue
		}

		var tracked []string
		if remotesOf != nil {
			for _, remote := range remotesOf(name) {
				if remote.Tracked {
					tracked = append(tracked, remote.Remote)
				}
			}
		}
		if filter.tracked && len(tracked) == 0 {
			continue
		}
		if filter.untracked && len(tracked) > 0 {
			continue
		}
		sort.Strings(tracked)

		item := refsort.RefListItem{Name: name, Tracked: tracked}
		if target, ok := rt.Resolve(); ok && len(target) > 0 {
			c, err := repo.Objects.Commit(ctx, target)
			if err != nil {
				return nil, fmt.Errorf("load target of %q: %w", name, err)
			}
			item.Author = signatureOf(c.Author)
			item.Committer = signatureOf(c.Committer)
		}
		items = append(items, item)
	}
	return items, nil
}

func signatureOf(sig commit.Signature) *refsort.Signature {
	return &refsort.Signature{Name: sig.Name, Email: sig.Email, Time: sig.Time}
}

func printRefItems(items []refsort.RefListItem) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, item := range items {
		remotes := ""
		for i, r := range item.Tracked {
			if i > 0 {
				remotes += ","
			}
			remotes += "@" + r
		}

		author := ""
		if item.Committer != nil {
			author = item.Committer.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Name, remotes, author)
	}
	return w.Flush()
}
