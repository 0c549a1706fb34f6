package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

// The revset language proper is outside this engine; commands consult
// it only through the expressions configured for them. This resolver
// evaluates the symbols and the built-in default expressions
// structurally: "@", bookmark and tag names, commit id hex prefixes,
// and the shipped defaults for bookmark advancement and arrangement.
// Any other expression is rejected with [UnsupportedRevsetError].

// UnsupportedRevsetError reports a revset expression this build
// cannot evaluate.
type UnsupportedRevsetError struct {
	Revset string
}

func (e *UnsupportedRevsetError) Error() string {
	return fmt.Sprintf("unsupported revset %q", e.Revset)
}

// AmbiguousRevsetError reports a symbol that matched more than one
// commit, or none.
type AmbiguousRevsetError struct {
	Revset  string
	Matches int
}

func (e *AmbiguousRevsetError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("revset %q resolves to no commit", e.Revset)
	}
	return fmt.Sprintf("revset %q is ambiguous: %d matches", e.Revset, e.Matches)
}

// ResolveSingle resolves revset to exactly one commit against view.
func (r *Repo) ResolveSingle(ctx context.Context, view oplog.View, revset string) (ids.CommitId, error) {
	revset = strings.TrimSpace(revset)

	if revset == "@" {
		c, ok := view.Workspaces[DefaultWorkspace]
		if !ok {
			return nil, &AmbiguousRevsetError{Revset: revset}
		}
		return c, nil
	}

	if rt, ok := view.Bookmarks[revset]; ok {
		if c, resolved := rt.Resolve(); resolved {
			return c, nil
		}
		return nil, fmt.Errorf("bookmark %q is conflicted", revset)
	}
	if rt, ok := view.Tags[revset]; ok {
		if c, resolved := rt.Resolve(); resolved {
			return c, nil
		}
		return nil, fmt.Errorf("tag %q is conflicted", revset)
	}

	if isHexPrefix(revset) {
		return r.resolveIDPrefix(ctx, view, revset)
	}

	return nil, &UnsupportedRevsetError{Revset: revset}
}

// resolveIDPrefix matches revset against the ids of every commit
// reachable from view.
func (r *Repo) resolveIDPrefix(ctx context.Context, view oplog.View, prefix string) (ids.CommitId, error) {
	all, err := r.reachableCommits(ctx, view)
	if err != nil {
		return nil, err
	}

	var matches []ids.CommitId
	for _, id := range all {
		if strings.HasPrefix(id.String(), prefix) {
			matches = append(matches, id)
		}
	}
	if len(matches) != 1 {
		return nil, &AmbiguousRevsetError{Revset: prefix, Matches: len(matches)}
	}
	return matches[0], nil
}

// reachableCommits walks the ancestry of everything view references.
func (r *Repo) reachableCommits(ctx context.Context, view oplog.View) ([]ids.CommitId, error) {
	var out []ids.CommitId
	seen := make(map[string]struct{})
	queue := ViewHeads(view)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}
		out = append(out, id)

		c, err := r.Objects.Commit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		queue = append(queue, c.Parents...)
	}
	return out, nil
}

// AdvanceSources evaluates the bookmark-advance "from" expression
// with `to` bound to target. Only the shipped default,
// "heads(::to & bookmarks())", evaluates structurally: every commit
// that is a bookmark target and an ancestor of target. (Advancement
// itself re-checks fast-forwardness per candidate, so including
// non-maximal ancestors here is harmless.)
func (r *Repo) AdvanceSources(ctx context.Context, view oplog.View, revset string, target ids.CommitId) ([]ids.CommitId, error) {
	if strings.TrimSpace(revset) != "heads(::to & bookmarks())" {
		return nil, &UnsupportedRevsetError{Revset: revset}
	}

	var out []ids.CommitId
	seen := make(map[string]struct{})
	for _, rt := range view.Bookmarks {
		for _, c := range rt.Value().Added() {
			if len(c) == 0 {
				continue
			}
			if _, ok := seen[string(c)]; ok {
				continue
			}
			ancestor, err := r.Objects.IsAncestor(ctx, c, target)
			if err != nil {
				return nil, err
			}
			if ancestor {
				seen[string(c)] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// ArrangeSet evaluates the arrange revset against view. The shipped
// default, "reachable(@, mutable())", evaluates structurally: the
// ancestors of the working-copy commit that are not reachable from
// any tag or remote bookmark (those are published, hence immutable).
// Any other expression is taken as a whitespace- or |-separated list
// of symbols, each resolved via [Repo.ResolveSingle].
func (r *Repo) ArrangeSet(ctx context.Context, view oplog.View, revset string) ([]ids.CommitId, error) {
	revset = strings.TrimSpace(revset)

	if revset == "reachable(@, mutable())" {
		return r.mutableAncestorsOfWorkingCopy(ctx, view)
	}

	var out []ids.CommitId
	for _, sym := range strings.FieldsFunc(revset, func(r rune) bool {
		return r == '|' || r == ' ' || r == '\t' || r == ','
	}) {
		c, err := r.ResolveSingle(ctx, view, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repo) mutableAncestorsOfWorkingCopy(ctx context.Context, view oplog.View) ([]ids.CommitId, error) {
	wc, ok := view.Workspaces[DefaultWorkspace]
	if !ok {
		return nil, nil
	}

	immutable := make(map[string]struct{})
	var immutableRoots []ids.CommitId
	for _, rt := range view.Tags {
		immutableRoots = append(immutableRoots, rt.Value().Added()...)
	}
	for _, ref := range view.RemoteBookmarks {
		immutableRoots = append(immutableRoots, ref.Target.Value().Added()...)
	}
	queue := immutableRoots
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if len(id) == 0 {
			continue
		}
		if _, ok := immutable[string(id)]; ok {
			continue
		}
		immutable[string(id)] = struct{}{}
		c, err := r.Objects.Commit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		queue = append(queue, c.Parents...)
	}

	var out []ids.CommitId
	seen := make(map[string]struct{})
	walk := []ids.CommitId{wc}
	for len(walk) > 0 {
		id := walk[0]
		walk = walk[1:]
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}
		if _, ok := immutable[string(id)]; ok {
			continue
		}
		out = append(out, id)

		c, err := r.Objects.Commit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		walk = append(walk, c.Parents...)
	}
	return out, nil
}

func isHexPrefix(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	if err != nil && len(s)%2 == 1 {
		_, err = hex.DecodeString(s[:len(s)-1])
	}
	return err == nil
}
