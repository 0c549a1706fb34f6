// Package bookmark implements bookmark advancement:
// moving one or more bookmarks forward to a resolved target commit,
// enforcing fast-forward-only moves in a single transaction.
package bookmark

import (
	"context"
	"fmt"
	"sort"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

// Repo is the narrow set of operations [Advance] needs from the
// surrounding engine: revset resolution, ancestry queries, the
// current bookmark state, and the single-transaction move itself.
type Repo interface {
	// ResolveSingle resolves revset to exactly one commit. It must
	// error if revset is ambiguous (resolves to zero or more than one
	// commit).
	ResolveSingle(ctx context.Context, revset string) (ids.CommitId, error)

	// ResolveSet evaluates revset with the bound variable `to` set to
	// target, returning every commit the expression resolves to.
	ResolveSet(ctx context.Context, revset string, to ids.CommitId) ([]ids.CommitId, error)

	// IsAncestor reports whether ancestor is an ancestor of (or equal
	// to) descendant.
	IsAncestor(ctx context.Context, ancestor, descendant ids.CommitId) (bool, error)

	// Bookmarks returns the current local bookmark targets.
	Bookmarks(ctx context.Context) (map[string]oplog.RefTarget, error)

	// IsDiscardable reports whether commit is empty (no changes of its
	// own) and has no description, the condition the caller warns
	// about after a move.
	IsDiscardable(ctx context.Context, commit ids.CommitId) (bool, error)

	// MoveBookmarks moves every named bookmark to its paired target,
	// as a single transaction: all of it lands in one operation, or
	// none of it does.
	MoveBookmarks(ctx context.Context, moves map[string]ids.CommitId) error
}

// NotFastForwardError reports that a candidate bookmark could not be
// advanced because its current target is not an ancestor of the new
// target.
type NotFastForwardError struct {
	Bookmark string
	Target   ids.CommitId
}

func (e *NotFastForwardError) Error() string {
	return fmt.Sprintf("bookmark %q is not an ancestor of %s: not a fast-forward", e.Bookmark, e.Target)
}

// Result reports what [Advance] did.
type Result struct {
	// Moved lists the bookmarks that were advanced, and to what.
	Moved map[string]ids.CommitId
	// TargetDiscardable is true if the resolved target commit is
	// empty and has no description.
	TargetDiscardable bool
}

// Advance moves bookmarks forward: resolve the target, evaluate
// the from-expression against it, select candidate bookmarks, reject
// the whole operation if any candidate isn't a fast-forward, and
// otherwise move every remaining candidate to the target in one
// transaction.
//
// names, if non-empty, restricts the candidate set to bookmarks with
// those names; an empty names selects every bookmark the
// from-expression reaches.
func Advance(ctx context.Context, repo Repo, targetRevset, fromRevset string, names []string) (Result, error) {
	target, err := repo.ResolveSingle(ctx, targetRevset)
	if err != nil {
		return Result{}, fmt.Errorf("resolve target %q: %w", targetRevset, err)
	}

	from, err := repo.ResolveSet(ctx, fromRevset, target)
	if err != nil {
		return Result{}, fmt.Errorf("resolve from-expression %q: %w", fromRevset, err)
	}
	inFrom := make(map[string]struct{}, len(from))
	for _, c := range from {
		inFrom[c.String()] = struct{}{}
	}

	bookmarks, err := repo.Bookmarks(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list bookmarks: %w", err)
	}

	var wantNames map[string]struct{}
	if len(names) > 0 {
		wantNames = make(map[string]struct{}, len(names))
		for _, n := range names {
			wantNames[n] = struct{}{}
		}
	}

	candidates := map[string]oplog.RefTarget{}
	for name, rt := range bookmarks {
		if wantNames != nil {
			if _, ok := wantNames[name]; !ok {
				continue
			}
		}
		if !targetsIntersect(rt, inFrom) {
			continue
		}
		if resolved, ok := rt.Resolve(); ok && resolved.Equal(target) {
			continue // already at target: no-op
		}
		candidates[name] = rt
	}

	// Fast-forward check, in a stable order so "the first failing
	// name" is deterministic rather than map-iteration-order flaky.
	for _, name := range sortedKeys(candidates) {
		rt := candidates[name]
		for _, c := range rt.Value().Added() {
			ok, err := repo.IsAncestor(ctx, c, target)
			if err != nil {
				return Result{}, fmt.Errorf("check ancestry of %q: %w", name, err)
			}
			if !ok {
				return Result{}, &NotFastForwardError{Bookmark: name, Target: target}
			}
		}
	}

	moves := make(map[string]ids.CommitId, len(candidates))
	for name := range candidates {
		moves[name] = target
	}
	if len(moves) > 0 {
		if err := repo.MoveBookmarks(ctx, moves); err != nil {
			return Result{}, fmt.Errorf("move bookmarks: %w", err)
		}
	}

	discardable, err := repo.IsDiscardable(ctx, target)
	if err != nil {
		return Result{}, fmt.Errorf("check discardable: %w", err)
	}

	return Result{Moved: moves, TargetDiscardable: discardable}, nil
}

// targetsIntersect reports whether any side of rt's value appears in
// from: a resolved bookmark is a single-element check, a conflicted
// one is tested against every positive side.
func targetsIntersect(rt oplog.RefTarget, from map[string]struct{}) bool {
	for _, c := range rt.Value().Added() {
		if _, ok := from[c.String()]; ok {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]oplog.RefTarget) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
