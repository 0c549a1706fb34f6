// Package oplog implements the operation log: the append-only DAG of
// operations that records every mutation to repository state, the
// operation-heads store that tracks its current tip set, and the
// reconciliation procedure that runs when concurrent writers race.
package oplog

import (
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// RefTarget is the commit a ref (bookmark or tag) points to: either a
// single resolved [ids.CommitId], or an odd-sided merge of them when
// two operations moved the ref to different commits without one
// being based on the other.
type RefTarget struct {
	value merge.Merge[ids.CommitId]
}

// ResolvedRef returns a RefTarget pointing unambiguously at id.
func ResolvedRef(id ids.CommitId) RefTarget {
	return RefTarget{value: merge.Resolved(id)}
}

// NewConflictedRefTarget builds a RefTarget directly from its
// odd-sided add/remove terms, for backends decoding a ref that was
// already conflicted when it was persisted.
func NewConflictedRefTarget(adds, removes []ids.CommitId) RefTarget {
	return RefTarget{value: merge.New(adds, removes)}
}

// Value returns the underlying merge of commit ids.
func (t RefTarget) Value() merge.Merge[ids.CommitId] { return t.value }

// IsResolved reports whether the ref has no conflict.
func (t RefTarget) IsResolved() bool { return t.value.IsResolved() }

// Resolve returns the commit id, and true, if the ref is resolved.
func (t RefTarget) Resolve() (ids.CommitId, bool) { return t.value.Resolve() }

// mergeRefTargets three-way merges two RefTargets against their
// common ancestor value, the same way [go.abhg.dev/opvc/internal/tree.MergeTrees]
// three-way merges trees: left − base + right, simplified.
//
// Before running the general algebra, it short-circuits the common
// cases a ref move actually hits: if only one side changed the ref
// from base, that side wins outright; if both sides moved it to the
// same place, that place wins outright. Without this, "both sides set
// it to X" would simplify to the structurally-irreducible
// X − base + X instead of the single value X, since Simplify only
// cancels an add against an *adjacent* remove, never two adds against
// each other.
func mergeRefTargets(base, left, right RefTarget) RefTarget {
	if l, ok := left.Resolve(); ok {
		if r, ok2 := right.Resolve(); ok2 && l.Equal(r) {
			return left
		}
	}
	if b, ok := base.Resolve(); ok {
		if r, ok2 := right.Resolve(); ok2 && b.Equal(r) {
			return left
		}
		if l, ok2 := left.Resolve(); ok2 && b.Equal(l) {
			return right
		}
	}

	merged := merge.Merge3(base.value, left.value, right.value)
	return RefTarget{value: merge.Simplify(merged, ids.CommitId.Equal)}
}

// RemoteRef is the state of a bookmark as last seen on a remote.
type RemoteRef struct {
	Target  RefTarget
	Tracked bool
}

// BookmarkTarget combines a bookmark's local target with whatever is
// known of it on each remote. It is a read-only, derived view: the
// operation log itself stores the local and remote sides separately
// (in [View.Bookmarks] and [View.RemoteBookmarks]) so that each can be
// merged independently during reconciliation.
type BookmarkTarget struct {
	Local   RefTarget
	Remotes []NamedRemoteRef
}

// NamedRemoteRef pairs a remote name with the bookmark state on it.
type NamedRemoteRef struct {
	Remote string
	RemoteRef
}

// RemoteBookmarkKey identifies a bookmark on a specific remote.
type RemoteBookmarkKey struct {
	Remote string
	Name   string
}

// View is the repository-state snapshot captured at one operation:
// the working-copy commit of every workspace, every local bookmark and
// tag's target, and the last-known state of every remote bookmark.
type View struct {
	Workspaces      map[string]ids.CommitId
	Bookmarks       map[string]RefTarget
	RemoteBookmarks map[RemoteBookmarkKey]RemoteRef
	Tags            map[string]RefTarget
}

// NewView returns an empty, ready-to-populate View.
func NewView() View {
	return View{
		Workspaces:      make(map[string]ids.CommitId),
		Bookmarks:       make(map[string]RefTarget),
		RemoteBookmarks: make(map[RemoteBookmarkKey]RemoteRef),
		Tags:            make(map[string]RefTarget),
	}
}

// Bookmark combines a bookmark's local and remote entries into one
// [BookmarkTarget], for callers (such as bookmark advancement) that
// want both sides together.
func (v View) Bookmark(name string) BookmarkTarget {
	bt := BookmarkTarget{Local: v.Bookmarks[name]}
	for key, ref := range v.RemoteBookmarks {
		if key.Name == name {
			bt.Remotes = append(bt.Remotes, NamedRemoteRef{Remote: key.Remote, RemoteRef: ref})
		}
	}
	return bt
}

// clone returns a deep-enough copy of v for a reconciler to mutate
// without aliasing the original maps.
func (v View) clone() View {
	out := NewView()
	for k, val := range v.Workspaces {
		out.Workspaces[k] = val
	}
	for k, val := range v.Bookmarks {
		out.Bookmarks[k] = val
	}
	for k, val := range v.RemoteBookmarks {
		out.RemoteBookmarks[k] = val
	}
	for k, val := range v.Tags {
		out.Tags[k] = val
	}
	return out
}
