package engine

import (
	"context"
	"fmt"

	"go.abhg.dev/container/ring"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
)

// ViewRebaser propagates commit rewrites to their descendants in the
// object store. It implements [oplog.DescendantRebaser] for both the
// reconciliation path and the arrange apply path: each call rebases
// every not-yet-rewritten descendant of the rewritten commits, and
// the accumulated old-to-new translations are applied to a view once
// the rewriting is done.
type ViewRebaser struct {
	Objects *Store

	// Heads are the commits to search for descendants under:
	// typically every commit referenced by the views in play.
	Heads []ids.CommitId

	translations map[string]ids.CommitId
}

// Translations returns every old-to-new mapping accumulated so far,
// both the rewrites fed in and the descendant rebases performed.
func (b *ViewRebaser) Translations() map[string]ids.CommitId {
	return b.translations
}

// RebaseDescendants rewrites every descendant (under [ViewRebaser.Heads])
// of the commits in rewritten onto the rewritten ids, walking the
// commit DAG forward from the lowest rewritten commits so each
// descendant is rewritten exactly once. It returns how many
// descendants were rebased.
func (b *ViewRebaser) RebaseDescendants(ctx context.Context, rewritten map[string]ids.CommitId) (rebased int, err error) {
	if b.translations == nil {
		b.translations = make(map[string]ids.CommitId)
	}
	for old, newID := range rewritten {
		b.translations[old] = newID
	}

	children, err := b.childrenMap(ctx)
	if err != nil {
		return 0, err
	}

	// Collect every not-yet-translated descendant of the rewritten
	// commits, then count, for each, how many of its parents are also
	// affected. Processing only commits whose affected parents are all
	// done gives forward topological order; a merge commit with two
	// rewritten ancestors is rebased once, after both.
	affected := make(map[string]commit.Commit)
	var discover ring.Q[string]
	for old := range rewritten {
		discover.Push(old)
	}
	for !discover.Empty() {
		old := discover.Pop()
		for _, childID := range children[old] {
			key := childID.String()
			if _, done := b.translations[key]; done {
				continue
			}
			if _, ok := affected[key]; ok {
				continue
			}
			child, err := b.Objects.Commit(ctx, childID)
			if err != nil {
				return 0, fmt.Errorf("load descendant %s: %w", childID, err)
			}
			affected[key] = child
			discover.Push(key)
		}
	}

	pendingParents := make(map[string]int, len(affected))
	for key, c := range affected {
		for _, p := range c.Parents {
			if _, ok := affected[p.String()]; ok {
				pendingParents[key]++
			}
		}
	}

	var ready ring.Q[string]
	for key := range affected {
		if pendingParents[key] == 0 {
			ready.Push(key)
		}
	}

	for !ready.Empty() {
		key := ready.Pop()
		child := affected[key]

		newParents := make([]ids.CommitId, len(child.Parents))
		for i, p := range child.Parents {
			if t, ok := b.translations[p.String()]; ok {
				newParents[i] = t
			} else {
				newParents[i] = p
			}
		}

		rewriter := commit.NewRewriter(b.Objects, b.Objects, child, newParents)
		if rewriter.ParentsChanged() {
			builder, err := rewriter.Rebase(ctx)
			if err != nil {
				return rebased, fmt.Errorf("rebase %s: %w", key, err)
			}
			written, err := builder.Write(ctx)
			if err != nil {
				return rebased, fmt.Errorf("write rebase of %s: %w", key, err)
			}
			b.translations[key] = written.ID
			rebased++
		}

		for _, childID := range children[key] {
			ck := childID.String()
			if _, ok := affected[ck]; !ok {
				continue
			}
			pendingParents[ck]--
			if pendingParents[ck] == 0 {
				ready.Push(ck)
			}
		}
	}
	return rebased, nil
}

// childrenMap walks the ancestry of every head and inverts the parent
// relation.
func (b *ViewRebaser) childrenMap(ctx context.Context) (map[string][]ids.CommitId, error) {
	children := make(map[string][]ids.CommitId)
	seen := make(map[string]struct{})

	var q ring.Q[ids.CommitId]
	for _, h := range b.Heads {
		q.Push(h)
	}
	for !q.Empty() {
		id := q.Pop()
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}

		c, err := b.Objects.Commit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		for _, p := range c.Parents {
			children[p.String()] = append(children[p.String()], id)
			q.Push(p)
		}
	}
	return children, nil
}

// Apply retargets every commit pointer in v through the accumulated
// translations, so refs follow the rewrites of the commits they
// pointed at.
func (b *ViewRebaser) Apply(v *oplog.View) {
	if len(b.translations) == 0 {
		return
	}

	for name, c := range v.Workspaces {
		if t, ok := b.translations[c.String()]; ok {
			v.Workspaces[name] = t
		}
	}
	for name, rt := range v.Bookmarks {
		v.Bookmarks[name] = b.translateRef(rt)
	}
	for name, rt := range v.Tags {
		v.Tags[name] = b.translateRef(rt)
	}
	for key, ref := range v.RemoteBookmarks {
		ref.Target = b.translateRef(ref.Target)
		v.RemoteBookmarks[key] = ref
	}
}

func (b *ViewRebaser) translateRef(rt oplog.RefTarget) oplog.RefTarget {
	translate := func(id ids.CommitId) ids.CommitId {
		if t, ok := b.translations[id.String()]; ok {
			return t
		}
		return id
	}

	if resolved, ok := rt.Resolve(); ok {
		if t := translate(resolved); !t.Equal(resolved) {
			return oplog.ResolvedRef(t)
		}
		return rt
	}

	adds := rt.Value().Added()
	removes := rt.Value().Removed()
	newAdds := make([]ids.CommitId, len(adds))
	for i, id := range adds {
		newAdds[i] = translate(id)
	}
	newRemoves := make([]ids.CommitId, len(removes))
	for i, id := range removes {
		newRemoves[i] = translate(id)
	}
	return oplog.NewConflictedRefTarget(newAdds, newRemoves)
}

// ViewHeads collects every commit a view references, for seeding
// [ViewRebaser.Heads].
func ViewHeads(views ...oplog.View) []ids.CommitId {
	var out []ids.CommitId
	seen := make(map[string]struct{})
	add := func(id ids.CommitId) {
		if len(id) == 0 {
			return
		}
		if _, ok := seen[string(id)]; ok {
			return
		}
		seen[string(id)] = struct{}{}
		out = append(out, id)
	}

	for _, v := range views {
		for _, c := range v.Workspaces {
			add(c)
		}
		for _, rt := range v.Bookmarks {
			for _, c := range rt.Value().Values() {
				add(c)
			}
		}
		for _, rt := range v.Tags {
			for _, c := range rt.Value().Values() {
				add(c)
			}
		}
		for _, ref := range v.RemoteBookmarks {
			for _, c := range ref.Target.Value().Values() {
				add(c)
			}
		}
	}
	return out
}
