package tree

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/merge"
)

// SideBuilder is an ordinary, non-merged tree builder rooted at one
// base tree. One is instantiated per side of the widest merge involved
// in a [MergedTreeBuilder.Build] call. It is the narrow interface the
// algebra needs from a backend's tree-writing primitive. A git-backed
// store implements it on top of `git read-tree` / `update-index` /
// `write-tree`; the built-in store edits its flat tree encoding in
// memory.
type SideBuilder interface {
	// Set stages an override at path. An Absent entry deletes the
	// path.
	Set(path string, entry Entry) error

	// Write flushes staged overrides and returns the resulting tree.
	Write(ctx context.Context) (ids.TreeId, error)
}

// Backend is the narrow set of tree-store operations the
// [MergedTreeBuilder] needs from an object store.
type Backend interface {
	// EmptyTreeID returns the id of the canonical empty tree, used to
	// pad a base tree's sides. Overrides are padded with [AbsentEntry]
	// instead.
	EmptyTreeID() ids.TreeId

	// NewSideBuilder opens a [SideBuilder] rooted at base.
	NewSideBuilder(ctx context.Context, base ids.TreeId) (SideBuilder, error)
}

// Override is a per-path change to apply to a [MergedTree]. It is
// itself an odd-sided merge so that an override can introduce,
// propagate, or resolve a conflict at that single path.
type Override struct {
	Path  string
	Value merge.Merge[Entry]
}

// MergedTreeBuilder composes a set of per-path overrides onto a base
// [MergedTree] to produce a new one: pad
// everything to the widest arity in play, apply each side's overrides
// to an ordinary tree builder for that side, then recombine and
// simplify the resulting per-side tree ids.
type MergedTreeBuilder struct {
	backend   Backend
	base      MergedTree
	overrides []Override
}

// NewMergedTreeBuilder starts a builder for overrides on top of base.
func NewMergedTreeBuilder(backend Backend, base MergedTree) *MergedTreeBuilder {
	return &MergedTreeBuilder{backend: backend, base: base}
}

// SetOrReplace stages value as the override at path. If path was
// already staged, the earlier override is replaced.
func (b *MergedTreeBuilder) SetOrReplace(path string, value merge.Merge[Entry]) {
	for i, ov := range b.overrides {
		if ov.Path == path {
			b.overrides[i].Value = value
			return
		}
	}
	b.overrides = append(b.overrides, Override{Path: path, Value: value})
}

// Remove stages the removal of path: equivalent to overriding it with
// a resolved Absent entry.
func (b *MergedTreeBuilder) Remove(path string) {
	b.SetOrReplace(path, merge.Resolved(AbsentEntry))
}

// Build applies all staged overrides and returns the resulting tree.
func (b *MergedTreeBuilder) Build(ctx context.Context) (MergedTree, error) {
	n := b.base.NumSides()
	for _, ov := range b.overrides {
		if w := ov.Value.NumSides(); w > n {
			n = w
		}
	}

	emptyTree := b.backend.EmptyTreeID()
	baseSides := b.base.Value().PadTo(n, emptyTree).Values()

	builders := make([]SideBuilder, n)
	for i, baseID := range baseSides {
		sb, err := b.backend.NewSideBuilder(ctx, baseID)
		if err != nil {
			return MergedTree{}, fmt.Errorf("start side %d: %w", i, err)
		}
		builders[i] = sb
	}

	for _, ov := range b.overrides {
		if resolved, ok := ov.Value.Resolve(); ok {
			// A resolved override applies identically to every side:
			// every side of the result must contain the
			// non-conflicted paths of whatever it's based on.
			for i, sb := range builders {
				if err := sb.Set(ov.Path, resolved); err != nil {
					return MergedTree{}, fmt.Errorf("side %d: set %q: %w", i, ov.Path, err)
				}
			}
			continue
		}

		padded := ov.Value.PadTo(n, AbsentEntry).Values()
		for i, entry := range padded {
			if err := builders[i].Set(ov.Path, entry); err != nil {
				return MergedTree{}, fmt.Errorf("side %d: set %q: %w", i, ov.Path, err)
			}
		}
	}

	newSides := make([]ids.TreeId, n)
	for i, sb := range builders {
		id, err := sb.Write(ctx)
		if err != nil {
			return MergedTree{}, fmt.Errorf("write side %d: %w", i, err)
		}
		newSides[i] = id
	}

	result := rebuildMerge(newSides)
	simplified := result.Simplify()

	if simplified.NumSides() != b.base.NumSides() {
		// Arity changed: conflict labels, if any, no longer line up.
		simplified = MergedTree{value: simplified.value}
	} else {
		simplified = MergedTree{value: simplified.value, labels: b.base.labels}
	}

	return simplified, nil
}

// rebuildMerge reassembles the N per-side tree ids (all "positive"
// results of the N independent side-builders) into an N-sided Merge:
// sides alternate positive/negative following the same a₀,b₁,a₁,b₂,…
// pattern as the base merge they came from.
func rebuildMerge(sides []ids.TreeId) MergedTree {
	adds := make([]ids.TreeId, 0, (len(sides)+1)/2)
	removes := make([]ids.TreeId, 0, len(sides)/2)
	for i, id := range sides {
		if i%2 == 0 {
			adds = append(adds, id)
		} else {
			removes = append(removes, id)
		}
	}
	return MergedTree{value: merge.New(adds, removes)}
}
