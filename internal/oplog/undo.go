package oplog

import (
	"context"
	"errors"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
)

// ErrNothingToRedo is returned by [Store.Redo] when the most recent
// operation on the active chain is not an undo, so there is nothing
// to invert.
var ErrNothingToRedo = errors.New("nothing to redo")

// Undo creates a new operation whose view equals the view of op's
// first parent, tagged so the undo/redo stack walker recognizes it.
// Undoing an undo skips to the parent of the most recent
// non-undo-non-revert operation on the active chain, so that repeated
// undo calls walk steadily backwards instead of flip-flopping between
// an operation and its own undo.
func (s *Store) Undo(ctx context.Context, op ids.OperationId, meta Metadata) (ids.OperationId, error) {
	target, err := s.lastNonUndoAncestor(ctx, op)
	if err != nil {
		return nil, err
	}

	if target.IsRoot() {
		return nil, errors.New("nothing to undo")
	}

	parent, err := s.backend.ReadOperation(ctx, target.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", target.Parents[0], err)
	}

	meta.Tag = TagUndo
	return s.Append(ctx, parent.View, meta)
}

// Redo inverts the most recent undo operation on the active chain. It
// returns [ErrNothingToRedo] if the chain's tip is not an undo.
func (s *Store) Redo(ctx context.Context, op ids.OperationId, meta Metadata) (ids.OperationId, error) {
	tip, err := s.backend.ReadOperation(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", op, err)
	}
	if tip.Metadata.Tag != TagUndo {
		return nil, ErrNothingToRedo
	}

	// The undo's own parent is the operation it undid; redo restores
	// the view that operation itself produced.
	undone, err := s.backend.ReadOperation(ctx, tip.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", tip.Parents[0], err)
	}

	meta.Tag = TagNone
	return s.Append(ctx, undone.View, meta)
}

// Revert creates a new operation whose view equals op's first
// parent's view, the same effect as [Store.Undo], but tagged so the
// undo/redo stack walker never recognizes or chains through it.
func (s *Store) Revert(ctx context.Context, op ids.OperationId, meta Metadata) (ids.OperationId, error) {
	target, err := s.backend.ReadOperation(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", op, err)
	}
	if target.IsRoot() {
		return nil, errors.New("nothing to revert")
	}

	parent, err := s.backend.ReadOperation(ctx, target.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", target.Parents[0], err)
	}

	meta.Tag = TagRevert
	return s.Append(ctx, parent.View, meta)
}

// lastNonUndoAncestor walks op and its ancestors along the first
// parent, skipping undo operations together with the operation each
// one undid, until it finds one that is not tagged undo (or revert —
// reverts do not chain either, so an undo issued right after a revert
// must skip past it too).
func (s *Store) lastNonUndoAncestor(ctx context.Context, op ids.OperationId) (Operation, error) {
	current, err := s.backend.ReadOperation(ctx, op)
	if err != nil {
		return Operation{}, fmt.Errorf("read operation %s: %w", op, err)
	}

	for current.Metadata.Tag == TagUndo || current.Metadata.Tag == TagRevert {
		if current.IsRoot() {
			return current, nil
		}
		// An undo's parent is the operation it undid, which is no
		// longer on the active chain: skip past it as well.
		skip := 1
		if current.Metadata.Tag == TagUndo {
			skip = 2
		}
		for ; skip > 0 && !current.IsRoot(); skip-- {
			parentID := current.Parents[0]
			current, err = s.backend.ReadOperation(ctx, parentID)
			if err != nil {
				return Operation{}, fmt.Errorf("read operation %s: %w", parentID, err)
			}
		}
	}
	return current, nil
}
