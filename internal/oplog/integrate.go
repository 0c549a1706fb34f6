package oplog

import (
	"context"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
)

// Integrate takes a potentially unreferenced operation and inserts it
// into the heads set, replacing whichever of its parents are still
// current heads. If that produces more
// than one head, [Reconcile] runs automatically and the merged
// operation becomes the sole new head. If opID is already referenced
// (it is, or is an ancestor of, a current head), Integrate is a no-op.
//
// A parent that is no longer a current head (because some other
// operation already advanced past it) is left alone rather than
// rejected: opID simply joins the head set as an additional,
// previously-unreferenced concurrent head, to be folded in by the
// same reconciliation pass.
func (s *Store) Integrate(ctx context.Context, opID ids.OperationId, changeIDs ChangeIDResolver, rebaser DescendantRebaser) (ReconcileResult, error) {
	heads, token, err := s.backend.ReadHeads(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("read heads: %w", err)
	}

	op, err := s.backend.ReadOperation(ctx, opID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("read operation %s: %w", opID, err)
	}

	for _, h := range heads {
		ancestors, err := ancestorSet(ctx, s.backend, h)
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("walk ancestors of %s: %w", h, err)
		}
		if _, ok := ancestors[string(opID)]; ok {
			return ReconcileResult{View: op.View}, nil
		}
	}

	newHeads := replaceOperationIDs(heads, op.Parents, opID)

	if len(newHeads) <= 1 {
		if err := s.backend.WriteHeads(ctx, newHeads, token); err != nil {
			return ReconcileResult{}, fmt.Errorf("write heads: %w", err)
		}
		return ReconcileResult{View: op.View, Divergent: map[ids.ChangeId][]ids.CommitId{}}, nil
	}

	result, err := Reconcile(ctx, s.backend, newHeads, changeIDs, rebaser)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", err)
	}

	mergedID, err := s.backend.WriteOperation(ctx, Operation{
		Parents:  newHeads,
		View:     result.View,
		Metadata: Metadata{Description: "merge concurrent operations"},
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("write merged operation: %w", err)
	}

	if err := s.backend.WriteHeads(ctx, []ids.OperationId{mergedID}, token); err != nil {
		return ReconcileResult{}, fmt.Errorf("write heads: %w", err)
	}

	return result, nil
}

func containsOperationID(list []ids.OperationId, id ids.OperationId) bool {
	for _, x := range list {
		if x.Equal(id) {
			return true
		}
	}
	return false
}

func replaceOperationIDs(heads []ids.OperationId, toRemove []ids.OperationId, with ids.OperationId) []ids.OperationId {
	out := make([]ids.OperationId, 0, len(heads))
	for _, h := range heads {
		if containsOperationID(toRemove, h) {
			continue
		}
		out = append(out, h)
	}
	out = append(out, with)
	return out
}
