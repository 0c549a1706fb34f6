package oplog

import (
	"context"
	"fmt"
	"sort"

	"go.abhg.dev/opvc/internal/ids"
)

// Walk lists operations reachable from heads, newest first: every
// operation appears after all of its children, and ties between
// concurrent operations break on their timestamps (newer first) so
// the listing is stable for a given log.
func Walk(ctx context.Context, backend Backend, heads []ids.OperationId) ([]Operation, error) {
	loaded := make(map[string]Operation)
	children := make(map[string]int)

	queue := append([]ids.OperationId(nil), heads...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := loaded[string(id)]; ok {
			continue
		}

		op, err := backend.ReadOperation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read operation %s: %w", id, err)
		}
		loaded[string(id)] = op
		for _, p := range op.Parents {
			children[string(p)]++
			queue = append(queue, p)
		}
	}

	// Kahn's algorithm from the heads down: an operation is emitted
	// once every loaded child has been emitted before it.
	frontier := make([]Operation, 0, len(heads))
	for _, h := range heads {
		if op, ok := loaded[string(h)]; ok && children[string(h)] == 0 {
			frontier = append(frontier, op)
		}
	}
	sortOps(frontier)

	var out []Operation
	emitted := make(map[string]struct{})
	for len(frontier) > 0 {
		op := frontier[0]
		frontier = frontier[1:]
		if _, ok := emitted[string(op.ID)]; ok {
			continue
		}
		emitted[string(op.ID)] = struct{}{}
		out = append(out, op)

		var ready []Operation
		for _, p := range op.Parents {
			children[string(p)]--
			if children[string(p)] == 0 {
				if parent, ok := loaded[string(p)]; ok {
					ready = append(ready, parent)
				}
			}
		}
		sortOps(ready)
		frontier = append(frontier, ready...)
	}
	return out, nil
}

func sortOps(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Metadata.Time.After(ops[j].Metadata.Time)
	})
}
