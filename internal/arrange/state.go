// Package arrange implements the interactive arrangement editor: an
// editable set of commits and their parent relationships, plus the
// topological commit pass that turns an edited arrangement into
// actual rewritten commits.
package arrange

import (
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
)

// ExternalChild is a commit outside the edited set that has at least
// one parent inside it. Its Parents
// are tracked (and editable) alongside the in-set commits so that
// [State.ApplyChanges] can translate them through the rewrite map the
// same way it does for in-set commits.
type ExternalChild struct {
	Commit  ids.CommitId
	Parents []ids.CommitId
}

// CycleError is panicked by [State] recompute when an edit makes the
// in-set parent relation cyclic. The arrange TUI offers no parent
// edits of its own; edits reach [State] only through
// [State.SetParents], and reaching this indicates a bug in the caller
// that made the edit, not a user mistake.
type CycleError struct {
	Commit ids.CommitId
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected at commit %s", e.Commit)
}

// State is the arrange state machine: the commit set under edit, the
// external children E, and the editable per-commit parent lists,
// along with the head_order/current_order views derived from them.
//
// A commit's tracked parent list may include ids outside C — a fixed
// external base a bottom-of-stack commit still needs. Those entries
// carry through [State.ApplyChanges] unchanged; only the in-set
// portion of the list participates in head_order/current_order and in
// cycle detection, since those are properties of C's internal DAG.
//
// The zero value is not usable; construct with [NewState].
type State struct {
	commits  []ids.CommitId
	index    map[string]int // commits[i].String() -> i, for O(1) membership
	external []ExternalChild
	parents  map[string][]ids.CommitId // full lists, in-set and out-of-set

	headOrder    []ids.CommitId
	currentOrder []ids.CommitId
}

// NewState builds the initial arrange state: commits in their input
// order, each starting with its own original full parent list from
// originalParents.
func NewState(commits []ids.CommitId, originalParents map[string][]ids.CommitId, external []ExternalChild) *State {
	s := &State{
		commits:  append([]ids.CommitId(nil), commits...),
		index:    make(map[string]int, len(commits)),
		external: append([]ExternalChild(nil), external...),
		parents:  make(map[string][]ids.CommitId, len(commits)),
	}
	for i, c := range commits {
		s.index[c.String()] = i
	}
	for _, c := range commits {
		s.parents[c.String()] = append([]ids.CommitId(nil), originalParents[c.String()]...)
	}
	s.recompute()
	return s
}

func (s *State) inSet(c ids.CommitId) bool {
	_, ok := s.index[c.String()]
	return ok
}

// Commits returns the edited set, in its original input order.
func (s *State) Commits() []ids.CommitId { return s.commits }

// Parents returns c's current full parent list (in-set and out-of-set
// ids alike). The returned slice must not be mutated; use
// [State.SetParents].
func (s *State) Parents(c ids.CommitId) []ids.CommitId { return s.parents[c.String()] }

// SetParents replaces c's parent list and recomputes
// head_order/current_order. parents may freely mix ids inside and
// outside the edited set; only the in-set entries are checked for
// cycles. SetParents panics with [*CycleError] if the new list
// introduces one.
func (s *State) SetParents(c ids.CommitId, parents []ids.CommitId) {
	if !s.inSet(c) {
		panic(fmt.Sprintf("arrange: %s is not in the edited set", c))
	}
	s.parents[c.String()] = append([]ids.CommitId(nil), parents...)
	s.recompute()
}

// HeadOrder returns the commits in C with no in-set child, in the
// order they appear in C (stable relative to the original input
// order, which is how repeated recomputation keeps "the order they
// first became heads" from reshuffling on every edit).
func (s *State) HeadOrder() []ids.CommitId { return s.headOrder }

// CurrentOrder returns the reverse-topological order (children before
// parents) of C starting from head_order and following only in-set
// parent edges — the order the TUI renders top-to-bottom.
func (s *State) CurrentOrder() []ids.CommitId { return s.currentOrder }

// inSetParents filters c's full parent list down to the ids also
// present in C, the edges that matter for C's internal DAG shape.
func (s *State) inSetParents(c ids.CommitId) []ids.CommitId {
	full := s.parents[c.String()]
	out := make([]ids.CommitId, 0, len(full))
	for _, p := range full {
		if s.inSet(p) {
			out = append(out, p)
		}
	}
	return out
}

// recompute rebuilds head_order and current_order from the current
// parents map. It panics with [*CycleError] if the in-set parent
// relation is not acyclic; no legal edit can produce a cycle.
func (s *State) recompute() {
	childCount := make(map[string]int, len(s.commits))
	inSet := make(map[string][]ids.CommitId, len(s.commits))
	for _, c := range s.commits {
		childCount[c.String()] = 0
		inSet[c.String()] = s.inSetParents(c)
	}
	for _, c := range s.commits {
		for _, p := range inSet[c.String()] {
			childCount[p.String()]++
		}
	}

	var heads []ids.CommitId
	for _, c := range s.commits {
		if childCount[c.String()] == 0 {
			heads = append(heads, c)
		}
	}
	s.headOrder = heads

	remaining := make(map[string]int, len(childCount))
	for k, v := range childCount {
		remaining[k] = v
	}

	queue := append([]ids.CommitId(nil), heads...)
	order := make([]ids.CommitId, 0, len(s.commits))
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		order = append(order, c)

		for _, p := range inSet[c.String()] {
			key := p.String()
			remaining[key]--
			if remaining[key] == 0 {
				queue = append(queue, p)
			}
		}
	}

	if len(order) != len(s.commits) {
		for _, c := range s.commits {
			if remaining[c.String()] > 0 {
				panic(&CycleError{Commit: c})
			}
		}
		panic(&CycleError{Commit: s.commits[0]})
	}

	s.currentOrder = order
}
