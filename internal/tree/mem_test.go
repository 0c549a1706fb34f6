package tree

import (
	"context"
	"fmt"
	"sort"

	"go.abhg.dev/opvc/internal/ids"
)

// memStore is a content-addressed, in-memory tree store used only by
// tests in this package. A tree is a flat map of path to Entry (no
// nested subtrees), which is sufficient to exercise the algebra
// without pulling in a real object store.
type memStore struct {
	trees map[string]map[string]Entry
}

func newMemStore() *memStore {
	s := &memStore{trees: make(map[string]map[string]Entry)}
	s.trees[emptyTreeHash] = map[string]Entry{}
	return s
}

const emptyTreeHash = "empty"

func (s *memStore) EmptyTreeID() ids.TreeId {
	return ids.TreeId(emptyTreeHash)
}

func (s *memStore) NewSideBuilder(_ context.Context, base ids.TreeId) (SideBuilder, error) {
	entries, ok := s.trees[string(base)]
	if !ok {
		return nil, fmt.Errorf("unknown tree %q", base)
	}
	clone := make(map[string]Entry, len(entries))
	for k, v := range entries {
		clone[k] = v
	}
	return &memSideBuilder{store: s, entries: clone}, nil
}

func (s *memStore) ListPaths(_ context.Context, id ids.TreeId) (map[string]Entry, error) {
	entries, ok := s.trees[string(id)]
	if !ok {
		return nil, fmt.Errorf("unknown tree %q", id)
	}
	out := make(map[string]Entry, len(entries))
	for k, v := range entries {
		if v.Type != Absent {
			out[k] = v
		}
	}
	return out, nil
}

type memSideBuilder struct {
	store   *memStore
	entries map[string]Entry
}

func (b *memSideBuilder) Set(path string, entry Entry) error {
	if entry.Type == Absent {
		delete(b.entries, path)
	} else {
		b.entries[path] = entry
	}
	return nil
}

func (b *memSideBuilder) Write(context.Context) (ids.TreeId, error) {
	// Content-address by a canonical string rendering of the map, good
	// enough for equality comparisons within a single test process.
	paths := make([]string, 0, len(b.entries))
	for p := range b.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var key string
	for _, p := range paths {
		e := b.entries[p]
		key += fmt.Sprintf("%s=%d:%x;", p, e.Type, e.File)
		if e.Type == Tree {
			key += fmt.Sprintf("%x;", e.Tree)
		}
	}
	if key == "" {
		key = emptyTreeHash
	}

	if _, ok := b.store.trees[key]; !ok {
		clone := make(map[string]Entry, len(b.entries))
		for k, v := range b.entries {
			clone[k] = v
		}
		b.store.trees[key] = clone
	}
	return ids.TreeId(key), nil
}
