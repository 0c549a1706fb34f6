// Package wcstore implements the cached working-copy store: a pool of
// tree-addressed working-copy slots that mass rewrite operations check
// commits out into, reusing a slot whenever a tree it already
// materialized comes around again.
package wcstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.abhg.dev/log/silog"
	"golang.org/x/sync/errgroup"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/tree"
)

// Initializer prepares the tree state of a freshly allocated slot.
// A Git-backed store checks the tree out into the slot's working-copy
// directory and seeds the state directory; this package only manages
// the slot lifecycle around that call.
type Initializer interface {
	InitTreeState(ctx context.Context, slot Slot) error
}

// Slot is one allocated working copy, addressed by the tree it holds.
type Slot struct {
	Tree tree.MergedTree

	// Dir is the slot's root under the store; the three standard
	// subdirectories below live inside it.
	Dir            string
	OutputDir      string
	WorkingCopyDir string
	StateDir       string
}

// Store allocates and caches working-copy slots under a single root
// directory. Slots are keyed by tree content: two commits with equal
// trees share a slot.
type Store struct {
	root string
	init Initializer
	log  *silog.Logger
}

// NewStore returns a Store rooted at root. If log is nil, logging is
// disabled.
func NewStore(root string, init Initializer, log *silog.Logger) *Store {
	if log == nil {
		log = silog.Nop()
	}
	return &Store{root: root, init: init, log: log}
}

// GetOrCreateWorkingCopies returns a slot for every commit, keyed by
// the commit's id in hex. Commits whose trees are already
// materialized under the store root get the existing slot back;
// the rest get fresh slots, materialized concurrently.
//
// A fresh slot is built in a scratch directory and renamed into the
// store only after its tree state initialized successfully, so a
// racing call for the same tree observes either no slot or a complete
// one, and the loser of the rename race adopts the winner's slot.
func (s *Store) GetOrCreateWorkingCopies(ctx context.Context, commits []commit.Commit) (map[string]Slot, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	// Several commits may share one tree; allocate per distinct tree.
	byKey := make(map[string]tree.MergedTree)
	for _, c := range commits {
		byKey[slotKey(c.Tree)] = c.Tree
	}

	slots := make(map[string]Slot, len(byKey))
	var group errgroup.Group
	results := make(chan Slot, len(byKey))
	for key, t := range byKey {
		group.Go(func() error {
			slot, err := s.getOrCreate(ctx, key, t)
			if err != nil {
				return err
			}
			results <- slot
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	close(results)
	for slot := range results {
		slots[slotKey(slot.Tree)] = slot
	}

	out := make(map[string]Slot, len(commits))
	for _, c := range commits {
		out[c.ID.String()] = slots[slotKey(c.Tree)]
	}
	return out, nil
}

func (s *Store) getOrCreate(ctx context.Context, key string, t tree.MergedTree) (Slot, error) {
	dir := filepath.Join(s.root, key)
	if _, err := os.Stat(dir); err == nil {
		s.log.Debug("reusing working-copy slot", "tree", key)
		return slotAt(dir, t), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return Slot{}, fmt.Errorf("stat slot %s: %w", dir, err)
	}

	scratch, err := os.MkdirTemp(s.root, ".new-"+key+"-*")
	if err != nil {
		return Slot{}, fmt.Errorf("create scratch slot: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	slot := slotAt(scratch, t)
	for _, sub := range []string{slot.OutputDir, slot.WorkingCopyDir, slot.StateDir} {
		if err := os.Mkdir(sub, 0o755); err != nil {
			return Slot{}, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	if s.init != nil {
		if err := s.init.InitTreeState(ctx, slot); err != nil {
			return Slot{}, fmt.Errorf("initialize tree state: %w", err)
		}
	}

	if err := os.Rename(scratch, dir); err != nil {
		// Lost the race: another caller published this tree first.
		// Their slot is complete (rename happens after init), so
		// adopt it.
		if _, statErr := os.Stat(dir); statErr == nil {
			s.log.Debug("adopting concurrently created slot", "tree", key)
			return slotAt(dir, t), nil
		}
		return Slot{}, fmt.Errorf("publish slot %s: %w", dir, err)
	}

	s.log.Debug("created working-copy slot", "tree", key)
	return slotAt(dir, t), nil
}

func slotAt(dir string, t tree.MergedTree) Slot {
	return Slot{
		Tree:           t,
		Dir:            dir,
		OutputDir:      filepath.Join(dir, "output"),
		WorkingCopyDir: filepath.Join(dir, "working_copy"),
		StateDir:       filepath.Join(dir, "state"),
	}
}

// slotKey names the slot directory for a tree: the resolved tree id,
// or a digest of every side for a conflicted tree, so that a conflict
// gets its own slot distinct from any of its sides.
func slotKey(t tree.MergedTree) string {
	if id, ok := t.Resolve(); ok {
		return id.String()
	}

	h := sha256.New()
	for _, id := range t.Value().Added() {
		h.Write([]byte{'+'})
		h.Write([]byte(id))
	}
	for _, id := range t.Value().Removed() {
		h.Write([]byte{'-'})
		h.Write([]byte(id))
	}
	var sum [sha256.Size]byte
	return hex.EncodeToString(h.Sum(sum[:0])[:16])
}
