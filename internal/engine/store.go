// Package engine ties the storage pieces together into an openable
// repository: a content-addressed object store for commits and trees,
// the operation log, the workspace index, and the secure-config
// binding, all rooted under the repo's state directory.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/tree"
)

// ErrNotExist is returned when a commit or tree id names nothing in
// the store.
var ErrNotExist = errors.New("object does not exist")

// Store is a filesystem object store for commits and trees. Objects
// are content-addressed: writing the same value twice yields the same
// id and a single file. It implements [commit.Backend], [commit.Repo],
// [tree.Backend], and [tree.Lister].
//
// A tree here is a flat mapping of repo-relative path to entry.
// Nested trees are a backend encoding concern this store sidesteps;
// nothing in the algebra above it observes the difference.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) an object store under dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"commits", "trees"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) commitPath(id ids.CommitId) string {
	return filepath.Join(s.dir, "commits", id.String())
}

func (s *Store) treePath(id ids.TreeId) string {
	return filepath.Join(s.dir, "trees", id.String())
}

// EmptyTreeID returns the id of the tree with no entries.
func (s *Store) EmptyTreeID() ids.TreeId {
	sum := sha256.Sum256(nil)
	return ids.TreeId(sum[:])
}

// WriteTree stores a flat path-to-entry mapping and returns its id.
func (s *Store) WriteTree(_ context.Context, entries map[string]tree.Entry) (ids.TreeId, error) {
	data := encodeTree(entries)
	sum := sha256.Sum256(data)
	id := ids.TreeId(sum[:])

	if err := writeObjectFile(s.treePath(id), data); err != nil {
		return nil, err
	}
	return id, nil
}

// ListPaths loads a tree's entries. The empty tree needs no file.
func (s *Store) ListPaths(_ context.Context, id ids.TreeId) (map[string]tree.Entry, error) {
	if id.Equal(s.EmptyTreeID()) {
		return map[string]tree.Entry{}, nil
	}

	data, err := os.ReadFile(s.treePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("tree %s: %w", id, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	return decodeTree(data)
}

// NewSideBuilder opens an ordinary tree builder rooted at base.
func (s *Store) NewSideBuilder(ctx context.Context, base ids.TreeId) (tree.SideBuilder, error) {
	entries, err := s.ListPaths(ctx, base)
	if err != nil {
		return nil, err
	}
	return &sideBuilder{store: s, entries: entries}, nil
}

type sideBuilder struct {
	store   *Store
	entries map[string]tree.Entry
}

func (b *sideBuilder) Set(path string, entry tree.Entry) error {
	if entry.Type == tree.Absent {
		delete(b.entries, path)
	} else {
		b.entries[path] = entry
	}
	return nil
}

func (b *sideBuilder) Write(ctx context.Context) (ids.TreeId, error) {
	return b.store.WriteTree(ctx, b.entries)
}

// Encoded commit form; field order is fixed so encoding is
// deterministic and content addressing holds.
type commitRecord struct {
	Parents     []string  `yaml:"parents,omitempty"`
	ChangeID    string    `yaml:"change_id"`
	TreeAdds    []string  `yaml:"tree_adds"`
	TreeRemoves []string  `yaml:"tree_removes,omitempty"`
	TreeLabels  []string  `yaml:"tree_labels,omitempty"`
	Author      sigRecord `yaml:"author"`
	Committer   sigRecord `yaml:"committer"`
	Description string    `yaml:"description,omitempty"`
	Signature   string    `yaml:"signature,omitempty"`
}

type sigRecord struct {
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
	Time  string `yaml:"time,omitempty"`
}

// WriteCommit stores c and returns its content id. The id field of c
// itself is ignored: the store is the authority on ids.
func (s *Store) WriteCommit(_ context.Context, c commit.Commit) (ids.CommitId, error) {
	data, err := encodeCommit(c)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	id := ids.CommitId(sum[:])

	if err := writeObjectFile(s.commitPath(id), data); err != nil {
		return nil, err
	}
	return id, nil
}

// Commit loads a commit by id.
func (s *Store) Commit(_ context.Context, id ids.CommitId) (commit.Commit, error) {
	data, err := os.ReadFile(s.commitPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return commit.Commit{}, fmt.Errorf("commit %s: %w", id, ErrNotExist)
	}
	if err != nil {
		return commit.Commit{}, fmt.Errorf("read commit %s: %w", id, err)
	}

	c, err := decodeCommit(data)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("decode commit %s: %w", id, err)
	}
	c.ID = id
	return c, nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant.
func (s *Store) IsAncestor(ctx context.Context, ancestor, descendant ids.CommitId) (bool, error) {
	queue := []ids.CommitId{descendant}
	seen := make(map[string]struct{})
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}

		if id.Equal(ancestor) {
			return true, nil
		}

		c, err := s.Commit(ctx, id)
		if err != nil {
			return false, err
		}
		queue = append(queue, c.Parents...)
	}
	return false, nil
}

func encodeCommit(c commit.Commit) ([]byte, error) {
	rec := commitRecord{
		ChangeID:    c.ChangeID.String(),
		Description: c.Description,
		Author:      encodeSig(c.Author),
		Committer:   encodeSig(c.Committer),
		TreeLabels:  c.Tree.Labels(),
	}
	for _, p := range c.Parents {
		rec.Parents = append(rec.Parents, p.String())
	}
	for _, t := range c.Tree.Value().Added() {
		rec.TreeAdds = append(rec.TreeAdds, t.String())
	}
	for _, t := range c.Tree.Value().Removed() {
		rec.TreeRemoves = append(rec.TreeRemoves, t.String())
	}
	if len(c.Signature) > 0 {
		rec.Signature = fmt.Sprintf("%x", c.Signature)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode commit: %w", err)
	}
	return data, nil
}

func decodeCommit(data []byte) (commit.Commit, error) {
	var rec commitRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return commit.Commit{}, err
	}

	c := commit.Commit{
		Description: rec.Description,
		Author:      decodeSig(rec.Author),
		Committer:   decodeSig(rec.Committer),
	}

	changeID, err := hexBytes(rec.ChangeID)
	if err != nil {
		return commit.Commit{}, fmt.Errorf("change id: %w", err)
	}
	c.ChangeID = ids.ChangeId(changeID)

	for _, p := range rec.Parents {
		b, err := hexBytes(p)
		if err != nil {
			return commit.Commit{}, fmt.Errorf("parent %q: %w", p, err)
		}
		c.Parents = append(c.Parents, ids.CommitId(b))
	}

	adds := make([]ids.TreeId, 0, len(rec.TreeAdds))
	for _, t := range rec.TreeAdds {
		b, err := hexBytes(t)
		if err != nil {
			return commit.Commit{}, fmt.Errorf("tree %q: %w", t, err)
		}
		adds = append(adds, ids.TreeId(b))
	}
	removes := make([]ids.TreeId, 0, len(rec.TreeRemoves))
	for _, t := range rec.TreeRemoves {
		b, err := hexBytes(t)
		if err != nil {
			return commit.Commit{}, fmt.Errorf("tree %q: %w", t, err)
		}
		removes = append(removes, ids.TreeId(b))
	}
	if len(adds) == 1 && len(removes) == 0 {
		c.Tree = tree.Resolved(adds[0])
	} else {
		c.Tree = tree.NewConflicted(adds, removes, rec.TreeLabels)
	}

	if rec.Signature != "" {
		sig, err := hexBytes(rec.Signature)
		if err != nil {
			return commit.Commit{}, fmt.Errorf("signature: %w", err)
		}
		c.Signature = sig
	}
	return c, nil
}

func encodeSig(sig commit.Signature) sigRecord {
	rec := sigRecord{Name: sig.Name, Email: sig.Email}
	if !sig.Time.IsZero() {
		rec.Time = sig.Time.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func decodeSig(rec sigRecord) commit.Signature {
	sig := commit.Signature{Name: rec.Name, Email: rec.Email}
	if rec.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, rec.Time); err == nil {
			sig.Time = t
		}
	}
	return sig
}

// encodeTree renders entries as sorted "path kind payload" lines.
func encodeTree(entries map[string]tree.Entry) []byte {
	paths := make([]string, 0, len(entries))
	for p, e := range entries {
		if e.Type == tree.Absent {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		e := entries[p]
		switch e.Type {
		case tree.File:
			fmt.Fprintf(&b, "%s\tfile\t%d\t%s\n", p, e.Kind, e.File.String())
		case tree.Tree:
			fmt.Fprintf(&b, "%s\ttree\t0\t%s\n", p, e.Tree.String())
		}
	}
	return []byte(b.String())
}

func decodeTree(data []byte) (map[string]tree.Entry, error) {
	entries := make(map[string]tree.Entry)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed tree entry %q", line)
		}
		path, kind, modeStr, idStr := parts[0], parts[1], parts[2], parts[3]

		id, err := hexBytes(idStr)
		if err != nil {
			return nil, fmt.Errorf("tree entry %q: %w", line, err)
		}

		switch kind {
		case "file":
			mode, err := strconv.Atoi(modeStr)
			if err != nil {
				return nil, fmt.Errorf("tree entry mode %q: %w", line, err)
			}
			entries[path] = tree.FileEntry(ids.FileId(id), tree.Mode(mode))
		case "tree":
			entries[path] = tree.TreeEntry(ids.TreeId(id))
		default:
			return nil, fmt.Errorf("unknown tree entry kind %q", kind)
		}
	}
	return entries, nil
}

func hexBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// writeObjectFile stores data at path if it is not already there.
// Objects are immutable, so an existing file is already correct.
func writeObjectFile(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".obj-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store object: %w", err)
	}
	return nil
}
