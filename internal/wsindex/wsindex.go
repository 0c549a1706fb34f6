// Package wsindex implements the workspace index: the record
// of every workspace checked out against a repo, each mapping a name
// to the filesystem path its working copy lives at.
package wsindex

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nightlyone/lockfile"
)

// Entry is one workspace's name and stored path. Path is relative
// (forward-slash-normalized) when it lies under the repo directory,
// absolute otherwise; see [Index.Add].
type Entry struct {
	Name string
	Path string
}

// Index is the workspace index for a single repo, rooted at dir
// (typically <repo>/workspace_store). The index file itself
// (<dir>/index) is replaced atomically on every mutation; an
// exclusive lock at <dir>/index.lock is held for the duration of
// each mutating call. A mutating call that finds the lock already
// held returns an error at once rather than waiting for it.
type Index struct {
	dir      string
	repoRoot string
}

// New returns an Index backed by dir, used to resolve relative paths
// recorded by [Index.Add] against repoRoot.
func New(dir, repoRoot string) *Index {
	return &Index{dir: dir, repoRoot: filepath.Clean(repoRoot)}
}

func (x *Index) indexPath() string { return filepath.Join(x.dir, "index") }
func (x *Index) lockPath() string  { return filepath.Join(x.dir, "index.lock") }

// Add registers name at path, replacing any existing entry with the
// same name (compared case-sensitively). If path lies under the
// index's repo root, it is stored relative to that root using
// forward slashes; otherwise it is stored as given, cleaned with
// [filepath.Clean].
func (x *Index) Add(name, path string) error {
	return x.mutate(func(entries []Entry) []Entry {
		stored := x.normalize(path)
		out := make([]Entry, 0, len(entries)+1)
		for _, e := range entries {
			if e.Name != name {
				out = append(out, e)
			}
		}
		return append(out, Entry{Name: name, Path: stored})
	})
}

// Forget removes every entry whose name is in names. Names that are
// not present are ignored.
func (x *Index) Forget(names ...string) error {
	remove := make(map[string]struct{}, len(names))
	for _, n := range names {
		remove[n] = struct{}{}
	}
	return x.mutate(func(entries []Entry) []Entry {
		out := entries[:0:0]
		for _, e := range entries {
			if _, ok := remove[e.Name]; !ok {
				out = append(out, e)
			}
		}
		return out
	})
}

// Rename changes the entry named old to new, preserving its path. It
// returns an error if old does not exist.
func (x *Index) Rename(oldName, newName string) error {
	var found bool
	err := x.mutate(func(entries []Entry) []Entry {
		for i, e := range entries {
			if e.Name == oldName {
				found = true
				entries[i].Name = newName
				break
			}
		}
		return entries
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("workspace %q not found", oldName)
	}
	return nil
}

// GetWorkspacePath returns the absolute path of the named workspace,
// and false if no such workspace is registered.
func (x *Index) GetWorkspacePath(name string) (string, bool, error) {
	entries, err := x.read()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return x.resolve(e.Path), true, nil
		}
	}
	return "", false, nil
}

// List returns every entry currently in the index, sorted by name.
func (x *Index) List() ([]Entry, error) {
	entries, err := x.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// normalize stores path relative to the repo root (forward-slashed)
// when it falls under it, or cleaned but otherwise unchanged.
func (x *Index) normalize(path string) string {
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(x.repoRoot, clean)
	if err != nil || strings.HasPrefix(rel, "..") || rel == ".." {
		return clean
	}
	return filepath.ToSlash(rel)
}

// resolve expands a stored path back to an absolute one.
func (x *Index) resolve(stored string) string {
	if filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(x.repoRoot, filepath.FromSlash(stored))
}

// mutate loads the current entries, applies fn, and writes the result
// back atomically, all while holding the index's exclusive lock.
func (x *Index) mutate(fn func([]Entry) []Entry) error {
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", x.dir, err)
	}

	lock, err := lockfile.New(x.lockPath())
	if err != nil {
		return fmt.Errorf("create lock %s: %w", x.lockPath(), err)
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("lock %s: %w", x.lockPath(), err)
	}
	defer lock.Unlock()

	entries, err := x.read()
	if err != nil {
		return err
	}

	entries = fn(entries)

	return x.write(entries)
}

// read loads the index file without acquiring the lock. Readers are
// lock-free: the atomic rename on write means
// a reader always observes either the old or the new file in full,
// never a partial one.
func (x *Index) read() ([]Entry, error) {
	f, err := os.Open(x.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", x.indexPath(), err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		name, path, err := decodeLine(line)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", x.indexPath(), err)
		}
		entries = append(entries, Entry{Name: name, Path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", x.indexPath(), err)
	}
	return entries, nil
}

// write replaces the index file atomically via a temp file in the
// same directory followed by a rename.
func (x *Index) write(entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(encodeLine(e.Name, e.Path))
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(x.dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, x.indexPath()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// encodeLine renders one entry as "<namelen> <name> <path>", a
// length-prefixed name so that names containing spaces don't need
// escaping; path runs to the end of the line.
func encodeLine(name, path string) string {
	return fmt.Sprintf("%d %s %s", len(name), name, path)
}

func decodeLine(line string) (name, path string, err error) {
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return "", "", fmt.Errorf("malformed entry %q", line)
	}
	n, err := strconv.Atoi(line[:sp])
	if err != nil {
		return "", "", fmt.Errorf("malformed entry %q: %w", line, err)
	}
	rest := line[sp+1:]
	if len(rest) < n+1 || rest[n] != ' ' {
		return "", "", fmt.Errorf("malformed entry %q", line)
	}
	return rest[:n], rest[n+1:], nil
}
