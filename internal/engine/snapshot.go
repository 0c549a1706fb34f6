package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
	"go.abhg.dev/opvc/internal/snapshot"
	"go.abhg.dev/opvc/internal/tree"
)

// SnapshotResult reports what [Repo.Snapshot] did.
type SnapshotResult struct {
	// Changed is false if the working copy already matched the
	// working-copy commit and no operation was appended.
	Changed bool

	// Commit is the working-copy commit after the snapshot.
	Commit ids.CommitId

	// Operation is the appended operation, if Changed.
	Operation ids.OperationId
}

// Snapshot captures the working copy into the working-copy commit, if
// anything changed since the last snapshot: files are hashed into the
// object store, the tree is rebuilt, and the workspace's commit is
// amended in place (same change id, new commit id). New files larger
// than snapshot.max-new-file-size are refused before anything is
// written.
func (r *Repo) Snapshot(ctx context.Context) (SnapshotResult, error) {
	op, err := r.CurrentOp(ctx)
	if err != nil {
		return SnapshotResult{}, err
	}

	var oldTree map[string]tree.Entry
	oldWC, hasWC := op.View.Workspaces[DefaultWorkspace]
	var oldCommit commit.Commit
	if hasWC {
		oldCommit, err = r.Objects.Commit(ctx, oldWC)
		if err != nil {
			return SnapshotResult{}, err
		}
		if resolved, ok := oldCommit.Tree.Resolve(); ok {
			oldTree, err = r.Objects.ListPaths(ctx, resolved)
			if err != nil {
				return SnapshotResult{}, err
			}
		}
	}
	if oldTree == nil {
		oldTree = map[string]tree.Entry{}
	}

	files, err := r.workingCopyFiles()
	if err != nil {
		return SnapshotResult{}, err
	}

	limit, err := r.Config.MaxNewFileSizeBytes()
	if err != nil {
		return SnapshotResult{}, err
	}
	guarded := make([]snapshot.FileInfo, len(files))
	for i, f := range files {
		_, tracked := oldTree[f.path]
		guarded[i] = snapshot.FileInfo{Path: f.path, Size: uint64(f.size), Tracked: tracked}
	}
	if err := snapshot.CheckNewFiles(guarded, limit); err != nil {
		return SnapshotResult{}, err
	}

	entries := make(map[string]tree.Entry, len(files))
	for _, f := range files {
		fileID, err := r.hashFile(f.abs)
		if err != nil {
			return SnapshotResult{}, err
		}
		mode := tree.RegularMode
		if f.executable {
			mode = tree.ExecutableMode
		}
		entries[f.path] = tree.FileEntry(fileID, mode)
	}

	treeID, err := r.Objects.WriteTree(ctx, entries)
	if err != nil {
		return SnapshotResult{}, err
	}

	if old, ok := oldCommit.Tree.Resolve(); hasWC && ok && old.Equal(treeID) {
		return SnapshotResult{Changed: false, Commit: oldWC}, nil
	}

	newCommit := commit.Commit{
		Parents:     oldCommit.Parents,
		ChangeID:    oldCommit.ChangeID,
		Tree:        tree.Resolved(treeID),
		Author:      oldCommit.Author,
		Committer:   oldCommit.Committer,
		Description: oldCommit.Description,
		Signature:   oldCommit.Signature,
	}
	if !hasWC {
		newCommit.ChangeID = newChangeID()
		now := time.Now()
		sig := commit.Signature{Name: os.Getenv("USER"), Time: now}
		newCommit.Author, newCommit.Committer = sig, sig
	}

	newID, err := r.Objects.WriteCommit(ctx, newCommit)
	if err != nil {
		return SnapshotResult{}, err
	}

	opID, err := r.Transact(ctx, "snapshot working copy", func(v *oplog.View) error {
		v.Workspaces[DefaultWorkspace] = newID
		if hasWC {
			rebaser := &ViewRebaser{Objects: r.Objects, Heads: ViewHeads(*v)}
			if _, err := rebaser.RebaseDescendants(ctx, map[string]ids.CommitId{oldWC.String(): newID}); err != nil {
				return err
			}
			rebaser.Apply(v)
		}
		return nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}

	return SnapshotResult{Changed: true, Commit: newID, Operation: opID}, nil
}

type wcFile struct {
	path       string // repo-relative, forward slashes
	abs        string
	size       int64
	executable bool
}

// workingCopyFiles walks the working tree, skipping the state
// directory.
func (r *Repo) workingCopyFiles() ([]wcFile, error) {
	var out []wcFile
	err := filepath.WalkDir(r.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.Root && d.Name() == StateDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.Root, path)
		if err != nil {
			return err
		}
		out = append(out, wcFile{
			path:       filepath.ToSlash(rel),
			abs:        path,
			size:       info.Size(),
			executable: info.Mode()&0o111 != 0,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working copy: %w", err)
	}
	return out, nil
}

func (r *Repo) hashFile(path string) (ids.FileId, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return ids.FileId(h.Sum(nil)), nil
}

// newChangeID mints the stable identity for a brand-new change.
func newChangeID() ids.ChangeId {
	id := uuid.New()
	return ids.ChangeId(id[:])
}
