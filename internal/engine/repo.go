package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/config"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/oplog"
	"go.abhg.dev/opvc/internal/secureconfig"
	"go.abhg.dev/opvc/internal/wsindex"
)

// StateDirName is the directory holding all repository state, at the
// root of the working tree.
const StateDirName = ".opvc"

// DefaultWorkspace is the workspace name a freshly initialized repo
// starts with.
const DefaultWorkspace = "default"

// ErrNotARepo is returned by [Open] when no state directory is found
// in dir or any of its ancestors.
var ErrNotARepo = errors.New("not inside a repository")

// Repo is an opened repository: the object store, operation log,
// workspace index, and configuration, all rooted under one state
// directory.
type Repo struct {
	// Root is the working-tree root: the directory containing the
	// state directory.
	Root string

	// StateDir is <Root>/.opvc.
	StateDir string

	Objects    *Store
	Oplog      *oplog.Store
	Backend    *oplog.FSBackend
	Workspaces *wsindex.Index
	Config     config.Config

	// ConfigWarnings carries whatever the secure-config layer had to
	// repair while loading, for the command layer to print.
	ConfigWarnings []secureconfig.Warning

	log *silog.Logger
}

// Init creates a new repository at dir: the state directory, the
// operation log with its root operation, and the default workspace.
func Init(ctx context.Context, dir string, log *silog.Logger) (*Repo, error) {
	stateDir := filepath.Join(dir, StateDirName)
	if _, err := os.Stat(stateDir); err == nil {
		return nil, fmt.Errorf("repository already initialized at %s", dir)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	backend, err := oplog.NewFSBackend(stateDir)
	if err != nil {
		return nil, err
	}

	rootView := oplog.NewView()
	rootID, err := backend.WriteOperation(ctx, oplog.Operation{
		View:     rootView,
		Metadata: oplog.Metadata{Description: "initialize repository"},
	})
	if err != nil {
		return nil, fmt.Errorf("write root operation: %w", err)
	}
	_, token, err := backend.ReadHeads(ctx)
	if err != nil {
		return nil, err
	}
	if err := backend.WriteHeads(ctx, []ids.OperationId{rootID}, token); err != nil {
		return nil, fmt.Errorf("publish root operation: %w", err)
	}

	index := wsindex.New(filepath.Join(stateDir, "workspace_store"), dir)
	if err := index.Add(DefaultWorkspace, dir); err != nil {
		return nil, fmt.Errorf("register default workspace: %w", err)
	}

	return Open(ctx, dir, log)
}

// Open finds the repository containing dir and opens it, loading its
// configuration through the secure-config layer.
func Open(_ context.Context, dir string, log *silog.Logger) (*Repo, error) {
	if log == nil {
		log = silog.Nop()
	}

	root, err := findRoot(dir)
	if err != nil {
		return nil, err
	}
	stateDir := filepath.Join(root, StateDirName)

	objects, err := NewStore(filepath.Join(stateDir, "objects"))
	if err != nil {
		return nil, err
	}
	backend, err := oplog.NewFSBackend(stateDir)
	if err != nil {
		return nil, err
	}

	cfg, warnings, err := loadConfig(stateDir)
	if err != nil {
		return nil, err
	}

	return &Repo{
		Root:           root,
		StateDir:       stateDir,
		Objects:        objects,
		Oplog:          oplog.New(backend, log),
		Backend:        backend,
		Workspaces:     wsindex.New(filepath.Join(stateDir, "workspace_store"), root),
		Config:         cfg,
		ConfigWarnings: warnings,
		log:            log,
	}, nil
}

func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, StateDirName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotARepo
		}
		dir = parent
	}
}

func loadConfig(stateDir string) (config.Config, []secureconfig.Warning, error) {
	userRoot, err := userConfigRoot()
	if err != nil {
		return config.Config{}, nil, err
	}

	result, err := secureconfig.MaybeLoadConfig(rand.Reader, stateDir, userRoot)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config binding: %w", err)
	}

	if result.ConfigFile == "" {
		return config.Default(), result.Warnings, nil
	}
	cfg, err := config.Load(result.ConfigFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, result.Warnings, nil
}

// userConfigRoot is where per-repo config directories live, keyed by
// config id.
func userConfigRoot() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(base, "opvc", "repos"), nil
}

// CurrentOp returns the operation the repo is at. If concurrent
// writers left more than one head, they are reconciled first — the
// merged operation is written, published as the sole head, and
// returned — so every command starts from a single consistent view.
func (r *Repo) CurrentOp(ctx context.Context) (oplog.Operation, error) {
	heads, err := r.Oplog.Heads(ctx)
	if err != nil {
		return oplog.Operation{}, err
	}

	switch len(heads) {
	case 0:
		return oplog.Operation{}, errors.New("operation log has no heads")
	case 1:
		return r.Backend.ReadOperation(ctx, heads[0])
	}

	r.log.Info("concurrent operations found, reconciling", "heads", len(heads))

	views := make([]oplog.View, 0, len(heads))
	for _, h := range heads {
		op, err := r.Backend.ReadOperation(ctx, h)
		if err != nil {
			return oplog.Operation{}, err
		}
		views = append(views, op.View)
	}

	rebaser := &ViewRebaser{Objects: r.Objects, Heads: ViewHeads(views...)}
	result, err := oplog.Reconcile(ctx, r.Backend, heads, r, rebaser)
	if err != nil {
		return oplog.Operation{}, fmt.Errorf("reconcile operation heads: %w", err)
	}
	rebaser.Apply(&result.View)
	if result.Rebased > 0 {
		r.log.Info("rebased descendant commits", "count", result.Rebased)
	}

	merged := oplog.Operation{
		Parents:  heads,
		View:     result.View,
		Metadata: r.NewMetadata("reconcile divergent operations"),
	}
	mergedID, err := r.Backend.WriteOperation(ctx, merged)
	if err != nil {
		return oplog.Operation{}, fmt.Errorf("write merged operation: %w", err)
	}

	_, token, err := r.Backend.ReadHeads(ctx)
	if err != nil {
		return oplog.Operation{}, err
	}
	if err := r.Backend.WriteHeads(ctx, []ids.OperationId{mergedID}, token); err != nil {
		return oplog.Operation{}, fmt.Errorf("publish merged operation: %w", err)
	}

	merged.ID = mergedID
	return merged, nil
}

// ChangeID implements [oplog.ChangeIDResolver] over the object store.
func (r *Repo) ChangeID(ctx context.Context, id ids.CommitId) (ids.ChangeId, error) {
	c, err := r.Objects.Commit(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.ChangeID, nil
}

// NewMetadata fills in the ambient operation metadata: who, where,
// when, and with what command line.
func (r *Repo) NewMetadata(description string) oplog.Metadata {
	hostname, _ := os.Hostname()
	return oplog.Metadata{
		User:        os.Getenv("USER"),
		Hostname:    hostname,
		Time:        time.Now(),
		Argv:        os.Args,
		Description: description,
	}
}

// Transact runs fn over a copy of the current view and appends the
// result as one new operation. If fn returns an error, nothing is
// appended.
func (r *Repo) Transact(ctx context.Context, description string, fn func(*oplog.View) error) (ids.OperationId, error) {
	op, err := r.CurrentOp(ctx)
	if err != nil {
		return nil, err
	}

	view := cloneView(op.View)
	if err := fn(&view); err != nil {
		return nil, err
	}

	return r.Oplog.Append(ctx, view, r.NewMetadata(description))
}

func cloneView(v oplog.View) oplog.View {
	out := oplog.NewView()
	for k, val := range v.Workspaces {
		out.Workspaces[k] = val
	}
	for k, val := range v.Bookmarks {
		out.Bookmarks[k] = val
	}
	for k, val := range v.RemoteBookmarks {
		out.RemoteBookmarks[k] = val
	}
	for k, val := range v.Tags {
		out.Tags[k] = val
	}
	return out
}
