package oplog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nightlyone/lockfile"
	"gopkg.in/yaml.v3"

	"go.abhg.dev/opvc/internal/ids"
)

// FSBackend stores the operation log on the local filesystem:
// operations as content-addressed files under <dir>/operations, and
// the head set as one empty file per head under
// <dir>/op_heads/heads/<op-id>.
//
// Head updates hold a lock file for the compare-and-set, so two
// writers racing an append serialize instead of both thinking they
// won; the loser observes [ErrHeadsChanged] and retries against the
// new head set.
type FSBackend struct {
	dir string
}

// NewFSBackend returns a backend rooted at dir, creating the layout
// if needed.
func NewFSBackend(dir string) (*FSBackend, error) {
	for _, sub := range []string{
		filepath.Join(dir, "operations"),
		filepath.Join(dir, "op_heads", "heads"),
	} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return &FSBackend{dir: dir}, nil
}

func (b *FSBackend) operationPath(id ids.OperationId) string {
	return filepath.Join(b.dir, "operations", id.String())
}

func (b *FSBackend) headsDir() string {
	return filepath.Join(b.dir, "op_heads", "heads")
}

// WriteOperation encodes op, addresses it by the digest of its
// encoding, and stores it. Writing the same operation twice is
// harmless and returns the same id.
func (b *FSBackend) WriteOperation(_ context.Context, op Operation) (ids.OperationId, error) {
	data, err := encodeOperation(op)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	id := ids.OperationId(sum[:])

	path := b.operationPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".op-*")
	if err != nil {
		return nil, fmt.Errorf("create temp operation: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("write operation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("close operation: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("store operation: %w", err)
	}
	return id, nil
}

// ReadOperation loads an operation by id.
func (b *FSBackend) ReadOperation(_ context.Context, id ids.OperationId) (Operation, error) {
	data, err := os.ReadFile(b.operationPath(id))
	if err != nil {
		return Operation{}, fmt.Errorf("read operation %s: %w", id, err)
	}
	op, err := decodeOperation(data)
	if err != nil {
		return Operation{}, fmt.Errorf("decode operation %s: %w", id, err)
	}
	op.ID = id
	return op, nil
}

// ReadHeads lists the current head files. The returned token encodes
// the exact set observed, for WriteHeads to compare against.
func (b *FSBackend) ReadHeads(_ context.Context) ([]ids.OperationId, string, error) {
	names, err := b.readHeadNames()
	if err != nil {
		return nil, "", err
	}

	heads := make([]ids.OperationId, 0, len(names))
	for _, name := range names {
		id, err := parseHexID(name)
		if err != nil {
			return nil, "", fmt.Errorf("malformed head file %q: %w", name, err)
		}
		heads = append(heads, id)
	}
	return heads, strings.Join(names, "\n"), nil
}

// WriteHeads replaces the head set with heads, provided the stored
// set still matches token. The check and the file shuffle happen
// under the heads lock, so a concurrent writer cannot interleave.
func (b *FSBackend) WriteHeads(_ context.Context, heads []ids.OperationId, token string) error {
	lock, err := lockfile.New(filepath.Join(b.dir, "op_heads", "lock"))
	if err != nil {
		return fmt.Errorf("create heads lock: %w", err)
	}
	if err := acquire(lock); err != nil {
		return fmt.Errorf("acquire heads lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	names, err := b.readHeadNames()
	if err != nil {
		return err
	}
	if strings.Join(names, "\n") != token {
		return ErrHeadsChanged
	}

	keep := make(map[string]struct{}, len(heads))
	for _, h := range heads {
		keep[h.String()] = struct{}{}
	}

	for _, h := range heads {
		path := filepath.Join(b.headsDir(), h.String())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create head %s: %w", h, err)
		}
		_ = f.Close()
	}
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(b.headsDir(), name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove head %s: %w", name, err)
		}
	}
	return nil
}

// acquire retries a briefly-held lock instead of failing outright:
// head updates are short critical sections, so a busy lock usually
// clears within a few milliseconds.
func acquire(lock lockfile.Lockfile) error {
	var err error
	for range 50 {
		err = lock.TryLock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, lockfile.ErrBusy) && !errors.Is(err, lockfile.ErrNotExist) {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return err
}

func (b *FSBackend) readHeadNames() ([]string, error) {
	entries, err := os.ReadDir(b.headsDir())
	if err != nil {
		return nil, fmt.Errorf("list heads: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Encoded form of an operation. YAML keeps the file greppable when
// debugging a broken log; map keys marshal in sorted order, so
// identical operations encode to identical bytes and content
// addressing holds.
type opRecord struct {
	Parents  []string   `yaml:"parents"`
	View     viewRecord `yaml:"view"`
	Metadata metaRecord `yaml:"metadata"`
}

type viewRecord struct {
	Workspaces      map[string]string                     `yaml:"workspaces,omitempty"`
	Bookmarks       map[string]refRecord                  `yaml:"bookmarks,omitempty"`
	RemoteBookmarks map[string]map[string]remoteRefRecord `yaml:"remote_bookmarks,omitempty"`
	Tags            map[string]refRecord                  `yaml:"tags,omitempty"`
}

type refRecord struct {
	Adds    []string `yaml:"adds"`
	Removes []string `yaml:"removes,omitempty"`
}

type remoteRefRecord struct {
	Target  refRecord `yaml:"target"`
	Tracked bool      `yaml:"tracked"`
}

type metaRecord struct {
	User        string   `yaml:"user,omitempty"`
	Hostname    string   `yaml:"hostname,omitempty"`
	Time        string   `yaml:"time,omitempty"`
	Argv        []string `yaml:"argv,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tag         int      `yaml:"tag,omitempty"`
}

func encodeOperation(op Operation) ([]byte, error) {
	rec := opRecord{
		Metadata: metaRecord{
			User:        op.Metadata.User,
			Hostname:    op.Metadata.Hostname,
			Argv:        op.Metadata.Argv,
			Description: op.Metadata.Description,
			Tag:         int(op.Metadata.Tag),
		},
		View: viewRecord{},
	}
	if !op.Metadata.Time.IsZero() {
		rec.Metadata.Time = op.Metadata.Time.UTC().Format(time.RFC3339Nano)
	}
	for _, p := range op.Parents {
		rec.Parents = append(rec.Parents, p.String())
	}

	if len(op.View.Workspaces) > 0 {
		rec.View.Workspaces = make(map[string]string, len(op.View.Workspaces))
		for name, c := range op.View.Workspaces {
			rec.View.Workspaces[name] = c.String()
		}
	}
	if len(op.View.Bookmarks) > 0 {
		rec.View.Bookmarks = make(map[string]refRecord, len(op.View.Bookmarks))
		for name, rt := range op.View.Bookmarks {
			rec.View.Bookmarks[name] = encodeRef(rt)
		}
	}
	if len(op.View.Tags) > 0 {
		rec.View.Tags = make(map[string]refRecord, len(op.View.Tags))
		for name, rt := range op.View.Tags {
			rec.View.Tags[name] = encodeRef(rt)
		}
	}
	if len(op.View.RemoteBookmarks) > 0 {
		rec.View.RemoteBookmarks = make(map[string]map[string]remoteRefRecord)
		for key, ref := range op.View.RemoteBookmarks {
			byName := rec.View.RemoteBookmarks[key.Remote]
			if byName == nil {
				byName = make(map[string]remoteRefRecord)
				rec.View.RemoteBookmarks[key.Remote] = byName
			}
			byName[key.Name] = remoteRefRecord{
				Target:  encodeRef(ref.Target),
				Tracked: ref.Tracked,
			}
		}
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}
	return data, nil
}

func decodeOperation(data []byte) (Operation, error) {
	var rec opRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Operation{}, err
	}

	op := Operation{View: NewView()}
	for _, p := range rec.Parents {
		id, err := parseHexID(p)
		if err != nil {
			return Operation{}, fmt.Errorf("parent %q: %w", p, err)
		}
		op.Parents = append(op.Parents, id)
	}

	op.Metadata = Metadata{
		User:        rec.Metadata.User,
		Hostname:    rec.Metadata.Hostname,
		Argv:        rec.Metadata.Argv,
		Description: rec.Metadata.Description,
		Tag:         OperationTag(rec.Metadata.Tag),
	}
	if rec.Metadata.Time != "" {
		t, err := time.Parse(time.RFC3339Nano, rec.Metadata.Time)
		if err != nil {
			return Operation{}, fmt.Errorf("timestamp %q: %w", rec.Metadata.Time, err)
		}
		op.Metadata.Time = t
	}

	for name, c := range rec.View.Workspaces {
		id, err := parseCommitHex(c)
		if err != nil {
			return Operation{}, fmt.Errorf("workspace %q: %w", name, err)
		}
		op.View.Workspaces[name] = id
	}
	for name, ref := range rec.View.Bookmarks {
		rt, err := decodeRef(ref)
		if err != nil {
			return Operation{}, fmt.Errorf("bookmark %q: %w", name, err)
		}
		op.View.Bookmarks[name] = rt
	}
	for name, ref := range rec.View.Tags {
		rt, err := decodeRef(ref)
		if err != nil {
			return Operation{}, fmt.Errorf("tag %q: %w", name, err)
		}
		op.View.Tags[name] = rt
	}
	for remote, byName := range rec.View.RemoteBookmarks {
		for name, ref := range byName {
			rt, err := decodeRef(ref.Target)
			if err != nil {
				return Operation{}, fmt.Errorf("remote bookmark %s/%s: %w", remote, name, err)
			}
			op.View.RemoteBookmarks[RemoteBookmarkKey{Remote: remote, Name: name}] = RemoteRef{
				Target:  rt,
				Tracked: ref.Tracked,
			}
		}
	}
	return op, nil
}

func encodeRef(rt RefTarget) refRecord {
	var rec refRecord
	for _, id := range rt.Value().Added() {
		rec.Adds = append(rec.Adds, id.String())
	}
	for _, id := range rt.Value().Removed() {
		rec.Removes = append(rec.Removes, id.String())
	}
	return rec
}

func decodeRef(rec refRecord) (RefTarget, error) {
	adds := make([]ids.CommitId, 0, len(rec.Adds))
	for _, s := range rec.Adds {
		id, err := parseCommitHex(s)
		if err != nil {
			return RefTarget{}, err
		}
		adds = append(adds, id)
	}
	removes := make([]ids.CommitId, 0, len(rec.Removes))
	for _, s := range rec.Removes {
		id, err := parseCommitHex(s)
		if err != nil {
			return RefTarget{}, err
		}
		removes = append(removes, id)
	}
	if len(adds) == 1 && len(removes) == 0 {
		return ResolvedRef(adds[0]), nil
	}
	return NewConflictedRefTarget(adds, removes), nil
}

func parseHexID(s string) (ids.OperationId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ids.OperationId(b), nil
}

func parseCommitHex(s string) (ids.CommitId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ids.CommitId(b), nil
}
