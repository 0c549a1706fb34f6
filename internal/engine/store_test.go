package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/opvc/internal/commit"
	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/tree"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_TreeRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entries := map[string]tree.Entry{
		"README.md": tree.FileEntry(ids.FileId{0x01}, tree.RegularMode),
		"bin/run":   tree.FileEntry(ids.FileId{0x02}, tree.ExecutableMode),
		"sub":       tree.TreeEntry(ids.TreeId{0x03}),
	}

	id, err := s.WriteTree(ctx, entries)
	require.NoError(t, err)

	got, err := s.ListPaths(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestStore_TreeContentAddressed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entries := map[string]tree.Entry{
		"a": tree.FileEntry(ids.FileId{0x01}, tree.RegularMode),
		"b": tree.FileEntry(ids.FileId{0x02}, tree.RegularMode),
	}

	id1, err := s.WriteTree(ctx, entries)
	require.NoError(t, err)
	id2, err := s.WriteTree(ctx, entries)
	require.NoError(t, err)
	assert.True(t, id1.Equal(id2))
}

func TestStore_EmptyTree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.ListPaths(ctx, s.EmptyTreeID())
	require.NoError(t, err)
	assert.Empty(t, got)

	id, err := s.WriteTree(ctx, nil)
	require.NoError(t, err)
	assert.True(t, id.Equal(s.EmptyTreeID()))
}

func TestStore_SideBuilder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base, err := s.WriteTree(ctx, map[string]tree.Entry{
		"keep":   tree.FileEntry(ids.FileId{0x01}, tree.RegularMode),
		"remove": tree.FileEntry(ids.FileId{0x02}, tree.RegularMode),
	})
	require.NoError(t, err)

	sb, err := s.NewSideBuilder(ctx, base)
	require.NoError(t, err)
	require.NoError(t, sb.Set("remove", tree.AbsentEntry))
	require.NoError(t, sb.Set("added", tree.FileEntry(ids.FileId{0x03}, tree.RegularMode)))

	id, err := sb.Write(ctx)
	require.NoError(t, err)

	got, err := s.ListPaths(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]tree.Entry{
		"keep":  tree.FileEntry(ids.FileId{0x01}, tree.RegularMode),
		"added": tree.FileEntry(ids.FileId{0x03}, tree.RegularMode),
	}, got)
}

func TestStore_CommitRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := commit.Commit{
		Parents:  []ids.CommitId{{0x01}, {0x02}},
		ChangeID: ids.ChangeId{0x0a, 0x0b},
		Tree:     tree.Resolved(ids.TreeId{0x03}),
		Author: commit.Signature{
			Name:  "Alice",
			Email: "alice@example.com",
			Time:  time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
		},
		Committer: commit.Signature{
			Name:  "Bob",
			Email: "bob@example.com",
			Time:  time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		},
		Description: "add feature\n\nlonger body\n",
		Signature:   []byte{0xde, 0xad},
	}

	id, err := s.WriteCommit(ctx, c)
	require.NoError(t, err)

	got, err := s.Commit(ctx, id)
	require.NoError(t, err)

	c.ID = id
	assert.Equal(t, c, got)
}

func TestStore_ConflictedCommitTree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := commit.Commit{
		ChangeID: ids.ChangeId{0x0a},
		Tree: tree.NewConflicted(
			[]ids.TreeId{{0x01}, {0x02}},
			[]ids.TreeId{{0x03}},
			[]string{"left", "base", "right"},
		),
	}

	id, err := s.WriteCommit(ctx, c)
	require.NoError(t, err)

	got, err := s.Commit(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Tree.IsResolved())
	assert.Equal(t, c.Tree.Value().Added(), got.Tree.Value().Added())
	assert.Equal(t, c.Tree.Value().Removed(), got.Tree.Value().Removed())
	assert.Equal(t, []string{"left", "base", "right"}, got.Tree.Labels())
}

func TestStore_MissingObjects(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Commit(ctx, ids.CommitId{0xff})
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = s.ListPaths(ctx, ids.TreeId{0xff})
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestStore_IsAncestor(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	write := func(desc string, parents ...ids.CommitId) ids.CommitId {
		id, err := s.WriteCommit(ctx, commit.Commit{
			Parents:     parents,
			ChangeID:    ids.ChangeId{0x01},
			Tree:        tree.Resolved(s.EmptyTreeID()),
			Description: desc,
		})
		require.NoError(t, err)
		return id
	}

	root := write("root")
	mid := write("mid", root)
	tip := write("tip", mid)
	other := write("other", root)

	for _, tt := range []struct {
		anc, desc ids.CommitId
		want      bool
	}{
		{root, tip, true},
		{mid, tip, true},
		{tip, tip, true},
		{tip, root, false},
		{other, tip, false},
	} {
		got, err := s.IsAncestor(ctx, tt.anc, tt.desc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
