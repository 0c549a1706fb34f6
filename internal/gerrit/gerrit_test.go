package gerrit

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/opvc/internal/ids"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		desc    string
		commit  UploadCommit
		wantErr string
	}{
		{
			desc:   "valid",
			commit: UploadCommit{ID: ids.CommitId{1}, Description: "fix parser"},
		},
		{
			desc:    "no description",
			commit:  UploadCommit{ID: ids.CommitId{1}},
			wantErr: "has no description",
		},
		{
			desc:    "whitespace description",
			commit:  UploadCommit{ID: ids.CommitId{1}, Description: "  \n"},
			wantErr: "has no description",
		},
		{
			desc:    "empty commit",
			commit:  UploadCommit{ID: ids.CommitId{1}, Description: "fix parser", Empty: true},
			wantErr: "is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := ValidateTarget(tt.commit)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGerritChangeID(t *testing.T) {
	id := GerritChangeID(ids.ChangeId{0x01, 0x02})

	assert.Len(t, id, 41)
	assert.True(t, strings.HasPrefix(id, "I"))

	// Stable across calls: rewrites of a change keep their Gerrit id.
	assert.Equal(t, id, GerritChangeID(ids.ChangeId{0x01, 0x02}))
	assert.NotEqual(t, id, GerritChangeID(ids.ChangeId{0x03}))
}

func TestEnsureTrailers_AppendsChangeID(t *testing.T) {
	changeID := ids.ChangeId{0xab}

	got, changed := EnsureTrailers("fix parser\n\nlonger body\n", changeID, "")
	require.True(t, changed)

	assert.True(t, strings.HasPrefix(got, "fix parser\n\nlonger body\n"))
	assert.Contains(t, got, "Change-Id: "+GerritChangeID(changeID))
}

func TestEnsureTrailers_LinkTrailer(t *testing.T) {
	changeID := ids.ChangeId{0xab}

	got, changed := EnsureTrailers("fix parser\n", changeID, "https://review.example.com/")
	require.True(t, changed)

	id := GerritChangeID(changeID)
	assert.Contains(t, got, "Change-Id: "+id)
	assert.Contains(t, got, "Link: https://review.example.com/id/"+id)
}

func TestEnsureTrailers_IdempotentOnExistingChangeID(t *testing.T) {
	changeID := ids.ChangeId{0xab}

	once, changed := EnsureTrailers("fix parser\n", changeID, "")
	require.True(t, changed)

	twice, changed := EnsureTrailers(once, changeID, "")
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestEnsureTrailers_JoinsExistingTrailerBlock(t *testing.T) {
	desc := "fix parser\n\nSigned-off-by: Alice <alice@example.com>\n"

	got, changed := EnsureTrailers(desc, ids.ChangeId{0xab}, "")
	require.True(t, changed)

	assert.NotContains(t, got, "example.com>\n\nChange-Id:",
		"Change-Id should join the existing trailer block, not open a new one")
	assert.Contains(t, got, "Signed-off-by: Alice <alice@example.com>\nChange-Id:")
}

// recordingExecer captures the commands a Pusher would run instead of
// running them.
type recordingExecer struct {
	commands [][]string
	err      error
}

func (e *recordingExecer) record(cmd *exec.Cmd) error {
	e.commands = append(e.commands, cmd.Args)
	return e.err
}

func (e *recordingExecer) Run(cmd *exec.Cmd) error   { return e.record(cmd) }
func (e *recordingExecer) Start(cmd *exec.Cmd) error { return e.record(cmd) }
func (e *recordingExecer) Wait(*exec.Cmd) error      { return e.err }
func (e *recordingExecer) Kill(*exec.Cmd) error      { return nil }
func (e *recordingExecer) Output(cmd *exec.Cmd) ([]byte, error) {
	return nil, e.record(cmd)
}

func TestPusher_PushRefspec(t *testing.T) {
	execer := new(recordingExecer)
	p := NewPusher(t.TempDir(), nil, execer)

	err := p.Push(context.Background(), "origin", "deadbeef", "main")
	require.NoError(t, err)

	require.Len(t, execer.commands, 1)
	assert.Equal(t,
		[]string{"git", "push", "origin", "deadbeef:refs/for/main"},
		execer.commands[0])
}

func TestPusher_PushFailure(t *testing.T) {
	execer := &recordingExecer{err: assert.AnError}
	p := NewPusher(t.TempDir(), nil, execer)

	err := p.Push(context.Background(), "origin", "deadbeef", "main")
	assert.ErrorIs(t, err, assert.AnError)
}
