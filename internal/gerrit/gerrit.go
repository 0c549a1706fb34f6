// Package gerrit implements the upload side of Gerrit code review:
// validating that a commit chain is uploadable, stamping the
// Change-Id and Link trailers Gerrit uses to track revisions of a
// change, and pushing the chain to the magic refs/for/<branch> ref.
package gerrit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.abhg.dev/log/silog"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/opvc/internal/xec"
)

// changeIDTrailer and linkTrailer are the trailer keys Gerrit
// recognizes for associating a pushed commit with a change.
const (
	changeIDTrailer = "Change-Id"
	linkTrailer     = "Link"
)

// UploadCommit is the slice of a commit the uploader needs.
type UploadCommit struct {
	ID          ids.CommitId
	ChangeID    ids.ChangeId
	Description string

	// Empty is true if the commit's tree equals its parent's tree.
	Empty bool
}

// MissingDescriptionError rejects uploading a commit with no
// description: Gerrit would show an unreviewable, untitled change.
type MissingDescriptionError struct {
	Commit ids.CommitId
}

func (e *MissingDescriptionError) Error() string {
	return fmt.Sprintf("commit %s has no description", e.Commit)
}

// EmptyCommitError rejects uploading a commit with no changes.
type EmptyCommitError struct {
	Commit ids.CommitId
}

func (e *EmptyCommitError) Error() string {
	return fmt.Sprintf("commit %s is empty", e.Commit)
}

// ValidateTarget checks the commit named on the command line. Its
// ancestors are not validated: only the tip must carry a description
// and changes of its own.
func ValidateTarget(c UploadCommit) error {
	if strings.TrimSpace(c.Description) == "" {
		return &MissingDescriptionError{Commit: c.ID}
	}
	if c.Empty {
		return &EmptyCommitError{Commit: c.ID}
	}
	return nil
}

// GerritChangeID derives the "I"-prefixed 40-hex-digit token Gerrit
// expects from the engine's stable change id, so that rewrites of the
// same change keep updating the same Gerrit change.
func GerritChangeID(changeID ids.ChangeId) string {
	sum := sha256.Sum256([]byte(changeID))
	return "I" + hex.EncodeToString(sum[:])[:40]
}

// EnsureTrailers returns description with the Gerrit tracking
// trailers appended, if they are not already present. With a
// reviewURL configured, a Link trailer pointing at the change is
// written alongside the Change-Id. The second return is false if the
// description already carried a Change-Id and came back unchanged.
func EnsureTrailers(description string, changeID ids.ChangeId, reviewURL string) (string, bool) {
	if hasTrailer(description, changeIDTrailer) {
		return description, false
	}

	id := GerritChangeID(changeID)

	var b strings.Builder
	b.WriteString(strings.TrimRight(description, "\n"))
	b.WriteString("\n")
	if !endsInTrailerBlock(description) {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s: %s\n", changeIDTrailer, id)
	if reviewURL != "" {
		fmt.Fprintf(&b, "%s: %s/id/%s\n", linkTrailer, strings.TrimRight(reviewURL, "/"), id)
	}
	return b.String(), true
}

// hasTrailer reports whether any line of description is a trailer
// with the given key.
func hasTrailer(description, key string) bool {
	for _, line := range strings.Split(description, "\n") {
		if strings.HasPrefix(line, key+": ") {
			return true
		}
	}
	return false
}

// endsInTrailerBlock reports whether the description's last non-empty
// line already looks like a trailer, in which case new trailers join
// that block instead of opening a new one.
func endsInTrailerBlock(description string) bool {
	lines := strings.Split(strings.TrimRight(description, "\n"), "\n")
	if len(lines) < 2 {
		return false
	}
	last := lines[len(lines)-1]
	key, _, ok := strings.Cut(last, ": ")
	return ok && key != "" && !strings.ContainsAny(key, " \t")
}

// Pusher pushes commits to a Gerrit remote with the system git.
type Pusher struct {
	dir    string
	log    *silog.Logger
	execer xec.Execer
}

// NewPusher returns a Pusher running git inside dir. If log is nil,
// logging is disabled; if execer is nil, commands run for real.
func NewPusher(dir string, log *silog.Logger, execer xec.Execer) *Pusher {
	if log == nil {
		log = silog.Nop()
	}
	if execer == nil {
		execer = xec.DefaultExecer
	}
	return &Pusher{dir: dir, log: log, execer: execer}
}

// Push sends rev to refs/for/<branch> on remote, the magic ref Gerrit
// turns into change uploads. A failed push leaves the local repo
// untouched; there is nothing to roll back.
func (p *Pusher) Push(ctx context.Context, remote, rev, branch string) error {
	refspec := fmt.Sprintf("%s:refs/for/%s", rev, branch)
	p.log.Debug("pushing to gerrit", "remote", remote, "refspec", refspec)

	err := xec.Command(ctx, p.log, "git", "push", remote, refspec).
		WithDir(p.dir).
		WithExecer(p.execer).
		Run()
	if err != nil {
		return fmt.Errorf("git push %v %v: %w", remote, refspec, err)
	}
	return nil
}
