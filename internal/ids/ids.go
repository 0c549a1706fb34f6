// Package ids defines the opaque, content-addressed identifiers used
// throughout the engine: commits, trees, files, and the changes that
// survive rewrites of all three.
package ids

import "encoding/hex"

// CommitId identifies a single immutable commit.
//
// Unlike [ChangeId], a CommitId changes every time the commit is rewritten.
type CommitId []byte

// TreeId identifies the content of a tree: a flat or nested mapping of
// path to file or subtree.
type TreeId []byte

// FileId identifies the content of a single file.
type FileId []byte

// ChangeId identifies a logical change across rewrites of the commit
// that implements it. It is assigned once, when a commit is first
// created, and is preserved by the commit rewriter.
type ChangeId []byte

// OperationId identifies a single node in the operation log: the
// content hash of an operation's parents, view, and metadata.
type OperationId []byte

// String renders an id as lowercase hex.
func (id CommitId) String() string { return hex.EncodeToString(id) }

// String renders an id as lowercase hex.
func (id TreeId) String() string { return hex.EncodeToString(id) }

// String renders an id as lowercase hex.
func (id FileId) String() string { return hex.EncodeToString(id) }

// String renders an id as lowercase hex.
func (id ChangeId) String() string { return hex.EncodeToString(id) }

// String renders an id as lowercase hex.
func (id OperationId) String() string { return hex.EncodeToString(id) }

// Equal reports whether two CommitIds refer to the same commit.
func (id CommitId) Equal(other CommitId) bool { return bytesEqual(id, other) }

// Equal reports whether two TreeIds refer to the same tree content.
func (id TreeId) Equal(other TreeId) bool { return bytesEqual(id, other) }

// Equal reports whether two FileIds refer to the same file content.
func (id FileId) Equal(other FileId) bool { return bytesEqual(id, other) }

// Equal reports whether two ChangeIds identify the same logical change.
func (id ChangeId) Equal(other ChangeId) bool { return bytesEqual(id, other) }

// Equal reports whether two OperationIds identify the same operation.
func (id OperationId) Equal(other OperationId) bool { return bytesEqual(id, other) }

// IsEmpty reports whether id is the zero-length identifier, used by the
// engine to represent "no value" in odd-sided merges (see
// [go.abhg.dev/opvc/internal/merge]) without shortening the side sequence.
func (id TreeId) IsEmpty() bool { return len(id) == 0 }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
