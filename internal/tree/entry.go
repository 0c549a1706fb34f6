package tree

import "go.abhg.dev/opvc/internal/ids"

// EntryKind distinguishes the three things a path in a tree can hold.
type EntryKind int

const (
	// Absent means the path does not exist on this side.
	Absent EntryKind = iota
	// File means the path holds file (blob) content.
	File
	// Tree means the path holds a subtree.
	Tree
)

// Mode is a simplified file mode: regular or executable. Symlinks are
// represented as a [File] entry by convention of the backend; the core
// does not interpret file contents.
type Mode int

const (
	// RegularMode is a non-executable file.
	RegularMode Mode = iota
	// ExecutableMode is an executable file.
	ExecutableMode
)

// Entry is a single-sided tree or file entry: what a [MergedTreeBuilder]
// override, or one side of a [FileMerge], holds at a path.
type Entry struct {
	Kind Mode
	Type EntryKind
	File ids.FileId
	Tree ids.TreeId
}

// AbsentEntry is the distinguished "nothing here" entry used to pad
// merges and to represent deletions.
var AbsentEntry = Entry{Type: Absent}

// FileEntry builds an Entry for a file.
func FileEntry(id ids.FileId, mode Mode) Entry {
	return Entry{Type: File, File: id, Kind: mode}
}

// TreeEntry builds an Entry for a subtree.
func TreeEntry(id ids.TreeId) Entry {
	return Entry{Type: Tree, Tree: id}
}

// Equal reports whether two entries refer to the same content.
func (e Entry) Equal(other Entry) bool {
	if e.Type != other.Type {
		return false
	}
	switch e.Type {
	case Absent:
		return true
	case File:
		return e.Kind == other.Kind && e.File.Equal(other.File)
	case Tree:
		return e.Tree.Equal(other.Tree)
	default:
		return false
	}
}
