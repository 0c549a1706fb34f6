package oplog

import (
	"time"

	"go.abhg.dev/opvc/internal/ids"
)

// Metadata records who ran an operation and why, for `op log` style
// listings and for the undo/redo stack walker (which needs to tell an
// undo or revert operation apart from an ordinary one).
type Metadata struct {
	User        string
	Hostname    string
	Time        time.Time
	Argv        []string
	Description string

	// Tag classifies special operations produced by the undo/redo/revert
	// machinery. It is empty for ordinary operations.
	Tag OperationTag
}

// OperationTag marks an operation as produced by undo, redo, or
// revert, rather than by ordinary repository mutation.
type OperationTag int

const (
	// TagNone marks an ordinary operation.
	TagNone OperationTag = iota
	// TagUndo marks an operation created by "undo".
	TagUndo
	// TagRevert marks an operation created by "revert". Reverts are
	// not recognized by the undo/redo stack walker: they do not chain.
	TagRevert
)

// Operation is a single node in the append-only operation DAG: a
// commit-DAG snapshot (View) plus the metadata describing the command
// that produced it. The graph of all operations is a DAG with exactly
// one root (the empty repository's initial operation).
type Operation struct {
	ID       ids.OperationId
	Parents  []ids.OperationId
	View     View
	Metadata Metadata
}

// IsRoot reports whether op is the operation-log root.
func (op Operation) IsRoot() bool { return len(op.Parents) == 0 }
