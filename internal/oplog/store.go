package oplog

import (
	"context"
	"errors"
	"fmt"

	"go.abhg.dev/opvc/internal/ids"
	"go.abhg.dev/log/silog"
)

// maxHeadUpdateAttempts bounds the compare-and-swap retry loop in
// [Store.Append].
const maxHeadUpdateAttempts = 5

// ErrHeadsChanged is returned by a [Backend] when its compare-and-swap
// write lost a race: the observed head set is no longer current.
// [Store.Append] retries automatically on this error; [Store.Integrate]
// returns it wrapped, without retrying.
var ErrHeadsChanged = errors.New("operation heads changed concurrently")

// Backend is the storage primitive the operation log is built on: an
// append-only store for [Operation] values, plus a single
// compare-and-swap cell holding the current head set. [FSBackend]
// stores operations as one file each and heads as one empty file per
// head; a git-backed implementation would store operations as commits
// with one ref per head, moved with `update-ref <ref> <new> <old>`.
// This package only depends on the narrow contract below.
type Backend interface {
	WriteOperation(ctx context.Context, op Operation) (ids.OperationId, error)
	ReadOperation(ctx context.Context, id ids.OperationId) (Operation, error)

	// ReadHeads returns the current head set and an opaque token
	// identifying that exact read, to be passed back to WriteHeads.
	ReadHeads(ctx context.Context) (heads []ids.OperationId, token string, err error)

	// WriteHeads atomically replaces the head set. It returns
	// [ErrHeadsChanged] if token no longer matches the stored heads.
	WriteHeads(ctx context.Context, heads []ids.OperationId, token string) error
}

// Store is the operation log built on top of a [Backend]: it
// sequences appends against the head set with compare-and-swap retry.
type Store struct {
	backend Backend
	log     *silog.Logger
}

// New builds a Store over backend. If log is nil, logging is disabled.
func New(backend Backend, log *silog.Logger) *Store {
	if log == nil {
		log = silog.Nop()
	}
	return &Store{backend: backend, log: log}
}

// Heads returns the current operation-heads set.
func (s *Store) Heads(ctx context.Context) ([]ids.OperationId, error) {
	heads, _, err := s.backend.ReadHeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("read heads: %w", err)
	}
	return heads, nil
}

// Append records a new operation whose parents are the current head
// set, then atomically replaces that head set with the new operation
// alone, retrying if another writer changed the heads in between.
func (s *Store) Append(ctx context.Context, view View, meta Metadata) (ids.OperationId, error) {
	var lastErr error
	for attempt := range maxHeadUpdateAttempts {
		heads, token, err := s.backend.ReadHeads(ctx)
		if err != nil {
			return nil, fmt.Errorf("read heads: %w", err)
		}

		op := Operation{Parents: heads, View: view, Metadata: meta}
		id, err := s.backend.WriteOperation(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("write operation: %w", err)
		}

		err = s.backend.WriteHeads(ctx, []ids.OperationId{id}, token)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrHeadsChanged) {
			return nil, fmt.Errorf("write heads: %w", err)
		}

		lastErr = err
		s.log.Warn("operation heads changed concurrently, retrying",
			"attempt", attempt+1)
	}

	return nil, fmt.Errorf("write heads: %w", lastErr)
}
