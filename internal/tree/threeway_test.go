package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.abhg.dev/opvc/internal/ids"
)

func TestMergeTrees_NoChangeOnEitherSideResolves(t *testing.T) {
	base := Resolved(ids.TreeId("t1"))
	got := MergeTrees(base, base, base)
	assert.True(t, got.IsResolved())
	id, _ := got.Resolve()
	assert.Equal(t, ids.TreeId("t1"), id)
}

func TestMergeTrees_OnlyLeftChangedKeepsLeft(t *testing.T) {
	base := Resolved(ids.TreeId("t1"))
	left := Resolved(ids.TreeId("t2"))
	got := MergeTrees(base, left, base)
	assert.True(t, got.IsResolved())
	id, _ := got.Resolve()
	assert.Equal(t, ids.TreeId("t2"), id)
}

func TestMergeTrees_BothSidesChangedStaysConflicted(t *testing.T) {
	base := Resolved(ids.TreeId("t1"))
	left := Resolved(ids.TreeId("t2"))
	right := Resolved(ids.TreeId("t3"))
	got := MergeTrees(base, left, right)
	assert.False(t, got.IsResolved())
	assert.Equal(t, 3, got.NumSides())
}
