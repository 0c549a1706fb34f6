package refsort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(items []RefListItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestSort_NameAscIsNoopPassButStillDefaultOrder(t *testing.T) {
	items := []RefListItem{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	Sort(items, []Key{NameAsc})
	assert.Equal(t, []string{"a", "b", "c"}, names(items))
}

func TestSort_NameDesc(t *testing.T) {
	items := []RefListItem{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	Sort(items, []Key{NameDesc})
	assert.Equal(t, []string{"c", "b", "a"}, names(items))
}

func TestSort_AuthorTimestampAscWithAbsentSortsFirst(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)
	items := []RefListItem{
		{Name: "a", Author: &Signature{Time: t1}},
		{Name: "b", Author: nil},
		{Name: "c", Author: &Signature{Time: t0}},
	}
	Sort(items, []Key{NameAsc, AuthorTimestampAsc})
	assert.Equal(t, []string{"b", "c", "a"}, names(items))
}

func TestSort_AuthorTimestampDescWithAbsentSortsLast(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)
	items := []RefListItem{
		{Name: "a", Author: &Signature{Time: t1}},
		{Name: "b", Author: nil},
		{Name: "c", Author: &Signature{Time: t0}},
	}
	Sort(items, []Key{NameAsc, AuthorTimestampDesc})
	assert.Equal(t, []string{"a", "c", "b"}, names(items))
}

func TestSort_MultiKeyNameMostSignificant(t *testing.T) {
	// Name is the more significant key (first), author timestamp breaks
	// ties within... but here names differ, so name order always wins
	// regardless of author timestamp, confirming key precedence.
	items := []RefListItem{
		{Name: "b", Author: &Signature{Time: time.Unix(1, 0)}},
		{Name: "a", Author: &Signature{Time: time.Unix(100, 0)}},
	}
	Sort(items, []Key{NameAsc, AuthorTimestampDesc})
	assert.Equal(t, []string{"a", "b"}, names(items))
}

func TestSort_SecondaryKeyBreaksTies(t *testing.T) {
	items := []RefListItem{
		{Name: "same", Author: &Signature{Name: "zeta"}},
		{Name: "same", Author: &Signature{Name: "alpha"}},
	}
	Sort(items, []Key{NameAsc, AuthorNameAsc})
	require.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0].Author.Name)
	assert.Equal(t, "zeta", items[1].Author.Name)
}

func TestSort_StableOnFullTie(t *testing.T) {
	items := []RefListItem{
		{Name: "a", Tracked: []string{"first"}},
		{Name: "a", Tracked: []string{"second"}},
	}
	Sort(items, []Key{NameAsc})
	assert.Equal(t, "first", items[0].Tracked[0])
	assert.Equal(t, "second", items[1].Tracked[0])
}
