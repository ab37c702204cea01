package rct

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndRecentActionSet(t *testing.T) {
	table := New()
	table.Insert(ModifyVertexProperty, 5, []ItemID{1, 2, 3})
	table.Insert(ModifyVertexProperty, 6, []ItemID{9})

	got := table.RecentActionSet(ModifyVertexProperty, []uint64{5, 6, 999})
	require.ElementsMatch(t, []ItemID{1, 2, 3}, got[5])
	require.ElementsMatch(t, []ItemID{9}, got[6])
	_, ok := got[999]
	require.False(t, ok)
}

func TestPrimitivesAreIsolated(t *testing.T) {
	table := New()
	table.Insert(InsertVertex, 1, []ItemID{42})
	got := table.RecentActionSet(DropVertex, []uint64{1})
	require.Empty(t, got)
}

func TestEvict(t *testing.T) {
	table := New()
	table.Insert(InsertVertex, 1, []ItemID{1})
	table.Insert(DropEdge, 1, []ItemID{2})
	table.Evict([]uint64{1})

	require.Empty(t, table.RecentActionSet(InsertVertex, []uint64{1}))
	require.Empty(t, table.RecentActionSet(DropEdge, []uint64{1}))
}
