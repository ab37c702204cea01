package rowlist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtrandb/gtrandb/pkg/txstatus"
	"github.com/gtrandb/gtrandb/pkg/valuestore"
)

func TestPropertyRowListModifyAndRead(t *testing.T) {
	p := NewPropertyRowList()
	svc := txstatus.NewMemory()

	wasExisting, list, err := p.ProcessModify(1, 10, valuestore.Offset(100))
	require.NoError(t, err)
	require.False(t, wasExisting)
	list.Commit(10, 5)

	_, found, val := p.Read(1, 20, 5, true, svc, nil)
	require.True(t, found)
	require.Equal(t, valuestore.Offset(100), val)

	wasExisting, _, err = p.ProcessModify(1, 11, valuestore.Offset(200))
	require.NoError(t, err)
	require.True(t, wasExisting)
}

func TestPropertyRowListDropReturnsOldValue(t *testing.T) {
	p := NewPropertyRowList()
	svc := txstatus.NewMemory()
	_, list, err := p.ProcessModify(1, 10, valuestore.Offset(7))
	require.NoError(t, err)
	list.Commit(10, 1)

	dropList, old, err := p.ProcessDrop(1, 20, 2, svc)
	require.NoError(t, err)
	require.Equal(t, valuestore.Offset(7), old)
	dropList.Commit(20, 3)

	_, found, _ := p.Read(1, 30, 3, true, svc, nil)
	require.False(t, found)
}

func TestTopologyRowListAddAndReadConnected(t *testing.T) {
	top := NewTopologyRowList()
	svc := txstatus.NewMemory()

	list, err := top.ProcessAddEdge(Out, 42, 10, 5, nil)
	require.NoError(t, err)
	list.Commit(10, 1)

	edges := top.ReadConnectedEdges(Out, 0, 20, 1, true, svc, nil)
	require.Len(t, edges, 1)
	require.Equal(t, uint64(42), edges[0].PeerVID)
	require.Equal(t, uint32(5), edges[0].Version.Label)
}

func TestTopologyRowListDropTombstones(t *testing.T) {
	top := NewTopologyRowList()
	svc := txstatus.NewMemory()

	list, err := top.ProcessAddEdge(Out, 42, 10, 5, nil)
	require.NoError(t, err)
	list.Commit(10, 1)

	dropList, err := top.ProcessDropEdge(Out, 42, 20)
	require.NoError(t, err)
	dropList.Commit(20, 2)

	edges := top.ReadConnectedEdges(Out, 0, 30, 2, true, svc, nil)
	require.Empty(t, edges)
}
