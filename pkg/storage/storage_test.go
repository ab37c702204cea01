package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtrandb/gtrandb/pkg/rowlist"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

func TestAddVThenVisibleAfterCommit(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	tx := NewTxn(1, 10, false)
	vid, err := s.ProcessAddV(7, tx)
	require.NoError(t, err)
	s.Commit(tx, 100)

	reader := NewTxn(2, 100, true)
	found, err := s.CheckVertexVisibility(vid, reader)
	require.NoError(t, err)
	require.True(t, found)

	earlyReader := NewTxn(3, 99, true)
	found, err = s.CheckVertexVisibility(vid, earlyReader)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAddVThenDropVSameTrxCommitsInvisible(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	tx := NewTxn(1, 10, false)
	vid, err := s.ProcessAddV(1, tx)
	require.NoError(t, err)
	_, err = s.ProcessDropV(vid, tx)
	require.NoError(t, err)
	s.Commit(tx, 50)

	reader := NewTxn(2, 51, true)
	found, err := s.CheckVertexVisibility(vid, reader)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAbortAtomicity(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	tx := NewTxn(1, 10, false)
	vid, err := s.ProcessAddV(1, tx)
	require.NoError(t, err)
	require.NoError(t, s.ProcessModifyVP(VPropId{VID: vid, Label: 1}, []byte("a"), tx))
	s.Abort(tx)

	reader := NewTxn(2, 10, true)
	found, err := s.CheckVertexVisibility(vid, reader)
	require.NoError(t, err)
	require.False(t, found)
}

func TestReadYourWritesOnProperty(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	tx := NewTxn(1, 10, false)
	vid, err := s.ProcessAddV(1, tx)
	require.NoError(t, err)
	require.NoError(t, s.ProcessModifyVP(VPropId{VID: vid, Label: 2}, []byte("hello"), tx))

	found, val, err := s.GetVP(VPropId{VID: vid, Label: 2}, tx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello"), val)
}

func TestModifyPropertyThenDropCommitsToNoProperty(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	tx := NewTxn(1, 10, false)
	vid, err := s.ProcessAddV(1, tx)
	require.NoError(t, err)
	require.NoError(t, s.ProcessModifyVP(VPropId{VID: vid, Label: 2}, []byte("v"), tx))
	require.NoError(t, s.ProcessDropVP(VPropId{VID: vid, Label: 2}, tx))
	s.Commit(tx, 20)

	reader := NewTxn(2, 20, true)
	found, _, err := s.GetVP(VPropId{VID: vid, Label: 2}, reader)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAddEdgeAndReadConnected(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	setup := NewTxn(1, 1, false)
	src, err := s.ProcessAddV(1, setup)
	require.NoError(t, err)
	dst, err := s.ProcessAddV(1, setup)
	require.NoError(t, err)
	s.Commit(setup, 2)

	edgeTx := NewTxn(2, 5, false)
	eid := EId{Src: src, Dst: dst}
	require.NoError(t, s.ProcessAddE(eid, 9, true, edgeTx))
	require.NoError(t, s.ProcessAddE(eid, 9, false, edgeTx))
	s.Commit(edgeTx, 6)

	reader := NewTxn(3, 6, true)
	neighbors, err := s.GetConnectedVertexList(src, rowlist.Out, 0, reader)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, dst, neighbors[0].VID)

	inNeighbors, err := s.GetConnectedVertexList(dst, rowlist.In, 0, reader)
	require.NoError(t, err)
	require.Len(t, inNeighbors, 1)
	require.Equal(t, src, inNeighbors[0].VID)
}

func TestDropCascadeCollectsEdges(t *testing.T) {
	svc := txstatus.NewMemory()
	s := New(1, svc)

	setup := NewTxn(1, 1, false)
	v7, err := s.ProcessAddV(1, setup)
	require.NoError(t, err)
	e1, err := s.ProcessAddV(1, setup)
	require.NoError(t, err)
	require.NoError(t, s.ProcessAddE(EId{Src: v7, Dst: e1}, 1, true, setup))
	require.NoError(t, s.ProcessAddE(EId{Src: v7, Dst: e1}, 1, false, setup))
	s.Commit(setup, 2)

	dropTx := NewTxn(2, 5, false)
	edges, err := s.ProcessDropV(v7, dropTx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
}
