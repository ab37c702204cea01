package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/rct"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

func TestSnapshotIsolationShortCircuits(t *testing.T) {
	status := txstatus.NewMemory()
	v := NewValidator(rct.New(), status)
	v.Isolation = Snapshot

	tx := storage.NewTxn(1, 10, false)
	require.Equal(t, OutcomeCommit, v.Validate(tx, nil))
}

func TestNoConflictsCommits(t *testing.T) {
	status := txstatus.NewMemory()
	v := NewValidator(rct.New(), status)

	tx := storage.NewTxn(1, 10, false)
	require.Equal(t, OutcomeCommit, v.Validate(tx, []Step{{Kind: plan.OpTraversal}}))
}

func TestStepConflictWithCommittedPeerAborts(t *testing.T) {
	status := txstatus.NewMemory()
	table := rct.New()
	table.Insert(rct.InsertVertex, 99, []rct.ItemID{42})
	status.UpdateStatus(99, txstatus.Validating)
	status.UpdateStatus(99, txstatus.Committed)

	v := NewValidator(table, status)
	tx := storage.NewTxn(1, 10, false)
	tx.RecordDependency(99, 0) // homo, so 99 is in the peer scan set

	steps := []Step{{Kind: plan.OpTraversal, Items: []rct.ItemID{42}}}
	require.Equal(t, OutcomeAbort, v.Validate(tx, steps))
}

func TestHeteroDependencyOnCommittedPeerAborts(t *testing.T) {
	status := txstatus.NewMemory()
	status.UpdateStatus(5, txstatus.Committed)
	v := NewValidator(rct.New(), status)

	tx := storage.NewTxn(1, 10, false)
	tx.RecordDependency(5, 1) // hetero
	require.Equal(t, OutcomeAbort, v.Validate(tx, nil))
}

func TestHomoDependencyOnAbortedPeerIsFatal(t *testing.T) {
	status := txstatus.NewMemory()
	status.UpdateStatus(5, txstatus.Aborted)
	v := NewValidator(rct.New(), status)

	tx := storage.NewTxn(1, 10, false)
	tx.RecordDependency(5, 0) // homo
	require.Equal(t, OutcomeAbort, v.Validate(tx, nil))
}
