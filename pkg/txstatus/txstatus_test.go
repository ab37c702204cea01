package txstatus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	svc := NewMemory()
	id := svc.AllocateTrxID()
	require.Equal(t, Processing, svc.ReadStatus(id))

	svc.UpdateStatus(id, Validating)
	st, ct := svc.ReadCT(id)
	require.Equal(t, Validating, st)
	require.Greater(t, ct, uint64(0))

	svc.UpdateStatus(id, Committed)
	require.Equal(t, Committed, svc.ReadStatus(id))
}

func TestUnknownTrxIsProcessing(t *testing.T) {
	svc := NewMemory()
	require.Equal(t, Processing, svc.ReadStatus(9999))
}

func TestMonotonicAllocation(t *testing.T) {
	svc := NewMemory()
	a := svc.AllocateTrxID()
	b := svc.AllocateTrxID()
	require.Less(t, a, b)
}
