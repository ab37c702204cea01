package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtrandb/gtrandb/pkg/config"
	"github.com/gtrandb/gtrandb/pkg/messaging"
	"github.com/gtrandb/gtrandb/pkg/operator"
	"github.com/gtrandb/gtrandb/pkg/plan"
	"github.com/gtrandb/gtrandb/pkg/storage"
	"github.com/gtrandb/gtrandb/pkg/txstatus"
)

func TestEngineRunsAddVToCommit(t *testing.T) {
	e := New(1, config.LoadFromEnv(), nil)
	tx := e.Begin(false)

	b := plan.NewBuilder()
	s0 := b.AddStatement([]plan.Op{{Kind: plan.OpAddV}}, plan.TrxAdd)
	p := b.Build(tx.ID, tx.BeginTS)

	ops := map[int]operator.Operator{
		s0: &operator.AddVOperator{Label: 1},
	}
	require.NoError(t, e.Run(tx, p, ops))
	require.Equal(t, txstatus.Committed, e.Status.ReadStatus(tx.ID))

	out, ok := p.Result(s0)
	require.True(t, ok)
	require.Len(t, out, 1)
	vid := out[0].(storage.VId)

	reader := e.Begin(true)
	found, err := e.Storage.CheckVertexVisibility(vid, reader)
	require.NoError(t, err)
	require.True(t, found)
}

func TestEngineAbortsOnInvisibleInput(t *testing.T) {
	e := New(1, config.LoadFromEnv(), nil)
	tx := e.Begin(false)

	b := plan.NewBuilder()
	s0 := b.AddStatement([]plan.Op{{Kind: plan.OpDrop}}, plan.TrxDelete)
	p := b.Build(tx.ID, tx.BeginTS)

	ops := map[int]operator.Operator{
		s0: dropFixedVertex{vid: storage.VId(999)},
	}
	err := e.Run(tx, p, ops)
	require.Error(t, err)
	require.Equal(t, txstatus.Aborted, e.Status.ReadStatus(tx.ID))
}

type dropFixedVertex struct{ vid storage.VId }

func (dropFixedVertex) Kind() plan.OperatorKind { return plan.OpDrop }

func (d dropFixedVertex) Process(ctx *operator.Context, in messaging.Message) ([]messaging.Message, error) {
	msg := messaging.NewMessage(in.Header, d.vid)
	return (&operator.DropOperator{}).Process(ctx, msg)
}
