package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterBarrierOrdersMutations(t *testing.T) {
	b := NewBuilder()
	s0 := b.AddStatement([]Op{{Kind: OpAddV}}, TrxAdd)
	s1 := b.AddStatement([]Op{{Kind: OpAddV}}, TrxAdd)
	p := b.Build(1, 10)

	ready := p.NextReady()
	require.Equal(t, []int{s0}, ready)

	require.NoError(t, p.FillResult(s0, []any{uint32(1)}))
	ready = p.NextReady()
	require.Equal(t, []int{s1}, ready)
}

func TestReadOnlyDependsOnLastMutationOnly(t *testing.T) {
	b := NewBuilder()
	mutate := b.AddStatement([]Op{{Kind: OpAddV}}, TrxAdd)
	read := b.AddStatement([]Op{{Kind: OpTraversal}}, TrxReadOnly)
	p := b.Build(1, 10)

	require.Equal(t, []int{mutate}, p.NextReady())
	require.NoError(t, p.FillResult(mutate, []any{uint32(1)}))
	require.Equal(t, []int{read}, p.NextReady())
}

func TestFinalStatementDependsOnEveryStatement(t *testing.T) {
	b := NewBuilder()
	s0 := b.AddStatement([]Op{{Kind: OpAddV}}, TrxAdd)
	s1 := b.AddStatement([]Op{{Kind: OpTraversal}}, TrxReadOnly)
	p := b.Build(1, 10)

	require.Equal(t, []int{s0}, p.NextReady())
	require.NoError(t, p.FillResult(s0, nil))
	require.Equal(t, []int{s1}, p.NextReady())
	require.NoError(t, p.FillResult(s1, nil))
	require.Equal(t, []int{p.FinalIndex()}, p.NextReady())
}

func TestPlaceholderSplicesInitParams(t *testing.T) {
	b := NewBuilder()
	src := b.AddStatement([]Op{{Kind: OpTraversal}}, TrxReadOnly)
	target := b.AddStatement([]Op{{Kind: OpInit, Params: nil}}, TrxReadOnly)
	b.AddPlaceholder(src, Placeholder{TargetStmt: target, TargetOp: 0, TargetParam: -1})
	p := b.Build(1, 10)

	require.NoError(t, p.FillResult(src, []any{uint32(7), uint32(8)}))
	require.Equal(t, []any{uint32(7), uint32(8)}, p.Statement(target).Ops[0].Params)
}

func TestAddEPlaceholderAbortsOnWrongArity(t *testing.T) {
	b := NewBuilder()
	src := b.AddStatement([]Op{{Kind: OpTraversal}}, TrxReadOnly)
	target := b.AddStatement([]Op{{Kind: OpAddE, Params: []any{nil}}}, TrxAdd)
	b.AddPlaceholder(src, Placeholder{TargetStmt: target, TargetOp: 0, TargetParam: 0})
	p := b.Build(1, 10)

	err := p.FillResult(src, []any{uint32(1), uint32(2)})
	require.ErrorIs(t, err, ErrAbort)
	require.True(t, p.IsAborted())
}

func TestAbortStripsValidationAndPostValidation(t *testing.T) {
	b := NewBuilder()
	b.AddStatement([]Op{{Kind: OpAddV}}, TrxAdd)
	p := b.Build(1, 10)

	p.Abort()
	final := p.Statement(p.FinalIndex())
	require.Len(t, final.Ops, 2)
	require.Equal(t, OpTerminate, final.Ops[0].Kind)
	require.Equal(t, OpEnd, final.Ops[1].Kind)

	ready := p.NextReady()
	require.Equal(t, []int{p.FinalIndex()}, ready)
}

func TestTrxKindBitPrecedence(t *testing.T) {
	k := TrxUpdate | TrxAdd
	require.True(t, k.IsUpdate())
	require.True(t, k.IsAdd())
	require.False(t, k.IsDelete())
	require.False(t, TrxReadOnly.IsMutation())
	require.True(t, k.IsMutation())
}
