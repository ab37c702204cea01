package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessageCarriesValues(t *testing.T) {
	h := Header{TrxID: 1, Type: Feed}
	m := NewMessage(h, "a", "b")
	require.Equal(t, h, m.Header)
	require.Equal(t, []any{"a", "b"}, m.Values)
	require.Empty(t, m.History)
}

func TestWithHistoryAppendsWithoutMutatingOriginal(t *testing.T) {
	m := NewMessage(Header{Type: Spawn})
	m2 := m.WithHistory(HistoryEntry{Key: "x", Value: 1})
	require.Empty(t, m.History)
	require.Len(t, m2.History, 1)

	m3 := m2.WithHistory(HistoryEntry{Key: "y", Value: 2})
	require.Len(t, m2.History, 1)
	require.Len(t, m3.History, 2)
}

func TestMsgTypeString(t *testing.T) {
	require.Equal(t, "COMMIT", Commit.String())
	require.Equal(t, "ABORT", Abort.String())
	require.Equal(t, "UNKNOWN", MsgType(99).String())
}
