package valuestore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := New()
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("exactly16bytes!!"),
		[]byte("this value is longer than a single sixteen byte cell and spans several"),
	}
	for _, v := range cases {
		off := s.Write(v)
		got := s.Read(off)
		require.Equal(t, v, got)
	}
}

func TestReleaseRecyclesCells(t *testing.T) {
	s := New()
	off := s.Write([]byte("0123456789abcdef0123456789"))
	before := len(s.cells)
	s.Release(off)
	off2 := s.Write([]byte("0123456789abcdef0123456789"))
	require.LessOrEqual(t, len(s.cells), before+0)
	require.Equal(t, []byte("0123456789abcdef0123456789"), s.Read(off2))
}

func TestConcurrentWrites(t *testing.T) {
	s := New()
	n := 200
	offs := make([]Offset, n)
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		go func() {
			offs[i] = s.Write([]byte(fmt.Sprintf("value-%d", i)))
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for i := 0; i < n; i++ {
		require.Equal(t, []byte(fmt.Sprintf("value-%d", i)), s.Read(offs[i]))
	}
}
