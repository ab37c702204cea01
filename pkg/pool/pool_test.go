package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBufferRoundTrip(t *testing.T) {
	buf := GetByteBuffer()
	require.Len(t, buf, 0)
	buf = append(buf, 1, 2, 3)
	PutByteBuffer(buf)

	buf2 := GetByteBuffer()
	require.Len(t, buf2, 0)
}

func TestUint32SliceResetsLength(t *testing.T) {
	s := GetUint32Slice()
	s = append(s, 1, 2, 3)
	PutUint32Slice(s)

	s2 := GetUint32Slice()
	require.Len(t, s2, 0)
}

func TestPropertyMapClearsEntries(t *testing.T) {
	m := GetPropertyMap()
	m[1] = []byte("a")
	PutPropertyMap(m)

	m2 := GetPropertyMap()
	_, ok := m2[1]
	require.False(t, ok)
}

func TestDisabledPoolBypassesReuse(t *testing.T) {
	Configure(Config{Enabled: false, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	require.False(t, IsEnabled())
	buf := GetByteBuffer()
	require.NotNil(t, buf)
}

func TestOversizedBufferIsNotPooled(t *testing.T) {
	huge := make([]byte, 0, 2*1024*1024)
	PutByteBuffer(huge) // should not panic, just silently drop
}
