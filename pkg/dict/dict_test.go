package dict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternIsStable(t *testing.T) {
	d := New()
	a := d.Intern("person")
	b := d.Intern("person")
	require.Equal(t, a, b)
	require.NotZero(t, a)
}

func TestInternAssignsDistinctLabels(t *testing.T) {
	d := New()
	a := d.Intern("person")
	b := d.Intern("knows")
	require.NotEqual(t, a, b)
}

func TestNameRoundTrip(t *testing.T) {
	d := New()
	id := d.Intern("age")
	require.Equal(t, "age", d.Name(id))
}

func TestLookupMissing(t *testing.T) {
	d := New()
	_, ok := d.Lookup("nope")
	require.False(t, ok)
}

func TestStableHashDeterministic(t *testing.T) {
	require.Equal(t, StableHash("person"), StableHash("person"))
	require.NotEqual(t, StableHash("person"), StableHash("knows"))
}
