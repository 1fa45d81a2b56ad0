package asn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	cases := []struct {
		name     string
		a, b     Number
		expected int64
	}{
		{"equal", 100, 100, 0},
		{"ahead", 105, 100, 5},
		{"behind", 95, 100, -5},
		{"wrap behind", Number(math.MaxUint64), 0, -1},
		{"wrap ahead", 0, Number(math.MaxUint64), 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, Diff(c.a, c.b))
		})
	}
}

func TestAddWraps(t *testing.T) {
	n := Number(math.MaxUint64)
	require.Equal(t, Number(4), n.Add(5))
}

func TestMod64(t *testing.T) {
	require.Equal(t, uint64(3), Number(13).Mod64(5))
	require.Panics(t, func() { Number(1).Mod64(0) })
}
