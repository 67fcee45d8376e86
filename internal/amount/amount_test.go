package amount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.00 ZLD", Format(ZentsPerZLD, 2))
	assert.Equal(t, "-0.50 ZLD", Format(-ZentsPerZLD/2, 2))
	assert.Equal(t, "0.0000 ZLD", Format(0, 4))
	assert.Equal(t, "0.00000000023283064365386962890625", ToZLD(1).String())
}

func TestParse(t *testing.T) {
	cases := map[string]int64{
		"1":       ZentsPerZLD,
		"1.5":     ZentsPerZLD + ZentsPerZLD/2,
		"0.25ZLD": ZentsPerZLD / 4,
		" 2 ZLD ": 2 * ZentsPerZLD,
		"100z":    100,
		"-7z":     -7,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseRoundsDownToZents(t *testing.T) {
	got, err := Parse("0.0000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.5z", "99999999999999999999z", "3000000000"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalid, in)
	}
}

func TestRoundTripWholeZLD(t *testing.T) {
	for _, n := range []int64{0, 1, 42, math.MaxInt32} {
		z := n * ZentsPerZLD
		got, err := Parse(ToZLD(z).String())
		require.NoError(t, err)
		assert.Equal(t, z, got)
	}
}
