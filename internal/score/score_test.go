package score

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFewerSuffixesComeAfter(t *testing.T) {
	lowest := New("a")
	highest := New("b", "c")
	xs := []Score{lowest, highest}
	SortDesc(xs, func(s Score) Score { return s })
	assert.True(t, Equal(highest, xs[0]))
	assert.True(t, Equal(lowest, xs[1]))
	assert.Less(t, Compare(highest, lowest), 0)
}

func TestSumRanksByTotal(t *testing.T) {
	lowest := New("a")
	highone := New("b", "c")
	hightwo := New("d", "e")
	four := New("f", "g", "h", "i")
	sum := Sum(lowest, highone)
	require.Equal(t, 3, sum.Len())
	assert.Equal(t, []string{"a", "b", "c"}, sum.Suffixes())

	xs := []Score{hightwo, four, sum}
	SortDesc(xs, func(s Score) Score { return s })
	assert.True(t, Equal(four, xs[0]))
	assert.True(t, Equal(sum, xs[1]))
	assert.True(t, Equal(hightwo, xs[2]))
}

func TestCompareIsMagnitudeOnly(t *testing.T) {
	a := New("x", "y")
	b := New("p", "q")
	assert.Equal(t, 0, Compare(a, b))
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(a, New("x", "y")))
}

func TestSuffixesAreACopy(t *testing.T) {
	s := New("a", "b")
	got := s.Suffixes()
	got[0] = "z"
	assert.Equal(t, []string{"a", "b"}, s.Suffixes())
}

func TestRandom(t *testing.T) {
	s, err := Random(3, bytes.NewReader(bytes.Repeat([]byte{1}, 24)))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "0101010101010101", s.Suffixes()[0])

	_, err = Random(2, bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}
