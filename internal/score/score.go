// Package score models a remote's reputation as a bag of opaque proof tokens
// ("suffixes"). More tokens rank first.
package score

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
)

type Score struct {
	suffixes []string
}

func New(suffixes ...string) Score {
	return Score{suffixes: slices.Clone(suffixes)}
}

// Random builds a score of n random suffixes; nil rnd uses crypto/rand.
func Random(n int, rnd io.Reader) (Score, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	out := make([]string, 0, n)
	buf := make([]byte, 8)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(rnd, buf); err != nil {
			return Score{}, fmt.Errorf("random suffix: %w", err)
		}
		out = append(out, hex.EncodeToString(buf))
	}
	return Score{suffixes: out}, nil
}

// Suffixes returns a copy; callers may read it any number of times.
func (s Score) Suffixes() []string {
	return slices.Clone(s.suffixes)
}

func (s Score) Len() int {
	return len(s.suffixes)
}

func (s Score) String() string {
	return fmt.Sprintf("score(%d)[%s]", len(s.suffixes), strings.Join(s.suffixes, ","))
}

// Compare orders by magnitude only, descending: a negative result means a
// ranks before b. Scores with the same count compare equal even when their
// tokens differ; use Equal for content.
func Compare(a, b Score) int {
	return b.Len() - a.Len()
}

func Equal(a, b Score) bool {
	return slices.Equal(a.suffixes, b.suffixes)
}

func Sum(scores ...Score) Score {
	n := 0
	for _, s := range scores {
		n += s.Len()
	}
	out := make([]string, 0, n)
	for _, s := range scores {
		out = append(out, s.suffixes...)
	}
	return Score{suffixes: out}
}

// SortDesc stable-sorts items by the score key, highest first.
func SortDesc[T any](items []T, key func(T) Score) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(key(a), key(b))
	})
}
