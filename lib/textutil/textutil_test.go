package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "readinglist", NormalizeName("  Reading List\n"))
}

func TestMostSimilar(t *testing.T) {
	sheets := []string{"Reading List", "Research", "Recipes"}

	index, sim := MostSimilar("reading list", sheets)
	require.Equal(t, 0, index)
	require.Equal(t, 1.0, sim)

	index, sim = MostSimilar("recipe", sheets)
	require.Equal(t, 2, index)
	require.Greater(t, sim, 0.8)

	index, _ = MostSimilar("anything", nil)
	require.Equal(t, -1, index)
}
