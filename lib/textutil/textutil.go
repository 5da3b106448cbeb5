package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MostSimilar returns the index of the candidate closest to name and its
// similarity in [0, 1]. an exact match after normalization wins outright.
// index is -1 when there are no candidates.
func MostSimilar(name string, candidates []string) (int, float64) {
	normalized := NormalizeName(name)

	mostSimilar := -1
	var similarity float64
	for i, c := range candidates {
		target := NormalizeName(c)
		if target == normalized {
			return i, 1
		}
		sim := matchr.JaroWinkler(normalized, target, false)
		if mostSimilar < 0 || sim > similarity {
			similarity = sim
			mostSimilar = i
		}
	}
	return mostSimilar, similarity
}
