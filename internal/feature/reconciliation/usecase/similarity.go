package usecase

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"cube_wizard/internal/shared/cardname"
)

// Similarity returns 1 - distance/maxLen over the normalized names, in [0,1].
func Similarity(a, b string) float64 {
	return normalizedSimilarity(cardname.Normalize(a), cardname.Normalize(b))
}

func normalizedSimilarity(na, nb string) float64 {
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	d := levenshtein.ComputeDistance(na, nb)
	// rounded so that scores land exactly on thresholds such as 0.8
	return math.Round((1-float64(d)/float64(maxLen))*1e9) / 1e9
}

// scoreName compares the candidate against a card name and, for multi-face
// cards, against the front face alone.
func scoreName(normCandidate, name string) float64 {
	score := normalizedSimilarity(normCandidate, cardname.Normalize(name))
	if front, _, ok := strings.Cut(name, "//"); ok {
		score = max(score, normalizedSimilarity(normCandidate, cardname.Normalize(front)))
	}
	return score
}
