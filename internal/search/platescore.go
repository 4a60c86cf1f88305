package search

import "strings"

// minPlateSimilarity is the floor below which a fuzzy plate match counts as
// no match at all.
const minPlateSimilarity = 0.4

// NormalizePlate uppercases a plate string and strips everything but letters
// and digits.
func NormalizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(plate) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PlateScore rates the similarity between a query plate and a stored plate:
// 1.0 on exact normalized match, otherwise a normalized edit-distance ratio,
// zeroed below minPlateSimilarity.
func PlateScore(queryPlate, storedPlate string) float64 {
	q := NormalizePlate(queryPlate)
	s := NormalizePlate(storedPlate)
	if q == "" || s == "" {
		return 0.0
	}
	if q == s {
		return 1.0
	}

	maxLen := len(q)
	if len(s) > maxLen {
		maxLen = len(s)
	}
	score := 1.0 - float64(levenshteinDistance(q, s))/float64(maxLen)
	if score < minPlateSimilarity {
		return 0.0
	}
	return score
}

// levenshteinDistance is the minimum number of single-character edits turning
// a into b, computed with two rolling rows.
func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	runesA := []rune(a)
	runesB := []rune(b)

	prev := make([]int, len(runesB)+1)
	curr := make([]int, len(runesB)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(runesA); i++ {
		curr[0] = i
		for j := 1; j <= len(runesB); j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(runesB)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
