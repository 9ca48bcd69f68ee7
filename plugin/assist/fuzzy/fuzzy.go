// Package fuzzy provides the string-similarity primitives used by spell
// correction and filter validation. Scores are Jaro-Winkler on
// case-folded input, so a one-character typo or adjacent transposition of
// a realistic option name stays above the auto-correct tier.
package fuzzy

import (
	"sort"
	"strings"
)

const (
	// winklerPrefixScale rewards a shared prefix, capped at maxPrefixLen.
	winklerPrefixScale = 0.1
	maxPrefixLen       = 4
	// boostThreshold is the minimum Jaro score before the prefix bonus applies.
	boostThreshold = 0.7
)

// Similarity returns the case-insensitive Jaro-Winkler similarity of a and b
// in [0, 1]. Equal strings (ignoring case) score exactly 1.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	jaro := jaroSimilarity([]rune(a), []rune(b))
	if jaro < boostThreshold {
		return jaro
	}

	prefix := 0
	ra, rb := []rune(a), []rune(b)
	for prefix < len(ra) && prefix < len(rb) && prefix < maxPrefixLen && ra[prefix] == rb[prefix] {
		prefix++
	}
	return jaro + float64(prefix)*winklerPrefixScale*(1-jaro)
}

func jaroSimilarity(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	matchWindow := max(len(a), len(b))/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := i - matchWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + matchWindow + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	// Count transpositions among matched characters.
	transpositions := 0
	j := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3
}

// Match is one scored candidate from ClosestMatches.
type Match struct {
	Value string
	Score float64
}

// ClosestMatches returns up to n options scoring at least cutoff against
// value, best first. Ties keep the original option order.
func ClosestMatches(value string, options []string, cutoff float64, n int) []Match {
	if n <= 0 {
		return nil
	}
	matches := make([]Match, 0, len(options))
	for _, opt := range options {
		if score := Similarity(value, opt); score >= cutoff {
			matches = append(matches, Match{Value: opt, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
