// Package similarity implements pg_trgm-compatible trigram similarity.
//
// The metric is pinned here rather than delegated to the database so that
// both store backends and the migration thresholds (0.7 / 0.9 / 0.99) see
// identical scores: each word is lower-cased, padded with two leading and one
// trailing space, split into 3-grams, and the score is the Jaccard ratio of
// the two trigram sets. Identical strings score exactly 1.
package similarity

import (
	"strings"
	"unicode"
)

// Score returns the trigram similarity of a and b in [0, 1]. It is symmetric
// and robust to token reordering, since trigrams are set-accumulated across
// words. Two empty strings score 0.
func Score(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// trigrams collects the padded 3-grams of every word in s.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range fields(strings.ToLower(s)) {
		padded := "  " + word + " "
		r := []rune(padded)
		for i := 0; i+3 <= len(r); i++ {
			set[string(r[i:i+3])] = struct{}{}
		}
	}
	return set
}

// fields splits on anything that is neither a letter nor a digit, mirroring
// pg_trgm's word extraction.
func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
