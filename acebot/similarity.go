package acebot

import (
	"strings"
)

// trigramSimilarity returns a similarity score in [0, 1] for two strings,
// using the same construction as postgres' pg_trgm: each string is
// lowercased, padded with two leading and one trailing space, decomposed
// into character trigrams, and scored as shared trigrams over total
// distinct trigrams. Computed in-process so sqlite and postgres corpora
// rank identically.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	total := len(ta) + len(tb) - shared
	if total == 0 {
		return 0
	}
	return float64(shared) / float64(total)
}

func trigrams(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	padded := []rune("  " + s + " ")
	grams := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		grams[string(padded[i:i+3])] = struct{}{}
	}
	return grams
}
