// Package novelty detects repetition across turns and speakers, and picks
// deterministic fresh lines from a speaker's content bank when the model
// output is stale.
//
// DESIGN: Similarity is token-set Jaccard over lowercased,
// punctuation-stripped word sets. All checks produce independent boolean
// flags; the pipeline decides what to do with them.
package novelty

import "strings"

// Tokens returns the lowercased word set of text with punctuation stripped.
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range splitWords(text) {
		set[w] = struct{}{}
	}
	return set
}

// Similarity computes token-set Jaccard similarity in [0,1]. Identical
// token sets yield 1.0; disjoint sets yield 0.0. Two empty texts are
// treated as identical.
func Similarity(a, b string) float64 {
	sa, sb := Tokens(a), Tokens(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// OpenerKey returns the first-3-token signature of text ("" when empty).
func OpenerKey(text string) string {
	words := splitWords(text)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		return !isAlpha && r != '\''
	})
}
