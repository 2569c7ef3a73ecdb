// Package shape enforces sentence and character budgets on reply text.
//
// DESIGN: Shaping is deterministic and stateless, and applies identically
// to every response path (fresh, regenerated, cached, fallback) so output
// is uniform regardless of where the text came from. Content rules live
// elsewhere; this package only does structure and cosmetics.
package shape

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks a hard character trim.
const Ellipsis = "…"

// Shaper holds the output budgets.
type Shaper struct {
	MaxSentences int
	MaxChars     int
}

// New creates a shaper.
func New(maxSentences, maxChars int) *Shaper {
	return &Shaper{MaxSentences: maxSentences, MaxChars: maxChars}
}

// Shape normalizes whitespace, trims to the sentence budget, capitalizes
// sentence starts, enforces the character budget (with an ellipsis marker
// on overflow) and guarantees trailing punctuation.
func (s *Shaper) Shape(text string) string {
	text = collapseWhitespace(text)
	if text == "" {
		return text
	}

	sentences := SplitSentences(text)
	if s.MaxSentences > 0 && len(sentences) > s.MaxSentences {
		sentences = sentences[:s.MaxSentences]
	}
	for i, sent := range sentences {
		sentences[i] = capitalizeFirst(sent)
	}
	out := strings.Join(sentences, " ")

	if s.MaxChars > 0 && utf8.RuneCountInString(out) > s.MaxChars {
		out = trimRunes(out, s.MaxChars-utf8.RuneCountInString(Ellipsis))
		out = strings.TrimRight(out, " ,;:")
		return out + Ellipsis
	}

	if !hasTerminalPunctuation(out) {
		out += "."
	}
	return out
}

// SplitSentences splits text on terminal punctuation runs, keeping the
// punctuation attached to its sentence.
func SplitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if isTerminal(runes[i]) {
			// Absorb a run of terminal punctuation ("?!", "...").
			for i+1 < len(runes) && isTerminal(runes[i+1]) {
				i++
				cur.WriteRune(runes[i])
			}
			// And a close quote hugging the punctuation.
			if i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\'' || runes[i+1] == '”') {
				i++
				cur.WriteRune(runes[i])
			}
			if sent := strings.TrimSpace(cur.String()); sent != "" {
				sentences = append(sentences, sent)
			}
			cur.Reset()
		}
	}
	if sent := strings.TrimSpace(cur.String()); sent != "" {
		sentences = append(sentences, sent)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func hasTerminalPunctuation(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return false
	}
	// A trailing close-quote after punctuation still counts.
	if r == '"' || r == '\'' || r == '”' {
		s = s[:len(s)-size]
		r, size = utf8.DecodeLastRuneInString(s)
		if size == 0 {
			return false
		}
	}
	return isTerminal(r)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capitalizeFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
		if !unicode.IsSpace(r) && r != '"' && r != '\'' && r != '“' {
			break
		}
	}
	return s
}

func trimRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
