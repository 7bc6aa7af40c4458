package answer

import (
	"strings"
	"unicode"
)

const (
	MaxWords     = 80
	MaxSentences = 4
)

// Fallback is returned whenever shaping leaves nothing to say.
const Fallback = "Sorry, ik weet het nu even niet zeker."

// Shape normalizes raw model output into at most MaxWords words and MaxSentences
// sentences. It never returns an empty string and Shape(Shape(s)) == Shape(s).
func Shape(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), " ")

	words := strings.Fields(cleaned)
	if len(words) > MaxWords {
		cut := strings.Join(words[:MaxWords], " ")
		cleaned = strings.TrimRightFunc(cut, isCutTrailer) + "."
	}

	sentences := splitSentences(cleaned)
	if len(sentences) > MaxSentences {
		cleaned = strings.Join(sentences[:MaxSentences], " ")
		if cleaned != "" && !endsTerminal(cleaned) {
			cleaned += "."
		}
	}

	if cleaned == "" {
		return Fallback
	}
	return cleaned
}

// splitSentences splits after '.', '!' or '?' when whitespace follows. Input is
// expected to have single-space separators already.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func endsTerminal(s string) bool {
	r := []rune(s)
	return len(r) > 0 && isTerminal(r[len(r)-1])
}

func isCutTrailer(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', ' ':
		return true
	default:
		return false
	}
}
