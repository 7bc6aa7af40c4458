package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ibanPattern  = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]{4}){3,7}(?: ?[A-Z0-9]{1,3})?\b`)
)

// RedactPII masks email addresses, IBANs, card and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range []struct {
		re   *regexp.Regexp
		mark string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{ibanPattern, "[REDACTED_IBAN]"},
		// Cards before phones, a card number also matches the phone pattern.
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mark)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// Scrub prepares upstream-provided text for error messages and logs: whitespace is
// collapsed, the result is cut to at most limit bytes on a rune boundary, and PII
// is masked. A limit <= 0 disables truncation.
func Scrub(input string, limit int) string {
	out := strings.Join(strings.Fields(input), " ")
	if limit > 0 && len(out) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "..."
	}
	out, _ = RedactPII(out)
	return out
}
