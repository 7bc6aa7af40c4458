package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Mail sam@example.com of bel +31 (6) 1234-5678, pas 4242 4242 4242 4242, rekening NL91 ABNA 0417 1643 00."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]", "[REDACTED_IBAN]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "4242") || strings.Contains(out, "ABNA") {
		t.Fatalf("raw digits survived redaction: %q", out)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	out, changed := RedactPII("model 'llama3.2:1b' not found, try pulling it first")
	if changed {
		t.Fatalf("changed = true for text without PII: %q", out)
	}
}

func TestScrub(t *testing.T) {
	got := Scrub("  error:\n\tprompt from   jan@voorbeeld.nl  ", 0)
	if got != "error: prompt from [REDACTED_EMAIL]" {
		t.Fatalf("Scrub() = %q", got)
	}

	long := strings.Repeat("é", 10)
	cut := Scrub(long, 5)
	if cut != "éé..." {
		t.Fatalf("Scrub() truncated to %q, want rune-aligned cut", cut)
	}
}
