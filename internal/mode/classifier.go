package mode

import "strings"

// Mode is the safety tier of a user message. It selects the tone of the reply.
type Mode string

const (
	Playful  Mode = "playful"
	Serious  Mode = "serious"
	HighRisk Mode = "high_risk"
)

// Valid reports whether m is one of the known tiers.
func (m Mode) Valid() bool {
	switch m {
	case Playful, Serious, HighRisk:
		return true
	default:
		return false
	}
}

// Keywords holds the substring lists that promote a message out of the playful tier.
type Keywords struct {
	HighRisk  []string
	Sensitive []string
}

// DefaultKeywords returns the Dutch/English keyword sets the assistant ships with.
func DefaultKeywords() Keywords {
	return Keywords{
		HighRisk: []string{
			"zelfmoord",
			"suicide",
			"verkrachting",
			"rape",
			"ik wil dood",
			"mezelf pijn",
			"acute nood",
		},
		Sensitive: []string{
			"depressie",
			"angst",
			"paniek",
			"ptss",
			"therapie",
			"medisch",
			"dokter",
			"juridisch",
			"advocaat",
			"misdaad",
			"crime",
		},
	}
}

// Classifier maps text to a Mode. It holds no mutable state and is safe for
// concurrent use.
type Classifier struct {
	highRisk  []string
	sensitive []string
}

func NewClassifier(k Keywords) *Classifier {
	return &Classifier{
		highRisk:  normalizeKeywords(k.HighRisk),
		sensitive: normalizeKeywords(k.Sensitive),
	}
}

// Classify never fails. High-risk matches win over sensitive matches, which win
// over the playful default.
func (c *Classifier) Classify(text string) Mode {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return Playful
	}
	if containsAny(lowered, c.highRisk) {
		return HighRisk
	}
	if containsAny(lowered, c.sensitive) {
		return Serious
	}
	return Playful
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// normalizeKeywords lowercases and drops blanks; an empty keyword would match every input.
func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, k)
	}
	return out
}
