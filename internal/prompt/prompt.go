package prompt

import (
	"strings"

	"github.com/antoniostano/robotbuddy/internal/mode"
)

// Template holds the wording of the system prompt. The assembled layout is always
// rules, tone, facts block, then the honesty guidance.
type Template struct {
	Rules       []string
	Tones       map[mode.Mode]string
	FactsHeader string
	NoFacts     string
	UseFacts    string
	EmptyFacts  string
}

// DefaultTemplate returns the Dutch wording used by the buddy.
func DefaultTemplate() Template {
	return Template{
		Rules: []string{
			"Antwoord ALTIJD in het Nederlands.",
			"Houd het kort: 1-4 zinnen, max 80 woorden.",
			"Gebruik simpele taal alsof je tegen een 14-jarige praat.",
			"Geef kleine feiten en praktische tips.",
		},
		Tones: map[mode.Mode]string{
			mode.Playful:  "Onderwerp is niet serieus: lieve tamagotchi/diertje-stijl is oké, klein beetje speels.",
			mode.HighRisk: "Onderwerp is HIGH_RISK: blijf rustig, serieus, veilig advies, geen emoji of diergeluid.",
			mode.Serious:  "Onderwerp is serieus: neutraal, rustig en feitelijk, zonder speelsheid.",
		},
		FactsHeader: "Retrieved facts:",
		NoFacts:     "(geen facts gevonden)",
		UseFacts:    "Gebruik deze facts als ze passen; verzin geen details die er niet staan.",
		EmptyFacts:  "Als facts leeg zijn: zeg eerlijk dat je het niet zeker weet en stel 1 korte vervolgvraag of geef 1 simpele zoek-tip.",
	}
}

// Assemble builds the system prompt for m. Unknown modes get the serious tone.
func (t Template) Assemble(m mode.Mode, facts []string) string {
	var b strings.Builder
	for _, rule := range t.Rules {
		b.WriteString(rule)
		b.WriteByte('\n')
	}
	b.WriteString(t.tone(m))
	b.WriteByte('\n')
	b.WriteString(t.FactsHeader)
	b.WriteByte('\n')
	if len(facts) == 0 {
		b.WriteString("- ")
		b.WriteString(t.NoFacts)
	} else {
		for i, fact := range facts {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- ")
			b.WriteString(fact)
		}
	}
	b.WriteByte('\n')
	b.WriteString(t.UseFacts)
	b.WriteByte('\n')
	b.WriteString(t.EmptyFacts)
	return b.String()
}

func (t Template) tone(m mode.Mode) string {
	if tone, ok := t.Tones[m]; ok {
		return tone
	}
	return t.Tones[mode.Serious]
}

// Assemble builds a system prompt with DefaultTemplate.
func Assemble(m mode.Mode, facts []string) string {
	return DefaultTemplate().Assemble(m, facts)
}
