package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyScenarios(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	cases := []struct {
		text string
		want Mode
	}{
		{"ik wil dood", HighRisk},
		{"ik heb angst voor examens", Serious},
		{"ben je een robotje?", Playful},
		{"", Playful},
		{"   \t\n", Playful},
		{"IK WIL DOOD", HighRisk},
		{"Mijn Dokter zegt rust", Serious},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.text), "Classify(%q)", tc.text)
	}
}

func TestClassifyHighRiskWinsOverSensitive(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	assert.Equal(t, HighRisk, c.Classify("door mijn depressie denk ik aan zelfmoord"))
	assert.Equal(t, HighRisk, c.Classify("Therapie helpt niet, ik wil MEZELF PIJN doen"))
}

func TestClassifyUsesSubstitutedKeywords(t *testing.T) {
	c := NewClassifier(Keywords{
		HighRisk:  []string{"Volcano"},
		Sensitive: []string{"rain", "  "},
	})
	assert.Equal(t, HighRisk, c.Classify("a volcano near the rain"))
	assert.Equal(t, Serious, c.Classify("it might rain"))
	assert.Equal(t, Playful, c.Classify("ik wil dood"))
	assert.Equal(t, Playful, c.Classify("sunny"), "blank keywords must not match everything")
}

func TestModeValid(t *testing.T) {
	assert.True(t, HighRisk.Valid())
	assert.False(t, Mode("grumpy").Valid())
}
