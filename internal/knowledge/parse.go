package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFacts decodes a store document. Two shapes are accepted: an array of strings,
// or an array of objects exposing a "text" or "content" string. Entries of any other
// kind, and blank entries, are dropped. Anything other than an array is an error.
func ParseFacts(data []byte) ([]string, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		var probe any
		if json.Unmarshal(data, &probe) == nil {
			return nil, ErrUnsupportedShape
		}
		return nil, fmt.Errorf("decode knowledge store: %w", err)
	}

	facts := make([]string, 0, len(rows))
	for _, row := range rows {
		if text, ok := rowText(row); ok {
			facts = append(facts, text)
		}
	}
	return facts, nil
}

func rowText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return "", false
	}
	text, _ := obj["text"].(string)
	content, _ := obj["content"].(string)
	return pickText(text, content)
}

// pickText returns the first non-blank candidate, trimmed.
func pickText(candidates ...string) (string, bool) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" {
			return c, true
		}
	}
	return "", false
}
