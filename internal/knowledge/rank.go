package knowledge

import (
	"sort"
	"strings"
	"unicode"
)

// ScoredFact pairs a fact with its token overlap against a query.
type ScoredFact struct {
	Text    string
	Overlap int
}

// Tokenize lowercases text and splits it on runs of non-word characters. The result
// is a set; empty tokens are never present.
func Tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Score computes the overlap of every fact with the query and keeps only positive
// scores, ordered by descending overlap. Equal overlaps keep store order.
func Score(query string, facts []string) []ScoredFact {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scored := make([]ScoredFact, 0, len(facts))
	for _, fact := range facts {
		overlap := 0
		for tok := range Tokenize(fact) {
			if _, ok := queryTokens[tok]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			scored = append(scored, ScoredFact{Text: fact, Overlap: overlap})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Overlap > scored[j].Overlap
	})
	return scored
}

// Rank returns at most limit fact texts ordered as by Score. A non-positive limit
// means MaxResults.
func Rank(query string, facts []string, limit int) []string {
	if limit <= 0 {
		limit = MaxResults
	}
	scored := Score(query, facts)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Text)
	}
	return out
}
