package knowledge

import "context"

// StaticSource serves a fixed list of facts. Used for local/dev runs and tests.
type StaticSource struct {
	facts []string
}

func NewStaticSource(facts ...string) *StaticSource {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		if text, ok := pickText(f); ok {
			out = append(out, text)
		}
	}
	return &StaticSource{facts: out}
}

func (s *StaticSource) Facts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(s.facts))
	copy(out, s.facts)
	return out, nil
}

func (s *StaticSource) Close() error { return nil }
