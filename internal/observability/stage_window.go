package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Pipeline stages recorded per request.
const (
	StagePrepare     = "prepare"
	StageUpstream    = "upstream"
	StageShape       = "shape"
	StageChatTotal   = "chat_total"
	StageFirstChunk  = "first_chunk"
	StageStreamTotal = "stream_total"
)

// pipelineStages lists every stage in the order a request passes through it.
// Model-bound stages depend on hardware and carry no p95 target.
var pipelineStages = []struct {
	name        string
	targetP95MS float64
}{
	{StagePrepare, 50},
	{StageUpstream, 0},
	{StageShape, 5},
	{StageChatTotal, 0},
	{StageFirstChunk, 2500},
	{StageStreamTotal, 0},
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// latencyRing holds the most recent samples of a single stage.
type latencyRing struct {
	stage  string
	target float64

	mu      sync.Mutex
	samples []float64
	head    int
	count   int
	last    float64
}

func (r *latencyRing) add(ms float64) {
	r.mu.Lock()
	r.samples[r.head] = ms
	r.head = (r.head + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
	r.last = ms
	r.mu.Unlock()
}

func (r *latencyRing) stats() (StageStats, bool) {
	r.mu.Lock()
	n, last := r.count, r.last
	sorted := append([]float64(nil), r.samples[:n]...)
	r.mu.Unlock()
	if n == 0 {
		return StageStats{}, false
	}

	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return StageStats{
		Stage:       r.stage,
		Samples:     n,
		LastMS:      toHundredths(last),
		AvgMS:       toHundredths(sum / float64(n)),
		P50MS:       toHundredths(nearestRank(sorted, 0.50)),
		P95MS:       toHundredths(nearestRank(sorted, 0.95)),
		P99MS:       toHundredths(nearestRank(sorted, 0.99)),
		TargetP95MS: r.target,
	}, true
}

// stageWindow keeps one ring per pipeline stage plus free-form indicator counts.
// The ring set is fixed at construction; samples for unknown stages are dropped.
type stageWindow struct {
	size  int
	rings map[string]*latencyRing

	mu         sync.Mutex
	indicators map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	w := &stageWindow{
		size:       size,
		rings:      make(map[string]*latencyRing, len(pipelineStages)),
		indicators: make(map[string]int),
	}
	for _, st := range pipelineStages {
		w.rings[st.name] = &latencyRing{
			stage:   st.name,
			target:  st.targetP95MS,
			samples: make([]float64, size),
		}
	}
	return w
}

// Observe reports whether ms was recorded.
func (w *stageWindow) Observe(stage string, ms float64) bool {
	ring, ok := w.rings[stage]
	if !ok || ms < 0 || math.IsNaN(ms) {
		return false
	}
	ring.add(ms)
	return true
}

func (w *stageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

// Snapshot lists observed stages in pipeline order and indicators by name.
func (w *stageWindow) Snapshot() StageSnapshot {
	stages := make([]StageStats, 0, len(pipelineStages))
	for _, st := range pipelineStages {
		if stats, ok := w.rings[st.name].stats(); ok {
			stages = append(stages, stats)
		}
	}

	w.mu.Lock()
	indicators := make([]Indicator, 0, len(w.indicators))
	for name, count := range w.indicators {
		indicators = append(indicators, Indicator{Name: name, Count: count})
	}
	w.mu.Unlock()
	sort.Slice(indicators, func(i, j int) bool { return indicators[i].Name < indicators[j].Name })

	return StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      stages,
		Indicators:  indicators,
	}
}

// nearestRank expects sorted input with at least one element.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	switch {
	case rank < 1:
		rank = 1
	case rank > len(sorted):
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func toHundredths(ms float64) float64 {
	return math.Round(ms*100) / 100
}
