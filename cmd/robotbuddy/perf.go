package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type perfOptions struct {
	baseURL     string
	turns       int
	texts       []string
	turnTimeout time.Duration
	interTurn   time.Duration
	verbose     bool
}

type turnSample struct {
	firstChunk time.Duration
	total      time.Duration
	chunks     int
	failed     bool
}

type perfSummary struct {
	Turns     int
	Failures  int
	FirstP50  time.Duration
	FirstP95  time.Duration
	TotalP50  time.Duration
	TotalP95  time.Duration
	AvgChunks float64
}

var defaultUtterances = []string{
	"Antwoord in drie woorden: hoe gaat het?",
	"Vertel een kort grapje over robots.",
	"Waarom slapen katten zo veel?",
	"Noem een leuke hobby.",
}

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Replay utterances over the websocket relay and report latency",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := perfOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
		defer cancel()

		summary, err := runPerf(ctx, opts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	f := perfCmd.Flags()
	f.String("base-url", "http://127.0.0.1:8000", "robotbuddy base URL")
	f.Int("turns", 10, "number of turns to replay")
	f.String("texts", "", "utterances separated by '|' (optional)")
	f.Duration("turn-timeout", 60*time.Second, "max wait for the terminal event of one turn")
	f.Duration("inter-turn", 200*time.Millisecond, "delay between turns")
	f.Bool("verbose", false, "print replay progress")
	rootCmd.AddCommand(perfCmd)
}

func perfOptionsFromFlags(cmd *cobra.Command) (perfOptions, error) {
	f := cmd.Flags()
	var opts perfOptions
	baseURL, _ := f.GetString("base-url")
	opts.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	opts.turns, _ = f.GetInt("turns")
	opts.turnTimeout, _ = f.GetDuration("turn-timeout")
	opts.interTurn, _ = f.GetDuration("inter-turn")
	opts.verbose, _ = f.GetBool("verbose")
	textsRaw, _ := f.GetString("texts")

	if opts.baseURL == "" {
		return perfOptions{}, fmt.Errorf("base-url is required")
	}
	if opts.turns <= 0 {
		return perfOptions{}, fmt.Errorf("turns must be > 0")
	}
	if opts.turnTimeout < time.Second {
		opts.turnTimeout = time.Second
	}
	if opts.interTurn < 0 {
		opts.interTurn = 0
	}
	texts, err := splitUtterances(textsRaw)
	if err != nil {
		return perfOptions{}, err
	}
	opts.texts = texts
	return opts, nil
}

func splitUtterances(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty utterances")
	}
	return out, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	return u.String(), nil
}

func runPerf(ctx context.Context, opts perfOptions, out io.Writer) (perfSummary, error) {
	wsURL, err := wsURLFor(opts.baseURL)
	if err != nil {
		return perfSummary{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return perfSummary{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	samples := make([]turnSample, 0, opts.turns)
	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		sample, err := replayTurn(conn, text, opts.turnTimeout)
		if err != nil {
			return perfSummary{}, fmt.Errorf("turn %d: %w", i+1, err)
		}
		samples = append(samples, sample)
		if opts.verbose {
			fmt.Fprintf(out, "perf: turn %d/%d first_chunk=%s total=%s chunks=%d failed=%t\n",
				i+1, opts.turns, sample.firstChunk, sample.total, sample.chunks, sample.failed)
		}
		if opts.interTurn > 0 && i < opts.turns-1 {
			select {
			case <-ctx.Done():
				return perfSummary{}, ctx.Err()
			case <-time.After(opts.interTurn):
			}
		}
	}
	return summarize(samples), nil
}

type wsEvent struct {
	Chunk *string `json:"chunk"`
	Done  bool    `json:"done"`
	Error string  `json:"error"`
	Code  string  `json:"code"`
}

func replayTurn(conn *websocket.Conn, text string, timeout time.Duration) (turnSample, error) {
	start := time.Now()
	_ = conn.SetWriteDeadline(start.Add(10 * time.Second))
	if err := conn.WriteJSON(map[string]string{"user_text": text}); err != nil {
		return turnSample{}, fmt.Errorf("send: %w", err)
	}
	_ = conn.SetReadDeadline(start.Add(timeout))

	var sample turnSample
	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return turnSample{}, fmt.Errorf("read: %w", err)
		}
		switch {
		case ev.Code != "":
			return turnSample{}, errors.New(ev.Error)
		case ev.Chunk != nil:
			if sample.chunks == 0 {
				sample.firstChunk = time.Since(start)
			}
			sample.chunks++
		case ev.Done:
			sample.total = time.Since(start)
			return sample, nil
		case ev.Error != "":
			sample.total = time.Since(start)
			sample.failed = true
			return sample, nil
		}
	}
}

func summarize(samples []turnSample) perfSummary {
	s := perfSummary{Turns: len(samples)}
	var first, total []time.Duration
	chunks := 0
	for _, sm := range samples {
		if sm.failed {
			s.Failures++
			continue
		}
		if sm.chunks > 0 {
			first = append(first, sm.firstChunk)
		}
		total = append(total, sm.total)
		chunks += sm.chunks
	}
	s.FirstP50, s.FirstP95 = percentile(first, 0.50), percentile(first, 0.95)
	s.TotalP50, s.TotalP95 = percentile(total, 0.50), percentile(total, 0.95)
	if ok := len(samples) - s.Failures; ok > 0 {
		s.AvgChunks = float64(chunks) / float64(ok)
	}
	return s
}

// percentile uses nearest-rank on a sorted copy.
func percentile(values []time.Duration, q float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted)) + 0.5)
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}

func printSummary(out io.Writer, s perfSummary) {
	fmt.Fprintf(out, "turns=%d failures=%d avg_chunks=%.1f\n", s.Turns, s.Failures, s.AvgChunks)
	fmt.Fprintf(out, "first_chunk p50=%s p95=%s\n", s.FirstP50, s.FirstP95)
	fmt.Fprintf(out, "total       p50=%s p95=%s\n", s.TotalP50, s.TotalP95)
}
