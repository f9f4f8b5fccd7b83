// Package bench provides benchmarking primitives for the supertonic bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-supertonic-tts/internal/audio"
	"github.com/example/go-supertonic-tts/internal/tts"
)

// Synthesizer is the subset of tts.Service a bench run drives.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
}

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	Duration      time.Duration
	AudioDuration time.Duration
	Samples       int
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// Run synthesizes req n times and records per-run timing. The first run is
// marked cold. It stops at the first synthesis error.
func Run(ctx context.Context, s Synthesizer, req tts.Request, n int) ([]RunResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("runs must be >= 1, got %d", n)
	}

	if s == nil {
		return nil, errors.New("bench: nil synthesizer")
	}

	runs := make([]RunResult, 0, n)

	for i := range n {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		start := time.Now()

		res, err := s.Synthesize(ctx, req)
		if err != nil {
			return runs, fmt.Errorf("run %d: %w", i+1, err)
		}

		elapsed := time.Since(start)
		audioDur := time.Duration(res.Duration * float64(time.Second))

		runs = append(runs, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      elapsed,
			AudioDuration: audioDur,
			Samples:       len(res.Audio),
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}

	return runs, nil
}

// ComputeStats calculates min, max and mean duration and the mean RTF.
func ComputeStats(runs []RunResult) Stats {
	if len(runs) == 0 {
		return Stats{}
	}

	mn, mx := runs[0].Duration, runs[0].Duration

	var (
		sum    time.Duration
		rtfSum float64
	)

	for _, r := range runs {
		mn = min(mn, r.Duration)
		mx = max(mx, r.Duration)
		sum += r.Duration
		rtfSum += r.RTF
	}

	return Stats{
		Min:     mn,
		Max:     mx,
		Mean:    sum / time.Duration(len(runs)),
		MeanRTF: rtfSum / float64(len(runs)),
	}
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(synthDur) / float64(audioDur)
}

// WAVDuration returns the playback duration of a mono 16-bit WAV.
func WAVDuration(wav []byte) (time.Duration, error) {
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return 0, err
	}

	if clip.SampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", clip.SampleRate)
	}

	return time.Duration(int64(len(clip.Samples)) * int64(time.Second) / int64(clip.SampleRate)), nil
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			millis(r.Duration),
			millis(r.AudioDuration),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", millis(stats.Min), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8.3f  (mean)\n", "", "", millis(stats.Mean), "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", millis(stats.Max), "", "")

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	Samples    int     `json:"samples"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   millis(stats.Min),
			MeanMS:  millis(stats.Mean),
			MaxMS:   millis(stats.Max),
			MeanRTF: stats.MeanRTF,
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: millis(r.Duration),
			AudioMS:    millis(r.AudioDuration),
			Samples:    r.Samples,
			RTF:        r.RTF,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
