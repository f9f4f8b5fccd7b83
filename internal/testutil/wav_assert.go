package testutil

import (
	"testing"

	"github.com/example/go-supertonic-tts/internal/audio"
)

// AssertValidWAV decodes data as mono 16-bit PCM and checks the sample rate
// and that at least one sample is present. It returns the decoded clip.
func AssertValidWAV(tb testing.TB, data []byte, sampleRate int) audio.Clip {
	tb.Helper()

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	if clip.SampleRate != sampleRate {
		tb.Fatalf("WAV: sample rate %d, want %d", clip.SampleRate, sampleRate)
	}

	if len(clip.Samples) == 0 {
		tb.Fatal("WAV: no samples")
	}

	return clip
}

// AssertWAVDurationApprox decodes data and checks that its duration falls
// within [minSec, maxSec].
func AssertWAVDurationApprox(tb testing.TB, data []byte, sampleRate int, minSec, maxSec float64) {
	tb.Helper()

	clip := AssertValidWAV(tb, data, sampleRate)
	if d := clip.Duration(); d < minSec || d > maxSec {
		tb.Fatalf("WAV duration %.3fs outside [%.3fs, %.3fs]", d, minSec, maxSec)
	}
}
