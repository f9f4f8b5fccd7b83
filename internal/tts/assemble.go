package tts

import "math"

// Assemble concatenates chunk waveforms with silence*sampleRate zero samples
// before every chunk after the first. The returned duration is the sum of
// the chunk durations plus the inserted silence, in seconds.
func Assemble(waves [][]float32, durations []float64, sampleRate int, silence float64) ([]float32, float64) {
	gap := int(math.Round(silence * float64(sampleRate)))
	gap = max(gap, 0)

	total := 0
	for i, w := range waves {
		if i > 0 {
			total += gap
		}

		total += len(w)
	}

	out := make([]float32, 0, total)
	dur := 0.0

	for i, w := range waves {
		if i > 0 {
			out = append(out, make([]float32, gap)...)
			dur += silence
		}

		out = append(out, w...)

		if i < len(durations) {
			dur += durations[i]
		}
	}

	return out, dur
}
