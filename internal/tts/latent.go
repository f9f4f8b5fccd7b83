package tts

import (
	"math"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
)

// NoiseFunc draws one standard-normal sample.
type NoiseFunc func() float64

// latentPlan sizes the noisy latent for a batch of predicted durations.
type latentPlan struct {
	batch    int
	channels int
	length   int
	lengths  []int
}

func planLatent(durations []float64, mc config.ModelConfig) latentPlan {
	chunk := mc.ChunkSize()
	p := latentPlan{
		batch:    len(durations),
		channels: mc.LatentChannels(),
		lengths:  make([]int, len(durations)),
	}

	maxWav := 0
	for i, d := range durations {
		wavLen := int(d * float64(mc.AE.SampleRate))
		if wavLen < 0 {
			wavLen = 0
		}

		maxWav = max(maxWav, wavLen)
		p.lengths[i] = ceilDiv(wavLen, chunk)
	}

	p.length = max(ceilDiv(maxWav, chunk), 1)

	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// sample draws noise of shape [B, C, L] zeroed past each item's length, and
// returns it with the latent mask [B, 1, L].
func (p latentPlan) sample(noise NoiseFunc) (latent, mask *onnx.Tensor, err error) {
	m := tokenizer.LengthToMask(p.lengths, p.length)

	data := make([]float32, p.batch*p.channels*p.length)
	for b := range p.batch {
		row := m[b*p.length : (b+1)*p.length]
		for c := range p.channels {
			base := (b*p.channels + c) * p.length
			for l := range p.length {
				data[base+l] = float32(noise()) * row[l]
			}
		}
	}

	latent, err = onnx.NewTensor(data, []int64{int64(p.batch), int64(p.channels), int64(p.length)})
	if err != nil {
		return nil, nil, err
	}

	mask, err = onnx.NewTensor(m, []int64{int64(p.batch), 1, int64(p.length)})
	if err != nil {
		return nil, nil, err
	}

	return latent, mask, nil
}

// trimLength is the number of samples kept for a duration, clamped to the
// vocoder output length.
func trimLength(duration float64, sampleRate, produced int) int {
	n := int(math.Round(duration * float64(sampleRate)))

	return min(max(n, 0), produced)
}
