// Package tts runs the Supertonic four-stage pipeline: duration prediction,
// text encoding, iterative latent denoising and vocoding.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/onnx"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tokenizer"
	"github.com/example/go-supertonic-tts/internal/voice"
)

// Params controls one synthesis call.
type Params struct {
	TotalSteps     int
	Speed          float64
	SilenceSeconds float64
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{TotalSteps: 5, Speed: 1.05, SilenceSeconds: 0.3}
}

// Validate rejects non-positive speed and negative steps or silence.
func (p Params) Validate() error {
	if !(p.Speed > 0) {
		return invalidParameter("speed must be > 0, got %v", p.Speed)
	}

	if p.TotalSteps < 0 {
		return invalidParameter("total_steps must be >= 0, got %d", p.TotalSteps)
	}

	if p.SilenceSeconds < 0 || p.SilenceSeconds != p.SilenceSeconds {
		return invalidParameter("silence must be >= 0, got %v", p.SilenceSeconds)
	}

	return nil
}

// Result is a synthesized waveform and its duration in seconds.
type Result struct {
	Audio      []float32
	Duration   float64
	SampleRate int
}

// Pipeline wires the stage graphs to the tokenizer and model dimensions.
// It is not safe for concurrent use; Service serializes calls.
type Pipeline struct {
	engine    *onnx.Engine
	tokenizer tokenizer.Tokenizer
	model     config.ModelConfig
	noise     NoiseFunc
}

type PipelineOption func(*Pipeline)

// WithNoise replaces the standard-normal source used for the initial latent.
func WithNoise(fn NoiseFunc) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.noise = fn
		}
	}
}

// WithSeed makes the initial latent reproducible.
func WithSeed(seed uint64) PipelineOption {
	return func(p *Pipeline) {
		r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		p.noise = r.NormFloat64
	}
}

func NewPipeline(engine *onnx.Engine, tok tokenizer.Tokenizer, mc config.ModelConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:    engine,
		tokenizer: tok,
		model:     mc,
		noise:     rand.NormFloat64,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SampleRate is the output sample rate from tts.json.
func (p *Pipeline) SampleRate() int {
	return p.model.AE.SampleRate
}

// Synthesize chunks text, runs every chunk through the stages in order and
// joins the results with params.SilenceSeconds of silence.
func (p *Pipeline) Synthesize(ctx context.Context, input, lang string, style *voice.Style, params Params) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	if !text.IsSupported(lang) {
		return Result{}, &Error{
			Kind: KindInvalidLanguage,
			Err:  fmt.Errorf("%w: %q (available: %s)", text.ErrInvalidLanguage, lang, strings.Join(text.LanguageCodes(), ", ")),
		}
	}

	sr := p.SampleRate()

	if strings.TrimSpace(input) == "" {
		return Result{Audio: []float32{}, SampleRate: sr}, nil
	}

	if style == nil {
		return Result{}, invalidParameter("style is required")
	}

	chunks := text.Chunk(input, text.MaxChunkLength(lang))
	waves := make([][]float32, 0, len(chunks))
	durations := make([]float64, 0, len(chunks))

	for i, chunk := range chunks {
		wav, dur, err := p.infer(ctx, []string{chunk}, []string{lang}, style, params.TotalSteps, params.Speed)
		if err != nil {
			return Result{}, err
		}

		slog.Debug("synthesized chunk", "index", i, "chars", len(chunk), "duration", dur[0], "samples", len(wav[0]))

		waves = append(waves, wav[0])
		durations = append(durations, dur[0])
	}

	audio, total := Assemble(waves, durations, sr, params.SilenceSeconds)

	return Result{Audio: audio, Duration: total, SampleRate: sr}, nil
}

// Batch synthesizes len(texts) items in one pass. style must have batch 1
// or len(texts). Each item is trimmed to its own duration; no chunking or
// silence is applied.
func (p *Pipeline) Batch(ctx context.Context, texts, langs []string, style *voice.Style, totalSteps int, speed float64) ([]Result, error) {
	if err := (Params{TotalSteps: totalSteps, Speed: speed}).Validate(); err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return nil, invalidParameter("batch is empty")
	}

	if len(texts) != len(langs) {
		return nil, invalidParameter("%d texts but %d languages", len(texts), len(langs))
	}

	if style == nil {
		return nil, invalidParameter("style is required")
	}

	waves, durations, err := p.infer(ctx, texts, langs, style, totalSteps, speed)
	if err != nil {
		return nil, err
	}

	out := make([]Result, len(waves))
	for i := range waves {
		out[i] = Result{Audio: waves[i], Duration: durations[i], SampleRate: p.SampleRate()}
	}

	return out, nil
}

// infer runs the four stages for one batch and returns trimmed waveforms
// with their speed-adjusted durations.
func (p *Pipeline) infer(ctx context.Context, texts, langs []string, style *voice.Style, totalSteps int, speed float64) ([][]float32, []float64, error) {
	batch, err := p.tokenizer.Encode(texts, langs)
	if err != nil {
		if errors.Is(err, text.ErrInvalidLanguage) {
			return nil, nil, classify(err)
		}

		return nil, nil, inferenceFailure("tokenize", err)
	}

	style, err = style.Broadcast(batch.Size)
	if err != nil {
		return nil, nil, invalidParameter("%v", err)
	}

	ids, err := onnx.NewTensor(batch.IDs, batch.IDShape())
	if err != nil {
		return nil, nil, inferenceFailure("tokenize", err)
	}

	textMask, err := onnx.NewTensor(batch.Mask, batch.MaskShape())
	if err != nil {
		return nil, nil, inferenceFailure("tokenize", err)
	}

	raw, err := p.engine.PredictDuration(ctx, ids, style.DP(), textMask)
	if err != nil {
		return nil, nil, inferenceFailure(onnx.GraphDurationPredictor, err)
	}

	durations := make([]float64, len(raw))
	for i, d := range raw {
		durations[i] = float64(d) / speed
	}

	textEmb, err := p.engine.EncodeText(ctx, ids, style.TTL(), textMask)
	if err != nil {
		return nil, nil, inferenceFailure(onnx.GraphTextEncoder, err)
	}

	plan := planLatent(durations, p.model)

	latent, latentMask, err := plan.sample(p.noise)
	if err != nil {
		return nil, nil, inferenceFailure(onnx.GraphVectorEstimator, err)
	}

	for step := range totalSteps {
		if err := ctx.Err(); err != nil {
			return nil, nil, inferenceFailure(onnx.GraphVectorEstimator, err)
		}

		latent, err = p.engine.EstimateVector(ctx, onnx.VectorStep{
			NoisyLatent: latent,
			TextEmb:     textEmb,
			StyleTTL:    style.TTL(),
			LatentMask:  latentMask,
			TextMask:    textMask,
			Step:        step,
			Total:       totalSteps,
		})
		if err != nil {
			return nil, nil, inferenceFailure(onnx.GraphVectorEstimator, err)
		}
	}

	wav, err := p.engine.Vocode(ctx, latent)
	if err != nil {
		return nil, nil, inferenceFailure(onnx.GraphVocoder, err)
	}

	if wav.Dim(0) != batch.Size {
		return nil, nil, inferenceFailure(onnx.GraphVocoder, fmt.Errorf("wav_tts batch %d, want %d", wav.Dim(0), batch.Size))
	}

	data, err := onnx.ExtractFloat32(wav)
	if err != nil {
		return nil, nil, inferenceFailure(onnx.GraphVocoder, err)
	}

	produced := wav.Dim(1)
	waves := make([][]float32, batch.Size)

	for b := range batch.Size {
		n := trimLength(durations[b], p.SampleRate(), produced)
		row := data[b*produced : b*produced+n]
		waves[b] = append([]float32(nil), row...)
	}

	return waves, durations, nil
}
