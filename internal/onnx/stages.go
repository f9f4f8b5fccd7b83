package onnx

import (
	"context"
	"fmt"
	"slices"
)

// PredictDuration runs the duration_predictor graph.
//
// Inputs: text_ids [B, T] int64, style_dp [B, d1, d2], text_mask [B, 1, T].
// Output: one duration in seconds per batch item.
func (e *Engine) PredictDuration(ctx context.Context, textIDs, styleDP, textMask *Tensor) ([]float32, error) {
	runner, err := e.graph(GraphDurationPredictor)
	if err != nil {
		return nil, err
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{
		"text_ids":  textIDs,
		"style_dp":  styleDP,
		"text_mask": textMask,
	})
	if err != nil {
		return nil, fmt.Errorf("duration_predictor: run: %w", err)
	}

	dur, ok := outputs["duration"]
	if !ok {
		return nil, fmt.Errorf("duration_predictor: missing 'duration' in output")
	}

	data, err := ExtractFloat32(dur)
	if err != nil {
		return nil, fmt.Errorf("duration_predictor: extract duration: %w", err)
	}

	if want := textIDs.Dim(0); len(data) != want {
		return nil, fmt.Errorf("duration_predictor: got %d durations for batch of %d", len(data), want)
	}

	return data, nil
}

// EncodeText runs the text_encoder graph and returns text_emb.
func (e *Engine) EncodeText(ctx context.Context, textIDs, styleTTL, textMask *Tensor) (*Tensor, error) {
	runner, err := e.graph(GraphTextEncoder)
	if err != nil {
		return nil, err
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{
		"text_ids":  textIDs,
		"style_ttl": styleTTL,
		"text_mask": textMask,
	})
	if err != nil {
		return nil, fmt.Errorf("text_encoder: run: %w", err)
	}

	emb, ok := outputs["text_emb"]
	if !ok {
		return nil, fmt.Errorf("text_encoder: missing 'text_emb' in output")
	}

	return emb, nil
}

// VectorStep carries the inputs of one denoising step.
type VectorStep struct {
	NoisyLatent *Tensor // [B, C, L]
	TextEmb     *Tensor
	StyleTTL    *Tensor
	LatentMask  *Tensor // [B, 1, L]
	TextMask    *Tensor // [B, 1, T]
	Step        int
	Total       int
}

// EstimateVector runs one vector_estimator step and returns the denoised
// latent, which has the same shape as the noisy input.
func (e *Engine) EstimateVector(ctx context.Context, in VectorStep) (*Tensor, error) {
	runner, err := e.graph(GraphVectorEstimator)
	if err != nil {
		return nil, err
	}

	batch := in.NoisyLatent.Dim(0)

	current, err := Scalars(float32(in.Step), batch)
	if err != nil {
		return nil, fmt.Errorf("vector_estimator: current_step: %w", err)
	}

	total, err := Scalars(float32(in.Total), batch)
	if err != nil {
		return nil, fmt.Errorf("vector_estimator: total_step: %w", err)
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{
		"noisy_latent": in.NoisyLatent,
		"text_emb":     in.TextEmb,
		"style_ttl":    in.StyleTTL,
		"latent_mask":  in.LatentMask,
		"text_mask":    in.TextMask,
		"current_step": current,
		"total_step":   total,
	})
	if err != nil {
		return nil, fmt.Errorf("vector_estimator: run: %w", err)
	}

	out, ok := outputs["denoised_latent"]
	if !ok {
		return nil, fmt.Errorf("vector_estimator: missing 'denoised_latent' in output")
	}

	if !slices.Equal(out.Shape(), in.NoisyLatent.Shape()) {
		return nil, fmt.Errorf("vector_estimator: denoised_latent shape %v, want %v", out.Shape(), in.NoisyLatent.Shape())
	}

	return out, nil
}

// Vocode runs the vocoder graph. The result is wav_tts [B, N].
func (e *Engine) Vocode(ctx context.Context, latent *Tensor) (*Tensor, error) {
	runner, err := e.graph(GraphVocoder)
	if err != nil {
		return nil, err
	}

	outputs, err := runner.Run(ctx, map[string]*Tensor{"latent": latent})
	if err != nil {
		return nil, fmt.Errorf("vocoder: run: %w", err)
	}

	wav, ok := outputs["wav_tts"]
	if !ok {
		return nil, fmt.Errorf("vocoder: missing 'wav_tts' in output")
	}

	if len(wav.Shape()) != 2 {
		return nil, fmt.Errorf("vocoder: wav_tts shape %v, want [B, N]", wav.Shape())
	}

	return wav, nil
}
