package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/go-supertonic-tts/internal/asset"
)

// ErrModelConfig is returned when tts.json is missing, malformed or invalid.
var ErrModelConfig = errors.New("model config load failed")

// ModelConfig holds the subset of tts.json the inference pipeline needs.
type ModelConfig struct {
	AE  AEConfig  `json:"ae"`
	TTL TTLConfig `json:"ttl"`
}

type AEConfig struct {
	SampleRate    int `json:"sample_rate"`
	BaseChunkSize int `json:"base_chunk_size"`
}

type TTLConfig struct {
	ChunkCompressFactor int `json:"chunk_compress_factor"`
	LatentDim           int `json:"latent_dim"`
}

// LoadModelConfig reads and validates tts.json from src.
func LoadModelConfig(src asset.Source) (ModelConfig, error) {
	data, err := asset.ReadAll(src)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("%w: %w", ErrModelConfig, err)
	}

	return ParseModelConfig(data)
}

// ParseModelConfig decodes and validates tts.json contents.
func ParseModelConfig(data []byte) (ModelConfig, error) {
	var mc ModelConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		return ModelConfig{}, fmt.Errorf("%w: decode: %w", ErrModelConfig, err)
	}

	if err := mc.Validate(); err != nil {
		return ModelConfig{}, err
	}

	return mc, nil
}

// Validate checks that every dimension is positive.
func (m ModelConfig) Validate() error {
	fields := []struct {
		name string
		val  int
	}{
		{"ae.sample_rate", m.AE.SampleRate},
		{"ae.base_chunk_size", m.AE.BaseChunkSize},
		{"ttl.chunk_compress_factor", m.TTL.ChunkCompressFactor},
		{"ttl.latent_dim", m.TTL.LatentDim},
	}

	for _, f := range fields {
		if f.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrModelConfig, f.name, f.val)
		}
	}

	return nil
}

// ChunkSize is the number of waveform samples covered by one latent frame.
func (m ModelConfig) ChunkSize() int {
	return m.AE.BaseChunkSize * m.TTL.ChunkCompressFactor
}

// LatentChannels is the channel count of the noisy latent tensor.
func (m ModelConfig) LatentChannels() int {
	return m.TTL.LatentDim * m.TTL.ChunkCompressFactor
}
