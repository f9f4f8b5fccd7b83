package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/go-supertonic-tts/internal/onnx"
)

// FakeGraph is a GraphRunner backed by a function. It records every call.
type FakeGraph struct {
	GraphName string
	Fn        func(ctx context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error)

	mu    sync.Mutex
	calls []map[string]*onnx.Tensor
}

func (g *FakeGraph) Run(ctx context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	g.mu.Lock()
	g.calls = append(g.calls, inputs)
	g.mu.Unlock()

	return g.Fn(ctx, inputs)
}

func (g *FakeGraph) Name() string { return g.GraphName }

func (g *FakeGraph) Close() {}

// Calls returns the inputs of every Run so far.
func (g *FakeGraph) Calls() []map[string]*onnx.Tensor {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]map[string]*onnx.Tensor(nil), g.calls...)
}

// FakeGraphs holds one fake per stage.
type FakeGraphs struct {
	Duration  *FakeGraph
	Encoder   *FakeGraph
	Estimator *FakeGraph
	Vocoder   *FakeGraph
}

// Engine wraps the fakes in an onnx.Engine.
func (f *FakeGraphs) Engine() *onnx.Engine {
	return onnx.NewEngineWithRunners(map[string]onnx.GraphRunner{
		onnx.GraphDurationPredictor: f.Duration,
		onnx.GraphTextEncoder:       f.Encoder,
		onnx.GraphVectorEstimator:   f.Estimator,
		onnx.GraphVocoder:           f.Vocoder,
	})
}

// NewFakeGraphs returns stage fakes that honor the graph contracts with
// trivial math: every item lasts seconds, text_emb is zeros, each estimator
// step adds 1 inside the latent mask and the vocoder expands latent channel 0
// to FixtureChunkSize samples per frame.
func NewFakeGraphs(seconds float32) *FakeGraphs {
	return &FakeGraphs{
		Duration: &FakeGraph{
			GraphName: onnx.GraphDurationPredictor,
			Fn: func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
				b := in["text_ids"].Dim(0)
				d := make([]float32, b)
				for i := range d {
					d[i] = seconds
				}

				out, err := onnx.NewTensor(d, []int64{int64(b)})

				return map[string]*onnx.Tensor{"duration": out}, err
			},
		},
		Encoder: &FakeGraph{
			GraphName: onnx.GraphTextEncoder,
			Fn: func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
				b, t := in["text_ids"].Dim(0), in["text_ids"].Dim(1)
				out, err := onnx.NewTensor(make([]float32, b*2*t), []int64{int64(b), 2, int64(t)})

				return map[string]*onnx.Tensor{"text_emb": out}, err
			},
		},
		Estimator: &FakeGraph{
			GraphName: onnx.GraphVectorEstimator,
			Fn: func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
				latent, err := onnx.ExtractFloat32(in["noisy_latent"])
				if err != nil {
					return nil, err
				}

				mask, err := onnx.ExtractFloat32(in["latent_mask"])
				if err != nil {
					return nil, err
				}

				shape := in["noisy_latent"].Shape()
				c, l := int(shape[1]), int(shape[2])
				for i := range latent {
					b := i / (c * l)
					latent[i] += mask[b*l+i%l]
				}

				out, err := onnx.NewTensor(latent, shape)

				return map[string]*onnx.Tensor{"denoised_latent": out}, err
			},
		},
		Vocoder: &FakeGraph{
			GraphName: onnx.GraphVocoder,
			Fn: func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
				latent, err := onnx.ExtractFloat32(in["latent"])
				if err != nil {
					return nil, err
				}

				shape := in["latent"].Shape()
				if len(shape) != 3 {
					return nil, fmt.Errorf("latent shape %v, want [B, C, L]", shape)
				}

				b, c, l := int(shape[0]), int(shape[1]), int(shape[2])
				n := l * FixtureChunkSize
				wav := make([]float32, b*n)

				for i := range b {
					for j := range n {
						wav[i*n+j] = latent[i*c*l+j/FixtureChunkSize]
					}
				}

				out, err := onnx.NewTensor(wav, []int64{int64(b), int64(n)})

				return map[string]*onnx.Tensor{"wav_tts": out}, err
			},
		},
	}
}
