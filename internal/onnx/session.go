package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/example/go-supertonic-tts/internal/asset"
)

// Stage graph names. They double as the base file names under onnx/.
const (
	GraphDurationPredictor = "duration_predictor"
	GraphTextEncoder       = "text_encoder"
	GraphVectorEstimator   = "vector_estimator"
	GraphVocoder           = "vocoder"
)

// Graphs lists the stage graphs in pipeline order.
var Graphs = []string{
	GraphDurationPredictor,
	GraphTextEncoder,
	GraphVectorEstimator,
	GraphVocoder,
}

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session describes one graph: where its bytes come from and its I/O contract.
type Session struct {
	Name   string
	Source asset.Source

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

type graphIO struct {
	inputs  []NodeInfo
	outputs []NodeInfo
}

var graphTable = map[string]graphIO{
	GraphDurationPredictor: {
		inputs: []NodeInfo{
			{Name: "text_ids", DType: "int64", Shape: []any{"batch", "text_len"}},
			{Name: "style_dp", DType: "float", Shape: []any{"batch", "dp_rows", "dp_cols"}},
			{Name: "text_mask", DType: "float", Shape: []any{"batch", 1, "text_len"}},
		},
		outputs: []NodeInfo{
			{Name: "duration", DType: "float", Shape: []any{"batch"}},
		},
	},
	GraphTextEncoder: {
		inputs: []NodeInfo{
			{Name: "text_ids", DType: "int64", Shape: []any{"batch", "text_len"}},
			{Name: "style_ttl", DType: "float", Shape: []any{"batch", "ttl_rows", "ttl_cols"}},
			{Name: "text_mask", DType: "float", Shape: []any{"batch", 1, "text_len"}},
		},
		outputs: []NodeInfo{
			{Name: "text_emb", DType: "float", Shape: []any{"batch", "emb_dim", "text_len"}},
		},
	},
	GraphVectorEstimator: {
		inputs: []NodeInfo{
			{Name: "noisy_latent", DType: "float", Shape: []any{"batch", "latent_channels", "latent_len"}},
			{Name: "text_emb", DType: "float", Shape: []any{"batch", "emb_dim", "text_len"}},
			{Name: "style_ttl", DType: "float", Shape: []any{"batch", "ttl_rows", "ttl_cols"}},
			{Name: "latent_mask", DType: "float", Shape: []any{"batch", 1, "latent_len"}},
			{Name: "text_mask", DType: "float", Shape: []any{"batch", 1, "text_len"}},
			{Name: "current_step", DType: "float", Shape: []any{"batch"}},
			{Name: "total_step", DType: "float", Shape: []any{"batch"}},
		},
		outputs: []NodeInfo{
			{Name: "denoised_latent", DType: "float", Shape: []any{"batch", "latent_channels", "latent_len"}},
		},
	},
	GraphVocoder: {
		inputs: []NodeInfo{
			{Name: "latent", DType: "float", Shape: []any{"batch", "latent_channels", "latent_len"}},
		},
		outputs: []NodeInfo{
			{Name: "wav_tts", DType: "float", Shape: []any{"batch", "samples"}},
		},
	},
}

// SessionManager holds the resolved session table for the four stage graphs.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionManager resolves one source per stage graph. Every graph in
// Graphs must be present; file-backed sources must exist on disk.
func NewSessionManager(sources map[string]asset.Source) (*SessionManager, error) {
	if len(sources) == 0 {
		return nil, errors.New("no graph sources provided")
	}

	sm := &SessionManager{sessions: make(map[string]Session, len(Graphs))}

	for _, name := range Graphs {
		src, ok := sources[name]
		if !ok || src == nil {
			return nil, fmt.Errorf("missing source for graph %q", name)
		}

		if path, ok := asset.Path(src); ok {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("session file for %q: %w", name, err)
			}
		}

		gio := graphTable[name]
		sm.sessions[name] = Session{
			Name:    name,
			Source:  src,
			Inputs:  append([]NodeInfo(nil), gio.inputs...),
			Outputs: append([]NodeInfo(nil), gio.outputs...),
		}

		slog.Info(
			"loaded ONNX session",
			"name", name,
			"source", src.Name(),
			"inputs", nodeNames(gio.inputs),
			"outputs", nodeNames(gio.outputs),
		)
	}

	for name := range sources {
		if _, ok := graphTable[name]; !ok {
			slog.Warn("ignoring unknown graph source", "name", name)
		}
	}

	return sm, nil
}

func (m *SessionManager) Session(name string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[name]

	return s, ok
}

// Sessions returns the sessions in pipeline order.
func (m *SessionManager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(Graphs))
	for _, name := range Graphs {
		s, ok := m.sessions[name]
		if !ok {
			continue
		}

		s.Inputs = append([]NodeInfo(nil), s.Inputs...)
		s.Outputs = append([]NodeInfo(nil), s.Outputs...)
		out = append(out, s)
	}

	return out
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
