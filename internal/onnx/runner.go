package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-supertonic-tts/internal/asset"
)

// DefaultAPIVersion is the ORT C API version requested when none is configured.
const DefaultAPIVersion uint32 = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner executes one stage graph in its own ORT runtime, env and session.
type Runner struct {
	name    string
	inputs  []NodeInfo
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

// NewRunner opens meta's graph. Buffer-backed sources are written to a
// temporary file that is removed once the session holds the model.
func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	if cfg.APIVersion == 0 {
		cfg.APIVersion = DefaultAPIVersion
	}

	path, cleanup, err := graphPath(meta)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	r := &Runner{name: meta.Name, inputs: meta.Inputs}
	if err := r.open(path, cfg); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Runner) open(path string, cfg RunnerConfig) error {
	var err error

	if r.runtime, err = ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion); err != nil {
		return fmt.Errorf("%s: load runtime %q: %w", r.name, cfg.LibraryPath, err)
	}

	if r.env, err = r.runtime.NewEnv("supertonic-"+r.name, ort.LoggingLevelWarning); err != nil {
		return fmt.Errorf("%s: create env: %w", r.name, err)
	}

	if r.session, err = r.runtime.NewSession(r.env, path, nil); err != nil {
		return fmt.Errorf("%s: open %s: %w", r.name, path, err)
	}

	return nil
}

func graphPath(meta Session) (string, func(), error) {
	if meta.Source == nil {
		return "", nil, fmt.Errorf("graph %q has no source", meta.Name)
	}

	if path, ok := asset.Path(meta.Source); ok {
		return path, func() {}, nil
	}

	data, err := asset.ReadAll(meta.Source)
	if err != nil {
		return "", nil, fmt.Errorf("read graph %q: %w", meta.Name, err)
	}

	path, err := writeTemp("supertonic-"+meta.Name+"-*.onnx", data)
	if err != nil {
		return "", nil, fmt.Errorf("stage graph %q: %w", meta.Name, err)
	}

	return path, func() { _ = os.Remove(path) }, nil
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}

	_, werr := f.Write(data)
	cerr := f.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// Run feeds inputs to the graph and returns its outputs by name. Every input
// the graph declares must be present.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	for _, in := range r.inputs {
		if inputs[in.Name] == nil {
			return nil, fmt.Errorf("%s: missing input %q", r.name, in.Name)
		}
	}

	if r.session == nil {
		return nil, fmt.Errorf("%s: runner closed", r.name)
	}

	feed := make(ortValues, len(inputs))
	defer feed.close()

	for name, t := range inputs {
		v, err := toORT(r.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("%s: input %q: %w", r.name, name, err)
		}

		feed[name] = v
	}

	fetched, err := r.session.Run(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.name, err)
	}

	out := ortValues(fetched)
	defer out.close()

	results := make(map[string]*Tensor, len(out))

	for name, v := range out {
		t, err := fromORT(v)
		if err != nil {
			return nil, fmt.Errorf("%s: output %q: %w", r.name, name, err)
		}

		results[name] = t
	}

	return results, nil
}

// Close releases the session, env and runtime in reverse order of creation.
// Safe to call multiple times.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}

	if r.env != nil {
		r.env.Close()
		r.env = nil
	}

	if r.runtime != nil {
		_ = r.runtime.Close()
		r.runtime = nil
	}
}

func (r *Runner) Name() string { return r.name }

type ortValues map[string]*ort.Value

func (vs ortValues) close() {
	for _, v := range vs {
		if v != nil {
			v.Close()
		}
	}
}

func toORT(rt *ort.Runtime, t *Tensor) (*ort.Value, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}

	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensorValue(rt, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(rt, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %T", data)
	}
}

func fromORT(v *ort.Value) (*Tensor, error) {
	kind, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}

	switch kind {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}

		return NewTensor(data, shape)
	default:
		return nil, fmt.Errorf("unsupported element type %d", kind)
	}
}
