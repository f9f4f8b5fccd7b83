// Package voice loads voice style embeddings and maps voice IDs to them.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/onnx"
)

// ErrStyleLoad is returned for unreadable, malformed or mismatched style files.
var ErrStyleLoad = errors.New("style load failed")

// Style holds the two conditioning tensors of one or more voices. It is
// never mutated after construction.
type Style struct {
	ttl *onnx.Tensor
	dp  *onnx.Tensor
}

type styleFile struct {
	TTL styleComponent `json:"style_ttl"`
	DP  styleComponent `json:"style_dp"`
}

type styleComponent struct {
	Data [][][]float32 `json:"data"`
	Dims []int64       `json:"dims"`
	Type string        `json:"type"`
}

// TTL returns style_ttl [B, d1, d2].
func (s *Style) TTL() *onnx.Tensor { return s.ttl }

// DP returns style_dp [B, d1, d2].
func (s *Style) DP() *onnx.Tensor { return s.dp }

// Batch is the number of voices stacked in the style.
func (s *Style) Batch() int { return s.ttl.Dim(0) }

// Broadcast returns a style with batch n. A batch-1 style is repeated; a
// style already of batch n is returned as is.
func (s *Style) Broadcast(n int) (*Style, error) {
	switch b := s.Batch(); {
	case b == n:
		return s, nil
	case b == 1 && n > 1:
		ttl, err := repeatBatch(s.ttl, n)
		if err != nil {
			return nil, err
		}

		dp, err := repeatBatch(s.dp, n)
		if err != nil {
			return nil, err
		}

		return &Style{ttl: ttl, dp: dp}, nil
	default:
		return nil, fmt.Errorf("style batch %d does not match batch %d", b, n)
	}
}

func repeatBatch(t *onnx.Tensor, n int) (*onnx.Tensor, error) {
	data, err := onnx.ExtractFloat32(t)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, len(data)*n)
	for range n {
		out = append(out, data...)
	}

	shape := t.Shape()
	shape[0] = int64(n)

	return onnx.NewTensor(out, shape)
}

// ParseStyle decodes one style JSON document.
func ParseStyle(data []byte) (*Style, error) {
	var f styleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrStyleLoad, err)
	}

	ttl, err := f.TTL.tensor("style_ttl")
	if err != nil {
		return nil, err
	}

	dp, err := f.DP.tensor("style_dp")
	if err != nil {
		return nil, err
	}

	if ttl.Dim(0) != dp.Dim(0) {
		return nil, fmt.Errorf("%w: style_ttl batch %d != style_dp batch %d", ErrStyleLoad, ttl.Dim(0), dp.Dim(0))
	}

	return &Style{ttl: ttl, dp: dp}, nil
}

func (c styleComponent) tensor(name string) (*onnx.Tensor, error) {
	flat, err := c.flatten(name)
	if err != nil {
		return nil, err
	}

	t, err := onnx.NewTensor(flat, c.Dims)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStyleLoad, name, err)
	}

	return t, nil
}

// flatten checks the nested data against dims and returns it row-major.
func (c styleComponent) flatten(name string) ([]float32, error) {
	if len(c.Dims) != 3 {
		return nil, fmt.Errorf("%w: %s dims %v, want rank 3", ErrStyleLoad, name, c.Dims)
	}

	b, d1, d2 := c.Dims[0], c.Dims[1], c.Dims[2]
	if b < 1 || d1 < 1 || d2 < 1 {
		return nil, fmt.Errorf("%w: %s dims %v must be positive", ErrStyleLoad, name, c.Dims)
	}

	if int64(len(c.Data)) != b {
		return nil, fmt.Errorf("%w: %s has %d batch rows, dims say %d", ErrStyleLoad, name, len(c.Data), b)
	}

	flat := make([]float32, 0, b*d1*d2)
	for i, plane := range c.Data {
		if int64(len(plane)) != d1 {
			return nil, fmt.Errorf("%w: %s[%d] has %d rows, dims say %d", ErrStyleLoad, name, i, len(plane), d1)
		}

		for j, row := range plane {
			if int64(len(row)) != d2 {
				return nil, fmt.Errorf("%w: %s[%d][%d] has %d values, dims say %d", ErrStyleLoad, name, i, j, len(row), d2)
			}

			flat = append(flat, row...)
		}
	}

	return flat, nil
}

// LoadStyle reads a single style from src.
func LoadStyle(src asset.Source) (*Style, error) {
	data, err := asset.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStyleLoad, err)
	}

	s, err := ParseStyle(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}

	return s, nil
}

// LoadStyles stacks several single-voice styles into one batch. All files
// must share the inner dimensions of the first.
func LoadStyles(srcs []asset.Source) (*Style, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("%w: no style sources", ErrStyleLoad)
	}

	var ttl, dp []float32

	var ttlShape, dpShape []int64

	for i, src := range srcs {
		s, err := LoadStyle(src)
		if err != nil {
			return nil, err
		}

		if s.Batch() != 1 {
			return nil, fmt.Errorf("%w: %s has batch %d, want 1", ErrStyleLoad, src.Name(), s.Batch())
		}

		if i == 0 {
			ttlShape, dpShape = s.ttl.Shape(), s.dp.Shape()
			ttl = make([]float32, 0, len(srcs)*int(ttlShape[1]*ttlShape[2]))
			dp = make([]float32, 0, len(srcs)*int(dpShape[1]*dpShape[2]))
		} else if !sameInner(ttlShape, s.ttl.Shape()) || !sameInner(dpShape, s.dp.Shape()) {
			return nil, fmt.Errorf("%w: %s dims differ from %s", ErrStyleLoad, src.Name(), srcs[0].Name())
		}

		ttlData, err := onnx.ExtractFloat32(s.ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: %s style_ttl: %w", ErrStyleLoad, src.Name(), err)
		}

		dpData, err := onnx.ExtractFloat32(s.dp)
		if err != nil {
			return nil, fmt.Errorf("%w: %s style_dp: %w", ErrStyleLoad, src.Name(), err)
		}

		ttl = append(ttl, ttlData...)
		dp = append(dp, dpData...)
	}

	n := int64(len(srcs))

	ttlT, err := onnx.NewTensor(ttl, []int64{n, ttlShape[1], ttlShape[2]})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStyleLoad, err)
	}

	dpT, err := onnx.NewTensor(dp, []int64{n, dpShape[1], dpShape[2]})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStyleLoad, err)
	}

	slog.Debug("loaded voice styles", "count", n, "ttl", ttlT.Shape(), "dp", dpT.Shape())

	return &Style{ttl: ttlT, dp: dpT}, nil
}

func sameInner(a, b []int64) bool {
	return len(a) == 3 && len(b) == 3 && a[1] == b[1] && a[2] == b[2]
}

// StyleCache shares loaded styles across requests, keyed by source name.
type StyleCache struct {
	mu     sync.RWMutex
	styles map[string]*Style
}

func NewStyleCache() *StyleCache {
	return &StyleCache{styles: make(map[string]*Style)}
}

// Get returns the cached style for src, loading it on first use.
func (c *StyleCache) Get(src asset.Source) (*Style, error) {
	key := src.Name()

	c.mu.RLock()
	s, ok := c.styles[key]
	c.mu.RUnlock()

	if ok {
		return s, nil
	}

	s, err := LoadStyle(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.styles[key]; ok {
		return existing, nil
	}

	c.styles[key] = s

	return s, nil
}

// Len returns the number of cached styles.
func (c *StyleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.styles)
}
