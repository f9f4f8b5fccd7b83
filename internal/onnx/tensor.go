package onnx

import (
	"errors"
	"fmt"
	"math"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a dense row-major tensor exchanged with graph runners.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

// NewTensor copies data into a tensor of the given shape.
func NewTensor[T float32 | int64](data []T, shape []int64) (*Tensor, error) {
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}

	switch d := any(data).(type) {
	case []float32:
		t.dtype = DTypeFloat32
		t.data = append([]float32(nil), d...)
	case []int64:
		t.dtype = DTypeInt64
		t.data = append([]int64(nil), d...)
	default:
		return nil, fmt.Errorf("unsupported tensor data type %T", data)
	}

	return t, nil
}

// Scalars builds a 1-D float32 tensor of length n filled with v.
func Scalars(v float32, n int) (*Tensor, error) {
	data := make([]float32, n)
	for i := range data {
		data[i] = v
	}

	return NewTensor(data, []int64{int64(n)})
}

func (t *Tensor) DType() TensorDType {
	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Dim returns the size of axis i, or 0 when the axis does not exist.
func (t *Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.shape) {
		return 0
	}

	return int(t.shape[i])
}

func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	default:
		return nil
	}
}

func ExtractFloat32(output any) ([]float32, error) {
	return extract[float32](output, DTypeFloat32)
}

func ExtractInt64(output any) ([]int64, error) {
	return extract[int64](output, DTypeInt64)
}

func extract[T float32 | int64](output any, want TensorDType) ([]T, error) {
	switch out := output.(type) {
	case nil:
		return nil, errors.New("output is nil")
	case []T:
		return append([]T(nil), out...), nil
	case *Tensor:
		if out == nil {
			return nil, errors.New("expected *Tensor output, got nil")
		}

		if out.dtype != want {
			return nil, fmt.Errorf("expected %s tensor, got %s", want, out.dtype)
		}

		data, ok := out.data.([]T)
		if !ok {
			return nil, fmt.Errorf("%s tensor has unexpected backing type %T", want, out.data)
		}

		return append([]T(nil), data...), nil
	default:
		return nil, fmt.Errorf("expected []%s output, got %T", want, output)
	}
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}

	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}

	return nil
}

func elementCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 1, nil
	}

	count := int64(1)
	for i, dim := range shape {
		if dim < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, dim)
		}

		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		count *= dim
	}

	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}

	return int(count), nil
}
