package onnx

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TensorDType identifies the element type of a host-side tensor.
type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor holds float32 or int64 elements in row-major order. Construction
// and accessors copy data, so tensors can be shared across goroutines.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

// NewTensor copies data into a tensor of the given shape. The element
// count must match the shape product; an empty shape means a scalar.
func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	want, err := shapeElements(shape)
	if err != nil {
		return nil, err
	}
	if want != len(data) {
		return nil, fmt.Errorf("shape %v expects %d elements, got %d", shape, want, len(data))
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}
	var zero T
	switch any(zero).(type) {
	case float32:
		buf := make([]float32, len(data))
		for i, v := range data {
			buf[i] = float32(v)
		}
		t.dtype, t.data = DTypeFloat32, buf
	case int64:
		buf := make([]int64, len(data))
		for i, v := range data {
			buf[i] = int64(v)
		}
		t.dtype, t.data = DTypeInt64, buf
	default:
		return nil, fmt.Errorf("unsupported tensor element type %T", zero)
	}
	return t, nil
}

// DType returns the element type.
func (t *Tensor) DType() TensorDType { return t.dtype }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

// Data returns a copy of the backing elements as []float32 or []int64.
func (t *Tensor) Data() any {
	switch v := t.data.(type) {
	case []float32:
		return append([]float32(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	}
	return nil
}

// ShapeError reports a tensor whose shape violates a graph contract.
// A -1 in Want matches any size in that dimension; a nil Got means the
// tensor was missing entirely.
type ShapeError struct {
	Tensor string
	Want   []int64
	Got    []int64
}

func (e *ShapeError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("tensor %q: missing, want shape %s", e.Tensor, formatDims(e.Want))
	}
	return fmt.Sprintf("tensor %q: shape mismatch: want %s, got %s", e.Tensor, formatDims(e.Want), formatDims(e.Got))
}

// CheckShape validates t against the wanted dimensions, where -1 matches
// any size. Returns a *ShapeError on rank or dimension mismatch.
func CheckShape(name string, t *Tensor, want ...int64) error {
	if t == nil {
		return &ShapeError{Tensor: name, Want: append([]int64(nil), want...)}
	}
	got := t.Shape()
	if len(got) != len(want) {
		return &ShapeError{Tensor: name, Want: append([]int64(nil), want...), Got: got}
	}
	for i, d := range want {
		if d >= 0 && got[i] != d {
			return &ShapeError{Tensor: name, Want: append([]int64(nil), want...), Got: got}
		}
	}
	return nil
}

func formatDims(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.FormatInt(d, 10)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ExtractFloat32 returns the float32 elements of a graph output.
func ExtractFloat32(output any) ([]float32, error) {
	return extract[float32](output, DTypeFloat32)
}

// ExtractInt64 returns the int64 elements of a graph output.
func ExtractInt64(output any) ([]int64, error) {
	return extract[int64](output, DTypeInt64)
}

// extract converts a graph output into a typed element slice. Outputs
// arrive as a *Tensor or a raw slice; anything exposing Data() is
// unwrapped first.
func extract[T int64 | float32](output any, want TensorDType) ([]T, error) {
	v, err := unwrapData(output)
	if err != nil {
		return nil, err
	}
	switch out := v.(type) {
	case []T:
		return append([]T(nil), out...), nil
	case *[]T:
		if out == nil {
			return nil, fmt.Errorf("expected %s output, got nil pointer", want)
		}
		return append([]T(nil), (*out)...), nil
	}
	return nil, fmt.Errorf("expected %s output, got %T", want, v)
}

// unwrapData peels Data() wrappers until a raw value remains. Depth is
// bounded in case a wrapper returns itself.
func unwrapData(output any) (any, error) {
	type dataGetter interface{ Data() any }

	v := output
	for depth := 0; depth < 16; depth++ {
		if v == nil {
			return nil, fmt.Errorf("output is nil")
		}
		getter, ok := v.(dataGetter)
		if !ok {
			return v, nil
		}
		v = getter.Data()
	}
	return nil, fmt.Errorf("output nests Data() wrappers beyond depth 16")
}

// shapeElements returns the element count a shape requires. An empty
// shape is a scalar with one element.
func shapeElements(shape []int64) (int, error) {
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
