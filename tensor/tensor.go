package tensor

import (
	"errors"
	"fmt"
)

// ErrShape is returned when a shape is invalid or does not match the data.
var ErrShape = errors.New("invalid tensor shape")

// Layout describes the dimension order of a 4D image batch
type Layout string

const (
	// NCHW is batch, channels, height, width
	NCHW Layout = "NCHW"
	// NHWC is batch, height, width, channels
	NHWC Layout = "NHWC"
)

// Tensor is a dense, row-major float32 tensor held in host memory
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int

	requiresGrad bool
	grad         *Tensor
}

// New creates a tensor with the given shape. A nil data slice allocates zeros.
func New(shape []int, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float32, numElems)
	}
	if len(data) != numElems {
		return nil, fmt.Errorf("%w: data length %d does not match tensor size %d", ErrShape, len(data), numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a zero-filled tensor
func Zeros(shape []int) (*Tensor, error) {
	return New(shape, nil)
}

// Full creates a tensor filled with value
func Full(shape []int, value float32) (*Tensor, error) {
	t, err := New(shape, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d, requires_grad=%t)", t.Shape, t.NumElems, t.requiresGrad)
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// SetGrad attaches a gradient to the tensor
func (t *Tensor) SetGrad(grad *Tensor) {
	t.grad = grad
}

// At returns the element at the given coordinates
func (t *Tensor) At(coords ...int) float32 {
	return t.Data[coordsToIndex(coords, t.Strides)]
}

// Set writes the element at the given coordinates
func (t *Tensor) Set(value float32, coords ...int) {
	t.Data[coordsToIndex(coords, t.Strides)] = value
}

// Index returns a view of sub-tensor i along the first dimension.
// The returned tensor shares its data with t.
func (t *Tensor) Index(i int) (*Tensor, error) {
	if t.Rank() < 1 || i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("%w: index %d out of range for shape %v", ErrShape, i, t.Shape)
	}
	size := t.NumElems / t.Shape[0]
	return &Tensor{
		Shape:    append([]int(nil), t.Shape[1:]...),
		Strides:  calculateStrides(t.Shape[1:]),
		Data:     t.Data[i*size : (i+1)*size],
		NumElems: size,
	}, nil
}

// Reshape returns a tensor sharing data with t under a new shape
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShape, t.Shape, shape)
	}
	return &Tensor{
		Shape:        append([]int(nil), shape...),
		Strides:      calculateStrides(shape),
		Data:         t.Data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}, nil
}

// Permute returns a contiguous copy of t with dimensions reordered by dims
func (t *Tensor) Permute(dims ...int) (*Tensor, error) {
	if len(dims) != t.Rank() {
		return nil, fmt.Errorf("%w: permutation %v does not match rank %d", ErrShape, dims, t.Rank())
	}
	seen := make([]bool, len(dims))
	newShape := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 || d >= len(dims) || seen[d] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrShape, dims)
		}
		seen[d] = true
		newShape[i] = t.Shape[d]
	}

	out, err := New(newShape, nil)
	if err != nil {
		return nil, err
	}

	src := make([]int, t.Rank())
	for idx := 0; idx < out.NumElems; idx++ {
		dst := indexToCoords(idx, out.Shape)
		for i, d := range dims {
			src[d] = dst[i]
		}
		out.Data[idx] = t.Data[coordsToIndex(src, t.Strides)]
	}
	return out, nil
}

// Clone returns a deep copy of the tensor without gradient tracking
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		Data:     data,
		NumElems: t.NumElems,
	}
}

// ToNCHW converts an image batch to channel-first order.
// A single HWC image (rank 3) is returned as a batch of one.
func ToNCHW(t *Tensor, layout Layout) (*Tensor, error) {
	switch t.Rank() {
	case 3:
		chw, err := t.Permute(2, 0, 1)
		if err != nil {
			return nil, err
		}
		return chw.Reshape(append([]int{1}, chw.Shape...))
	case 4:
		switch layout {
		case NCHW, "":
			return t, nil
		case NHWC:
			return t.Permute(0, 3, 1, 2)
		default:
			return nil, fmt.Errorf("unsupported layout %q", layout)
		}
	default:
		return nil, fmt.Errorf("%w: image batch must be rank 3 or 4, got shape %v", ErrShape, t.Shape)
	}
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: empty shape", ErrShape)
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d has size %d, must be positive", ErrShape, i, dim)
		}
	}
	return nil
}

func indexToCoords(index int, shape []int) []int {
	coords := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		coords[i] = index % shape[i]
		index /= shape[i]
	}
	return coords
}

func coordsToIndex(coords []int, strides []int) int {
	index := 0
	for i, c := range coords {
		index += c * strides[i]
	}
	return index
}
