package tensor

import (
	"errors"
	"fmt"
)

// ErrUnsupportedScalar is returned when a value cannot be reduced to a float64
var ErrUnsupportedScalar = errors.New("unsupported scalar value")

// Scalar is implemented by wrapped numeric values that can hand back a plain float.
type Scalar interface {
	Item() float64
}

// Variable is a single tracked value, the shape a loss takes while gradients are recorded.
type Variable struct {
	value        float64
	requiresGrad bool
	grad         float64
}

// NewVariable wraps value with gradient tracking enabled
func NewVariable(value float64) *Variable {
	return &Variable{value: value, requiresGrad: true}
}

// Item returns the wrapped value
func (v *Variable) Item() float64 {
	return v.value
}

func (v *Variable) RequiresGrad() bool {
	return v.requiresGrad
}

// Grad returns the accumulated gradient
func (v *Variable) Grad() float64 {
	return v.grad
}

// Backward seeds the gradient of a leaf loss
func (v *Variable) Backward() {
	if v.requiresGrad {
		v.grad = 1
	}
}

// Detach returns a copy of v that no longer tracks gradients
func (v *Variable) Detach() *Variable {
	return &Variable{value: v.value}
}

// Item returns the single element of a one-element tensor
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("%w: only one-element tensors can be converted to a scalar, got shape %v", ErrShape, t.Shape)
	}
	return float64(t.Data[0]), nil
}

// ToScalar normalizes a plain or tracked number to a float64.
// Tracked values are read without touching their gradient state.
func ToScalar(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case *Variable:
		if v == nil {
			return 0, fmt.Errorf("%w: nil variable", ErrUnsupportedScalar)
		}
		return v.Detach().Item(), nil
	case *Tensor:
		if v == nil {
			return 0, fmt.Errorf("%w: nil tensor", ErrUnsupportedScalar)
		}
		return v.Item()
	case Scalar:
		return v.Item(), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedScalar, value)
	}
}
