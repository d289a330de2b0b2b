package tensor

import (
	ftensor "github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// imagTol is the largest imaginary part FromComplex accepts, relative to the largest magnitude.
const imagTol = 0x1p-20

// FromComplex converts a complex64 tensor from github.com/fumin/tensor, naming its legs by names.
// Elements must be real up to single precision rounding.
func FromComplex(src *ftensor.Dense, names ...string) (*Dense, error) {
	shape := src.Shape()
	if len(names) != len(shape) {
		return nil, errors.Wrapf(ErrShape, "%#v for shape %#v", names, shape)
	}
	legs := make([]Leg, len(shape))
	for i, d := range shape {
		legs[i] = Leg{Name: names[i], Dim: d}
	}
	t := Zeros(legs...)

	var largest float32
	for _, v := range src.All() {
		largest = max(largest, abs32(real(v)), abs32(imag(v)))
	}
	for ijk, v := range src.All() {
		if abs32(imag(v)) > imagTol*largest {
			return nil, errors.Wrapf(ErrNumerical, "complex element %v at %#v", v, ijk)
		}
		t.SetAt(float64(real(v)), ijk...)
	}
	return t, nil
}

// Complex converts t to a complex64 tensor of github.com/fumin/tensor with the same shape.
func (t *Dense) Complex() *ftensor.Dense {
	c := ftensor.Zeros(t.Shape()...)
	for ijk := range c.All() {
		c.SetAt(ijk, complex(float32(t.At(ijk...)), 0))
	}
	return c
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
