// Package tensor implements dense float64 tensors with named legs.
//
// Legs are ordered; data is stored row-major so that the last leg varies fastest.
// Contractions are carried out by matricising both operands and calling gonum's BLAS,
// see Backend for the parallelism knobs.
package tensor

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Leg is a named tensor index.
type Leg struct {
	Name string
	Dim  int
}

// Dense is a dense tensor.
type Dense struct {
	legs []Leg
	data []float64
}

// New returns a tensor with the given legs backed by data.
// The tensor takes ownership of data.
func New(legs []Leg, data []float64) (*Dense, error) {
	n := 1
	for i, l := range legs {
		if l.Dim <= 0 {
			return nil, errors.Wrapf(ErrShape, "leg %d %#v", i, l)
		}
		n *= l.Dim
	}
	if len(data) != n {
		return nil, errors.Wrapf(ErrShape, "%d elements for legs %s", len(data), formatLegs(legs))
	}
	return &Dense{legs: slices.Clone(legs), data: data}, nil
}

// Zeros returns a zero tensor.
func Zeros(legs ...Leg) *Dense {
	n := 1
	for _, l := range legs {
		if l.Dim <= 0 {
			panic(fmt.Sprintf("%#v", legs))
		}
		n *= l.Dim
	}
	return &Dense{legs: slices.Clone(legs), data: make([]float64, n)}
}

// Scalar returns a rank 0 tensor.
func Scalar(v float64) *Dense {
	return &Dense{data: []float64{v}}
}

// Legs returns a copy of the legs of t.
func (t *Dense) Legs() []Leg { return slices.Clone(t.legs) }

// Leg returns the i-th leg.
func (t *Dense) Leg(i int) Leg { return t.legs[i] }

// Rank returns the number of legs.
func (t *Dense) Rank() int { return len(t.legs) }

// Shape returns the leg dimensions.
func (t *Dense) Shape() []int {
	shape := make([]int, len(t.legs))
	for i, l := range t.legs {
		shape[i] = l.Dim
	}
	return shape
}

// Size returns the number of elements.
func (t *Dense) Size() int { return len(t.data) }

// Axis returns the index of the first leg named name, or -1.
func (t *Dense) Axis(name string) int {
	return slices.IndexFunc(t.legs, func(l Leg) bool { return l.Name == name })
}

// Data returns the backing array. Modifying it modifies t.
func (t *Dense) Data() []float64 { return t.data }

// At returns the element at idx.
func (t *Dense) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// SetAt sets the element at idx.
func (t *Dense) SetAt(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

func (t *Dense) offset(idx []int) int {
	if len(idx) != len(t.legs) {
		panic(fmt.Sprintf("%#v %s", idx, formatLegs(t.legs)))
	}
	var off int
	for i, l := range t.legs {
		if idx[i] < 0 || idx[i] >= l.Dim {
			panic(fmt.Sprintf("%#v %s", idx, formatLegs(t.legs)))
		}
		off = off*l.Dim + idx[i]
	}
	return off
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	return &Dense{legs: slices.Clone(t.legs), data: slices.Clone(t.data)}
}

// Rename returns a copy of t with the leg at axis renamed.
func (t *Dense) Rename(axis int, name string) *Dense {
	c := t.Clone()
	c.legs[axis].Name = name
	return c
}

// WithNames returns a copy of t with all legs renamed.
func (t *Dense) WithNames(names ...string) *Dense {
	if len(names) != len(t.legs) {
		panic(fmt.Sprintf("%#v %s", names, formatLegs(t.legs)))
	}
	c := t.Clone()
	for i, n := range names {
		c.legs[i].Name = n
	}
	return c
}

// Reshape returns a copy of t with new legs whose dimensions multiply to the same size.
func (t *Dense) Reshape(legs ...Leg) (*Dense, error) {
	r, err := New(legs, slices.Clone(t.data))
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("reshape %s", formatLegs(t.legs)))
	}
	return r, nil
}

// Transpose returns t with its legs permuted, so that leg i of the result is leg perm[i] of t.
func (t *Dense) Transpose(perm ...int) *Dense {
	n := len(t.legs)
	if len(perm) != n {
		panic(fmt.Sprintf("%#v %s", perm, formatLegs(t.legs)))
	}
	seen := make([]bool, n)
	identity := true
	for i, p := range perm {
		if p < 0 || p >= n || seen[p] {
			panic(fmt.Sprintf("%#v", perm))
		}
		seen[p] = true
		if p != i {
			identity = false
		}
	}
	if identity {
		return t.Clone()
	}

	legs := make([]Leg, n)
	for i, p := range perm {
		legs[i] = t.legs[p]
	}
	// Strides of t, in the order of the result legs.
	stride := make([]int, n)
	s := 1
	for i := n - 1; i >= 0; i-- {
		stride[i] = s
		s *= t.legs[i].Dim
	}
	permStride := make([]int, n)
	for i, p := range perm {
		permStride[i] = stride[p]
	}

	data := make([]float64, len(t.data))
	idx := make([]int, n)
	src := 0
	for dst := range data {
		data[dst] = t.data[src]
		// Increment the multi-index of the result, tracking the source offset.
		for i := n - 1; i >= 0; i-- {
			idx[i]++
			src += permStride[i]
			if idx[i] < legs[i].Dim {
				break
			}
			src -= permStride[i] * idx[i]
			idx[i] = 0
		}
	}
	return &Dense{legs: legs, data: data}
}

// TransposeLegs returns t with its legs ordered by name.
func (t *Dense) TransposeLegs(names ...string) (*Dense, error) {
	perm := make([]int, 0, len(names))
	for _, name := range names {
		a := t.Axis(name)
		if a < 0 {
			return nil, errors.Wrapf(ErrShape, "no leg %q in %s", name, formatLegs(t.legs))
		}
		perm = append(perm, a)
	}
	if len(perm) != len(t.legs) {
		return nil, errors.Wrapf(ErrShape, "%#v for %s", names, formatLegs(t.legs))
	}
	return t.Transpose(perm...), nil
}

// Matrix returns t as a matrix whose rows are indexed by the first rows legs and whose columns by the rest.
// The matrix shares no memory with t.
func (t *Dense) Matrix(rows int) *mat.Dense {
	if rows < 0 || rows > len(t.legs) {
		panic(fmt.Sprintf("%d %s", rows, formatLegs(t.legs)))
	}
	r := 1
	for _, l := range t.legs[:rows] {
		r *= l.Dim
	}
	return mat.NewDense(r, len(t.data)/r, slices.Clone(t.data))
}

// FromMatrix returns a tensor with the given legs holding the elements of m in row-major order.
func FromMatrix(m mat.Matrix, legs ...Leg) (*Dense, error) {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := range r {
		for j := range c {
			data = append(data, m.At(i, j))
		}
	}
	t, err := New(legs, data)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%dx%d matrix", r, c))
	}
	return t, nil
}

// Norm returns the Frobenius norm.
func (t *Dense) Norm() float64 {
	return floats.Norm(t.data, 2)
}

// Scale multiplies t by s in place and returns t.
func (t *Dense) Scale(s float64) *Dense {
	floats.Scale(s, t.data)
	return t
}

// Dot returns the sum of the elementwise product of t and u, which must have the same shape.
func (t *Dense) Dot(u *Dense) float64 {
	if !slices.Equal(t.Shape(), u.Shape()) {
		panic(fmt.Sprintf("%s %s", formatLegs(t.legs), formatLegs(u.legs)))
	}
	return floats.Dot(t.data, u.data)
}

// Sub returns t - u.
func Sub(t, u *Dense) (*Dense, error) {
	if !slices.Equal(t.Shape(), u.Shape()) {
		return nil, errors.Wrapf(ErrShape, "%s %s", formatLegs(t.legs), formatLegs(u.legs))
	}
	d := t.Clone()
	floats.Sub(d.data, u.data)
	return d, nil
}

// EqualApprox reports whether t and u have the same shape and all elements within tol.
func EqualApprox(t, u *Dense, tol float64) bool {
	if !slices.Equal(t.Shape(), u.Shape()) {
		return false
	}
	return floats.EqualApprox(t.data, u.data, tol)
}

// IsFinite reports whether t holds no NaN or Inf.
func (t *Dense) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String formats t as [shape][data], with leg names in the shape.
func (t *Dense) String() string {
	ss := make([]string, 0, len(t.data))
	for _, v := range t.data {
		ss = append(ss, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return fmt.Sprintf("[%s][%s]", formatLegs(t.legs), strings.Join(ss, ","))
}

func formatLegs(legs []Leg) string {
	ss := make([]string, 0, len(legs))
	for _, l := range legs {
		ss = append(ss, l.Name+":"+strconv.Itoa(l.Dim))
	}
	return strings.Join(ss, ",")
}
