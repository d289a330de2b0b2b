package tensor

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// blockRows is the row granularity of parallel products.
// It matches the block size of gonum's native Dgemm so that every element is summed in the same order
// whether or not the product is split.
const blockRows = 64

// Backend configures the dense linear algebra calls of tensor operations.
// The zero value is the serial backend.
type Backend struct {
	// Workers is the maximum number of goroutines a single product may use.
	// Values below 2 run products on the calling goroutine.
	Workers int
}

// DefaultBackend returns the serial backend.
func DefaultBackend() Backend {
	return Backend{Workers: 1}
}

// ParallelBackend returns a backend using every CPU.
func ParallelBackend() Backend {
	return Backend{Workers: runtime.GOMAXPROCS(0)}
}

// Mul stores x @ y into dst, which must be empty or of the right size.
func (b Backend) Mul(dst *mat.Dense, x, y mat.Matrix) {
	r, _ := x.Dims()
	_, c := y.Dims()
	if dst.IsEmpty() {
		dst.ReuseAs(r, c)
	}
	blocks := (r + blockRows - 1) / blockRows
	if b.Workers < 2 || blocks < 2 {
		dst.Mul(x, y)
		return
	}

	xd := mat.DenseCopyOf(x)
	var g errgroup.Group
	g.SetLimit(b.Workers)
	for i := 0; i < r; i += blockRows {
		end := min(i+blockRows, r)
		g.Go(func() error {
			sub := dst.Slice(i, end, 0, c).(*mat.Dense)
			sub.Mul(xd.Slice(i, end, 0, xd.RawMatrix().Cols), y)
			return nil
		})
	}
	g.Wait()
}

// Product contracts x and y over the pairs of axes in axes, where each pair is {axis of x, axis of y}.
// The legs of the result are the free legs of x followed by the free legs of y, both in their original order.
func Product(b Backend, x, y *Dense, axes [][2]int) *Dense {
	xContract := make([]int, 0, len(axes))
	yContract := make([]int, 0, len(axes))
	for _, a := range axes {
		if x.legs[a[0]].Dim != y.legs[a[1]].Dim {
			panic(fmt.Sprintf("%#v %s %s", axes, formatLegs(x.legs), formatLegs(y.legs)))
		}
		xContract = append(xContract, a[0])
		yContract = append(yContract, a[1])
	}
	xFree := freeAxes(len(x.legs), xContract)
	yFree := freeAxes(len(y.legs), yContract)

	xt := x.Transpose(append(slices.Clone(xFree), xContract...)...)
	yt := y.Transpose(append(slices.Clone(yContract), yFree...)...)
	xm := xt.Matrix(len(xFree))
	ym := yt.Matrix(len(yContract))

	var pm mat.Dense
	b.Mul(&pm, xm, ym)

	legs := make([]Leg, 0, len(xFree)+len(yFree))
	for _, a := range xFree {
		legs = append(legs, x.legs[a])
	}
	for _, a := range yFree {
		legs = append(legs, y.legs[a])
	}
	return &Dense{legs: legs, data: pm.RawMatrix().Data}
}

// Contract contracts x and y over pairs of leg names {leg of x, leg of y}.
func Contract(b Backend, x, y *Dense, pairs [][2]string) (*Dense, error) {
	axes := make([][2]int, 0, len(pairs))
	for _, p := range pairs {
		xa, ya := x.Axis(p[0]), y.Axis(p[1])
		if xa < 0 || ya < 0 {
			return nil, errors.Wrapf(ErrShape, "%#v %s %s", p, formatLegs(x.legs), formatLegs(y.legs))
		}
		if x.legs[xa].Dim != y.legs[ya].Dim {
			return nil, errors.Wrapf(ErrShape, "%#v %s %s", p, formatLegs(x.legs), formatLegs(y.legs))
		}
		axes = append(axes, [2]int{xa, ya})
	}
	return Product(b, x, y, axes), nil
}

func freeAxes(n int, contracted []int) []int {
	free := make([]int, 0, n)
	for i := range n {
		if !slices.Contains(contracted, i) {
			free = append(free, i)
		}
	}
	return free
}
