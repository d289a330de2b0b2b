package dmrg

import (
	"fmt"

	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
)

// arena holds the environment tensors of a chain of n sites, indexed by bond position 0..n.
// left[b] contracts sites 0..b-1 and right[b] contracts sites b..n-1, both with legs (bra, mpo, ket).
// The boundaries left[0] and right[n] are always valid.
type arena struct {
	left, right     []*tensor.Dense
	leftOK, rightOK []bool
}

func newArena(n int) *arena {
	a := &arena{
		left:    make([]*tensor.Dense, n+1),
		right:   make([]*tensor.Dense, n+1),
		leftOK:  make([]bool, n+1),
		rightOK: make([]bool, n+1),
	}
	a.left[0], a.leftOK[0] = mps.BoundaryEnvironment(), true
	a.right[n], a.rightOK[n] = mps.BoundaryEnvironment(), true
	return a
}

func (a *arena) getLeft(b int) *tensor.Dense {
	if !a.leftOK[b] {
		panic(fmt.Sprintf("stale left environment %d %#v", b, a.leftOK))
	}
	return a.left[b]
}

func (a *arena) getRight(b int) *tensor.Dense {
	if !a.rightOK[b] {
		panic(fmt.Sprintf("stale right environment %d %#v", b, a.rightOK))
	}
	return a.right[b]
}

// setLeft stores left[b]. The right environments at b and before now include a site that changed.
func (a *arena) setLeft(b int, t *tensor.Dense) {
	a.left[b], a.leftOK[b] = t, true
	for i := 0; i <= b && i < len(a.right)-1; i++ {
		a.right[i], a.rightOK[i] = nil, false
	}
}

// setRight stores right[b]. The left environments at b and after now include a site that changed.
func (a *arena) setRight(b int, t *tensor.Dense) {
	a.right[b], a.rightOK[b] = t, true
	for i := max(b, 1); i < len(a.left); i++ {
		a.left[i], a.leftOK[i] = nil, false
	}
}

// effective is the two site effective Hamiltonian of equation 209, Ulrich Schollwock,
// acting on tensors with legs (left, phys1, phys2, right).
type effective struct {
	b      tensor.Backend
	l, r   *tensor.Dense
	w1, w2 *tensor.Dense
	legs   []tensor.Leg
	size   int
}

func newEffective(b tensor.Backend, l, w1, w2, r *tensor.Dense, legs []tensor.Leg) *effective {
	size := 1
	for _, leg := range legs {
		size *= leg.Dim
	}
	return &effective{b: b, l: l, r: r, w1: w1, w2: w2, legs: legs, size: size}
}

func (h *effective) Dim() int { return h.size }

func (h *effective) Apply(dst, x []float64) {
	theta, err := tensor.New(h.legs, x)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	// (bra, mpo, phys1, phys2, right)
	t := tensor.Product(h.b, h.l, theta, [][2]int{{2, 0}})
	// (out1, mpo, bra, phys2, right)
	t = tensor.Product(h.b, h.w1, t, [][2]int{{0, 1}, {1, 2}})
	// (out2, mpo, out1, bra, right)
	t = tensor.Product(h.b, h.w2, t, [][2]int{{0, 1}, {1, 3}})
	// (rightBra, out2, out1, leftBra)
	t = tensor.Product(h.b, h.r, t, [][2]int{{1, 1}, {2, 4}})
	copy(dst, t.Transpose(3, 2, 1, 0).Data())
}
