package mps

import (
	"fmt"
	"math"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
)

// EntanglementEntropy returns the von Neumann entropy of every internal bond of the normalized state m,
// computed from the Schmidt values while moving the orthogonality center of a copy across the chain.
// m itself is not modified.
func EntanglementEntropy(m *MPS) ([]float64, error) {
	c := m.Clone()
	if err := Canonicalize(c, Right); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if Normalize(c) == 0 {
		return nil, errors.Wrap(ErrNumerical, "zero state")
	}

	entropies := make([]float64, 0, len(c.sites)-1)
	for i := range len(c.sites) - 1 {
		// Site i is the orthogonality center, so its singular values are the Schmidt values of bond i.
		_, s, _, err := tensor.SVD(c.sites[i].Matrix(2))
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("bond %d", i))
		}
		entropies = append(entropies, vonNeumann(s))
		if err := leftNormalize(c, i); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return entropies, nil
}

func vonNeumann(s []float64) float64 {
	var e float64
	for _, v := range s {
		p := v * v
		if p > 0 {
			e -= p * math.Log(p)
		}
	}
	return e
}
